package discovery

import (
	"errors"
	"net"
	"reflect"
	"strings"
	"sync"
	"testing"
)

// mockMDNSServer is a mock implementation of MDNSServer for testing.
type mockMDNSServer struct {
	shutdownCalled bool
}

func (m *mockMDNSServer) Shutdown() {
	m.shutdownCalled = true
}

// mockMDNSServerFactory is a mock implementation of MDNSServerFactory for testing.
type mockMDNSServerFactory struct {
	mu       sync.Mutex
	servers  []*mockMDNSServer
	lastArgs struct {
		instance string
		service  string
		domain   string
		port     int
		txt      []string
	}
	shouldFail bool
}

func newMockMDNSServerFactory() *mockMDNSServerFactory {
	return &mockMDNSServerFactory{}
}

func (f *mockMDNSServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.shouldFail {
		return nil, errors.New("register failed")
	}

	f.lastArgs.instance = instance
	f.lastArgs.service = service
	f.lastArgs.domain = domain
	f.lastArgs.port = port
	f.lastArgs.txt = txt

	server := &mockMDNSServer{}
	f.servers = append(f.servers, server)
	return server, nil
}

func TestNewAdvertiser_InstanceName(t *testing.T) {
	adv, err := NewAdvertiser(AdvertiserConfig{ServerFactory: newMockMDNSServerFactory()})
	if err != nil {
		t.Fatalf("NewAdvertiser() error = %v", err)
	}
	if !strings.HasPrefix(adv.instance, "renderhints-") || len(adv.instance) != len("renderhints-")+8 {
		t.Errorf("generated instance = %q", adv.instance)
	}

	if a, b := GenerateInstanceName(), GenerateInstanceName(); a == b {
		t.Errorf("GenerateInstanceName() repeated %q", a)
	}
}

func TestAdvertiser_Start(t *testing.T) {
	factory := newMockMDNSServerFactory()
	adv, err := NewAdvertiser(AdvertiserConfig{Instance: "studio", ServerFactory: factory})
	if err != nil {
		t.Fatalf("NewAdvertiser() error = %v", err)
	}
	defer adv.Close()

	if err := adv.Start(7880, ServiceTXT{Scheme: SchemeWebSocket}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if factory.lastArgs.instance != "studio" {
		t.Errorf("instance = %q, want studio", factory.lastArgs.instance)
	}
	if factory.lastArgs.service != ServiceRenderHints {
		t.Errorf("service = %q, want %q", factory.lastArgs.service, ServiceRenderHints)
	}
	if factory.lastArgs.domain != DefaultDomain {
		t.Errorf("domain = %q, want %q", factory.lastArgs.domain, DefaultDomain)
	}
	if factory.lastArgs.port != 7880 {
		t.Errorf("port = %d, want 7880", factory.lastArgs.port)
	}
	if want := []string{"v=1", "tr=ws", "path=/hints"}; !reflect.DeepEqual(factory.lastArgs.txt, want) {
		t.Errorf("txt = %v, want %v", factory.lastArgs.txt, want)
	}

	if !adv.IsAdvertising(SchemeWebSocket) {
		t.Error("IsAdvertising(ws) = false")
	}
	if got := adv.InstanceName(SchemeWebSocket); got != "studio" {
		t.Errorf("InstanceName(ws) = %q, want studio", got)
	}

	// A second scheme gets its own instance name.
	if err := adv.Start(7881, ServiceTXT{Scheme: SchemeTCP}); err != nil {
		t.Fatalf("Start(tcp) error = %v", err)
	}
	if got := adv.InstanceName(SchemeTCP); got != "studio-tcp" {
		t.Errorf("InstanceName(tcp) = %q, want studio-tcp", got)
	}

	if err := adv.Start(7880, ServiceTXT{Scheme: SchemeWebSocket}); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("Start() again error = %v, want %v", err, ErrAlreadyStarted)
	}
}

func TestAdvertiser_StartErrors(t *testing.T) {
	factory := newMockMDNSServerFactory()
	adv, _ := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})
	defer adv.Close()

	if err := adv.Start(0, ServiceTXT{Scheme: SchemeWebSocket}); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Start(port 0) error = %v, want %v", err, ErrInvalidPort)
	}
	if err := adv.Start(70000, ServiceTXT{Scheme: SchemeWebSocket}); !errors.Is(err, ErrInvalidPort) {
		t.Errorf("Start(port 70000) error = %v, want %v", err, ErrInvalidPort)
	}
	if err := adv.Start(80, ServiceTXT{}); !errors.Is(err, ErrInvalidScheme) {
		t.Errorf("Start(no scheme) error = %v, want %v", err, ErrInvalidScheme)
	}

	factory.shouldFail = true
	if err := adv.Start(80, ServiceTXT{Scheme: SchemeWebSocket}); err == nil {
		t.Error("Start() should fail when registration fails")
	}
	if adv.IsAdvertising(SchemeWebSocket) {
		t.Error("IsAdvertising after failed registration")
	}
}

func TestAdvertiser_StopAndClose(t *testing.T) {
	factory := newMockMDNSServerFactory()
	adv, _ := NewAdvertiser(AdvertiserConfig{ServerFactory: factory})

	if err := adv.Stop(SchemeWebSocket); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop() before Start error = %v, want %v", err, ErrNotStarted)
	}

	adv.Start(80, ServiceTXT{Scheme: SchemeWebSocket})
	adv.Start(81, ServiceTXT{Scheme: SchemeTCP})

	if err := adv.Stop(SchemeWebSocket); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !factory.servers[0].shutdownCalled {
		t.Error("Stop() did not shut down the server")
	}
	if adv.IsAdvertising(SchemeWebSocket) {
		t.Error("IsAdvertising(ws) after Stop")
	}

	if err := adv.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !factory.servers[1].shutdownCalled {
		t.Error("Close() did not shut down remaining servers")
	}
	if err := adv.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("Close() again error = %v, want %v", err, ErrClosed)
	}
	if err := adv.Start(80, ServiceTXT{Scheme: SchemeWebSocket}); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Close error = %v, want %v", err, ErrClosed)
	}
}
