package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// MDNSServer is the interface for mDNS service registration.
// This allows for dependency injection in tests.
type MDNSServer interface {
	// Shutdown stops the server.
	Shutdown()
}

// MDNSServerFactory creates MDNSServer instances.
type MDNSServerFactory interface {
	// Register creates a new mDNS server for the given service.
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// zeroconfServerFactory is the production implementation using grandcat/zeroconf.
type zeroconfServerFactory struct{}

func (z *zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// activeService tracks an active DNS-SD service registration.
type activeService struct {
	server       MDNSServer
	instanceName string
	port         int
}

// AdvertiserConfig holds configuration for the Advertiser.
type AdvertiserConfig struct {
	// Instance is the DNS-SD instance name. Endpoints of other schemes get
	// the scheme appended. If empty, a random name is generated.
	Instance string

	// Interfaces specifies which network interfaces to advertise on.
	// If nil, all interfaces are used.
	Interfaces []net.Interface

	// ServerFactory is the factory for creating mDNS servers.
	// If nil, the default zeroconf factory is used.
	ServerFactory MDNSServerFactory

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Advertiser publishes render hint endpoints via DNS-SD.
// At most one endpoint per Scheme is advertised at a time.
type Advertiser struct {
	config   AdvertiserConfig
	factory  MDNSServerFactory
	instance string
	log      logging.LeveledLogger
	mu       sync.RWMutex
	services map[Scheme]*activeService
	closed   bool
}

// NewAdvertiser creates a new Advertiser with the given configuration.
func NewAdvertiser(config AdvertiserConfig) (*Advertiser, error) {
	factory := config.ServerFactory
	if factory == nil {
		factory = &zeroconfServerFactory{}
	}

	instance := config.Instance
	if instance == "" {
		instance = GenerateInstanceName()
	}

	a := &Advertiser{
		config:   config,
		factory:  factory,
		instance: instance,
		services: make(map[Scheme]*activeService),
	}

	if config.LoggerFactory != nil {
		a.log = config.LoggerFactory.NewLogger("discovery")
	}

	return a, nil
}

// GenerateInstanceName returns a random instance name of the form
// "renderhints-<8 hex digits>".
func GenerateInstanceName() string {
	id := uuid.New()
	return fmt.Sprintf("renderhints-%x", id[:4])
}

// Start begins advertising an endpoint listening on port.
// Service type: _renderhints._tcp
func (a *Advertiser) Start(port int, txt ServiceTXT) error {
	if port <= 0 || port > 65535 {
		return ErrInvalidPort
	}
	if err := txt.Validate(); err != nil {
		return fmt.Errorf("advertiser: txt validation failed: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	if _, exists := a.services[txt.Scheme]; exists {
		return ErrAlreadyStarted
	}

	instanceName := a.instance
	if txt.Scheme != SchemeWebSocket {
		instanceName += "-" + txt.Scheme.String()
	}

	txtRecords := txt.Encode()
	if a.log != nil {
		a.log.Debugf("Registering mDNS service: instance=%s service=%s domain=%s port=%d",
			instanceName, ServiceRenderHints, DefaultDomain, port)
		a.log.Tracef("TXT records: %v", txtRecords)
	}

	server, err := a.factory.Register(
		instanceName,
		ServiceRenderHints,
		DefaultDomain,
		port,
		txtRecords,
		a.config.Interfaces,
	)
	if err != nil {
		return fmt.Errorf("advertiser: mDNS registration failed for %s: %w", instanceName, err)
	}

	if a.log != nil {
		a.log.Infof("advertising %s endpoint %s on port %d", txt.Scheme, instanceName, port)
	}

	a.services[txt.Scheme] = &activeService{
		server:       server,
		instanceName: instanceName,
		port:         port,
	}

	return nil
}

// Stop stops advertising the endpoint of the given scheme.
func (a *Advertiser) Stop(scheme Scheme) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	svc, exists := a.services[scheme]
	if !exists {
		return ErrNotStarted
	}

	svc.server.Shutdown()
	delete(a.services, scheme)

	return nil
}

// Close stops all services and closes the advertiser.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	for _, svc := range a.services {
		svc.server.Shutdown()
	}
	a.services = nil
	a.closed = true

	return nil
}

// IsAdvertising returns true if an endpoint of the given scheme is advertised.
func (a *Advertiser) IsAdvertising(scheme Scheme) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.services[scheme]
	return exists
}

// InstanceName returns the instance name of the advertised endpoint of the
// given scheme, or "" if it is not active.
func (a *Advertiser) InstanceName(scheme Scheme) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if svc, exists := a.services[scheme]; exists {
		return svc.instanceName
	}
	return ""
}

// CloseOnDone closes the advertiser once ctx is done.
func (a *Advertiser) CloseOnDone(ctx context.Context) {
	go func() {
		<-ctx.Done()
		a.Close()
	}()
}
