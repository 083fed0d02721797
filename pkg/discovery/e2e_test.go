//go:build !race

package discovery

import (
	"context"
	"testing"
	"time"
)

// TestE2E_AdvertiseAndResolve advertises an endpoint with real zeroconf and
// finds it again by browsing.
//
// Note: This test requires multicast network access and may be affected by
// firewall rules.
func TestE2E_AdvertiseAndResolve(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping E2E test in short mode")
	}

	adv, err := NewAdvertiser(AdvertiserConfig{})
	if err != nil {
		t.Fatalf("NewAdvertiser() error = %v", err)
	}
	defer adv.Close()

	const port = 17880 // Non-standard port to avoid conflicts
	if err := adv.Start(port, ServiceTXT{Scheme: SchemeWebSocket, Path: "/e2e"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	instance := adv.InstanceName(SchemeWebSocket)
	t.Logf("advertising %s", instance)

	time.Sleep(500 * time.Millisecond)

	resolver, err := NewResolver(ResolverConfig{})
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	services, err := resolver.Browse(ctx)
	if err != nil {
		t.Fatalf("Browse() error = %v", err)
	}

	for svc := range services {
		t.Logf("discovered %s on %s:%d %v", svc.InstanceName, svc.HostName, svc.Port, svc.Text)
		if svc.InstanceName != instance {
			continue
		}
		if svc.Port != port {
			t.Errorf("Port = %d, want %d", svc.Port, port)
		}
		if svc.TXT.Path != "/e2e" {
			t.Errorf("Path = %q, want /e2e", svc.TXT.Path)
		}
		return
	}

	t.Skip("advertised service not discovered; multicast may be unavailable")
}
