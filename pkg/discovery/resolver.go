package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// DefaultLookupTimeout is the default timeout for lookup operations.
const DefaultLookupTimeout = 5 * time.Second

// ResolvedService contains information about a discovered endpoint.
type ResolvedService struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// HostName is the target host name.
	HostName string

	// Port is the service port.
	Port int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP

	// Text contains the raw TXT record key-value pairs.
	Text map[string]string

	// TXT is the decoded TXT record.
	TXT ServiceTXT
}

// PreferredIP returns the most preferred IP address (first in the sorted list).
// Returns nil if no addresses are available.
func (r *ResolvedService) PreferredIP() net.IP {
	if len(r.IPs) > 0 {
		return r.IPs[0]
	}
	return nil
}

// Address returns host:port using the preferred IP.
func (r *ResolvedService) Address() (string, error) {
	ip := r.PreferredIP()
	if ip == nil {
		return "", ErrNoAddresses
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(r.Port)), nil
}

// URL returns the WebSocket URL of the endpoint, ws://ip:port/path.
func (r *ResolvedService) URL() (string, error) {
	if r.TXT.Scheme != SchemeWebSocket {
		return "", fmt.Errorf("%w: %s endpoint has no URL", ErrInvalidScheme, r.TXT.Scheme)
	}
	host, err := r.Address()
	if err != nil {
		return "", err
	}
	u := url.URL{Scheme: "ws", Host: host, Path: r.TXT.Path}
	return u.String(), nil
}

// MDNSResolver is the interface for mDNS service resolution.
// This allows for dependency injection in tests. Implementations send
// entries until they are done or ctx ends, and never close entries.
type MDNSResolver interface {
	// Browse browses for services of the given type.
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

	// Lookup looks up a specific service instance.
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	in := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Browse(ctx, service, domain, in); err != nil {
		return err
	}
	return forward(ctx, in, entries)
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	in := make(chan *zeroconf.ServiceEntry)
	if err := z.resolver.Lookup(ctx, instance, service, domain, in); err != nil {
		return err
	}
	return forward(ctx, in, entries)
}

// forward copies entries from in, which zeroconf closes once ctx is done,
// to out. It never closes out.
func forward(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- *zeroconf.ServiceEntry) error {
	for entry := range in {
		select {
		case out <- entry:
		case <-ctx.Done():
			for range in {
			}
			return ctx.Err()
		}
	}
	return ctx.Err()
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation.
	// If nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the timeout for lookup operations.
	// If zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// LoggerFactory for creating loggers.
	LoggerFactory logging.LoggerFactory
}

// Resolver discovers render hint endpoints via DNS-SD.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
	log      logging.LeveledLogger
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	r := &Resolver{
		config:   config,
		resolver: resolver,
	}

	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("discovery")
	}

	return r, nil
}

// Browse discovers render hint endpoints on the network.
// Returns a channel that receives discovered services until the context is
// cancelled or the browse timeout expires. Entries with an unusable TXT
// record are skipped.
func (r *Resolver) Browse(ctx context.Context) (<-chan ResolvedService, error) {
	results := make(chan ResolvedService)
	entries := make(chan *zeroconf.ServiceEntry)

	cancel := func() {}
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
	}

	go func() {
		defer cancel()
		defer close(results)

		go func() {
			defer close(entries)
			if err := r.resolver.Browse(ctx, ServiceRenderHints, DefaultDomain, entries); err != nil && r.log != nil {
				r.log.Debugf("browse ended: %v", err)
			}
		}()

		for entry := range entries {
			svc, err := entryToResolvedService(entry)
			if err != nil {
				if r.log != nil {
					r.log.Debugf("skipping %s: %v", entry.Instance, err)
				}
				continue
			}
			select {
			case results <- svc:
			case <-ctx.Done():
				// Drain so the browse goroutine can exit.
				for range entries {
				}
				return
			}
		}
	}()

	return results, nil
}

// LookupFirst returns the first discovered endpoint of the given scheme.
func (r *Resolver) LookupFirst(ctx context.Context, scheme Scheme) (*ResolvedService, error) {
	if !scheme.IsValid() {
		return nil, ErrInvalidScheme
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := r.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for svc := range services {
		if svc.TXT.Scheme == scheme {
			return &svc, nil
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	return nil, ErrServiceNotFound
}

// Lookup looks up a specific endpoint by instance name.
func (r *Resolver) Lookup(ctx context.Context, instanceName string) (*ResolvedService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.LookupTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry, 1)

	go func() {
		defer close(entries)
		r.resolver.Lookup(ctx, instanceName, ServiceRenderHints, DefaultDomain, entries)
	}()

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		svc, err := entryToResolvedService(entry)
		if err != nil {
			return nil, err
		}
		return &svc, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// entryToResolvedService converts a zeroconf.ServiceEntry to ResolvedService.
func entryToResolvedService(entry *zeroconf.ServiceEntry) (ResolvedService, error) {
	txt, err := ParseServiceTXT(entry.Text)
	if err != nil {
		return ResolvedService{}, err
	}

	var allIPs []net.IP
	allIPs = append(allIPs, entry.AddrIPv4...)
	allIPs = append(allIPs, entry.AddrIPv6...)

	return ResolvedService{
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          SortIPsByPreference(allIPs),
		Text:         ParseTXT(entry.Text),
		TXT:          txt,
	}, nil
}
