// Package discovery advertises the daemon over mDNS so phone apps on
// the same LAN find it without anyone typing an address.
package discovery

import (
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"

	"github.com/stride-data/activity.report/internal/monitoring"
	"github.com/stride-data/activity.report/internal/version"
)

const (
	// ServiceType is the mDNS service clients browse for.
	ServiceType = "_activity-report._tcp"

	// ServiceDomain is the mDNS domain.
	ServiceDomain = "local."
)

// Service registers the daemon's HTTP port with mDNS responders on
// every interface. Start and Stop are idempotent.
type Service struct {
	mu       sync.Mutex
	server   *zeroconf.Server
	instance string
	port     int
	running  bool
}

// NewService prepares an advertisement for the given HTTP port. The
// instance name is derived from the hostname so two daemons on one
// LAN stay distinguishable.
func NewService(port int) *Service {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "activity-report"
	}
	return &Service{instance: hostname + "-activity", port: port}
}

// Start registers the advertisement. Safe to call on a running
// service.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	server, err := zeroconf.Register(
		s.instance,
		ServiceType,
		ServiceDomain,
		s.port,
		[]string{
			"version=" + version.String(),
			"api=/api",
			"ws=/ws",
			"ingest=/ws/ingest",
		},
		nil,
	)
	if err != nil {
		return fmt.Errorf("registering mDNS service: %w", err)
	}
	s.server = server
	s.running = true
	monitoring.Logf("discovery: advertising %s.%s on port %d", s.instance, ServiceType, s.port)
	return nil
}

// Stop withdraws the advertisement. Safe to call on a stopped service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if s.server != nil {
		s.server.Shutdown()
		s.server = nil
	}
	s.running = false
	monitoring.Logf("discovery: advertisement withdrawn")
}

// Running reports whether the advertisement is active.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Instance reports the advertised instance name.
func (s *Service) Instance() string {
	return s.instance
}
