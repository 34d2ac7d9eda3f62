// Package discovery advertises the session endpoint on the local network.
package discovery

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/hashicorp/mdns"
	"go.uber.org/zap"

	"github.com/charlesng35/codeshare/pkg/logger"
)

// DefaultService is the DNS-SD service type guests browse for.
const DefaultService = "_codeshare._tcp"

// Config controls the mDNS advertisement.
type Config struct {
	Enabled  bool
	Instance string
	Service  string
	// Host and IPs are detected when empty.
	Host string
	IPs  []net.IP
	TXT  []string
}

// Advertiser answers mDNS queries for the session endpoint until Shutdown.
type Advertiser struct {
	server *mdns.Server
	zone   *mdns.MDNSService
}

// NewZone builds the service records for port.
func NewZone(cfg Config, port int) (*mdns.MDNSService, error) {
	if port <= 0 {
		return nil, fmt.Errorf("discovery: invalid port %d", port)
	}

	instance := strings.TrimSpace(cfg.Instance)
	if instance == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("discovery: hostname: %w", err)
		}
		instance = host
	}

	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = DefaultService
	}

	host := strings.TrimSpace(cfg.Host)
	if host != "" && !strings.HasSuffix(host, ".") {
		host += "."
	}

	txt := cfg.TXT
	if len(txt) == 0 {
		txt = []string{"codeshare", "framing=ndjson"}
	}

	zone, err := mdns.NewMDNSService(instance, service, "", host, port, cfg.IPs, txt)
	if err != nil {
		return nil, fmt.Errorf("discovery: build service: %w", err)
	}
	return zone, nil
}

// Advertise starts answering queries for the TCP endpoint bound at addr.
func Advertise(cfg Config, addr net.Addr) (*Advertiser, error) {
	port, err := portOf(addr)
	if err != nil {
		return nil, err
	}

	zone, err := NewZone(cfg, port)
	if err != nil {
		return nil, err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return nil, fmt.Errorf("discovery: start responder: %w", err)
	}

	logger.WithModule("discovery").Info("advertising session",
		zap.String("instance", zone.Instance),
		zap.String("service", zone.Service),
		zap.Int("port", port),
	)
	return &Advertiser{server: server, zone: zone}, nil
}

// Zone returns the advertised records.
func (a *Advertiser) Zone() *mdns.MDNSService {
	if a == nil {
		return nil
	}
	return a.zone
}

// Shutdown stops the responder.
func (a *Advertiser) Shutdown() error {
	if a == nil || a.server == nil {
		return nil
	}
	return a.server.Shutdown()
}

func portOf(addr net.Addr) (int, error) {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.Port, nil
	}
	if addr == nil {
		return 0, fmt.Errorf("discovery: no listen address")
	}
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, fmt.Errorf("discovery: parse %q: %w", addr.String(), err)
	}
	port, err := net.LookupPort("tcp", portStr)
	if err != nil {
		return 0, fmt.Errorf("discovery: parse port %q: %w", portStr, err)
	}
	return port, nil
}
