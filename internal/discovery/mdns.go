// ABOUTME: mDNS service discovery for noise control panels
// ABOUTME: Advertises the control endpoint and browses for panels on the LAN
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// ServiceType is the DNS-SD type panels advertise
	ServiceType = "_smacc-noise._tcp"

	// DefaultPath is the websocket path advertised in the TXT record
	DefaultPath = "/control"

	queryTimeout = 3 * time.Second
)

// ErrNotFound is returned when no panel answered a query
var ErrNotFound = errors.New("no noise panel found")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	Port        int
	Path        string // websocket path (default: /control)
}

// Manager handles mDNS operations
type Manager struct {
	config  Config
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *ServerInfo
}

// ServerInfo describes a discovered panel
type ServerInfo struct {
	Name string
	Host string
	Port int
	Path string
}

// Addr returns host:port
func (s *ServerInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:  config,
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *ServerInfo, 10),
	}
}

// Advertise announces this panel until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		txtRecords(m.config),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}

	log.Printf("[mdns] Advertising %s on port %d (type: %s)", m.config.ServiceName, m.config.Port, ServiceType)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for panels in the background; results arrive on Servers
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		done := make(chan struct{})

		go func() {
			defer close(done)
			for entry := range entries {
				server := toServerInfo(entry)
				if server == nil {
					continue
				}
				log.Printf("[mdns] Discovered panel: %s at %s", server.Name, server.Addr())

				select {
				case m.servers <- server:
				case <-m.ctx.Done():
				}
			}
		}()

		if err := mdns.Query(queryParams(entries)); err != nil {
			log.Printf("[mdns] Query failed: %v", err)
		}
		close(entries)
		<-done
	}
}

// Servers returns the channel of discovered panels
func (m *Manager) Servers() <-chan *ServerInfo {
	return m.servers
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Find runs a single query and returns the first panel that answers
func Find(ctx context.Context) (*ServerInfo, error) {
	entries := make(chan *mdns.ServiceEntry, 10)
	found := make(chan *ServerInfo, 1)

	drained := make(chan struct{})

	go func() {
		defer close(drained)
		for entry := range entries {
			if server := toServerInfo(entry); server != nil {
				select {
				case found <- server:
				default:
				}
			}
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		err := mdns.Query(queryParams(entries))
		close(entries)
		<-drained
		errChan <- err
	}()

	select {
	case server := <-found:
		return server, nil
	case err := <-errChan:
		select {
		case server := <-found:
			return server, nil
		default:
		}
		if err != nil {
			return nil, fmt.Errorf("mdns query failed: %w", err)
		}
		return nil, ErrNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func queryParams(entries chan *mdns.ServiceEntry) *mdns.QueryParam {
	return &mdns.QueryParam{
		Service:     ServiceType,
		Domain:      "local",
		Timeout:     queryTimeout,
		Entries:     entries,
		DisableIPv6: true,
	}
}

func txtRecords(config Config) []string {
	return []string{
		"path=" + config.Path,
		"version=1",
	}
}

// toServerInfo converts a query answer; nil if it has no usable address
func toServerInfo(entry *mdns.ServiceEntry) *ServerInfo {
	if entry == nil || !strings.Contains(entry.Name, ServiceType) {
		return nil
	}

	var host string
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	name := entry.Name
	if i := strings.Index(name, "."+ServiceType); i > 0 {
		name = name[:i]
	}

	path := txtValue(entry.InfoFields, "path")
	if path == "" {
		path = DefaultPath
	}

	return &ServerInfo{Name: name, Host: host, Port: entry.Port, Path: path}
}

// txtValue returns the value of key in key=value TXT fields
func txtValue(fields []string, key string) string {
	for _, f := range fields {
		if k, v, ok := strings.Cut(f, "="); ok && k == key {
			return v
		}
	}
	return ""
}

// getLocalIPs returns local IPv4 addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP)
			}
		}
	}

	return ips, nil
}
