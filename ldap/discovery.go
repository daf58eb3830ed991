package ldap

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// srvDiscovery locates directory servers through DNS SRV records.
type srvDiscovery struct {
	resolver *net.Resolver
}

func newSRVDiscovery() *srvDiscovery {
	return &srvDiscovery{resolver: net.DefaultResolver}
}

// discoverServers resolves the directory endpoints for domain, preferring
// LDAPS. When no SRV records exist it falls back to the domain itself on the
// standard ports.
func (d *srvDiscovery) discoverServers(ctx context.Context, domain string) ([]*ServerInfo, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain is required for SRV discovery")
	}

	var servers []*ServerInfo
	for _, probe := range []struct {
		service string
		useTLS  bool
	}{
		{"_ldaps._tcp", true},
		{"_ldap._tcp", false},
		{"_gc._tcp", false},
	} {
		found, err := d.lookupSRV(ctx, probe.service+"."+domain, probe.useTLS)
		if err != nil {
			continue
		}
		servers = append(servers, found...)
		if probe.useTLS && len(servers) > 0 {
			break
		}
	}

	if len(servers) == 0 {
		servers = fallbackServers(domain)
	}

	sortServers(servers)
	return servers, nil
}

func (d *srvDiscovery) lookupSRV(ctx context.Context, name string, useTLS bool) ([]*ServerInfo, error) {
	_, addrs, err := d.resolver.LookupSRV(ctx, "", "", name)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", name, err)
	}

	servers := make([]*ServerInfo, 0, len(addrs))
	for _, addr := range addrs {
		servers = append(servers, &ServerInfo{
			Host:     strings.TrimSuffix(addr.Target, "."),
			Port:     int(addr.Port),
			UseTLS:   useTLS,
			Priority: int(addr.Priority),
			Weight:   int(addr.Weight),
			Source:   "srv",
		})
	}
	return servers, nil
}

func fallbackServers(domain string) []*ServerInfo {
	return []*ServerInfo{
		{Host: domain, Port: 636, UseTLS: true, Source: "fallback"},
		{Host: domain, Port: 389, Source: "fallback"},
	}
}

// sortServers orders by SRV priority ascending, then weight descending.
func sortServers(servers []*ServerInfo) {
	sort.Slice(servers, func(i, j int) bool {
		if servers[i].Priority != servers[j].Priority {
			return servers[i].Priority < servers[j].Priority
		}
		return servers[i].Weight > servers[j].Weight
	})
}

// serverURL renders the connection URL for a discovered server.
func serverURL(s *ServerInfo) string {
	scheme := "ldap"
	if s.UseTLS {
		scheme = "ldaps"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port)
}

// parseServerURL interprets an ldap:// or ldaps:// URL, applying the
// standard port when none is given.
func parseServerURL(rawURL string) (*ServerInfo, error) {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok {
		return nil, fmt.Errorf("invalid LDAP URL %q", rawURL)
	}

	info := &ServerInfo{Source: "config"}
	switch scheme {
	case "ldaps":
		info.UseTLS = true
		info.Port = 636
	case "ldap":
		info.Port = 389
	default:
		return nil, fmt.Errorf("unsupported URL scheme %q", scheme)
	}

	host, port, err := net.SplitHostPort(rest)
	if err != nil {
		info.Host = rest
	} else {
		info.Host = host
		p, err := strconv.Atoi(port)
		if err != nil || p < 1 || p > 65535 {
			return nil, fmt.Errorf("invalid port in URL %q", rawURL)
		}
		info.Port = p
	}
	if info.Host == "" {
		return nil, fmt.Errorf("missing host in URL %q", rawURL)
	}
	return info, nil
}
