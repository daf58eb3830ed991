package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

const (
	// maxPoolSize caps MaxConnections to keep a misconfigured pool from
	// exhausting directory-side connection limits.
	maxPoolSize = 100

	// reauthInterval bounds how long a bound connection is reused before
	// being replaced with a freshly authenticated one.
	reauthInterval = 5 * time.Minute

	healthCheckTimeout = 10 * time.Second
)

type connectionPool struct {
	config      *ConnectionConfig
	log         zerolog.Logger
	servers     []*ServerInfo
	connections chan *PooledConnection

	mu     sync.RWMutex
	closed bool

	created atomic.Int64
	active  atomic.Int64
	errs    atomic.Int64
	started time.Time

	healthTicker *time.Ticker
	healthStop   chan struct{}
	healthWG     sync.WaitGroup
}

// NewPool discovers directory servers and prepares a connection pool.
// Connections are established lazily on first Get.
func NewPool(ctx context.Context, cfg *ConnectionConfig, log zerolog.Logger) (ConnectionPool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := validatePoolConfig(cfg); err != nil {
		return nil, err
	}

	servers, err := resolveServers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	p := &connectionPool{
		config:      cfg,
		log:         log,
		servers:     servers,
		connections: make(chan *PooledConnection, cfg.MaxConnections),
		started:     time.Now(),
		healthStop:  make(chan struct{}),
	}

	for _, s := range servers {
		p.log.Debug().
			Str("server", serverURL(s)).
			Str("source", s.Source).
			Int("priority", s.Priority).
			Msg("directory server available")
	}

	if cfg.HealthCheck > 0 {
		p.startHealthChecker()
	}
	return p, nil
}

func validatePoolConfig(cfg *ConnectionConfig) error {
	switch {
	case cfg.MaxConnections < 1 || cfg.MaxConnections > maxPoolSize:
		return fmt.Errorf("max connections must be between 1 and %d", maxPoolSize)
	case cfg.Timeout <= 0:
		return fmt.Errorf("timeout must be positive")
	case cfg.MaxIdleTime <= 0:
		return fmt.Errorf("max idle time must be positive")
	case cfg.MaxRetries < 0:
		return fmt.Errorf("max retries cannot be negative")
	case cfg.BackoffFactor <= 1.0:
		return fmt.Errorf("backoff factor must be greater than 1.0")
	}
	return nil
}

func resolveServers(ctx context.Context, cfg *ConnectionConfig) ([]*ServerInfo, error) {
	if len(cfg.URLs) > 0 {
		servers := make([]*ServerInfo, 0, len(cfg.URLs))
		for _, u := range cfg.URLs {
			info, err := parseServerURL(u)
			if err != nil {
				return nil, err
			}
			servers = append(servers, info)
		}
		return servers, nil
	}
	if cfg.Domain != "" {
		return newSRVDiscovery().discoverServers(ctx, cfg.Domain)
	}
	return nil, fmt.Errorf("either a domain or LDAP URLs must be configured")
}

func (p *connectionPool) Get(ctx context.Context) (*PooledConnection, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, NewConnectionError("pool is closed", false, nil)
	}
	p.mu.RUnlock()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case pc := <-p.connections:
			if p.reusable(pc) {
				pc.lastUsed = time.Now()
				p.active.Add(1)
				return pc, nil
			}
			p.discard(pc)
		default:
			pc, err := p.createConnection(ctx)
			if err != nil {
				return nil, err
			}
			p.active.Add(1)
			return pc, nil
		}
	}
}

// reusable reports whether an idle connection is still fit for use.
func (p *connectionPool) reusable(pc *PooledConnection) bool {
	if pc.conn == nil || pc.conn.IsClosing() || !pc.healthy {
		return false
	}
	if time.Since(pc.lastUsed) > p.config.MaxIdleTime {
		return false
	}
	if pc.authenticated && time.Since(pc.authTime) > reauthInterval {
		return false
	}
	return true
}

func (p *connectionPool) discard(pc *PooledConnection) {
	if pc.conn != nil {
		pc.conn.Close()
	}
}

func (p *connectionPool) createConnection(ctx context.Context) (*PooledConnection, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(time.Duration(float64(backoff)*p.config.BackoffFactor), p.config.MaxBackoff)
		}

		for _, server := range p.servers {
			pc, err := p.dialServer(server)
			if err != nil {
				lastErr = err
				p.errs.Add(1)
				p.log.Debug().
					Err(err).
					Str("server", serverURL(server)).
					Int("attempt", attempt+1).
					Msg("connection attempt failed")
				continue
			}
			p.created.Add(1)
			return pc, nil
		}
	}
	return nil, NewConnectionError("no directory server reachable", false, lastErr)
}

func (p *connectionPool) dialServer(server *ServerInfo) (*PooledConnection, error) {
	var opts []ldap.DialOpt
	if server.UseTLS {
		opts = append(opts, ldap.DialWithTLSConfig(p.tlsConfig(server.Host)))
	}

	conn, err := ldap.DialURL(serverURL(server), opts...)
	if err != nil {
		return nil, NewError("dial", "", err)
	}
	conn.SetTimeout(p.config.Timeout)

	if !server.UseTLS && !p.config.SkipTLS {
		if err := conn.StartTLS(p.tlsConfig(server.Host)); err != nil {
			conn.Close()
			return nil, NewError("starttls", "", err)
		}
	}

	if p.config.HasAuthentication() {
		if err := p.bind(conn, server); err != nil {
			conn.Close()
			return nil, err
		}
	}

	now := time.Now()
	return &PooledConnection{
		conn:          conn,
		lastUsed:      now,
		healthy:       true,
		authenticated: p.config.HasAuthentication(),
		authTime:      now,
		serverInfo:    server,
		returnToPool:  p.put,
	}, nil
}

func (p *connectionPool) tlsConfig(host string) *tls.Config {
	cfg := p.config.TLSConfig
	if cfg == nil {
		cfg = DefaultConfig().TLSConfig
	}
	cfg = cfg.Clone()
	if !cfg.InsecureSkipVerify && cfg.ServerName == "" {
		cfg.ServerName = host
	}
	return cfg
}

func (p *connectionPool) bind(conn *ldap.Conn, server *ServerInfo) error {
	switch p.config.Auth {
	case AuthKerberos:
		return kerberosBind(conn, p.config, server.Host)
	default:
		if p.config.Password == "" {
			if err := conn.UnauthenticatedBind(p.config.Username); err != nil {
				return NewError("bind", "", err)
			}
			return nil
		}
		if err := conn.Bind(p.config.Username, p.config.Password); err != nil {
			return NewError("bind", "", err)
		}
		return nil
	}
}

// put returns a connection to the pool, closing it when the pool is full,
// closed, or the connection went bad.
func (p *connectionPool) put(pc *PooledConnection) {
	p.active.Add(-1)

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()

	if closed || pc.conn == nil || pc.conn.IsClosing() || !pc.healthy {
		p.discard(pc)
		return
	}

	pc.lastUsed = time.Now()
	select {
	case p.connections <- pc:
	default:
		p.discard(pc)
	}
}

func (p *connectionPool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.healthTicker != nil {
		p.healthTicker.Stop()
		close(p.healthStop)
		p.healthWG.Wait()
	}

	for {
		select {
		case pc := <-p.connections:
			p.discard(pc)
		default:
			close(p.connections)
			return nil
		}
	}
}

func (p *connectionPool) Stats() PoolStats {
	return PoolStats{
		Idle:    len(p.connections),
		Active:  p.active.Load(),
		Created: p.created.Load(),
		Errors:  p.errs.Load(),
		Uptime:  time.Since(p.started),
	}
}

func (p *connectionPool) startHealthChecker() {
	p.healthTicker = time.NewTicker(p.config.HealthCheck)
	p.healthWG.Add(1)
	go func() {
		defer p.healthWG.Done()
		for {
			select {
			case <-p.healthStop:
				return
			case <-p.healthTicker.C:
				p.checkIdleConnections()
			}
		}
	}()
}

// checkIdleConnections probes a few idle connections with a root DSE read
// and drops any that fail.
func (p *connectionPool) checkIdleConnections() {
	probes := min(len(p.connections), 3)
	for i := 0; i < probes; i++ {
		select {
		case pc := <-p.connections:
			if p.testConnection(pc) {
				select {
				case p.connections <- pc:
				default:
					p.discard(pc)
				}
			} else {
				p.log.Debug().Msg("dropping unhealthy pooled connection")
				p.discard(pc)
			}
		default:
			return
		}
	}
}

func (p *connectionPool) testConnection(pc *PooledConnection) bool {
	if pc.conn == nil || pc.conn.IsClosing() {
		return false
	}
	req := ldap.NewSearchRequest(
		"",
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1,
		int(healthCheckTimeout.Seconds()),
		false,
		"(objectClass=*)",
		[]string{"defaultNamingContext"},
		nil,
	)
	if _, err := pc.conn.Search(req); err != nil {
		return false
	}
	pc.healthy = true
	return true
}
