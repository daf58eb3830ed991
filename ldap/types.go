package ldap

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// AuthMethod selects how pool connections authenticate.
type AuthMethod int

const (
	// AuthSimple binds with username and password. An empty password is an
	// anonymous bind.
	AuthSimple AuthMethod = iota
	// AuthKerberos binds through GSSAPI using a credential cache, keytab or
	// password, in that order.
	AuthKerberos
)

func (a AuthMethod) String() string {
	switch a {
	case AuthSimple:
		return "simple"
	case AuthKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// ConnectionConfig holds the settings for one directory connection pool.
type ConnectionConfig struct {
	// Domain enables SRV discovery when no URLs are given.
	Domain string
	// URLs are explicit ldap:// or ldaps:// endpoints, tried in order.
	URLs []string

	Timeout time.Duration

	Auth     AuthMethod
	Username string
	Password string

	// Kerberos settings, honored when Auth is AuthKerberos.
	Realm        string
	KeytabPath   string
	CCachePath   string
	Krb5ConfPath string
	// ServiceSPN overrides the derived ldap/<host> service principal.
	ServiceSPN string

	TLSConfig *tls.Config
	UseTLS    bool
	SkipTLS   bool

	MaxConnections int
	MaxIdleTime    time.Duration
	HealthCheck    time.Duration

	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:        30 * time.Second,
		UseTLS:         true,
		MaxConnections: 10,
		MaxIdleTime:    5 * time.Minute,
		HealthCheck:    30 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// HasAuthentication reports whether the configuration carries credentials.
func (c *ConnectionConfig) HasAuthentication() bool {
	switch c.Auth {
	case AuthKerberos:
		return true
	default:
		return c.Username != ""
	}
}

// ServerInfo describes one directory endpoint.
type ServerInfo struct {
	Host     string
	Port     int
	UseTLS   bool
	Priority int
	Weight   int
	Source   string // "srv", "config" or "fallback"
}

// PooledConnection is a pool-managed connection. Close returns it to the
// pool rather than tearing it down.
type PooledConnection struct {
	conn          *ldap.Conn
	lastUsed      time.Time
	healthy       bool
	authenticated bool
	authTime      time.Time
	serverInfo    *ServerInfo
	returnToPool  func(*PooledConnection)
}

// Close releases the connection back to its pool.
func (pc *PooledConnection) Close() {
	if pc.returnToPool != nil {
		pc.returnToPool(pc)
	}
}

// Conn exposes the underlying LDAP connection.
func (pc *PooledConnection) Conn() *ldap.Conn { return pc.conn }

// ServerInfo reports which endpoint the connection is bound to.
func (pc *PooledConnection) ServerInfo() *ServerInfo { return pc.serverInfo }

// ConnectionPool manages a set of directory connections.
type ConnectionPool interface {
	Get(ctx context.Context) (*PooledConnection, error)
	Close() error
	Stats() PoolStats
}

// PoolStats provides pool counters for diagnostics.
type PoolStats struct {
	Idle    int
	Active  int64
	Created int64
	Errors  int64
	Uptime  time.Duration
}

// Client provides the directory operations the connector space needs.
type Client interface {
	// Connect verifies that a pooled connection can be established.
	Connect(ctx context.Context) error
	Close() error

	Search(ctx context.Context, req *SearchRequest) (*SearchResult, error)
	Add(ctx context.Context, req *AddRequest) error
	Modify(ctx context.Context, req *ModifyRequest) error
	Delete(ctx context.Context, dn string) error

	Ping(ctx context.Context) error
	Stats() PoolStats
}

// SearchRequest encapsulates directory search parameters.
type SearchRequest struct {
	BaseDN       string
	Scope        SearchScope
	Filter       string
	Attributes   []string
	SizeLimit    int
	TimeLimit    time.Duration
	DerefAliases DerefAliases
}

// SearchResult contains search entries and metadata.
type SearchResult struct {
	Entries []*ldap.Entry
	HasMore bool
}

// AddRequest encapsulates directory add parameters.
type AddRequest struct {
	DN         string
	Attributes map[string][]string
}

// ModifyRequest encapsulates directory modify parameters.
type ModifyRequest struct {
	DN                string
	AddAttributes     map[string][]string
	ReplaceAttributes map[string][]string
	DeleteAttributes  []string
}

// SearchScope defines directory search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// DerefAliases defines alias dereferencing behavior.
type DerefAliases int

const (
	NeverDerefAliases DerefAliases = iota
	DerefInSearching
	DerefFindingBaseObj
	DerefAlways
)

// RetryableError marks errors that may succeed on retry.
type RetryableError interface {
	error
	IsRetryable() bool
}

// ConnectionError represents connection-level failures.
type ConnectionError struct {
	message   string
	retryable bool
	cause     error
}

func (e *ConnectionError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *ConnectionError) IsRetryable() bool { return e.retryable }

func (e *ConnectionError) Unwrap() error { return e.cause }

// NewConnectionError creates a connection error.
func NewConnectionError(message string, retryable bool, cause error) *ConnectionError {
	return &ConnectionError{message: message, retryable: retryable, cause: cause}
}
