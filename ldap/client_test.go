package ldap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	getErr error
	gets   int
	stats  PoolStats
}

func (f *fakePool) Get(ctx context.Context) (*PooledConnection, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.gets++
	return &PooledConnection{healthy: true, returnToPool: func(*PooledConnection) {}}, nil
}

func (f *fakePool) Close() error     { return nil }
func (f *fakePool) Stats() PoolStats { return f.stats }

func fastRetryConfig() *ConnectionConfig {
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func newTestClient(pool ConnectionPool) *client {
	return &client{pool: pool, config: fastRetryConfig(), log: zerolog.Nop()}
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	pool := &fakePool{}
	c := newTestClient(pool)

	calls := 0
	err := c.withRetry(context.Background(), "search", func(conn *ldap.Conn) error {
		calls++
		return ldapError(ldap.LDAPResultBusy)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, connErr.Error(), "search failed after 3 attempts")
}

func TestWithRetryStopsOnFatalError(t *testing.T) {
	c := newTestClient(&fakePool{})

	fatal := ldapError(ldap.LDAPResultEntryAlreadyExists)
	calls := 0
	err := c.withRetry(context.Background(), "add", func(conn *ldap.Conn) error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, fatal)
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	c := newTestClient(&fakePool{})

	calls := 0
	err := c.withRetry(context.Background(), "search", func(conn *ldap.Conn) error {
		calls++
		if calls == 1 {
			return ldapError(ldap.ErrorNetwork)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	c := newTestClient(&fakePool{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.withRetry(ctx, "search", func(conn *ldap.Conn) error {
		return ldapError(ldap.LDAPResultBusy)
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetryFatalPoolError(t *testing.T) {
	pool := &fakePool{getErr: NewConnectionError("pool is closed", false, nil)}
	c := newTestClient(pool)

	err := c.withRetry(context.Background(), "search", func(conn *ldap.Conn) error {
		t.Fatal("operation should not run")
		return nil
	})
	assert.Contains(t, err.Error(), "pool is closed")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"retryable connection error", NewConnectionError("x", true, nil), true},
		{"fatal connection error", NewConnectionError("x", false, nil), false},
		{"busy", ldapError(ldap.LDAPResultBusy), true},
		{"network", ldapError(ldap.ErrorNetwork), true},
		{"already exists", ldapError(ldap.LDAPResultEntryAlreadyExists), false},
		{"wrapped retryable", NewError("search", "", ldapError(ldap.LDAPResultUnavailable)), true},
		{"generic timeout", errors.New("i/o timeout"), true},
		{"generic other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestSearchRequiresFilter(t *testing.T) {
	c := newTestClient(&fakePool{})
	_, err := c.Search(context.Background(), &SearchRequest{BaseDN: "DC=contoso,DC=com"})
	assert.ErrorContains(t, err, "filter is required")
}

func TestAddRequiresDN(t *testing.T) {
	c := newTestClient(&fakePool{})
	err := c.Add(context.Background(), &AddRequest{})
	assert.ErrorContains(t, err, "dn is required")
}

func TestModifyWithoutChangesIsNoop(t *testing.T) {
	pool := &fakePool{}
	c := newTestClient(pool)

	err := c.Modify(context.Background(), &ModifyRequest{DN: "CN=x,DC=contoso,DC=com"})
	require.NoError(t, err)
	assert.Zero(t, pool.gets)
}

func TestBuildSearchRequest(t *testing.T) {
	req := buildSearchRequest(&SearchRequest{
		BaseDN:     "DC=contoso,DC=com",
		Scope:      ScopeWholeSubtree,
		Filter:     "(objectClass=user)",
		Attributes: []string{"sAMAccountName"},
		SizeLimit:  10,
		TimeLimit:  30 * time.Second,
	})

	assert.Equal(t, "DC=contoso,DC=com", req.BaseDN)
	assert.Equal(t, ldap.ScopeWholeSubtree, req.Scope)
	assert.Equal(t, ldap.NeverDerefAliases, req.DerefAliases)
	assert.Equal(t, "(objectClass=user)", req.Filter)
	assert.Equal(t, []string{"sAMAccountName"}, req.Attributes)
	assert.Equal(t, 10, req.SizeLimit)
	assert.Equal(t, 30, req.TimeLimit)
}

func TestBuildAddRequest(t *testing.T) {
	req := buildAddRequest(&AddRequest{
		DN: "CN=Jane Doe,OU=Users,DC=contoso,DC=com",
		Attributes: map[string][]string{
			"objectClass":    {"top", "person", "organizationalPerson", "user"},
			"sAMAccountName": {"jdoe"},
		},
	})

	assert.Equal(t, "CN=Jane Doe,OU=Users,DC=contoso,DC=com", req.DN)
	require.Len(t, req.Attributes, 2)

	byName := make(map[string][]string)
	for _, attr := range req.Attributes {
		byName[attr.Type] = attr.Vals
	}
	assert.Equal(t, []string{"top", "person", "organizationalPerson", "user"}, byName["objectClass"])
	assert.Equal(t, []string{"jdoe"}, byName["sAMAccountName"])
}

func TestBuildModifyRequest(t *testing.T) {
	req := buildModifyRequest(&ModifyRequest{
		DN:                "CN=Jane Doe,OU=Users,DC=contoso,DC=com",
		AddAttributes:     map[string][]string{"description": {"synced"}},
		ReplaceAttributes: map[string][]string{"displayName": {"Jane Doe"}},
		DeleteAttributes:  []string{"telephoneNumber"},
	})

	assert.Equal(t, "CN=Jane Doe,OU=Users,DC=contoso,DC=com", req.DN)
	require.Len(t, req.Changes, 3)

	ops := make(map[uint]string)
	for _, change := range req.Changes {
		ops[change.Operation] = change.Modification.Type
	}
	assert.Equal(t, "description", ops[ldap.AddAttribute])
	assert.Equal(t, "displayName", ops[ldap.ReplaceAttribute])
	assert.Equal(t, "telephoneNumber", ops[ldap.DeleteAttribute])
}
