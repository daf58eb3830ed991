package ldap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

type client struct {
	pool   ConnectionPool
	config *ConnectionConfig
	log    zerolog.Logger
}

// NewClient builds a pooled directory client. Server discovery happens
// immediately; connections are dialed on first use.
func NewClient(ctx context.Context, cfg *ConnectionConfig, log zerolog.Logger) (Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := log.With().Str("component", "ldap").Logger()

	pool, err := NewPool(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connection pool: %w", err)
	}
	return &client{pool: pool, config: cfg, log: logger}, nil
}

func (c *client) Connect(ctx context.Context) error {
	pc, err := c.pool.Get(ctx)
	if err != nil {
		return err
	}
	defer pc.Close()

	req := buildSearchRequest(&SearchRequest{
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"defaultNamingContext"},
		SizeLimit:  1,
	})
	if _, err := pc.conn.Search(req); err != nil {
		return NewError("connect", "", err)
	}

	c.log.Info().
		Str("server", serverURL(pc.serverInfo)).
		Str("auth", c.config.Auth.String()).
		Msg("directory connection verified")
	return nil
}

func (c *client) Close() error {
	return c.pool.Close()
}

func (c *client) Search(ctx context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Filter == "" {
		return nil, fmt.Errorf("search: filter is required")
	}

	result := &SearchResult{}
	err := c.withRetry(ctx, "search", func(conn *ldap.Conn) error {
		res, err := conn.Search(buildSearchRequest(req))
		if err != nil {
			// A size limit overrun still returns the entries that fit.
			if ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) && res != nil {
				result.Entries = res.Entries
				result.HasMore = true
				return nil
			}
			return NewError("search", req.BaseDN, err)
		}
		result.Entries = res.Entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.log.Debug().
		Str("base", req.BaseDN).
		Str("filter", req.Filter).
		Int("entries", len(result.Entries)).
		Msg("search complete")
	return result, nil
}

func (c *client) Add(ctx context.Context, req *AddRequest) error {
	if req.DN == "" {
		return fmt.Errorf("add: dn is required")
	}

	err := c.withRetry(ctx, "add", func(conn *ldap.Conn) error {
		if err := conn.Add(buildAddRequest(req)); err != nil {
			return NewError("add", req.DN, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Debug().Str("dn", req.DN).Msg("entry added")
	return nil
}

func (c *client) Modify(ctx context.Context, req *ModifyRequest) error {
	if req.DN == "" {
		return fmt.Errorf("modify: dn is required")
	}
	if len(req.AddAttributes) == 0 && len(req.ReplaceAttributes) == 0 && len(req.DeleteAttributes) == 0 {
		return nil
	}

	err := c.withRetry(ctx, "modify", func(conn *ldap.Conn) error {
		if err := conn.Modify(buildModifyRequest(req)); err != nil {
			return NewError("modify", req.DN, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Debug().Str("dn", req.DN).Msg("entry modified")
	return nil
}

func (c *client) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return fmt.Errorf("delete: dn is required")
	}

	err := c.withRetry(ctx, "delete", func(conn *ldap.Conn) error {
		if err := conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
			return NewError("delete", dn, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	c.log.Debug().Str("dn", dn).Msg("entry deleted")
	return nil
}

func (c *client) Ping(ctx context.Context) error {
	_, err := c.Search(ctx, &SearchRequest{
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=*)",
		Attributes: []string{"supportedLDAPVersion"},
		SizeLimit:  1,
	})
	return err
}

func (c *client) Stats() PoolStats {
	return c.pool.Stats()
}

// withRetry runs fn on a pooled connection, retrying transient failures
// with exponential backoff. Connection-level failures mark the connection
// unhealthy so the pool discards it.
func (c *client) withRetry(ctx context.Context, operation string, fn func(conn *ldap.Conn) error) error {
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.log.Debug().
				Str("operation", operation).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("retrying directory operation")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(time.Duration(float64(backoff)*c.config.BackoffFactor), c.config.MaxBackoff)
		}

		pc, err := c.pool.Get(ctx)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				continue
			}
			return err
		}

		err = fn(pc.conn)
		if err != nil && Category(err) == CategoryConnection {
			pc.healthy = false
		}
		pc.Close()

		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}

	return NewConnectionError(
		fmt.Sprintf("%s failed after %d attempts", operation, c.config.MaxRetries+1),
		false, lastErr)
}

func isRetryable(err error) bool {
	var r RetryableError
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return isCodeRetryable(ldapErr.ResultCode)
	}
	_, retryable := categorizeGeneric(err)
	return retryable
}

func buildSearchRequest(req *SearchRequest) *ldap.SearchRequest {
	timeLimit := 0
	if req.TimeLimit > 0 {
		timeLimit = int(req.TimeLimit.Seconds())
	}
	return ldap.NewSearchRequest(
		req.BaseDN,
		int(req.Scope),
		int(req.DerefAliases),
		req.SizeLimit,
		timeLimit,
		false,
		req.Filter,
		req.Attributes,
		nil,
	)
}

func buildAddRequest(req *AddRequest) *ldap.AddRequest {
	add := ldap.NewAddRequest(req.DN, nil)
	for attr, values := range req.Attributes {
		add.Attribute(attr, values)
	}
	return add
}

func buildModifyRequest(req *ModifyRequest) *ldap.ModifyRequest {
	mod := ldap.NewModifyRequest(req.DN, nil)
	for attr, values := range req.AddAttributes {
		mod.Add(attr, values)
	}
	for attr, values := range req.ReplaceAttributes {
		mod.Replace(attr, values)
	}
	for _, attr := range req.DeleteAttributes {
		mod.Delete(attr, nil)
	}
	return mod
}
