package ldap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/record"
)

// linkedAttributes are fetched when resolving linked records.
var linkedAttributes = []string{
	"sAMAccountName",
	"displayName",
	"userPrincipalName",
	"objectSid",
	"objectGUID",
}

// objectClasses returns the objectClass chain written for new entries of
// the given connector-space type.
func objectClasses(objectType string) []string {
	if objectType == record.ObjectTypeUser {
		return []string{"top", "person", "organizationalPerson", "user"}
	}
	return []string{"top", objectType}
}

// Space is a directory-backed connector space. Records link to canonical
// identities through account name equality: a connector record is linked
// when its sAMAccountName matches the canonical accountName.
type Space struct {
	connector string
	root      string
	client    Client
	cache     *entryCache
	log       zerolog.Logger
}

// NewSpace wraps client as the connector space rooted at root.
func NewSpace(connectorID, root string, client Client, log zerolog.Logger) *Space {
	return &Space{
		connector: connectorID,
		root:      root,
		client:    client,
		cache:     newEntryCache(defaultCacheTTL),
		log:       log.With().Str("connector", connectorID).Logger(),
	}
}

// Connector returns the ID of the connector this space serves.
func (s *Space) Connector() string { return s.connector }

// Root returns the naming context the space is rooted at.
func (s *Space) Root() string { return s.root }

func (s *Space) Linked(ctx context.Context, canonical record.CanonicalRecord) ([]record.ConnectorRecord, error) {
	account, ok := canonical.Attr(record.AttrAccountName)
	if !ok || account == "" {
		return nil, fmt.Errorf("canonical record %s has no %s", canonical.ID(), record.AttrAccountName)
	}
	objectType := record.SpaceObjectType(canonical.ObjectType())

	if entries, ok := s.cache.get(account); ok {
		return s.materialize(objectType, entries), nil
	}

	res, err := s.client.Search(ctx, &SearchRequest{
		BaseDN: s.root,
		Scope:  ScopeWholeSubtree,
		Filter: fmt.Sprintf("(&(objectClass=%s)(sAMAccountName=%s))",
			objectType, ldap.EscapeFilter(account)),
		Attributes: linkedAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("linked records for %s: %w", account, err)
	}

	s.cache.put(account, res.Entries)
	return s.materialize(objectType, res.Entries), nil
}

// materialize converts raw directory entries into connector records. Fresh
// records are built per call so callers can mutate them without touching
// the cache.
func (s *Space) materialize(objectType string, entries []*ldap.Entry) []record.ConnectorRecord {
	records := make([]record.ConnectorRecord, 0, len(entries))
	for _, entry := range entries {
		rec := record.NewEntry(s.connector, objectType, entry.DN)
		for _, attr := range []string{"sAMAccountName", "displayName", "userPrincipalName"} {
			if v := entry.GetAttributeValue(attr); v != "" {
				rec.SetAttr(attr, v)
			}
		}
		if raw := entry.GetRawAttributeValue("objectSid"); len(raw) > 0 {
			if sid, err := SIDFromBytes(raw); err == nil {
				rec.SetAttr("objectSid", sid)
			}
		}
		if raw := entry.GetRawAttributeValue("objectGUID"); len(raw) > 0 {
			if guid, err := GUIDFromBytes(raw); err == nil {
				rec.SetAttr("objectGUID", guid)
			}
		}
		records = append(records, rec)
	}
	return records
}

func (s *Space) Stage(objectType string) record.ConnectorRecord {
	return record.NewEntry(s.connector, objectType, "")
}

func (s *Space) Commit(ctx context.Context, canonical record.CanonicalRecord, rec record.ConnectorRecord) error {
	if rec.Connector() != s.connector {
		return fmt.Errorf("commit to %s: record belongs to %s", s.connector, rec.Connector())
	}
	dn := rec.DN()
	if dn == "" {
		return fmt.Errorf("commit to %s: record has no DN", s.connector)
	}
	dn, err := NormalizeDN(dn)
	if err != nil {
		return fmt.Errorf("commit to %s: %w", s.connector, err)
	}
	if !IsDescendant(dn, s.root) {
		s.log.Warn().Str("dn", dn).Str("root", s.root).Msg("staged DN is outside the connector root")
	}

	attrs := map[string][]string{
		"objectClass": objectClasses(rec.ObjectType()),
	}
	if cn, err := RDNValue(dn, "cn"); err == nil {
		attrs["cn"] = []string{cn}
	}
	for name, value := range rec.Attrs() {
		if value == "" {
			continue
		}
		attrs[name] = []string{value}
	}

	if err := s.client.Add(ctx, &AddRequest{DN: dn, Attributes: attrs}); err != nil {
		if IsConflict(err) {
			s.dropLinkCache(canonical, rec)
			return fmt.Errorf("add %s: %w: %w", dn, record.ErrAlreadyExists, err)
		}
		return fmt.Errorf("add %s: %w", dn, err)
	}

	s.dropLinkCache(canonical, rec)
	s.log.Info().Str("dn", dn).Msg("record provisioned")
	return nil
}

// Update replaces the directory attributes of rec with its staged values.
func (s *Space) Update(ctx context.Context, rec record.ConnectorRecord) error {
	dn := rec.DN()
	if dn == "" {
		return fmt.Errorf("update in %s: record has no DN", s.connector)
	}
	attrs := rec.Attrs()
	if len(attrs) == 0 {
		return nil
	}

	replace := make(map[string][]string, len(attrs))
	for name, value := range attrs {
		replace[name] = []string{value}
	}
	if err := s.client.Modify(ctx, &ModifyRequest{DN: dn, ReplaceAttributes: replace}); err != nil {
		return fmt.Errorf("update %s: %w", dn, err)
	}
	if account, ok := rec.Attr(record.AttrSAMAccountName); ok {
		s.cache.drop(account)
	}
	s.log.Debug().Str("dn", dn).Int("attributes", len(replace)).Msg("record updated")
	return nil
}

// Remove deletes the entry at dn. A missing entry is not an error; another
// actor deprovisioning first is an acceptable outcome.
func (s *Space) Remove(ctx context.Context, dn string) error {
	if err := s.client.Delete(ctx, dn); err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", dn, err)
	}
	s.log.Info().Str("dn", dn).Msg("record removed")
	return nil
}

func (s *Space) dropLinkCache(canonical record.CanonicalRecord, rec record.ConnectorRecord) {
	if account, ok := canonical.Attr(record.AttrAccountName); ok {
		s.cache.drop(account)
	}
	if account, ok := rec.Attr(record.AttrSAMAccountName); ok {
		s.cache.drop(account)
	}
}

// Spaces resolves connector IDs to directory-backed spaces and owns their
// client connections.
type Spaces struct {
	mu     sync.RWMutex
	spaces map[string]*Space
	closed bool
}

// SpacesFromConfig builds one directory client and space per connector that
// carries directory settings. Connectors without settings are skipped; the
// host may bind those to in-memory spaces instead.
func SpacesFromConfig(ctx context.Context, cfg *config.Solution, log zerolog.Logger) (*Spaces, error) {
	spaces := make(map[string]*Space)
	for i := range cfg.Connectors {
		conn := &cfg.Connectors[i]
		if conn.Directory == nil {
			continue
		}
		client, err := NewClient(ctx, connectionConfig(conn.Directory), log)
		if err != nil {
			closeSpaces(spaces)
			return nil, fmt.Errorf("connector %s: %w", conn.Name, err)
		}
		spaces[conn.ID] = NewSpace(conn.ID, conn.Root, client, log)
	}
	return &Spaces{spaces: spaces}, nil
}

// connectionConfig translates per-connector directory settings into a
// client configuration.
func connectionConfig(d *config.DirectorySettings) *ConnectionConfig {
	cfg := DefaultConfig()
	cfg.Domain = d.Domain
	cfg.URLs = d.URLs
	cfg.Timeout = time.Duration(d.TimeoutSeconds) * time.Second
	cfg.MaxConnections = d.PoolSize
	cfg.MaxRetries = d.MaxRetries
	cfg.Username = d.Username
	cfg.Password = d.Password
	if d.Auth == "kerberos" {
		cfg.Auth = AuthKerberos
		cfg.Realm = d.Realm
		cfg.KeytabPath = d.KeytabPath
		cfg.CCachePath = d.CCachePath
		cfg.Krb5ConfPath = d.Krb5ConfPath
		cfg.ServiceSPN = d.ServiceSPN
	}
	if d.TLSSkipVerify {
		cfg.TLSConfig.InsecureSkipVerify = true
	}
	return cfg
}

func (s *Spaces) SpaceFor(ctx context.Context, connectorID string) (record.ConnectorSpace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("directory spaces are closed")
	}
	space, ok := s.spaces[connectorID]
	if !ok {
		return nil, fmt.Errorf("no directory space for connector %q", connectorID)
	}
	return space, nil
}

// Space returns the typed space for a connector, for callers that need the
// directory-specific operations.
func (s *Spaces) Space(connectorID string) (*Space, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	space, ok := s.spaces[connectorID]
	return space, ok
}

// Connect verifies every connector's directory is reachable.
func (s *Spaces) Connect(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, space := range s.spaces {
		if err := space.client.Connect(ctx); err != nil {
			return fmt.Errorf("connector %s: %w", id, err)
		}
	}
	return nil
}

// Close releases every directory client. Safe to call more than once.
func (s *Spaces) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return closeSpaces(s.spaces)
}

func closeSpaces(spaces map[string]*Space) error {
	var result *multierror.Error
	for id, space := range spaces {
		stats := space.client.Stats()
		space.log.Debug().
			Int64("created", stats.Created).
			Int64("errors", stats.Errors).
			Msg("closing directory client")
		if err := space.client.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", id, err))
		}
	}
	return result.ErrorOrNil()
}
