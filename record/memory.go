package record

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Canonical is the in-memory CanonicalRecord.
type Canonical struct {
	id         string
	objectType string

	mu    sync.RWMutex
	attrs map[string]string
}

// NewCanonical builds a canonical record with a fresh identifier and the
// given starting attributes.
func NewCanonical(objectType string, attrs map[string]string) *Canonical {
	c := &Canonical{
		id:         uuid.NewString(),
		objectType: objectType,
		attrs:      make(map[string]string, len(attrs)),
	}
	for name, value := range attrs {
		c.attrs[name] = value
	}
	return c
}

func (c *Canonical) ID() string         { return c.id }
func (c *Canonical) ObjectType() string { return c.objectType }

func (c *Canonical) Attr(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.attrs[name]
	return value, ok
}

func (c *Canonical) SetAttr(name, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs[name] = value
}

// Entry is the in-memory ConnectorRecord.
type Entry struct {
	connector  string
	objectType string

	mu    sync.RWMutex
	dn    string
	attrs map[string]string
}

// NewEntry builds a connector record owned by the named connector.
func NewEntry(connectorID, objectType, dn string) *Entry {
	return &Entry{
		connector:  connectorID,
		objectType: objectType,
		dn:         dn,
		attrs:      make(map[string]string),
	}
}

func (e *Entry) Connector() string  { return e.connector }
func (e *Entry) ObjectType() string { return e.objectType }

func (e *Entry) DN() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dn
}

func (e *Entry) SetDN(dn string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dn = dn
}

func (e *Entry) Attr(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	value, ok := e.attrs[name]
	return value, ok
}

func (e *Entry) SetAttr(name, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
}

func (e *Entry) Attrs() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	attrs := make(map[string]string, len(e.attrs))
	for name, value := range e.attrs {
		attrs[name] = value
	}
	return attrs
}

// Space is the in-memory ConnectorSpace. Entries are keyed by lower-cased DN
// because directory DNs compare case-insensitively.
type Space struct {
	connector string

	mu      sync.RWMutex
	entries map[string]*Entry
	links   map[string][]string
}

// NewSpace builds an empty space for the given connector ID.
func NewSpace(connectorID string) *Space {
	return &Space{
		connector: connectorID,
		entries:   make(map[string]*Entry),
		links:     make(map[string][]string),
	}
}

// Connector returns the ID of the connector this space stages for.
func (s *Space) Connector() string { return s.connector }

func (s *Space) Stage(objectType string) ConnectorRecord {
	return &Entry{
		connector:  s.connector,
		objectType: objectType,
		attrs:      make(map[string]string),
	}
}

func (s *Space) Linked(ctx context.Context, canonical CanonicalRecord) ([]ConnectorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.links[canonical.ID()]
	linked := make([]ConnectorRecord, 0, len(keys))
	for _, key := range keys {
		if entry, ok := s.entries[key]; ok {
			linked = append(linked, entry)
		}
	}
	return linked, nil
}

func (s *Space) Commit(ctx context.Context, canonical CanonicalRecord, rec ConnectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entry, ok := rec.(*Entry)
	if !ok {
		return fmt.Errorf("commit to %s: foreign record type %T", s.connector, rec)
	}
	if entry.connector != s.connector {
		return fmt.Errorf("commit to %s: record belongs to %s", s.connector, entry.connector)
	}
	dn := entry.DN()
	if dn == "" {
		return fmt.Errorf("commit to %s: record has no DN", s.connector)
	}

	key := strings.ToLower(dn)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.entries[key]; taken {
		return fmt.Errorf("commit %s to %s: %w", dn, s.connector, ErrAlreadyExists)
	}
	s.entries[key] = entry
	s.links[canonical.ID()] = append(s.links[canonical.ID()], key)
	return nil
}

// Put inserts an entry without linking it to any canonical record. Harness
// helper for staging pre-existing directory content.
func (s *Space) Put(entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[strings.ToLower(entry.DN())] = entry
}

// Link inserts an entry and joins it to the canonical record identified by
// canonicalID. Harness helper for staging already-provisioned states.
func (s *Space) Link(canonicalID string, entry *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(entry.DN())
	s.entries[key] = entry
	s.links[canonicalID] = append(s.links[canonicalID], key)
}

// Len reports the number of entries present in the space.
func (s *Space) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Spaces resolves connector IDs to in-memory spaces, creating each space on
// first use.
type Spaces struct {
	mu   sync.Mutex
	byID map[string]*Space
}

// NewSpaces builds an empty resolver.
func NewSpaces() *Spaces {
	return &Spaces{byID: make(map[string]*Space)}
}

func (s *Spaces) SpaceFor(ctx context.Context, connectorID string) (ConnectorSpace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Space(connectorID), nil
}

// Space returns the space for a connector directly, for harness setup.
func (s *Spaces) Space(connectorID string) *Space {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.byID[connectorID]
	if !ok {
		space = NewSpace(connectorID)
		s.byID[connectorID] = space
	}
	return space
}
