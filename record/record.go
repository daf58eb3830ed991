// Package record defines the contracts the engine operates through: the
// canonical record representing one identity in unified form, the staged
// per-connector record, and the connector space that enumerates and commits
// linked records. It also provides in-memory implementations for hosts that
// stage records themselves and for tests.
package record

import (
	"context"
	"errors"
)

// Object types known to the provisioning flow.
const (
	// ObjectTypePerson is the canonical identity type.
	ObjectTypePerson = "person"
	// ObjectTypeUser is the connector-space type person records stage as.
	ObjectTypeUser = "user"
)

// Well-known attribute names.
const (
	// AttrDN is the canonical record's distinguished name.
	AttrDN = "distinguishedName"
	// AttrAccountName is the canonical account identifier.
	AttrAccountName = "accountName"
	// AttrDisplayName is carried on both canonical and connector records.
	AttrDisplayName = "displayName"
	// AttrSAMAccountName is the connector-side account identifier seeded at
	// provisioning time.
	AttrSAMAccountName = "sAMAccountName"
)

// ErrAlreadyExists reports a commit race: a record with the staged identity
// appeared in the connector space between lookup and commit. Space
// implementations wrap it so callers can classify with errors.Is.
var ErrAlreadyExists = errors.New("record already exists")

// SpaceObjectType maps a canonical object type to the type its records
// stage as in a connector space. Person identities stage as user objects;
// every other type keeps its name.
func SpaceObjectType(objectType string) string {
	if objectType == ObjectTypePerson {
		return ObjectTypeUser
	}
	return objectType
}

// CanonicalRecord is one identity in its unified, domain-independent form.
// The host runtime owns its lifecycle; the engine only reads and writes
// named attributes on it.
type CanonicalRecord interface {
	ID() string
	ObjectType() string
	Attr(name string) (string, bool)
	SetAttr(name, value string)
}

// ConnectorRecord is the staged, per-domain representation of an identity.
type ConnectorRecord interface {
	// Connector returns the ID of the connector whose space owns the record.
	Connector() string
	ObjectType() string
	DN() string
	SetDN(dn string)
	Attr(name string) (string, bool)
	SetAttr(name, value string)
	// Attrs returns a copy of all staged attributes.
	Attrs() map[string]string
}

// ConnectorSpace is one connector's staging area.
type ConnectorSpace interface {
	// Linked returns the connector records joined to the canonical record,
	// in stable order.
	Linked(ctx context.Context, canonical CanonicalRecord) ([]ConnectorRecord, error)
	// Stage creates a new, unpersisted record of the given object type,
	// owned by this space.
	Stage(objectType string) ConnectorRecord
	// Commit persists a staged record and links it to the canonical record.
	// A commit colliding with an existing identity wraps ErrAlreadyExists.
	Commit(ctx context.Context, canonical CanonicalRecord, rec ConnectorRecord) error
}

// SpaceResolver maps connector IDs to their spaces. Implementations that
// hold connections may also implement io.Closer; the engine closes them on
// Terminate.
type SpaceResolver interface {
	SpaceFor(ctx context.Context, connectorID string) (ConnectorSpace, error)
}
