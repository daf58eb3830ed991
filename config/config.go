// Package config models the synchronization solution: the set of connectors
// (one per participating domain) and the attribute converters that translate
// values between canonical and connector-specific form. A configuration is
// loaded once, validated in full, and treated as immutable for the lifetime
// of the engine; every component receives it by explicit injection.
package config

import (
	"fmt"
)

// Converter kinds accepted in the "type" field of a converter declaration.
// The set is closed: an unrecognized kind is rejected at load time.
const (
	KindPatternReplace = "patternReplace"
	KindConstant       = "constant"
	KindSIDString      = "sidString"
	KindGUIDString     = "guidString"
)

// Direction identifies which way a converter moves attribute values.
type Direction int

const (
	// Import flows connector-space values into the canonical record.
	Import Direction = iota + 1
	// Export flows canonical values out to a connector-space record.
	Export
)

func (d Direction) String() string {
	switch d {
	case Import:
		return "import"
	case Export:
		return "export"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Connector describes one configured domain participating in
// synchronization.
type Connector struct {
	// Name is the human-readable identifier, unique within a solution.
	Name string `toml:"name" validate:"required"`
	// ID is the identifier the host runtime uses to address this connector,
	// unique within a solution.
	ID string `toml:"id" validate:"required"`
	// Root is the DN suffix representing the domain's base path.
	Root string `toml:"root" validate:"required"`
	// Target marks connectors that canonical records are provisioned into.
	Target bool `toml:"target"`
	// Projects marks the authoritative connector whose records create (and
	// whose disappearance deletes) canonical records.
	Projects bool `toml:"projects"`
	// Directory optionally binds this connector to a live LDAP directory.
	// Connectors without it are served by host-provided spaces.
	Directory *DirectorySettings `toml:"directory"`
}

// DirectorySettings carries the connection parameters for an LDAP-backed
// connector space. Either URLs or Domain (for SRV discovery) must be set.
type DirectorySettings struct {
	URLs   []string `toml:"urls"`
	Domain string   `toml:"domain"`

	Auth     string `toml:"auth" default:"simple" validate:"oneof=simple kerberos"`
	Username string `toml:"username"`
	Password string `toml:"password"`

	Realm        string `toml:"realm"`
	KeytabPath   string `toml:"keytab"`
	CCachePath   string `toml:"ccache"`
	Krb5ConfPath string `toml:"krb5_conf"`
	ServiceSPN   string `toml:"spn"`

	TLSSkipVerify bool `toml:"tls_skip_verify"`

	TimeoutSeconds int `toml:"timeout_seconds" default:"30" validate:"min=0"`
	PoolSize       int `toml:"pool_size" default:"5" validate:"min=1,max=100"`
	MaxRetries     int `toml:"max_retries" default:"3" validate:"min=0"`
}

// ConverterSpec is one attribute converter declaration. Kind selects the
// conversion; direction is derived from whether the declaration appears in
// the [[import]] or [[export]] table of the document.
type ConverterSpec struct {
	Kind      string `toml:"type" validate:"required"`
	Attribute string `toml:"attribute" validate:"required"`
	// Source names the attribute read from; defaults to Attribute. On
	// import, "dn" or "distinguishedName" reads the record's DN instead of
	// a named attribute.
	Source string `toml:"source"`

	// Pattern is a regular expression locating the text to replace. Literal
	// is the plain-string alternative, escaped before use. At most one may
	// be set.
	Pattern string `toml:"pattern"`
	Literal string `toml:"literal"`
	// Replacement substitutes for the match; nil means unset, which is
	// distinct from an empty replacement that strips the match.
	Replacement *string `toml:"replace"`
	// UseDomainRoot substitutes the active connector's Root for the match
	// (export) or matches the source connector's Root (import) instead of
	// using literal text.
	UseDomainRoot bool `toml:"use_domain_root"`

	// Value is the fixed output of a constant converter.
	Value string `toml:"value"`

	direction Direction
}

// Direction reports which converter table the declaration came from.
func (s ConverterSpec) Direction() Direction { return s.direction }

// SourceAttribute returns Source, falling back to Attribute when unset.
func (s ConverterSpec) SourceAttribute() string {
	if s.Source != "" {
		return s.Source
	}
	return s.Attribute
}

// HasMatch reports whether the declaration carries a match expression in
// either form.
func (s ConverterSpec) HasMatch() bool {
	return s.Pattern != "" || s.Literal != ""
}

// Solution is the aggregate configuration: ordered connectors and ordered
// converter declarations per direction, with lookups built at load time.
type Solution struct {
	Connectors []Connector     `toml:"connector"`
	Imports    []ConverterSpec `toml:"import"`
	Exports    []ConverterSpec `toml:"export"`

	byName     map[string]int
	byID       map[string]int
	targets    []Connector
	converters map[Direction]map[string]int
}

// ConnectorByName looks a connector up by its human-readable name.
func (c *Solution) ConnectorByName(name string) (Connector, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Connector{}, false
	}
	return c.Connectors[i], true
}

// ConnectorByID looks a connector up by its host-runtime identifier.
func (c *Solution) ConnectorByID(id string) (Connector, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Connector{}, false
	}
	return c.Connectors[i], true
}

// Targets returns the connectors canonical records are provisioned into, in
// declaration order.
func (c *Solution) Targets() []Connector { return c.targets }

// Converter returns the converter registered for the attribute in the given
// direction.
func (c *Solution) Converter(dir Direction, attribute string) (ConverterSpec, bool) {
	byAttr, ok := c.converters[dir]
	if !ok {
		return ConverterSpec{}, false
	}
	i, ok := byAttr[attribute]
	if !ok {
		return ConverterSpec{}, false
	}
	return c.specsFor(dir)[i], true
}

// ConvertersFor returns all converters for a direction in declaration order.
func (c *Solution) ConvertersFor(dir Direction) []ConverterSpec {
	return c.specsFor(dir)
}

func (c *Solution) specsFor(dir Direction) []ConverterSpec {
	if dir == Import {
		return c.Imports
	}
	return c.Exports
}

// Error describes a rejected configuration declaration. Loading never
// returns a partial Solution alongside one.
type Error struct {
	// Section identifies the offending declaration, e.g. `connector "Contoso"`.
	Section string
	Reason  string
}

func (e *Error) Error() string {
	if e.Section == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Section, e.Reason)
}

func newError(section, format string, args ...any) *Error {
	return &Error{Section: section, Reason: fmt.Sprintf(format, args...)}
}
