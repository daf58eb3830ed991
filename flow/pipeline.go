// Package flow implements the attribute conversion pipeline that translates
// values between canonical records and connector-space records. Converters
// are declared in configuration, compiled once at pipeline construction and
// applied either singly, addressed by destination attribute, or as a full
// directional pass in declaration order.
package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/record"
)

// converter applies one attribute conversion between a canonical record and
// a connector record. conn is the connector owning the record; root-derived
// conversions take their match or replacement text from it.
type converter interface {
	spec() config.ConverterSpec
	apply(canonical record.CanonicalRecord, rec record.ConnectorRecord, conn config.Connector) error
}

// Pipeline holds the compiled converters for both directions.
type Pipeline struct {
	cfg    *config.Solution
	passes map[config.Direction][]converter
	byAttr map[config.Direction]map[string]converter
	log    zerolog.Logger
}

// NewPipeline compiles every converter the solution declares. Declarations
// are validated at configuration load, so a compilation failure here points
// at a defect rather than user error, but it is surfaced all the same.
func NewPipeline(cfg *config.Solution, log zerolog.Logger) (*Pipeline, error) {
	p := &Pipeline{
		cfg:    cfg,
		passes: make(map[config.Direction][]converter, 2),
		byAttr: make(map[config.Direction]map[string]converter, 2),
		log:    log.With().Str("component", "flow").Logger(),
	}
	for _, dir := range []config.Direction{config.Import, config.Export} {
		specs := cfg.ConvertersFor(dir)
		pass := make([]converter, 0, len(specs))
		byAttr := make(map[string]converter, len(specs))
		for _, spec := range specs {
			c, err := newConverter(spec)
			if err != nil {
				return nil, fmt.Errorf("%s converter %q: %w", dir, spec.Attribute, err)
			}
			pass = append(pass, c)
			byAttr[spec.Attribute] = c
		}
		p.passes[dir] = pass
		p.byAttr[dir] = byAttr
	}
	return p, nil
}

func newConverter(spec config.ConverterSpec) (converter, error) {
	switch spec.Kind {
	case config.KindPatternReplace:
		return newPatternConverter(spec)
	case config.KindConstant:
		return &constantConverter{cfg: spec}, nil
	case config.KindSIDString:
		return newSIDConverter(spec), nil
	case config.KindGUIDString:
		return newGUIDConverter(spec), nil
	default:
		return nil, fmt.Errorf("unrecognized converter type %q", spec.Kind)
	}
}

// Apply runs the single converter registered for the destination attribute.
// Flow rule callbacks address converters this way: the host names the rule,
// the rule names the attribute it feeds.
func (p *Pipeline) Apply(ctx context.Context, dir config.Direction, attribute string, canonical record.CanonicalRecord, rec record.ConnectorRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, ok := p.byAttr[dir][attribute]
	if !ok {
		return &ConversionError{Attribute: attribute, Direction: dir, Reason: "no converter declared"}
	}
	return p.run(c, canonical, rec)
}

// Run applies every converter declared for the direction, in declaration
// order. The first failure aborts the pass: later converters may depend on
// values earlier ones produced.
func (p *Pipeline) Run(ctx context.Context, dir config.Direction, canonical record.CanonicalRecord, rec record.ConnectorRecord) error {
	for _, c := range p.passes[dir] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.run(c, canonical, rec); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) run(c converter, canonical record.CanonicalRecord, rec record.ConnectorRecord) error {
	spec := c.spec()
	conn, ok := p.cfg.ConnectorByID(rec.Connector())
	if !ok {
		return conversionErrorf(spec, nil, "record belongs to unknown connector %q", rec.Connector())
	}
	if err := c.apply(canonical, rec, conn); err != nil {
		return err
	}
	p.log.Debug().
		Str("attribute", spec.Attribute).
		Stringer("direction", spec.Direction()).
		Str("connector", conn.ID).
		Msg("attribute converted")
	return nil
}

// The connector record's distinguished name is addressed as a
// pseudo-attribute: "dn" or "distinguishedName" in a converter's source or
// attribute field reads and writes the DN rather than the attribute map.
func isDNAttribute(name string) bool {
	return strings.EqualFold(name, "dn") || strings.EqualFold(name, record.AttrDN)
}

func readConnectorAttr(rec record.ConnectorRecord, name string) (string, bool) {
	if isDNAttribute(name) {
		dn := rec.DN()
		return dn, dn != ""
	}
	return rec.Attr(name)
}

func writeConnectorAttr(rec record.ConnectorRecord, name, value string) {
	if isDNAttribute(name) {
		rec.SetDN(value)
		return
	}
	rec.SetAttr(name, value)
}
