package flow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/record"
)

// patternConverter rewrites one attribute with a single regular-expression
// substitution. Which match and replacement pair takes effect depends on
// direction and on whether the declaration pins one side to a connector
// root:
//
//   - plain declarations match the declared pattern (or escaped literal) and
//     substitute the declared replacement;
//   - export with use_domain_root matches the declared pattern and
//     substitutes the target connector's root;
//   - import with use_domain_root matches the source connector's root,
//     case-insensitively and only at the end of the value, and substitutes
//     the declared replacement.
type patternConverter struct {
	cfg     config.ConverterSpec
	pattern *regexp.Regexp // nil when the match derives from the connector root
}

func newPatternConverter(cfg config.ConverterSpec) (*patternConverter, error) {
	c := &patternConverter{cfg: cfg}
	if c.usesRootMatch() {
		return c, nil
	}
	re, err := regexp.Compile(staticPattern(cfg))
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	c.pattern = re
	return c, nil
}

// usesRootMatch reports whether the match side is the source connector's
// root. Only imports derive their match from a root; on export the root sits
// on the replacement side. An import declaring both a match and
// use_domain_root matches the root.
func (c *patternConverter) usesRootMatch() bool {
	return c.cfg.Direction() == config.Import && c.cfg.UseDomainRoot
}

func staticPattern(cfg config.ConverterSpec) string {
	if cfg.Pattern != "" {
		return cfg.Pattern
	}
	return regexp.QuoteMeta(cfg.Literal)
}

// rootPattern matches the root as literal text, case-insensitively and
// anchored at the end, so a value mentioning the root mid-string keeps that
// occurrence.
func rootPattern(root string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)` + regexp.QuoteMeta(root) + `$`)
}

// escapeReplacement makes text safe for the replacement side of a
// substitution, where "$" introduces group references.
func escapeReplacement(text string) string {
	return strings.ReplaceAll(text, "$", "$$")
}

func (c *patternConverter) spec() config.ConverterSpec { return c.cfg }

func (c *patternConverter) apply(canonical record.CanonicalRecord, rec record.ConnectorRecord, conn config.Connector) error {
	value, ok := c.read(canonical, rec)
	if !ok {
		return conversionErrorf(c.cfg, nil, "source attribute %q is not set", c.cfg.SourceAttribute())
	}

	pattern := c.pattern
	if pattern == nil {
		re, err := rootPattern(conn.Root)
		if err != nil {
			return conversionErrorf(c.cfg, err, "compile root match for connector %q", conn.ID)
		}
		pattern = re
	}

	replacement := c.replacement(conn)
	c.write(canonical, rec, pattern.ReplaceAllString(value, replacement))
	return nil
}

// read pulls the input value: exports read the canonical record, imports
// read the connector record, where the DN is addressable as a
// pseudo-attribute.
func (c *patternConverter) read(canonical record.CanonicalRecord, rec record.ConnectorRecord) (string, bool) {
	src := c.cfg.SourceAttribute()
	if c.cfg.Direction() == config.Export {
		return canonical.Attr(src)
	}
	return readConnectorAttr(rec, src)
}

func (c *patternConverter) replacement(conn config.Connector) string {
	if c.cfg.Direction() == config.Export && c.cfg.UseDomainRoot {
		return escapeReplacement(conn.Root)
	}
	return *c.cfg.Replacement
}

// write stores the output value: imports write the canonical record, exports
// write the connector record.
func (c *patternConverter) write(canonical record.CanonicalRecord, rec record.ConnectorRecord, value string) {
	if c.cfg.Direction() == config.Import {
		canonical.SetAttr(c.cfg.Attribute, value)
		return
	}
	writeConnectorAttr(rec, c.cfg.Attribute, value)
}
