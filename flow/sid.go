package flow

import (
	"strings"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/ldap"
	"github.com/isometry/dirsync/record"
)

// defaultSIDSource is the directory attribute a sidString converter reads
// when the declaration names no source.
const defaultSIDSource = "objectSid"

// sidConverter renders a security identifier on the canonical record in
// S-1-... string form. Directory entries deliver the SID as a raw binary
// blob; a value already in string form passes through unchanged so re-runs
// over translated data stay stable.
type sidConverter struct {
	cfg config.ConverterSpec
	src string
}

func newSIDConverter(cfg config.ConverterSpec) *sidConverter {
	c := &sidConverter{cfg: cfg, src: cfg.Source}
	if c.src == "" {
		c.src = defaultSIDSource
	}
	return c
}

func (c *sidConverter) spec() config.ConverterSpec { return c.cfg }

func (c *sidConverter) apply(canonical record.CanonicalRecord, rec record.ConnectorRecord, _ config.Connector) error {
	value, ok := rec.Attr(c.src)
	if !ok {
		return conversionErrorf(c.cfg, nil, "source attribute %q is not set", c.src)
	}
	out := value
	if !strings.HasPrefix(value, "S-") {
		decoded, err := ldap.SIDFromBytes([]byte(value))
		if err != nil {
			return conversionErrorf(c.cfg, err, "decode %s", c.src)
		}
		out = decoded
	}
	canonical.SetAttr(c.cfg.Attribute, out)
	return nil
}
