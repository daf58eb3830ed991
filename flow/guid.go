package flow

import (
	"github.com/google/uuid"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/ldap"
	"github.com/isometry/dirsync/record"
)

// defaultGUIDSource is the directory attribute a guidString converter reads
// when the declaration names no source.
const defaultGUIDSource = "objectGUID"

// guidConverter renders an object GUID on the canonical record in hyphenated
// string form. Directory entries deliver the GUID as sixteen raw bytes in
// mixed-endian layout; a value already in a recognizable text form is
// normalized instead. The two cases cannot collide: no sixteen-byte blob
// parses as a GUID string.
type guidConverter struct {
	cfg config.ConverterSpec
	src string
}

func newGUIDConverter(cfg config.ConverterSpec) *guidConverter {
	c := &guidConverter{cfg: cfg, src: cfg.Source}
	if c.src == "" {
		c.src = defaultGUIDSource
	}
	return c
}

func (c *guidConverter) spec() config.ConverterSpec { return c.cfg }

func (c *guidConverter) apply(canonical record.CanonicalRecord, rec record.ConnectorRecord, _ config.Connector) error {
	value, ok := rec.Attr(c.src)
	if !ok {
		return conversionErrorf(c.cfg, nil, "source attribute %q is not set", c.src)
	}
	var out string
	if parsed, err := uuid.Parse(value); err == nil {
		out = parsed.String()
	} else {
		decoded, err := ldap.GUIDFromBytes([]byte(value))
		if err != nil {
			return conversionErrorf(c.cfg, err, "decode %s", c.src)
		}
		out = decoded
	}
	canonical.SetAttr(c.cfg.Attribute, out)
	return nil
}
