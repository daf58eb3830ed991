package flow

import (
	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/record"
)

// constantConverter writes a fixed value to the destination attribute. The
// input record contributes nothing; the converter exists so a pass can stamp
// values that are invariant per solution, such as an organization name or an
// account-control flag.
type constantConverter struct {
	cfg config.ConverterSpec
}

func (c *constantConverter) spec() config.ConverterSpec { return c.cfg }

func (c *constantConverter) apply(canonical record.CanonicalRecord, rec record.ConnectorRecord, _ config.Connector) error {
	if c.cfg.Direction() == config.Import {
		canonical.SetAttr(c.cfg.Attribute, c.cfg.Value)
		return nil
	}
	writeConnectorAttr(rec, c.cfg.Attribute, c.cfg.Value)
	return nil
}
