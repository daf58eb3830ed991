package dirsync

import (
	"context"
	"fmt"

	"github.com/isometry/dirsync/record"
)

// ShouldDelete reports whether the disappearance of rec takes its canonical
// record with it: true exactly when rec belonged to the projecting
// connector, the one whose records create canonical records in the first
// place. Records from connectors that merely join to an existing identity
// never trigger deletion. Pure predicate; nothing is mutated and no
// connector I/O happens.
func (e *Engine) ShouldDelete(_ context.Context, rec record.ConnectorRecord, canonical record.CanonicalRecord) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	conn, ok := e.cfg.ConnectorByID(rec.Connector())
	if !ok {
		return false, fmt.Errorf("record belongs to unknown connector %q", rec.Connector())
	}
	e.log.Debug().
		Str("connector", conn.ID).
		Str("canonical", canonical.ID()).
		Bool("delete", conn.Projects).
		Msg("deletion policy evaluated")
	return conn.Projects, nil
}
