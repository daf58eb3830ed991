package dirsync

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Outcome classifies a whole provisioning call.
type Outcome int

const (
	// OutcomeProvisioned means every target was reconciled without failure.
	OutcomeProvisioned Outcome = iota + 1
	// OutcomeMissingIdentity means the canonical record lacked its
	// distinguished name or account name. A tombstone passing through looks
	// like this, so the call is a no-op, not a failure.
	OutcomeMissingIdentity
	// OutcomeUnsupportedType means the canonical object type is not one the
	// engine provisions. No-op.
	OutcomeUnsupportedType
	// OutcomePartial means at least one target failed; the others were still
	// processed.
	OutcomePartial
	// OutcomeFailed means the call could not start, for instance on an
	// engine that was never initialized.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProvisioned:
		return "provisioned"
	case OutcomeMissingIdentity:
		return "missing-identity"
	case OutcomeUnsupportedType:
		return "unsupported-type"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Action is the structural decision taken for one target connector.
type Action int

const (
	// ActionCreated means a record was staged and committed.
	ActionCreated Action = iota + 1
	// ActionLinked means a matching record already existed; no structural
	// change was needed.
	ActionLinked
	// ActionFailed means the target could not be reconciled.
	ActionFailed
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionLinked:
		return "linked"
	case ActionFailed:
		return "failed"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// TargetResult is the outcome for one target connector.
type TargetResult struct {
	// Connector is the target connector's ID.
	Connector string
	// Action is the structural decision taken.
	Action Action
	// DN is the distinguished name created or found linked, when known.
	DN string
	// Err carries the per-target failure; nil unless Action is ActionFailed.
	Err error
}

// ProvisioningResult reports one reconciliation pass over all targets.
type ProvisioningResult struct {
	// Outcome classifies the pass as a whole.
	Outcome Outcome
	// Targets holds one entry per target connector, in configuration order.
	// Empty when the pass was a no-op.
	Targets []TargetResult

	err error
}

// Err aggregates the call-level failure and every per-target failure. Nil
// when the pass succeeded or was a no-op.
func (r ProvisioningResult) Err() error {
	var merr *multierror.Error
	if r.err != nil {
		merr = multierror.Append(merr, r.err)
	}
	for _, t := range r.Targets {
		if t.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("target %s: %w", t.Connector, t.Err))
		}
	}
	return merr.ErrorOrNil()
}

// AmbiguousLinkError reports more than one connector record linked to a
// single canonical record in one target space. The target cannot be
// reconciled until an operator resolves the conflict; other targets are
// unaffected.
type AmbiguousLinkError struct {
	// Connector is the target connector's ID.
	Connector string
	// Count is the number of linked records found.
	Count int
}

func (e *AmbiguousLinkError) Error() string {
	return fmt.Sprintf("connector %s: %d records link to one canonical record", e.Connector, e.Count)
}
