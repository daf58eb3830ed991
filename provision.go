package dirsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/record"
)

// Provision reconciles one canonical record against every target connector
// in configuration order. Each target ends in one of three states: a record
// created, a record already linked, or a recorded failure; one target's
// failure never stops the others. The loop is sequential because later
// targets may observe canonical attributes the host flows in between
// targets.
//
// A canonical record without a distinguished name and account name is not
// an error: deletions pass through here as attribute-stripped tombstones,
// so the call reports OutcomeMissingIdentity and touches nothing.
func (e *Engine) Provision(ctx context.Context, canonical record.CanonicalRecord) ProvisioningResult {
	if err := e.ready(); err != nil {
		return ProvisioningResult{Outcome: OutcomeFailed, err: err}
	}
	log := e.log.With().Str("canonical", canonical.ID()).Logger()

	if canonical.ObjectType() != record.ObjectTypePerson {
		log.Debug().Str("objectType", canonical.ObjectType()).Msg("object type is not provisioned")
		return ProvisioningResult{Outcome: OutcomeUnsupportedType}
	}
	sourceDN, _ := canonical.Attr(record.AttrDN)
	account, _ := canonical.Attr(record.AttrAccountName)
	if sourceDN == "" || account == "" {
		log.Info().Msg("canonical record lacks identity attributes, nothing to provision")
		return ProvisioningResult{Outcome: OutcomeMissingIdentity}
	}

	targets := e.cfg.Targets()
	result := ProvisioningResult{
		Outcome: OutcomeProvisioned,
		Targets: make([]TargetResult, 0, len(targets)),
	}
	for _, target := range targets {
		tr := e.provisionTarget(ctx, target, canonical, sourceDN, account)
		if tr.Err != nil {
			result.Outcome = OutcomePartial
		}
		result.Targets = append(result.Targets, tr)
	}
	log.Info().
		Stringer("outcome", result.Outcome).
		Int("targets", len(result.Targets)).
		Msg("provisioning pass complete")
	return result
}

func (e *Engine) provisionTarget(ctx context.Context, target config.Connector, canonical record.CanonicalRecord, sourceDN, account string) TargetResult {
	tr := TargetResult{Connector: target.ID}
	log := e.log.With().Str("connector", target.ID).Str("canonical", canonical.ID()).Logger()

	space, err := e.spaces.SpaceFor(ctx, target.ID)
	if err != nil {
		tr.Action = ActionFailed
		tr.Err = fmt.Errorf("resolve connector space: %w", err)
		return tr
	}
	linked, err := space.Linked(ctx, canonical)
	if err != nil {
		tr.Action = ActionFailed
		tr.Err = fmt.Errorf("look up linked records: %w", err)
		return tr
	}
	switch {
	case len(linked) == 1:
		tr.Action = ActionLinked
		tr.DN = linked[0].DN()
		log.Debug().Str("dn", tr.DN).Msg("record already linked")
		return tr
	case len(linked) > 1:
		tr.Action = ActionFailed
		tr.Err = &AmbiguousLinkError{Connector: target.ID, Count: len(linked)}
		log.Warn().Int("links", len(linked)).Msg("multiple records link to one canonical record")
		return tr
	}

	dn := resolveTargetDN(sourceDN, target, e.cfg.Connectors)
	rec := space.Stage(record.SpaceObjectType(canonical.ObjectType()))
	rec.SetDN(dn)
	rec.SetAttr(record.AttrSAMAccountName, account)
	if displayName, ok := canonical.Attr(record.AttrDisplayName); ok {
		rec.SetAttr(record.AttrDisplayName, displayName)
	}

	if err := space.Commit(ctx, canonical, rec); err != nil {
		if errors.Is(err, record.ErrAlreadyExists) {
			// Raced an external writer; the record is there, which is all
			// provisioning wants.
			tr.Action = ActionLinked
			tr.DN = dn
			log.Info().Str("dn", dn).Msg("record appeared concurrently, treating as provisioned")
			return tr
		}
		tr.Action = ActionFailed
		tr.Err = fmt.Errorf("commit staged record: %w", err)
		return tr
	}
	tr.Action = ActionCreated
	tr.DN = dn
	log.Info().Str("dn", dn).Msg("connector record created")
	return tr
}
