package dirsync

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/isometry/dirsync/config"
	"github.com/isometry/dirsync/flow"
	"github.com/isometry/dirsync/record"
)

// SynchronizationCore is the callback surface a host runtime drives. The
// host delivers one canonical-record event at a time: a provisioning pass, a
// deletion check, or a single attribute-flow rule. Engine is the only
// implementation; adapters binding it to a particular host mechanism live
// outside this module.
type SynchronizationCore interface {
	// Initialize prepares the engine for events: configuration is loaded
	// when none was injected, converters are compiled, and every target
	// connector is checked against the space resolver. Must complete before
	// any other method is called.
	Initialize(ctx context.Context) error
	// Terminate releases the resources the engine holds.
	Terminate(ctx context.Context) error
	// Provision reconciles one canonical record against every target
	// connector.
	Provision(ctx context.Context, canonical record.CanonicalRecord) ProvisioningResult
	// ShouldDelete reports whether the disappearance of rec deletes the
	// canonical record it was joined to.
	ShouldDelete(ctx context.Context, rec record.ConnectorRecord, canonical record.CanonicalRecord) (bool, error)
	// MapAttributesOnImport runs the import converter the rule names,
	// flowing a connector record value onto the canonical record.
	MapAttributesOnImport(ctx context.Context, rule string, rec record.ConnectorRecord, canonical record.CanonicalRecord) error
	// MapAttributesOnExport runs the export converter the rule names,
	// flowing a canonical value onto the connector record.
	MapAttributesOnExport(ctx context.Context, rule string, canonical record.CanonicalRecord, rec record.ConnectorRecord) error
}

// Engine implements SynchronizationCore for one solution configuration.
type Engine struct {
	cfg        *config.Solution
	configPath string
	spaces     record.SpaceResolver
	log        zerolog.Logger

	pipeline    *flow.Pipeline
	initialized bool
}

var _ SynchronizationCore = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithConfig injects a pre-built solution configuration; Initialize will not
// touch the filesystem.
func WithConfig(cfg *config.Solution) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithConfigPath overrides the well-known configuration path.
func WithConfigPath(path string) Option {
	return func(e *Engine) { e.configPath = path }
}

// WithSpaces injects the resolver mapping connector IDs to their spaces.
// The default is an empty in-memory resolver.
func WithSpaces(spaces record.SpaceResolver) Option {
	return func(e *Engine) { e.spaces = spaces }
}

// WithLogger injects the engine's logger. The default discards everything,
// keeping the library silent unless the host opts in.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New builds an engine. With no options it loads configuration from
// config.DefaultPath at Initialize and serves every connector from a fresh
// in-memory space resolver.
func New(opts ...Option) *Engine {
	e := &Engine{
		configPath: config.DefaultPath,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.spaces == nil {
		e.spaces = record.NewSpaces()
	}
	return e
}

// Initialize loads and compiles everything the event methods rely on. A
// configuration problem surfaces here, never later: converter declarations
// are validated and compiled, and every target connector must resolve to a
// connector space before the first event arrives.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.cfg == nil {
		cfg, err := config.Load(e.configPath)
		if err != nil {
			return err
		}
		e.cfg = cfg
	}

	pipeline, err := flow.NewPipeline(e.cfg, e.log)
	if err != nil {
		return fmt.Errorf("compile converters: %w", err)
	}
	e.pipeline = pipeline

	for _, target := range e.cfg.Targets() {
		if _, err := e.spaces.SpaceFor(ctx, target.ID); err != nil {
			return fmt.Errorf("target %s has no connector space: %w", target.Name, err)
		}
	}
	if c, ok := e.spaces.(interface{ Connect(context.Context) error }); ok {
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("connect directory spaces: %w", err)
		}
	}

	e.initialized = true
	e.log.Info().
		Int("connectors", len(e.cfg.Connectors)).
		Int("targets", len(e.cfg.Targets())).
		Int("imports", len(e.cfg.Imports)).
		Int("exports", len(e.cfg.Exports)).
		Msg("engine initialized")
	return nil
}

// Terminate releases held resources. A space resolver owning connections
// implements io.Closer and is closed here.
func (e *Engine) Terminate(_ context.Context) error {
	e.initialized = false
	if closer, ok := e.spaces.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			return fmt.Errorf("close connector spaces: %w", err)
		}
	}
	e.log.Info().Msg("engine terminated")
	return nil
}

// MapAttributesOnImport flows one connector record value onto the canonical
// record through the import converter registered for the rule's attribute.
func (e *Engine) MapAttributesOnImport(ctx context.Context, rule string, rec record.ConnectorRecord, canonical record.CanonicalRecord) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.pipeline.Apply(ctx, config.Import, rule, canonical, rec)
}

// MapAttributesOnExport flows one canonical value onto the connector record
// through the export converter registered for the rule's attribute.
func (e *Engine) MapAttributesOnExport(ctx context.Context, rule string, canonical record.CanonicalRecord, rec record.ConnectorRecord) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.pipeline.Apply(ctx, config.Export, rule, canonical, rec)
}

func (e *Engine) ready() error {
	if !e.initialized {
		return errors.New("engine is not initialized")
	}
	return nil
}
