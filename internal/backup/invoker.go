package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InvokerConfig holds the collaborators of a backup run
type InvokerConfig struct {
	Provider       ConfigProvider
	Engine         Engine
	DirCreator     DirCreator
	Logger         *BackupLogger
	Throttle       uint64
	ManifestFormat ManifestFormat
}

// Invoker runs one hot backup: it resolves the source directories, creates
// the destinations and hands both lists to the engine
type Invoker struct {
	provider       ConfigProvider
	engine         Engine
	creator        DirCreator
	logger         *BackupLogger
	throttle       uint64
	manifestFormat ManifestFormat
}

// NewInvoker creates an invoker
func NewInvoker(config InvokerConfig) (*Invoker, error) {
	if config.Provider == nil {
		return nil, NewConfigurationError("configuration provider is required", nil)
	}
	if config.Engine == nil {
		return nil, NewConfigurationError("backup engine is required", nil)
	}

	creator := config.DirCreator
	if creator == nil {
		creator = OSDirCreator{}
	}

	logger := config.Logger
	if logger == nil {
		var err error
		logger, err = NewBackupLogger(BackupLoggerConfig{})
		if err != nil {
			return nil, err
		}
	}

	format := config.ManifestFormat
	if format == "" {
		format = ManifestFormatNone
	}

	return &Invoker{
		provider:       config.Provider,
		engine:         config.Engine,
		creator:        creator,
		logger:         logger,
		throttle:       config.Throttle,
		manifestFormat: format,
	}, nil
}

// Resolve discovers and verifies the source directories without touching
// the filesystem
func (inv *Invoker) Resolve(ctx context.Context) (*SourceSet, error) {
	set, err := Discover(ctx, inv.provider)
	if err != nil {
		return nil, err
	}

	err = set.Verify()
	inv.logger.LogSourceSet(set, err)
	if err != nil {
		return nil, err
	}
	return set, nil
}

// Plan resolves the sources and the destinations they map to under
// targetRoot. Nothing is created.
func (inv *Invoker) Plan(ctx context.Context, targetRoot string) (*SourceSet, *DestinationPlan, error) {
	set, err := inv.Resolve(ctx)
	if err != nil {
		return nil, nil, err
	}

	plan, err := Materialize(targetRoot, set.ValidEntries())
	if err != nil {
		return nil, nil, err
	}

	// a target inside a source would be copied into itself
	for _, entry := range set.ValidEntries() {
		if Contains(entry.Path, plan.Root) {
			return nil, nil, NewValidationError(
				fmt.Sprintf("backup target %s is inside %s directory %s", plan.Root, entry.Role, entry.Path), nil).
				WithContext("target_root", plan.Root)
		}
	}
	return set, plan, nil
}

// Run performs a backup into targetRoot. Configuration and topology errors
// are returned before anything is created. Once the engine runs, ctx is
// checked on every poll and a cancelled ctx makes the engine stop.
func (inv *Invoker) Run(ctx context.Context, targetRoot string, sink StatusSink) (*Manifest, error) {
	if sink == nil {
		sink = discardStatus{}
	}

	manifest := &Manifest{
		ID:            uuid.New().String(),
		CorrelationID: inv.logger.GetCorrelationID(),
		StartedAt:     time.Now().UTC(),
		EngineVersion: EngineVersion(inv.engine),
		Throttle:      inv.throttle,
	}

	done := inv.logger.LogRunStart(ctx, manifest.ID, targetRoot)

	set, plan, err := inv.Plan(ctx, targetRoot)
	if err != nil {
		done(err, nil)
		return nil, err
	}
	manifest.TargetRoot = plan.Root
	manifest.Sources = set.Entries()
	manifest.Destinations = plan.Destinations

	if ctx.Err() != nil {
		err := NewCancelledError(ctx.Err())
		done(err, nil)
		return nil, err
	}

	err = plan.CreateAll(inv.creator)
	inv.logger.LogDestinations(plan, err)
	if err != nil {
		done(err, nil)
		return nil, err
	}

	if err := inv.invokeEngine(ctx, plan, sink); err != nil {
		done(err, nil)
		return nil, err
	}

	manifest.CompletedAt = time.Now().UTC()
	if _, err := WriteManifest(manifest, inv.manifestFormat); err != nil {
		done(err, manifest)
		return nil, err
	}

	done(nil, manifest)
	return manifest, nil
}

func (inv *Invoker) invokeEngine(ctx context.Context, plan *DestinationPlan, sink StatusSink) error {
	if t, ok := inv.engine.(Throttler); ok && inv.throttle > 0 {
		t.Throttle(inv.throttle)
	}

	poll := func(progress float64, message string) int {
		if ctx.Err() != nil {
			return AbortCode
		}
		sink.Publish(FormatProgress(progress, message))
		return 0
	}

	var failure *EngineFailure
	report := func(code int, message string) {
		failure = &EngineFailure{Code: code, Message: message}
	}

	finish := inv.logger.Logger().LogEngineRun(len(plan.Destinations))
	code := inv.engine.BeginBackup(plan.Sources(), plan.Paths(), poll, report)
	if code == 0 {
		finish(nil)
		return nil
	}

	message := fmt.Sprintf("engine returned code %d", code)
	if failure != nil {
		if failure.Code == AbortCode {
			code = AbortCode
		}
		message = failure.Message
	}
	err := NewEngineError(code, message)
	finish(err)
	return err
}
