package discovery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pevans/presswatch/release"
)

// Appender persists a source's records and reports how many were new.
type Appender interface {
	Append(ctx context.Context, company string, records []release.Candidate) (int, error)
}

// StatusRecorder keeps per-source run bookkeeping.
type StatusRecorder interface {
	RecordSuccess(ctx context.Context, company string, found, added int) error
	RecordFailure(ctx context.Context, company string, err error) error
}

// SourceResult is the outcome of one source within a sync. A source with
// zero records and a nil Err found nothing; a non-nil Err means it failed.
type SourceResult struct {
	Company  string
	Found    int
	Added    int
	Pages    int
	Strategy string
	Rendered bool
	Duration time.Duration
	Err      error
}

// SyncResult collects per-source outcomes in the order sources were given.
type SyncResult struct {
	Sources []SourceResult
}

// Totals sums found and added records and counts failed sources.
func (r *SyncResult) Totals() (found, added, failed int) {
	for _, s := range r.Sources {
		found += s.Found
		added += s.Added
		if s.Err != nil {
			failed++
		}
	}
	return found, added, failed
}

// Syncer runs the orchestrator over every source, one at a time, and
// persists the results.
type Syncer struct {
	orch   *Orchestrator
	store  Appender
	status StatusRecorder
	dryRun bool
}

// NewSyncer creates a syncer. store and status may be nil, in which case
// nothing is persisted or recorded.
func NewSyncer(orch *Orchestrator, store Appender, status StatusRecorder) *Syncer {
	return &Syncer{orch: orch, store: store, status: status}
}

// DryRun makes the syncer collect without appending to the dataset.
func (s *Syncer) DryRun(on bool) *Syncer {
	s.dryRun = on
	return s
}

// Sync processes sources sequentially. A failing source never stops the
// others; it is reported in its SourceResult. Sync stops early only when ctx
// is cancelled.
func (s *Syncer) Sync(ctx context.Context, sources []Source) *SyncResult {
	result := &SyncResult{Sources: make([]SourceResult, 0, len(sources))}

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		result.Sources = append(result.Sources, s.syncSource(ctx, src))
	}

	found, added, failed := result.Totals()
	zap.L().Info("sync complete",
		zap.Int("sources", len(result.Sources)),
		zap.Int("found", found),
		zap.Int("added", added),
		zap.Int("failed", failed),
	)

	return result
}

func (s *Syncer) syncSource(ctx context.Context, src Source) SourceResult {
	start := time.Now()
	out := SourceResult{Company: src.Company}

	run, err := s.orch.Run(ctx, src)
	out.Duration = time.Since(start)
	if run != nil {
		out.Found = len(run.Records)
		out.Pages = run.Pages
		out.Strategy = run.Strategy
		out.Rendered = run.Rendered
	}
	if err != nil {
		out.Err = err
		s.handleFailure(ctx, src, err)
		return out
	}

	if s.store != nil && !s.dryRun {
		added, err := s.store.Append(ctx, src.Company, run.Records)
		if err != nil {
			out.Err = err
			s.handleFailure(ctx, src, err)
			return out
		}
		out.Added = added
	}

	s.handleSuccess(ctx, src, out)

	if out.Duration > 2*time.Minute {
		zap.L().Warn("slow source",
			zap.String("company", src.Company),
			zap.Int("found", out.Found),
			zap.Int("added", out.Added),
			zap.Duration("duration", out.Duration),
		)
	} else {
		zap.L().Info("source collected",
			zap.String("company", src.Company),
			zap.Int("found", out.Found),
			zap.Int("added", out.Added),
			zap.Duration("duration", out.Duration),
		)
	}

	return out
}

func (s *Syncer) handleSuccess(ctx context.Context, src Source, out SourceResult) {
	if s.status == nil || s.dryRun {
		return
	}
	if err := s.status.RecordSuccess(ctx, src.Company, out.Found, out.Added); err != nil {
		zap.L().Error("failed to record source status", zap.String("company", src.Company), zap.Error(err))
	}
}

func (s *Syncer) handleFailure(ctx context.Context, src Source, runErr error) {
	zap.L().Error("source failed", zap.String("company", src.Company), zap.String("url", src.URL), zap.Error(runErr))

	if s.status == nil || s.dryRun {
		return
	}
	if err := s.status.RecordFailure(ctx, src.Company, runErr); err != nil {
		zap.L().Error("failed to record source status", zap.String("company", src.Company), zap.Error(err))
	}
}
