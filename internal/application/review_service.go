package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/go-quorum/infrastructure/dispatch"
	"github.com/ahrav/go-quorum/infrastructure/integrity"
	"github.com/ahrav/go-quorum/infrastructure/lifecycle"
	"github.com/ahrav/go-quorum/infrastructure/middleware"
	"github.com/ahrav/go-quorum/infrastructure/payload"
	"github.com/ahrav/go-quorum/infrastructure/units"
	"github.com/ahrav/go-quorum/internal/domain"
	"github.com/ahrav/go-quorum/internal/ports"
)

// Stage names of the post-dispatch pipeline.
const (
	StageMerge     = "merge"
	StageIntegrity = "integrity"
	StageReconcile = "reconcile"
)

// ServiceOption customizes a ReviewService.
type ServiceOption func(*ReviewService)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *ReviewService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records stage metrics to m.
func WithMetrics(m ports.MetricsCollector) ServiceOption {
	return func(s *ReviewService) { s.metrics = m }
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ReviewService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunIDs replaces the run ID generator, for tests.
func WithRunIDs(gen func() string) ServiceOption {
	return func(s *ReviewService) {
		if gen != nil {
			s.newRunID = gen
		}
	}
}

// ReviewService orchestrates a review run: dispatch, validation, and the
// merge, integrity and reconcile stages. The store is written at most once
// per run, after every selected batch succeeded.
type ReviewService struct {
	cfg      ReviewConfig
	runner   ports.ReviewRunner
	store    ports.FindingStore
	metrics  ports.MetricsCollector
	logger   *slog.Logger
	now      func() time.Time
	newRunID func() string
}

// NewReviewService validates cfg and returns a service. runner may be nil
// for services that only merge or reconcile.
func NewReviewService(cfg ReviewConfig, runner ports.ReviewRunner, store ports.FindingStore, opts ...ServiceOption) (*ReviewService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("finding store is required")
	}
	s := &ReviewService{
		cfg:      cfg,
		runner:   runner,
		store:    store,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOptions selects what RunBatches does.
type RunOptions struct {
	// OnlyBatches is a CSV of 1-based batch indices. Empty runs all.
	OnlyBatches string
	// Parallel overrides the configured dispatch mode when non-nil.
	Parallel *bool
	// DryRun prepares prompts and packets without invoking the reviewer.
	DryRun bool
}

// RunSummary is written to run_summary.json in the run directory.
type RunSummary struct {
	RunID       string                  `json:"run_id"`
	Stamp       string                  `json:"stamp"`
	Runner      string                  `json:"runner"`
	Packet      string                  `json:"packet"`
	BlindPacket string                  `json:"blind_packet"`
	Prompts     string                  `json:"prompts_dir"`
	Selected    []int                   `json:"selected_batches"`
	Succeeded   []int                   `json:"successful_batches"`
	Failed      []int                   `json:"failed_batches"`
	DryRun      bool                    `json:"dry_run,omitempty"`
	Batches     []dispatch.BatchOutcome `json:"batches,omitempty"`
	Merged      string                  `json:"merged_path,omitempty"`
	Failure     *domain.FailureReport   `json:"failure,omitempty"`
	Diff        *domain.ScanDiff        `json:"scan_diff,omitempty"`
	Integrity   *domain.IntegrityRecord `json:"integrity,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
}

// RunReport is what a completed RunBatches returns.
type RunReport struct {
	Summary   RunSummary
	RunDir    string
	Consensus *domain.MergedConsensus
	Diff      *domain.ScanDiff
	Integrity *domain.IntegrityRecord
}

// RunBatches executes the selected batches of the packet and, when all of
// them succeed, merges, guards and reconciles their output into the store.
// Any batch failure halts the run with a *domain.PartialFailure before
// anything is merged.
func (s *ReviewService) RunBatches(ctx context.Context, packets ports.PacketProvider, opts RunOptions) (*RunReport, error) {
	if s.runner == nil && !opts.DryRun {
		return nil, errors.New("run batches: no reviewer configured")
	}
	started := s.now()
	runID := s.newRunID()

	packet, err := packets.Packet(ctx)
	if err != nil {
		return nil, fmt.Errorf("load packet: %w", err)
	}
	indices, err := domain.ParseBatchSelection(opts.OnlyBatches, packet.BatchCount())
	if err != nil {
		return nil, err
	}

	layout := dispatch.NewRunLayout(s.cfg.RunsDir, started)
	if err := layout.Create(); err != nil {
		return nil, err
	}
	if err := dispatch.WriteJSON(layout.PacketPath(), packet.Raw); err != nil {
		return nil, fmt.Errorf("write packet snapshot: %w", err)
	}
	blindHash, err := integrity.WriteBlindPacket(layout.BlindPacketPath(),
		integrity.BuildBlindPacket(packet.Raw, integrity.DefaultBlindOptions()))
	if err != nil {
		return nil, err
	}

	selected := selectBatches(packet.Batches, indices)
	renderer := PromptRenderer{Packet: packet, BlindPacketPath: layout.BlindPacketPath(), MaxFindings: s.maxFindings(packet)}
	prepared, err := layout.PrepareBatches(selected, renderer.Render)
	if err != nil {
		return nil, err
	}

	packetPath := packet.Path
	if packetPath == "" {
		packetPath = layout.PacketPath()
	}
	summary := RunSummary{
		RunID:       runID,
		Stamp:       layout.Stamp(),
		Runner:      s.describeRunner(),
		Packet:      packetPath,
		BlindPacket: layout.BlindPacketPath(),
		Prompts:     filepath.Join(layout.Root, dispatch.PromptsDir),
		Selected:    indices,
		StartedAt:   started,
	}
	report := &RunReport{RunDir: layout.Root}

	if opts.DryRun {
		s.logger.Info("dry run: prompts generated, reviewer skipped",
			"run_dir", layout.Root, "batches", len(prepared))
		summary.DryRun = true
		return report, s.finish(layout, &summary, report)
	}

	failed, outcomes := s.dispatch(ctx, prepared, indices, opts)
	results, invalid := s.collect(prepared, failed, packet)
	failed = mergeIndices(failed, invalid)
	summary.Batches = sortedOutcomes(outcomes)

	if len(failed) > 0 {
		fr := dispatch.BuildFailureReport(failed, packetPath, layout.LogDir())
		summary.Failed = failed
		summary.Succeeded = without(indices, failed)
		summary.Failure = &fr
		if err := s.finish(layout, &summary, report); err != nil {
			s.logger.Error("write run summary", "error", err)
		}
		return report, &domain.PartialFailure{Selected: len(indices), Report: fr}
	}
	summary.Succeeded = indices

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load review state: %w", err)
	}

	pipeline, err := s.buildPipeline(packet.TargetScore, StageMerge, StageIntegrity, StageReconcile)
	if err != nil {
		return nil, err
	}
	initial := domain.With(domain.NewState(), domain.KeyRunID, runID)
	initial = domain.With(initial, domain.KeyBatchResults, results)
	initial = domain.With(initial, domain.KeyReviewedFiles, lifecycle.ReviewedFiles(prepared))
	initial = domain.With(initial, domain.KeyReviewState, state)

	out, err := pipeline.Execute(ctx, initial)
	if err != nil {
		return nil, err
	}
	mc, err := domain.MustGet(out, domain.KeyConsensus)
	if err != nil {
		return nil, err
	}
	mc.Provenance = &domain.Provenance{
		RunID:           runID,
		Runner:          s.describeRunner(),
		Model:           s.cfg.Runner.Model,
		BlindPacketPath: layout.BlindPacketPath(),
		BlindPacketHash: blindHash,
		BatchCount:      len(indices),
		CreatedAt:       s.now(),
	}
	if err := dispatch.WriteJSON(layout.MergedPath(), mc); err != nil {
		return nil, fmt.Errorf("write merged consensus: %w", err)
	}

	next, err := domain.MustGet(out, domain.KeyReviewState)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, next); err != nil {
		return nil, err
	}

	report.Consensus = mc
	report.Diff, _ = domain.Get(out, domain.KeyScanDiff)
	report.Integrity, _ = domain.Get(out, domain.KeyIntegrity)
	summary.Merged = layout.MergedPath()
	summary.Diff = report.Diff
	summary.Integrity = report.Integrity
	return report, s.finish(layout, &summary, report)
}

// dispatch runs the prepared batches and returns the failed indices with
// what the executor observed per batch.
func (s *ReviewService) dispatch(ctx context.Context, prepared []domain.Batch, indices []int, opts RunOptions) ([]int, map[int]dispatch.BatchOutcome) {
	executor := dispatch.NewBatchExecutor(s.runner, s.cfg.Runner.Timeout, s.logger)
	prompts := make(map[int]string, len(prepared))
	for _, b := range prepared {
		prompts[b.Index] = b.Prompt
	}
	parallel := s.cfg.Dispatch.Parallel
	if opts.Parallel != nil {
		parallel = *opts.Parallel
	}
	failed := dispatch.ExecuteBatches(ctx, indices,
		func(idx int) string { return prompts[idx] },
		executor.BatchFunc(prepared),
		dispatch.ExecuteOptions{Parallel: parallel, MaxWorkers: s.cfg.Dispatch.MaxWorkers, Logger: s.logger},
	)
	return failed, executor.Outcomes()
}

// collect normalizes the output of every successful batch. Batches whose
// output holds no valid payload are returned as failures.
func (s *ReviewService) collect(prepared []domain.Batch, failed []int, packet *domain.Packet) ([]domain.NormalizedBatchResult, []int) {
	results := make([]domain.NormalizedBatchResult, 0, len(prepared))
	var invalid []int
	for _, b := range prepared {
		if slices.Contains(failed, b.Index) {
			continue
		}
		raw, err := os.ReadFile(b.OutputPath)
		if err != nil {
			s.logger.Error("read batch output", "batch", b.Index, "error", err)
			invalid = append(invalid, b.Index)
			continue
		}
		res, err := payload.Normalize(string(raw), s.normalizeOptions(b.Index, packet))
		if err != nil {
			s.logger.Warn("batch output rejected", "batch", b.Index, "error", err)
			appendLog(b.LogPath, fmt.Sprintf("\npayload rejected: %v\n", err))
			invalid = append(invalid, b.Index)
			continue
		}
		results = append(results, res)
	}
	return results, invalid
}

func (s *ReviewService) normalizeOptions(idx int, packet *domain.Packet) payload.NormalizeOptions {
	opts := payload.NormalizeOptions{
		BatchIndex:         idx,
		MaxFindings:        s.maxFindings(packet),
		CompositeDimension: s.cfg.Payload.CompositeDimension,
	}
	if packet != nil {
		opts.AllowedDimensions = packet.AllowedDimensions
	}
	return opts
}

func (s *ReviewService) maxFindings(packet *domain.Packet) int {
	if packet != nil && packet.MaxFindingsPerBatch > 0 {
		return packet.MaxFindingsPerBatch
	}
	return s.cfg.Payload.MaxFindings
}

// buildPipeline assembles the named stages in order, each wrapped in a
// StageMonitor. target overrides the configured integrity target when set.
func (s *ReviewService) buildPipeline(target *float64, stages ...string) (*Pipeline, error) {
	observers := []middleware.StageObserver{middleware.LogStageObserver{Logger: s.logger}}
	if s.metrics != nil {
		observers = append(observers, middleware.NewOTelStageObserver(s.metrics))
	}

	p := NewPipeline("review")
	for _, name := range stages {
		var (
			stage ports.Stage
			err   error
		)
		switch name {
		case StageMerge:
			stage, err = units.NewMergeUnit(name, s.cfg.Scoring)
		case StageIntegrity:
			ic := s.cfg.Integrity
			if target != nil {
				ic.Target = target
			}
			stage, err = units.NewIntegrityUnit(name, ic, s.logger)
		case StageReconcile:
			stage, err = units.NewReconcileUnit(name, units.ReconcileConfig{
				IgnorePatterns: s.cfg.Lifecycle.IgnorePatterns,
				ScanPath:       s.cfg.Lifecycle.ScanPath,
				Lang:           s.cfg.Lifecycle.Lang,
				HistoryLimit:   s.cfg.Lifecycle.HistoryLimit,
			}, s.now, s.logger)
		default:
			err = fmt.Errorf("unknown stage %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("build stage %s: %w", name, err)
		}
		if err := p.Add(middleware.NewStageMonitor(stage, observers...)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *ReviewService) describeRunner() string {
	if s.runner == nil {
		return ""
	}
	return s.runner.Describe()
}

func (s *ReviewService) finish(layout dispatch.RunLayout, summary *RunSummary, report *RunReport) error {
	summary.FinishedAt = s.now()
	report.Summary = *summary
	return dispatch.WriteJSON(layout.SummaryPath(), summary)
}

func selectBatches(batches []domain.Batch, indices []int) []domain.Batch {
	byIndex := make(map[int]domain.Batch, len(batches))
	for _, b := range batches {
		byIndex[b.Index] = b
	}
	out := make([]domain.Batch, 0, len(indices))
	for _, idx := range indices {
		out = append(out, byIndex[idx])
	}
	return out
}

func mergeIndices(a, b []int) []int {
	out := append(append([]int(nil), a...), b...)
	slices.Sort(out)
	return slices.Compact(out)
}

func without(all, drop []int) []int {
	out := make([]int, 0, len(all))
	for _, idx := range all {
		if !slices.Contains(drop, idx) {
			out = append(out, idx)
		}
	}
	return out
}

func sortedOutcomes(m map[int]dispatch.BatchOutcome) []dispatch.BatchOutcome {
	out := make([]dispatch.BatchOutcome, 0, len(m))
	for _, o := range m {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b dispatch.BatchOutcome) int { return a.Index - b.Index })
	return out
}

func appendLog(path, text string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(text)
}
