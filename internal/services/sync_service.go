package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"catalog-sync-service/internal/clients/shopify"
	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/normalize"
	"catalog-sync-service/internal/repository"
)

// RunStore is the persistence surface the sync service needs for runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	UpdateRun(ctx context.Context, run *models.SyncRun) error
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, errorMessage string) error
	UpdateRunProgress(ctx context.Context, id uuid.UUID, progress *models.RunProgress) error
	UpdateRunCounts(ctx context.Context, id uuid.UUID, result *models.ApplyResult) error
	GetRunByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
	ListRuns(ctx context.Context, opts repository.RunListOptions) ([]models.SyncRun, int64, error)
	CreateLog(ctx context.Context, log *models.SyncRunLog) error
	GetRunLogs(ctx context.Context, runID uuid.UUID, opts LogListOptions) ([]models.SyncRunLog, error)
}

// LogListOptions aliases the repository options so callers of the service
// don't need the repository package.
type LogListOptions = repository.LogListOptions

// SyncService orchestrates catalog synchronization runs: fetch the remote
// catalog, reconcile it against the uploaded records, apply the plan, and
// persist progress and outcomes along the way.
type SyncService struct {
	runStore   RunStore
	client     *shopify.Client
	cfg        *config.Config
	log        *logrus.Entry
	activeRuns map[uuid.UUID]context.CancelFunc
	mu         sync.Mutex
}

// NewSyncService creates a new sync service
func NewSyncService(runStore RunStore, client *shopify.Client, cfg *config.Config, log *logrus.Entry) *SyncService {
	return &SyncService{
		runStore:   runStore,
		client:     client,
		cfg:        cfg,
		log:        log,
		activeRuns: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (s *SyncService) keyOptions() normalize.KeyOptions {
	return normalize.KeyOptions{CaseInsensitive: s.cfg.MatchCaseInsensitive}
}

// resolveLocation returns the configured stock location id, falling back to
// the store's first listed location. Failure here is fatal to the run; no
// sensible default location exists.
func (s *SyncService) resolveLocation(ctx context.Context) (int64, error) {
	if s.cfg.LocationID != 0 {
		return s.cfg.LocationID, nil
	}
	locationID, err := s.client.PrimaryLocation(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolving stock location: %w", err)
	}
	return locationID, nil
}

// StartRun persists a new sync run and executes it in the background.
func (s *SyncService) StartRun(ctx context.Context, records []models.ExternalRecord, sourceFilename string) (*models.SyncRun, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to synchronize")
	}

	now := time.Now()
	run := &models.SyncRun{
		ID:             uuid.New(),
		SourceFilename: sourceFilename,
		RecordCount:    len(records),
		Status:         models.RunStatusRunning,
		StartedAt:      &now,
	}
	run.SetProgress(&models.RunProgress{})

	if err := s.runStore.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
	s.mu.Lock()
	s.activeRuns[run.ID] = cancel
	s.mu.Unlock()

	// The goroutine works on its own copy; the returned run is a snapshot
	// the caller may serialize while the run executes.
	exec := *run
	go s.executeRun(runCtx, &exec, records)

	return run, nil
}

// executeRun drives one run end to end.
func (s *SyncService) executeRun(ctx context.Context, run *models.SyncRun, records []models.ExternalRecord) {
	defer func() {
		s.mu.Lock()
		if cancel, ok := s.activeRuns[run.ID]; ok {
			cancel()
			delete(s.activeRuns, run.ID)
		}
		s.mu.Unlock()
	}()

	log := s.log.WithField("runId", run.ID.String())
	s.logRun(run.ID, models.LogLevelInfo, "Sync run started", models.JSONB{"records": len(records)})

	locationID, err := s.resolveLocation(ctx)
	if err != nil {
		s.failRun(run.ID, err.Error())
		return
	}

	fetcher := NewCatalogFetcher(s.client, locationID, s.cfg.FetchPageSize, s.cfg.FetchPageDelay, log)
	catalog, err := fetcher.FetchAll(ctx)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.failRun(run.ID, "Sync run timed out")
			return
		}
		if ctx.Err() != nil {
			_ = s.runStore.UpdateRunStatus(context.Background(), run.ID, models.RunStatusCancelled, "Cancelled")
			return
		}
		s.failRun(run.ID, err.Error())
		return
	}

	plan := Reconcile(catalog, records, s.keyOptions())
	run.MatchedCount = len(plan.Matched)
	run.UnmatchedCount = len(plan.Unmatched)
	_ = s.runStore.UpdateRun(context.Background(), run)
	s.logRun(run.ID, models.LogLevelInfo, "Reconciliation complete", models.JSONB{
		"matched":   len(plan.Matched),
		"unmatched": len(plan.Unmatched),
	})

	progress := &models.RunProgress{TotalItems: plan.TotalOperations()}
	onProgress := func(fraction float64) {
		progress.Fraction = fraction
		if progress.ProcessedItems%10 == 0 || progress.ProcessedItems == progress.TotalItems {
			_ = s.runStore.UpdateRunProgress(ctx, run.ID, progress)
		}
	}
	onOutcome := func(outcome models.ApplyOutcome) {
		progress.ProcessedItems++
		if outcome.Failed() {
			progress.FailedItems++
			s.logRun(run.ID, models.LogLevelError, "Record failed", models.JSONB{
				"op":        string(outcome.Op),
				"searchKey": outcome.SearchKey,
				"error":     outcome.Error,
			})
		} else if outcome.Op == models.ApplyOpUpdate {
			progress.UpdatedItems++
		} else {
			progress.CreatedItems++
		}
	}

	mutator := NewMutator(s.client, locationID, s.cfg.MutationDelay, log)
	result, err := mutator.Apply(ctx, plan, onProgress, onOutcome)
	_ = s.runStore.UpdateRunCounts(context.Background(), run.ID, result)
	_ = s.runStore.UpdateRunProgress(context.Background(), run.ID, progress)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.failRun(run.ID, "Sync run timed out")
		} else {
			_ = s.runStore.UpdateRunStatus(context.Background(), run.ID, models.RunStatusCancelled, "Cancelled")
			s.logRun(run.ID, models.LogLevelWarn, "Sync run cancelled", nil)
		}
		return
	}

	_ = s.runStore.UpdateRunStatus(context.Background(), run.ID, models.RunStatusCompleted, "")
	s.logRun(run.ID, models.LogLevelInfo, "Sync run completed", models.JSONB{
		"updated": result.UpdatedCount,
		"created": result.CreatedCount,
		"failed":  result.FailedCount,
	})
	log.WithFields(logrus.Fields{
		"updated": result.UpdatedCount,
		"created": result.CreatedCount,
		"failed":  result.FailedCount,
	}).Info("Sync run completed")
}

// Preview fetches the catalog and reconciles without applying anything.
func (s *SyncService) Preview(ctx context.Context, records []models.ExternalRecord) (*models.ReconciliationPlan, error) {
	locationID, err := s.resolveLocation(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := NewCatalogFetcher(s.client, locationID, s.cfg.FetchPageSize, s.cfg.FetchPageDelay, s.log)
	catalog, err := fetcher.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	plan := Reconcile(catalog, records, s.keyOptions())
	return &plan, nil
}

// GetRun retrieves a sync run by ID
func (s *SyncService) GetRun(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	return s.runStore.GetRunByID(ctx, id)
}

// ListRuns lists sync runs
func (s *SyncService) ListRuns(ctx context.Context, opts repository.RunListOptions) ([]models.SyncRun, int64, error) {
	return s.runStore.ListRuns(ctx, opts)
}

// GetRunLogs retrieves logs for a sync run
func (s *SyncService) GetRunLogs(ctx context.Context, runID uuid.UUID, opts LogListOptions) ([]models.SyncRunLog, error) {
	if opts.Limit == 0 {
		opts.Limit = 100
	}
	return s.runStore.GetRunLogs(ctx, runID, opts)
}

// CancelRun cancels a running sync run. Cancellation is coarse: the whole
// run is abandoned at the next pacing or HTTP boundary.
func (s *SyncService) CancelRun(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	cancel, exists := s.activeRuns[id]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("run not found or not running")
	}

	cancel()
	return s.runStore.UpdateRunStatus(ctx, id, models.RunStatusCancelled, "Cancelled by user")
}

// failRun marks a run as failed
func (s *SyncService) failRun(runID uuid.UUID, message string) {
	_ = s.runStore.UpdateRunStatus(context.Background(), runID, models.RunStatusFailed, message)
	s.logRun(runID, models.LogLevelError, message, nil)
}

// logRun creates a run log entry
func (s *SyncService) logRun(runID uuid.UUID, level models.LogLevel, message string, data models.JSONB) {
	entry := &models.SyncRunLog{
		ID:      uuid.New(),
		RunID:   runID,
		Level:   level,
		Message: message,
		Data:    data,
	}
	_ = s.runStore.CreateLog(context.Background(), entry)
}
