package services

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync-service/internal/config"
	"catalog-sync-service/internal/models"
	"catalog-sync-service/internal/repository"
)

// memStore is an in-memory RunStore for service tests.
type memStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.SyncRun
	logs []models.SyncRunLog
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[uuid.UUID]*models.SyncRun)}
}

func (s *memStore) CreateRun(ctx context.Context, run *models.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *run
	s.runs[run.ID] = &copied
	return nil
}

func (s *memStore) UpdateRun(ctx context.Context, run *models.SyncRun) error {
	return s.CreateRun(ctx, run)
}

func (s *memStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status models.RunStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = status
		run.ErrorMessage = errorMessage
	}
	return nil
}

func (s *memStore) UpdateRunProgress(ctx context.Context, id uuid.UUID, progress *models.RunProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.SetProgress(progress)
	}
	return nil
}

func (s *memStore) UpdateRunCounts(ctx context.Context, id uuid.UUID, result *models.ApplyResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.UpdatedCount = result.UpdatedCount
		run.CreatedCount = result.CreatedCount
		run.FailedCount = result.FailedCount
	}
	return nil
}

func (s *memStore) GetRunByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run := *s.runs[id]
	return &run, nil
}

func (s *memStore) ListRuns(ctx context.Context, opts repository.RunListOptions) ([]models.SyncRun, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SyncRun
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out, int64(len(out)), nil
}

func (s *memStore) CreateLog(ctx context.Context, log *models.SyncRunLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *log)
	return nil
}

func (s *memStore) GetRunLogs(ctx context.Context, runID uuid.UUID, opts LogListOptions) ([]models.SyncRunLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SyncRunLog
	for _, l := range s.logs {
		if l.RunID == runID && (opts.Level == "" || l.Level == opts.Level) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memStore) status(id uuid.UUID) models.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id].Status
}

func testConfig() *config.Config {
	return &config.Config{
		FetchPageSize: 250,
		SyncTimeout:   10 * time.Second,
	}
}

func TestSyncRunEndToEnd(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()

	fake.pages[""] = fakePage{
		Body: `{"products":[{"id":1,"title":"Shirt","status":"active",
			"variants":[{"id":11,"product_id":1,"sku":"A1","price":"10.00","inventory_quantity":5,"inventory_item_id":101}]}]}`,
	}

	records := []models.ExternalRecord{
		{
			SearchKey:        "A1",
			DesiredPrice:     decimal.RequireFromString("12"),
			DesiredInventory: decimal.RequireFromString("8"),
		},
		{
			SearchKey:        "B2",
			DesiredPrice:     decimal.RequireFromString("20"),
			DesiredInventory: decimal.RequireFromString("3"),
			Title:            "New Item",
		},
	}

	store := newMemStore()
	service := NewSyncService(store, fake.client(), testConfig(), testLog())

	run, err := service.StartRun(context.Background(), records, "inventory.xlsx")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.status(run.ID) == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	final, err := service.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.MatchedCount)
	assert.Equal(t, 1, final.UnmatchedCount)
	assert.Equal(t, 1, final.UpdatedCount)
	assert.Equal(t, 1, final.CreatedCount)
	assert.Equal(t, 0, final.FailedCount)
	assert.Equal(t, 1.0, final.GetProgress().Fraction)

	// One price update for the matched pair.
	priceCalls := fake.callsTo(http.MethodPut, "/variants/11.json")
	require.Len(t, priceCalls, 1)
	v := priceCalls[0].decode()["variant"].(map[string]interface{})
	assert.Equal(t, "12.00", v["price"])

	// One inventory set at the resolved location.
	invCalls := fake.callsTo(http.MethodPost, "/inventory_levels/set.json")
	require.Len(t, invCalls, 1)
	assert.Equal(t, float64(111), invCalls[0].decode()["location_id"])
	assert.Equal(t, float64(8), invCalls[0].decode()["available"])

	// One draft create for the unmatched record.
	createCalls := fake.callsTo(http.MethodPost, "/products.json")
	require.Len(t, createCalls, 1)
	product := createCalls[0].decode()["product"].(map[string]interface{})
	assert.Equal(t, "New Item", product["title"])
	assert.Equal(t, "draft", product["status"])
}

func TestStartRunReturnsStableSnapshot(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()

	fake.pages[""] = fakePage{
		Body: `{"products":[{"id":1,"title":"Shirt","status":"active",
			"variants":[{"id":11,"product_id":1,"sku":"A1","price":"10.00","inventory_quantity":5,"inventory_item_id":101}]}]}`,
	}

	records := []models.ExternalRecord{{
		SearchKey:        "A1",
		DesiredPrice:     decimal.RequireFromString("12"),
		DesiredInventory: decimal.RequireFromString("8"),
	}}

	store := newMemStore()
	service := NewSyncService(store, fake.client(), testConfig(), testLog())

	run, err := service.StartRun(context.Background(), records, "inventory.xlsx")
	require.NoError(t, err)

	// Serialize the returned run while the background run executes, as the
	// HTTP handler does with the creation response.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := json.Marshal(run); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return store.status(run.ID) == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	close(stop)
	wg.Wait()

	// The caller's snapshot reflects creation time; counts land in the
	// store, not in the struct handed back.
	assert.Zero(t, run.MatchedCount)
	assert.Zero(t, run.UpdatedCount)

	final, err := service.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.MatchedCount)
	assert.Equal(t, 1, final.UpdatedCount)
}

func TestSyncRunTimesOutDuringFetch(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()

	// The listing endpoint rate-limits indefinitely, so the fetch spends
	// the whole run timeout in retry suspensions.
	fake.pages[""] = fakePage{Body: `{"products":[]}`}
	fake.rateLimits["/products.json"] = 1 << 30

	store := newMemStore()
	cfg := testConfig()
	cfg.SyncTimeout = 50 * time.Millisecond
	service := NewSyncService(store, fake.client(), cfg, testLog())

	run, err := service.StartRun(context.Background(), []models.ExternalRecord{{SearchKey: "A1"}}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.status(run.ID) == models.RunStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	final, err := service.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Contains(t, final.ErrorMessage, "timed out")
}

func TestSyncRunFailsWithoutLocation(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()
	fake.locations = `{"locations":[]}`

	store := newMemStore()
	service := NewSyncService(store, fake.client(), testConfig(), testLog())

	run, err := service.StartRun(context.Background(), []models.ExternalRecord{{SearchKey: "A1"}}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.status(run.ID) == models.RunStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	final, _ := service.GetRun(context.Background(), run.ID)
	assert.Contains(t, final.ErrorMessage, "stock location")
}

func TestSyncRunFailsOnRetrievalError(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()
	fake.failPaths["/products.json"] = http.StatusUnauthorized

	store := newMemStore()
	service := NewSyncService(store, fake.client(), testConfig(), testLog())

	run, err := service.StartRun(context.Background(), []models.ExternalRecord{{SearchKey: "A1"}}, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.status(run.ID) == models.RunStatusFailed
	}, 5*time.Second, 10*time.Millisecond)

	// No mutations were attempted.
	assert.Empty(t, fake.callsTo(http.MethodPut, "/variants/"))
	assert.Empty(t, fake.callsTo(http.MethodPost, "/products.json"))
}

func TestSyncRunRecordsFailures(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()

	fake.pages[""] = fakePage{
		Body: `{"products":[{"id":1,"title":"Shirt","status":"active",
			"variants":[{"id":11,"product_id":1,"sku":"A1","price":"10.00","inventory_quantity":5,"inventory_item_id":101}]}]}`,
	}
	fake.failPaths["/variants/11.json"] = http.StatusInternalServerError

	records := []models.ExternalRecord{{
		SearchKey:        "A1",
		DesiredPrice:     decimal.RequireFromString("12"),
		DesiredInventory: decimal.RequireFromString("8"),
	}}

	store := newMemStore()
	service := NewSyncService(store, fake.client(), testConfig(), testLog())

	run, err := service.StartRun(context.Background(), records, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return store.status(run.ID) == models.RunStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	final, _ := service.GetRun(context.Background(), run.ID)
	assert.Equal(t, 0, final.UpdatedCount)
	assert.Equal(t, 1, final.FailedCount)

	logs, err := service.GetRunLogs(context.Background(), run.ID, LogListOptions{Level: models.LogLevelError})
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, "Record failed", logs[0].Message)
}

func TestStartRunRejectsEmptyInput(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()

	service := NewSyncService(newMemStore(), fake.client(), testConfig(), testLog())
	_, err := service.StartRun(context.Background(), nil, "")
	require.Error(t, err)
}

func TestCancelUnknownRun(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()

	service := NewSyncService(newMemStore(), fake.client(), testConfig(), testLog())
	err := service.CancelRun(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestPreviewDoesNotMutate(t *testing.T) {
	fake := newFakeShopify()
	defer fake.Close()

	fake.pages[""] = fakePage{
		Body: `{"products":[{"id":1,"title":"Shirt","status":"active",
			"variants":[{"id":11,"product_id":1,"sku":"A1","price":"10.00","inventory_quantity":5,"inventory_item_id":101}]}]}`,
	}

	records := []models.ExternalRecord{
		{SearchKey: "A1"},
		{SearchKey: "B2", Title: "New Item"},
	}

	service := NewSyncService(newMemStore(), fake.client(), testConfig(), testLog())
	plan, err := service.Preview(context.Background(), records)
	require.NoError(t, err)

	require.Len(t, plan.Matched, 1)
	require.Len(t, plan.Unmatched, 1)

	assert.Empty(t, fake.callsTo(http.MethodPut, "/variants/"))
	assert.Empty(t, fake.callsTo(http.MethodPost, "/products.json"))
}
