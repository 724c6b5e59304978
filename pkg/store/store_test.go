package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

// newTestStores returns both implementations so every semantic test
// runs against each.
func newTestStores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(&SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		Driver:       "sqlite",
		MaxOpenConns: 2,
		MaxIdleConns: 1,
		WALMode:      true,
		BusyTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func testLog(id string, receivedAt time.Time) *RequestLog {
	return &RequestLog{
		ID:         id,
		User:       "alice",
		Cluster:    "east",
		Framework:  "vllm",
		Model:      "llama-3-70b",
		Endpoint:   "east-llama",
		StatusCode: 200,
		ReceivedAt: receivedAt,
		Result:     []byte(`{"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`),
	}
}

func TestRequestLogRoundTrip(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC().Truncate(time.Millisecond)

			log := testLog("01ARZ3NDEKTSV4RRFFQ69G5FAV", now)
			if err := s.InsertRequestLog(ctx, log); err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			got, err := s.GetRequestLog(ctx, log.ID)
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if got == nil {
				t.Fatal("expected row, got nil")
			}
			if got.User != "alice" || got.Model != "llama-3-70b" {
				t.Errorf("unexpected row: %+v", got)
			}
			if got.MetricsProcessed {
				t.Error("new row should not be marked processed")
			}

			respAt := now.Add(200 * time.Millisecond)
			if err := s.FinalizeRequestLog(ctx, log.ID, 200, []byte(`{"ok":true}`), respAt); err != nil {
				t.Fatalf("finalize failed: %v", err)
			}
			got, err = s.GetRequestLog(ctx, log.ID)
			if err != nil {
				t.Fatalf("get after finalize failed: %v", err)
			}
			if string(got.Result) != `{"ok":true}` {
				t.Errorf("result not updated: %s", got.Result)
			}
		})
	}
}

func TestGetRequestLogMissing(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := s.GetRequestLog(context.Background(), "missing")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != nil {
				t.Errorf("expected nil for missing row, got %+v", got)
			}
		})
	}
}

func TestClaimUnprocessedSkipsClaimedRows(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			for i := 0; i < 4; i++ {
				log := testLog(fmt.Sprintf("req-%02d", i), base.Add(time.Duration(i)*time.Second))
				if err := s.InsertRequestLog(ctx, log); err != nil {
					t.Fatalf("insert failed: %v", err)
				}
			}

			first, err := s.ClaimUnprocessed(ctx, "worker-a", 2, time.Minute)
			if err != nil {
				t.Fatalf("first claim failed: %v", err)
			}
			if len(first) != 2 {
				t.Fatalf("expected 2 claimed rows, got %d", len(first))
			}

			second, err := s.ClaimUnprocessed(ctx, "worker-b", 10, time.Minute)
			if err != nil {
				t.Fatalf("second claim failed: %v", err)
			}
			if len(second) != 2 {
				t.Fatalf("expected 2 remaining rows, got %d", len(second))
			}

			seen := map[string]bool{}
			for _, log := range append(first, second...) {
				if seen[log.ID] {
					t.Errorf("row %s claimed by both workers", log.ID)
				}
				seen[log.ID] = true
			}
		})
	}
}

func TestClaimUnprocessedConcurrentWorkers(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			for i := 0; i < 40; i++ {
				log := testLog(fmt.Sprintf("req-%02d", i), base.Add(time.Duration(i)*time.Second))
				if err := s.InsertRequestLog(ctx, log); err != nil {
					t.Fatalf("insert failed: %v", err)
				}
			}

			// Two workers claim at the same moment. Neither may error
			// out: the loser of the write race must still claim the
			// rows the winner left, not fail its cycle.
			type result struct {
				logs []*RequestLog
				err  error
			}
			results := make(chan result, 2)
			start := make(chan struct{})
			for _, worker := range []string{"worker-a", "worker-b"} {
				go func(id string) {
					<-start
					logs, err := s.ClaimUnprocessed(ctx, id, 20, time.Minute)
					results <- result{logs, err}
				}(worker)
			}
			close(start)

			seen := map[string]bool{}
			total := 0
			for i := 0; i < 2; i++ {
				res := <-results
				if res.err != nil {
					t.Fatalf("concurrent claim failed: %v", res.err)
				}
				for _, log := range res.logs {
					if seen[log.ID] {
						t.Errorf("row %s claimed by both workers", log.ID)
					}
					seen[log.ID] = true
				}
				total += len(res.logs)
			}
			if total != 40 {
				t.Errorf("claimed %d rows across both workers, want 40", total)
			}
		})
	}
}

func TestClaimUnprocessedOrdersByReceivedAt(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC()

			// inserted newest first on purpose
			for i := 3; i >= 0; i-- {
				log := testLog(fmt.Sprintf("req-%02d", i), base.Add(time.Duration(i)*time.Second))
				if err := s.InsertRequestLog(ctx, log); err != nil {
					t.Fatalf("insert failed: %v", err)
				}
			}

			claimed, err := s.ClaimUnprocessed(ctx, "worker-a", 2, time.Minute)
			if err != nil {
				t.Fatalf("claim failed: %v", err)
			}
			if len(claimed) != 2 {
				t.Fatalf("expected 2 rows, got %d", len(claimed))
			}
			if claimed[0].ID != "req-00" || claimed[1].ID != "req-01" {
				t.Errorf("expected oldest rows first, got %s, %s", claimed[0].ID, claimed[1].ID)
			}
		})
	}
}

func TestClaimExpiredClaimIsReclaimable(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			log := testLog("req-stale", time.Now().UTC())
			if err := s.InsertRequestLog(ctx, log); err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			if _, err := s.ClaimUnprocessed(ctx, "worker-dead", 1, time.Minute); err != nil {
				t.Fatalf("initial claim failed: %v", err)
			}

			// claim still fresh: nothing available
			none, err := s.ClaimUnprocessed(ctx, "worker-b", 1, time.Minute)
			if err != nil {
				t.Fatalf("claim failed: %v", err)
			}
			if len(none) != 0 {
				t.Fatalf("expected no rows while claim is held, got %d", len(none))
			}

			// zero expiry treats every claim as abandoned
			reclaimed, err := s.ClaimUnprocessed(ctx, "worker-b", 1, 0)
			if err != nil {
				t.Fatalf("reclaim failed: %v", err)
			}
			if len(reclaimed) != 1 || reclaimed[0].ID != "req-stale" {
				t.Fatalf("expected to reclaim req-stale, got %v", reclaimed)
			}
		})
	}
}

func TestClaimSkipsIneligibleRows(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			failed := testLog("req-failed", now)
			failed.StatusCode = 502
			empty := testLog("req-empty", now)
			empty.Result = nil
			ok := testLog("req-ok", now)

			for _, log := range []*RequestLog{failed, empty, ok} {
				if err := s.InsertRequestLog(ctx, log); err != nil {
					t.Fatalf("insert failed: %v", err)
				}
			}

			claimed, err := s.ClaimUnprocessed(ctx, "worker-a", 10, time.Minute)
			if err != nil {
				t.Fatalf("claim failed: %v", err)
			}
			if len(claimed) != 1 || claimed[0].ID != "req-ok" {
				t.Fatalf("expected only req-ok, got %v", claimed)
			}
		})
	}
}

func TestMarkProcessedAndUpsertIdempotence(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			log := testLog("req-once", time.Now().UTC())
			if err := s.InsertRequestLog(ctx, log); err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			m := &RequestMetrics{
				RequestID:        log.ID,
				PromptTokens:     10,
				CompletionTokens: 5,
				TotalTokens:      15,
				ResponseTimeMs:   200,
				TokensPerSecond:  25,
				CreatedAt:        time.Now().UTC(),
			}
			if err := s.UpsertRequestMetrics(ctx, m); err != nil {
				t.Fatalf("first upsert failed: %v", err)
			}
			// reprocessing same row must not duplicate or error
			if err := s.UpsertRequestMetrics(ctx, m); err != nil {
				t.Fatalf("second upsert failed: %v", err)
			}

			got, err := s.GetRequestMetrics(ctx, log.ID)
			if err != nil {
				t.Fatalf("get metrics failed: %v", err)
			}
			if got == nil || got.TotalTokens != 15 {
				t.Fatalf("unexpected metrics row: %+v", got)
			}

			if err := s.MarkProcessed(ctx, []string{log.ID}); err != nil {
				t.Fatalf("mark processed failed: %v", err)
			}
			claimed, err := s.ClaimUnprocessed(ctx, "worker-a", 10, time.Minute)
			if err != nil {
				t.Fatalf("claim failed: %v", err)
			}
			if len(claimed) != 0 {
				t.Errorf("processed row should not be claimable, got %v", claimed)
			}
		})
	}
}

func TestReleaseClaims(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			log := testLog("req-release", time.Now().UTC())
			if err := s.InsertRequestLog(ctx, log); err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			if _, err := s.ClaimUnprocessed(ctx, "worker-a", 1, time.Minute); err != nil {
				t.Fatalf("claim failed: %v", err)
			}
			if err := s.ReleaseClaims(ctx, "worker-a"); err != nil {
				t.Fatalf("release failed: %v", err)
			}

			claimed, err := s.ClaimUnprocessed(ctx, "worker-b", 1, time.Minute)
			if err != nil {
				t.Fatalf("reclaim failed: %v", err)
			}
			if len(claimed) != 1 {
				t.Fatalf("released row should be claimable, got %d rows", len(claimed))
			}
		})
	}
}

func TestMarkAllUnprocessed(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			log := testLog("req-backfill", time.Now().UTC())
			if err := s.InsertRequestLog(ctx, log); err != nil {
				t.Fatalf("insert failed: %v", err)
			}
			if err := s.MarkProcessed(ctx, []string{log.ID}); err != nil {
				t.Fatalf("mark processed failed: %v", err)
			}

			n, err := s.MarkAllUnprocessed(ctx)
			if err != nil {
				t.Fatalf("mark all unprocessed failed: %v", err)
			}
			if n != 1 {
				t.Errorf("expected 1 reset row, got %d", n)
			}

			claimed, err := s.ClaimUnprocessed(ctx, "worker-a", 10, time.Minute)
			if err != nil {
				t.Fatalf("claim failed: %v", err)
			}
			if len(claimed) != 1 {
				t.Errorf("backfilled row should be claimable, got %d rows", len(claimed))
			}
		})
	}
}

func TestIngestionLag(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			stats, err := s.IngestionLag(ctx)
			if err != nil {
				t.Fatalf("lag failed: %v", err)
			}
			if stats.UnprocessedCount != 0 {
				t.Errorf("empty store should report zero lag, got %d", stats.UnprocessedCount)
			}

			base := time.Now().UTC().Truncate(time.Second)
			for i := 0; i < 3; i++ {
				log := testLog(fmt.Sprintf("req-%02d", i), base.Add(time.Duration(i)*time.Minute))
				if err := s.InsertRequestLog(ctx, log); err != nil {
					t.Fatalf("insert failed: %v", err)
				}
			}

			stats, err = s.IngestionLag(ctx)
			if err != nil {
				t.Fatalf("lag failed: %v", err)
			}
			if stats.UnprocessedCount != 3 {
				t.Errorf("expected 3 unprocessed, got %d", stats.UnprocessedCount)
			}
			if !stats.OldestUnprocessed.Equal(base) {
				t.Errorf("oldest = %v, want %v", stats.OldestUnprocessed, base)
			}
		})
	}
}

func TestBatchJobStatusMonotonic(t *testing.T) {
	transitions := []struct {
		name    string
		from    string
		to      string
		applied bool
	}{
		{"pending to running", BatchPending, BatchRunning, true},
		{"running to completed", BatchRunning, BatchCompleted, true},
		{"running to failed", BatchRunning, BatchFailed, true},
		{"running back to pending", BatchRunning, BatchPending, false},
		{"completed to running", BatchCompleted, BatchRunning, false},
		{"completed to failed", BatchCompleted, BatchFailed, false},
		{"failed to completed", BatchFailed, BatchCompleted, false},
		{"pending to pending", BatchPending, BatchPending, true},
	}

	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, tc := range transitions {
				t.Run(tc.name, func(t *testing.T) {
					id := fmt.Sprintf("batch-%s-%02d", name, i)
					job := &BatchJob{
						ID:        id,
						User:      "alice",
						Model:     "llama-3-70b",
						Endpoint:  "east-llama",
						Status:    tc.from,
						TaskIDs:   []string{"t1", "t2"},
						CreatedAt: time.Now().UTC(),
						UpdatedAt: time.Now().UTC(),
					}
					if err := s.InsertBatchJob(ctx, job); err != nil {
						t.Fatalf("insert failed: %v", err)
					}

					if err := s.UpdateBatchJobStatus(ctx, id, tc.to, "", ""); err != nil {
						t.Fatalf("update failed: %v", err)
					}

					got, err := s.GetBatchJob(ctx, id)
					if err != nil {
						t.Fatalf("get failed: %v", err)
					}
					want := tc.from
					if tc.applied {
						want = tc.to
					}
					if got.Status != want {
						t.Errorf("status = %s, want %s", got.Status, want)
					}
				})
			}
		})
	}
}

func TestBatchJobErrorAndOutputPreserved(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			job := &BatchJob{
				ID:        "batch-keep",
				User:      "alice",
				Model:     "llama-3-70b",
				Status:    BatchPending,
				CreatedAt: time.Now().UTC(),
				UpdatedAt: time.Now().UTC(),
			}
			if err := s.InsertBatchJob(ctx, job); err != nil {
				t.Fatalf("insert failed: %v", err)
			}

			if err := s.UpdateBatchJobStatus(ctx, job.ID, BatchRunning, "", "s3://out/partial"); err != nil {
				t.Fatalf("update failed: %v", err)
			}
			// empty output location must not clobber the earlier value
			if err := s.UpdateBatchJobStatus(ctx, job.ID, BatchCompleted, "", ""); err != nil {
				t.Fatalf("update failed: %v", err)
			}

			got, err := s.GetBatchJob(ctx, job.ID)
			if err != nil {
				t.Fatalf("get failed: %v", err)
			}
			if got.Status != BatchCompleted {
				t.Errorf("status = %s, want completed", got.Status)
			}
			if got.OutputLocation != "s3://out/partial" {
				t.Errorf("output location clobbered: %q", got.OutputLocation)
			}
		})
	}
}

func TestCountNonTerminalBatchJobs(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()

			jobs := []*BatchJob{
				{ID: "b1", User: "alice", Status: BatchPending, CreatedAt: now, UpdatedAt: now},
				{ID: "b2", User: "alice", Status: BatchRunning, CreatedAt: now, UpdatedAt: now},
				{ID: "b3", User: "alice", Status: BatchCompleted, CreatedAt: now, UpdatedAt: now},
				{ID: "b4", User: "bob", Status: BatchPending, CreatedAt: now, UpdatedAt: now},
			}
			for _, job := range jobs {
				if err := s.InsertBatchJob(ctx, job); err != nil {
					t.Fatalf("insert failed: %v", err)
				}
			}

			count, err := s.CountNonTerminalBatchJobs(ctx, "alice")
			if err != nil {
				t.Fatalf("count failed: %v", err)
			}
			if count != 2 {
				t.Errorf("count = %d, want 2", count)
			}
		})
	}
}

func TestBatchLineResults(t *testing.T) {
	for name, s := range newTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			results := []*BatchLineResult{
				{BatchID: "b1", Line: 2, OK: true, Result: `{"text":"c"}`},
				{BatchID: "b1", Line: 0, OK: true, Result: `{"text":"a"}`},
				{BatchID: "b1", Line: 1, OK: false, ErrorMessage: "context length exceeded", ErrorCode: "invalid_request_error"},
			}
			if err := s.InsertBatchLineResults(ctx, results); err != nil {
				t.Fatalf("insert failed: %v", err)
			}
			// re-poll writes the same rows again
			if err := s.InsertBatchLineResults(ctx, results); err != nil {
				t.Fatalf("second insert failed: %v", err)
			}

			got, err := s.ListBatchLineResults(ctx, "b1")
			if err != nil {
				t.Fatalf("list failed: %v", err)
			}
			if len(got) != 3 {
				t.Fatalf("expected 3 rows, got %d", len(got))
			}
			for i, r := range got {
				if r.Line != i {
					t.Errorf("row %d has line %d, want line order", i, r.Line)
				}
			}
			if got[1].OK || got[1].ErrorMessage == "" {
				t.Errorf("line 1 should carry its error: %+v", got[1])
			}
		})
	}
}
