package worker

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"studiobook/internal/config"
	"studiobook/internal/database"
	"studiobook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testDetail(id int64) *models.ReservationDetail {
	return &models.ReservationDetail{
		Reservation: models.Reservation{ID: id, ClientID: 1, SlotID: 10, Status: models.ReservationConfirmed},
		SlotDate:    "2025-01-10",
		StartTime:   "09:00",
		EndTime:     "10:00",
		ClientName:  "Ana",
		ClientEmail: "ana@example.com",
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskUpsertReservation, 1, testDetail(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.SyncCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL, got %v", nextRetry.Time)
	}
	if sheets.upserts[1] == nil || sheets.upserts[1].ClientName != "Ana" {
		t.Fatalf("expected reservation 1 upserted, got %+v", sheets.upserts)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota exceeded")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Minute}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskUpsertReservation, 2, testDetail(2)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.SyncRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}

	// Not due yet, so polling must skip it.
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no due tasks, got %d", len(pending))
	}
}

func TestProcessTaskFailGoesToDeadLetter(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskUpsertReservation, 3, testDetail(3)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, ok := worker.tryLocalQueue(); ok {
		t.Fatalf("task should go through redis, not the local queue")
	}

	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.SyncFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	dead, err := client.LLen(ctx, defaultDeadLetterKey).Result()
	if err != nil {
		t.Fatalf("llen: %v", err)
	}
	if dead != 1 {
		t.Fatalf("expected 1 dead letter, got %d", dead)
	}

	failed, err := db.GetFailedSyncTasks(ctx)
	if err != nil || len(failed) != 1 {
		t.Fatalf("expected 1 failed task, got %d (%v)", len(failed), err)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: models.SyncTaskUpsertReservation, ReservationID: 4, Payload: "invalid json"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.SyncFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestSheetsWorker_Apply(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(nil, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		if err := worker.apply(ctx, models.SyncTaskUpsertReservation, taskPayload{ReservationID: 1, Reservation: testDetail(1)}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		if len(sheets.upserts) != 1 {
			t.Fatalf("expected 1 upsert, got %d", len(sheets.upserts))
		}
	})

	t.Run("Attendance", func(t *testing.T) {
		detail := testDetail(5)
		attended := true
		detail.Attended = &attended
		if err := worker.apply(ctx, models.SyncTaskAttendance, taskPayload{ReservationID: 5, Reservation: detail}); err != nil {
			t.Fatalf("apply: %v", err)
		}
		if v, ok := sheets.attendance[5]; !ok || !v {
			t.Fatalf("expected reservation 5 marked attended, got %+v", sheets.attendance)
		}
	})

	t.Run("AttendanceWithoutMark", func(t *testing.T) {
		if err := worker.apply(ctx, models.SyncTaskAttendance, taskPayload{ReservationID: 6, Reservation: testDetail(6)}); err == nil {
			t.Fatalf("expected error for missing mark")
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if err := worker.apply(ctx, "delete_everything", taskPayload{ReservationID: 1}); err == nil {
			t.Fatalf("expected error for unknown task type")
		}
	})
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("IDFromDetail", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, models.SyncTaskUpsertReservation, 0, testDetail(7)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		task, _ := worker.tryLocalQueue()
		if task.ReservationID != 7 {
			t.Fatalf("expected reservation_id=7, got %d", task.ReservationID)
		}
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, "", 1, testDetail(1)); err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("MissingReservation", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, models.SyncTaskUpsertReservation, 0, nil); err == nil {
			t.Fatalf("expected error for missing reservation id")
		}
	})
}

func TestSheetsWorker_StartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	for id := int64(1); id <= 3; id++ {
		if err := worker.EnqueueTask(ctx, models.SyncTaskUpsertReservation, id, testDetail(id)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sheets.count() == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sheets.count() != 3 {
		t.Fatalf("expected 3 upserts, got %d", sheets.count())
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	if d := policy.NextDelay(1); d != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d)
	}
	if d := policy.NextDelay(2); d != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d)
	}
	if d := policy.NextDelay(5); d != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d)
	}
	if d := (RetryPolicy{}).NextDelay(0); d != defaultInitialDelay {
		t.Fatalf("zero policy expected %s, got %s", defaultInitialDelay, d)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	policy := PolicyFromConfig(config.SheetsSyncConfig{
		MaxRetries:   3,
		InitialDelay: 10 * time.Second,
		MaxDelay:     25 * time.Second,
	})

	if policy.MaxRetries != 3 || policy.BackoffFactor != defaultBackoffFactor {
		t.Fatalf("unexpected policy %+v", policy)
	}
	want := []time.Duration{10 * time.Second, 20 * time.Second, 25 * time.Second, 25 * time.Second}
	for i, w := range want {
		if d := policy.NextDelay(i + 1); d != w {
			t.Fatalf("attempt%d expected %s, got %s", i+1, w, d)
		}
	}
	if policy.Exhausted(2) || !policy.Exhausted(3) {
		t.Fatalf("expected budget of 3 attempts")
	}

	// A ceiling below the first delay is raised to it.
	low := PolicyFromConfig(config.SheetsSyncConfig{InitialDelay: 30 * time.Second, MaxDelay: time.Second})
	if d := low.NextDelay(4); d != 30*time.Second {
		t.Fatalf("expected max delay raised to 30s, got %s", d)
	}

	defaults := PolicyFromConfig(config.SheetsSyncConfig{})
	if defaults.MaxRetries != defaultMaxRetries || defaults.MaxDelay != defaultMaxDelay {
		t.Fatalf("expected defaults, got %+v", defaults)
	}
}

// Helpers

type fakeSheets struct {
	mu         sync.Mutex
	err        error
	upserts    map[int64]*models.ReservationDetail
	attendance map[int64]bool
}

func (f *fakeSheets) UpsertReservation(_ context.Context, d *models.ReservationDetail) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.upserts == nil {
		f.upserts = make(map[int64]*models.ReservationDetail)
	}
	f.upserts[d.ID] = d
	return nil
}

func (f *fakeSheets) UpdateAttendance(_ context.Context, id int64, attended bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.attendance == nil {
		f.attendance = make(map[int64]bool)
	}
	f.attendance[id] = attended
	return nil
}

func (f *fakeSheets) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upserts)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker.db"), &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}
