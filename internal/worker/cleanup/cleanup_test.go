package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type execCall struct {
	query string
	args  []interface{}
}

// mockExecutor はクエリごとの結果を返すExecutorのモック。
// rowsとerrsのキーはクエリに含まれるテーブル名。
type mockExecutor struct {
	calls []execCall
	rows  map[string]int64
	errs  map[string]error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.calls = append(m.calls, execCall{query: query, args: args})
	for table, err := range m.errs {
		if strings.Contains(query, "FROM "+table+" ") {
			return nil, err
		}
	}
	var n int64
	for table, rows := range m.rows {
		if strings.Contains(query, "FROM "+table+" ") {
			n = rows
		}
	}
	return &fakeResult{rowsAffected: n}, nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// lastEntry はログ出力の最終行をデコードする。
func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("failed to parse log line: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestNewJob_DefaultsRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockExecutor{}, newTestLogger(&buf), 0)

	if job.RetentionDays != 180 {
		t.Errorf("RetentionDays = %d, want 180", job.RetentionDays)
	}

	job = NewJob(&mockExecutor{}, newTestLogger(&buf), 30)
	if job.RetentionDays != 30 {
		t.Errorf("RetentionDays = %d, want 30", job.RetentionDays)
	}
}

func TestJob_Run_DeletesFromEveryTable(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{}
	job := NewJob(mock, newTestLogger(&buf), 180)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := []string{"email_verification_tokens", "password_reset_tokens", "refresh_tokens", "login_history"}
	if len(mock.calls) != len(want) {
		t.Fatalf("ExecContext called %d times, want %d", len(mock.calls), len(want))
	}
	for i, table := range want {
		q := mock.calls[i].query
		if !strings.HasPrefix(q, "DELETE FROM "+table+" ") {
			t.Errorf("call %d query = %q, want DELETE FROM %s", i, q, table)
		}
	}
}

func TestJob_Run_TokensUseExpiryAndHistoryUsesInterval(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{}
	job := NewJob(mock, newTestLogger(&buf), 90)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, c := range mock.calls[:3] {
		if !strings.Contains(c.query, "expires_at <= now()") {
			t.Errorf("token query should filter on expires_at: %q", c.query)
		}
		if len(c.args) != 0 {
			t.Errorf("token query args = %v, want none", c.args)
		}
	}

	history := mock.calls[3]
	if !strings.Contains(history.query, "$1::interval") {
		t.Errorf("history query should use an interval parameter: %q", history.query)
	}
	if len(history.args) != 1 || history.args[0] != "90 days" {
		t.Errorf("history args = %v, want [90 days]", history.args)
	}
}

func TestJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{rows: map[string]int64{
		"refresh_tokens": 4,
		"login_history":  3,
	}}
	job := NewJob(mock, newTestLogger(&buf), 180)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	entry := lastEntry(t, &buf)
	if entry["msg"] != "cleanup job completed" {
		t.Errorf("msg = %q, want %q", entry["msg"], "cleanup job completed")
	}
	if entry["deleted_count"] != float64(7) {
		t.Errorf("deleted_count = %v, want 7", entry["deleted_count"])
	}
	if entry["retention_days"] != float64(180) {
		t.Errorf("retention_days = %v, want 180", entry["retention_days"])
	}
}

func TestJob_Run_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection reset")
	mock := &mockExecutor{
		rows: map[string]int64{"login_history": 2},
		errs: map[string]error{"password_reset_tokens": dbErr},
	}
	job := NewJob(mock, newTestLogger(&buf), 180)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, dbErr) {
		t.Errorf("error should wrap the DB error: %v", err)
	}
	if !strings.Contains(err.Error(), "password_reset_tokens") {
		t.Errorf("error should name the failing table: %v", err)
	}
	if len(mock.calls) != 4 {
		t.Errorf("ExecContext called %d times, want 4", len(mock.calls))
	}
	if !strings.Contains(buf.String(), "cleanup failed") {
		t.Error("expected failure to be logged")
	}
}

func TestJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockExecutor{}, newTestLogger(&buf), 180)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("run %d returned error: %v", i, err)
		}
	}

	entry := lastEntry(t, &buf)
	if entry["deleted_count"] != float64(0) {
		t.Errorf("deleted_count = %v, want 0", entry["deleted_count"])
	}
}

// syncBuffer はgoroutine間で共有できるbytes.Buffer。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestJob_Start_StopsOnCancel(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	job := NewJob(&mockExecutor{}, logger, 180)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回が終わるまで待つ
	deadline := time.Now().Add(2 * time.Second)
	for {
		if strings.Contains(buf.String(), "cleanup job completed") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial run did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
