package db

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"testing"
)

// captureHandler records log records for assertion in tests.
type captureHandler struct {
	mu    sync.Mutex
	attrs []map[string]slog.Value
}

func (h *captureHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *captureHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	m := make(map[string]slog.Value)
	m["msg"] = slog.StringValue(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		m[a.Key] = a.Value
		return true
	})
	h.attrs = append(h.attrs, m)
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *captureHandler) WithGroup(name string) slog.Handler { return h }

func (h *captureHandler) recordsFor(t *testing.T, msg string) []map[string]slog.Value {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []map[string]slog.Value
	for _, m := range h.attrs {
		if m["msg"].String() == msg {
			out = append(out, m)
		}
	}
	return out
}

func (h *captureHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attrs = nil
}

func openLogged(t *testing.T) (*sql.DB, *captureHandler) {
	t.Helper()
	handler := &captureHandler{}
	connector, err := NewLoggingConnector(":memory:", slog.New(handler))
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, handler
}

func TestNewLoggingConnector_nilLoggerUsesDefault(t *testing.T) {
	conn, err := NewLoggingConnector(":memory:", nil)
	if err != nil {
		t.Fatalf("NewLoggingConnector: %v", err)
	}
	lc, ok := conn.(*loggingConnector)
	if !ok {
		t.Fatalf("connector type = %T", conn)
	}
	if lc.logger == nil {
		t.Fatal("logger is nil")
	}
}

func TestNewLoggingConnector_emptyDSN(t *testing.T) {
	if _, err := NewLoggingConnector("", nil); err == nil {
		t.Fatal("NewLoggingConnector(\"\") error = nil, want non-nil")
	}
}

func TestLoggingConnector_ExecAndQueryLogged(t *testing.T) {
	db, handler := openLogged(t)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	recs := handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected at least one sql log record for Exec")
	}
	got := recs[len(recs)-1]
	if got["op"].String() != "exec" {
		t.Errorf("op: got %q, want exec", got["op"].String())
	}
	if got["sql"].String() != `CREATE TABLE t (id INTEGER PRIMARY KEY)` {
		t.Errorf("sql: got %q", got["sql"].String())
	}

	handler.reset()
	var one int
	if err := db.QueryRow(`SELECT ?`, 1).Scan(&one); err != nil {
		t.Fatalf("query row: %v", err)
	}
	recs = handler.recordsFor(t, "sql")
	if len(recs) == 0 {
		t.Fatal("expected sql log record for QueryRow")
	}
	got = recs[len(recs)-1]
	if got["op"].String() != "query" {
		t.Errorf("op: got %q, want query", got["op"].String())
	}
	if _, hasArgs := got["args"]; !hasArgs {
		t.Error("expected args attribute in log")
	}
}

func TestLoggingConnector_TransactionLogged(t *testing.T) {
	db, handler := openLogged(t)

	if _, err := db.Exec(`CREATE TABLE t (id INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	for _, commit := range []bool{true, false} {
		handler.reset()
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin: %v", err)
		}
		if _, err := tx.Exec(`INSERT INTO t (id) VALUES (?)`, nil); err != nil {
			t.Fatalf("insert: %v", err)
		}
		want := "rollback"
		if commit {
			want = "commit"
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			t.Fatalf("%s: %v", want, err)
		}

		recs := handler.recordsFor(t, "sql tx")
		if len(recs) != 2 {
			t.Fatalf("tx records = %d, want 2 (begin + %s)", len(recs), want)
		}
		if recs[0]["op"].String() != "begin" || recs[1]["op"].String() != want {
			t.Errorf("tx ops = %q, %q; want begin, %s", recs[0]["op"].String(), recs[1]["op"].String(), want)
		}
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows after commit+rollback = %d, want 1", n)
	}
}

func TestFormatArg(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "NULL"},
		{[]byte("abc"), "abc"},
		{int64(42), "42"},
		{21.5, "21.5"},
	}
	for _, tt := range tests {
		if got := formatArg(tt.in); got != tt.want {
			t.Errorf("formatArg(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
