package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// loggingConnector opens sqlite3 connections whose statements and transactions are logged.
type loggingConnector struct {
	dsn    string
	logger *slog.Logger
}

type loggingConn struct {
	conn   driver.Conn
	logger *slog.Logger
}

type loggingStmt struct {
	stmt   driver.Stmt
	query  string
	logger *slog.Logger
}

// loggingTx reports how long a unit of work stayed open and how it ended.
type loggingTx struct {
	tx      driver.Tx
	started time.Time
	logger  *slog.Logger
}

// NewLoggingConnector returns a driver.Connector for sql.OpenDB that logs every
// statement with its arguments. A nil logger means slog.Default().
func NewLoggingConnector(dsn string, logger *slog.Logger) (driver.Connector, error) {
	if dsn == "" {
		return nil, errors.New("sqlite3-log: empty dsn")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger}, nil
}

func (c *loggingConnector) Driver() driver.Driver {
	return &loggingDriver{}
}

func (c *loggingConnector) Connect(ctx context.Context) (driver.Conn, error) {
	underlying := &sqlite3.SQLiteDriver{}
	conn, err := underlying.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{conn: conn, logger: c.logger}, nil
}

type loggingDriver struct{}

func (d *loggingDriver) Open(name string) (driver.Conn, error) {
	return nil, fmt.Errorf("sqlite3-log: use sql.OpenDB(NewLoggingConnector(...)) instead of sql.Open")
}

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &loggingStmt{stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if prep, ok := c.conn.(driver.ConnPrepareContext); ok {
		stmt, err := prep.PrepareContext(ctx, query)
		if err != nil {
			return nil, err
		}
		return &loggingStmt{stmt: stmt, query: query, logger: c.logger}, nil
	}
	return c.Prepare(query)
}

func (c *loggingConn) Close() error {
	return c.conn.Close()
}

func (c *loggingConn) Begin() (driver.Tx, error) {
	//nolint:staticcheck // SA1019 – required when underlying conn does not implement ConnBeginTx
	tx, err := c.conn.Begin()
	if err != nil {
		return nil, err
	}
	return c.wrapTx(tx), nil
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	beginTx, ok := c.conn.(driver.ConnBeginTx)
	if !ok {
		return c.Begin()
	}
	tx, err := beginTx.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return c.wrapTx(tx), nil
}

func (c *loggingConn) wrapTx(tx driver.Tx) driver.Tx {
	c.logger.Debug("sql tx", "op", "begin")
	return &loggingTx{tx: tx, started: time.Now(), logger: c.logger}
}

func (t *loggingTx) Commit() error {
	err := t.tx.Commit()
	t.logEnd("commit", err)
	return err
}

func (t *loggingTx) Rollback() error {
	err := t.tx.Rollback()
	t.logEnd("rollback", err)
	return err
}

func (t *loggingTx) logEnd(op string, err error) {
	attrs := []any{
		"op", op,
		"duration_ms", time.Since(t.started).Milliseconds(),
	}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	t.logger.Debug("sql tx", attrs...)
}

func (s *loggingStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.logQuery("exec", valuesToSlice(args))
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtExecContext
	return s.stmt.Exec(args)
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	s.logQuery("exec", namedValuesToSlice(args))
	execCtx, ok := s.stmt.(driver.StmtExecContext)
	if !ok {
		//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtExecContext
		return s.stmt.Exec(namedValuesToValues(args))
	}
	return execCtx.ExecContext(ctx, args)
}

func (s *loggingStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.logQuery("query", valuesToSlice(args))
	//nolint:staticcheck // SA1019 – required when underlying stmt does not implement StmtQueryContext
	return s.stmt.Query(args)
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	s.logQuery("query", namedValuesToSlice(args))
	queryCtx, ok := s.stmt.(driver.StmtQueryContext)
	if !ok {
		//nolint:staticcheck // SA1019 – fallback when underlying stmt does not implement StmtQueryContext
		return s.stmt.Query(namedValuesToValues(args))
	}
	return queryCtx.QueryContext(ctx, args)
}

func (s *loggingStmt) Close() error {
	return s.stmt.Close()
}

func (s *loggingStmt) NumInput() int {
	return s.stmt.NumInput()
}

func (s *loggingStmt) logQuery(op string, args []string) {
	s.logger.Debug("sql",
		"op", op,
		"sql", s.query,
		"args", args,
	)
}

func valuesToSlice(args []driver.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = formatArg(a)
	}
	return out
}

func namedValuesToSlice(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
		} else {
			out[i] = formatArg(a.Value)
		}
	}
	return out
}

func namedValuesToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	if v == nil {
		return "NULL"
	}
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
