// Package sqlfake is a scripted database/sql driver for tests of code that
// talks to Postgres through lib/pq.
package sqlfake

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
)

// Call is one statement the code under test sent.
type Call struct {
	Query string
	Args  []driver.Value
}

// Result answers a statement. Exec ignores Columns and Rows.
type Result struct {
	Columns []string
	Rows    [][]driver.Value
	Err     error
}

// Responder scripts the database.
type Responder func(query string, args []driver.Value) Result

// Recorder keeps every statement in order.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
}

// Calls returns the statements seen so far.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Last returns the most recent statement whose text contains substr.
func (r *Recorder) Last(substr string) (Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if strings.Contains(r.calls[i].Query, substr) {
			return r.calls[i], true
		}
	}
	return Call{}, false
}

func (r *Recorder) record(query string, args []driver.NamedValue) []driver.Value {
	vals := make([]driver.Value, len(args))
	for i, a := range args {
		vals[i] = a.Value
	}
	r.mu.Lock()
	r.calls = append(r.calls, Call{Query: query, Args: vals})
	r.mu.Unlock()
	return vals
}

// Open returns a *sql.DB whose statements are answered by respond.
func Open(respond Responder) (*sql.DB, *Recorder) {
	rec := &Recorder{}
	return sql.OpenDB(&connector{respond: respond, rec: rec}), rec
}

type connector struct {
	respond Responder
	rec     *Recorder
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return &conn{c: c}, nil
}

func (c *connector) Driver() driver.Driver { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("sqlfake: use Open")
}

type conn struct {
	c *connector
}

func (c *conn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("sqlfake: prepared statements are not supported")
}

func (c *conn) Close() error { return nil }

func (c *conn) Begin() (driver.Tx, error) {
	return nil, errors.New("sqlfake: transactions are not supported")
}

func (c *conn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	res := c.c.respond(query, c.c.rec.record(query, args))
	if res.Err != nil {
		return nil, res.Err
	}
	return driver.RowsAffected(1), nil
}

func (c *conn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	res := c.c.respond(query, c.c.rec.record(query, args))
	if res.Err != nil {
		return nil, res.Err
	}
	return &rows{columns: res.Columns, data: res.Rows}, nil
}

type rows struct {
	columns []string
	data    [][]driver.Value
	next    int
}

func (r *rows) Columns() []string { return r.columns }

func (r *rows) Close() error { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	copy(dest, r.data[r.next])
	r.next++
	return nil
}
