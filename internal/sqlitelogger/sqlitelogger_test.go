package sqlitelogger

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"

	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
)

func TestInlineArgs(t *testing.T) {
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name  string
		query string
		args  []driver.Value
		out   string
	}{
		{"no args", "select 1", nil, "select 1"},
		{"whitespace", "select *\n\t from   videos", nil, "select * from videos"},
		{"values", "insert into t values (?, ?, ?, ?, ?)", []driver.Value{int64(1), 2.5, true, nil, at}, "insert into t values (1, 2.5, true, NULL, '2024-03-01T12:00:00Z')"},
		{"strings", "select ? , ?", []driver.Value{"it's", []byte("raw")}, "select 'it''s' , 'raw'"},
		{"binary", "select ?", []driver.Value{[]byte{0, 1, 2}}, "select [3 bytes of binary data]"},
		{"literal", "select '?' , ?", []driver.Value{int64(7)}, "select '?' , 7"},
		{"missing args", "select ?, ?", []driver.Value{int64(7)}, "select 7, ?"},
		{"numbered", "update t set a = ?2 where id = ?1", []driver.Value{int64(7), "x"}, "update t set a = 'x' where id = 7"},
		{"numbered out of range", "select ?3", []driver.Value{int64(7)}, "select ?3"},
		{"dollar numbered", "select * from videos where status = $1 limit $2", []driver.Value{"failed", int64(20)}, "select * from videos where status = 'failed' limit 20"},
		{"bare dollar", "select '$' || $, ?", []driver.Value{int64(7)}, "select '$' || $, 7"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)

			args := make([]driver.NamedValue, len(tc.args))
			for i, v := range tc.args {
				args[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
			}

			a.Equal(tc.out, inlineArgs(tc.query, args))
		})
	}
}

var driverCount int64

func openLogged(t *testing.T, opts Options) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("sqlite3:test:%d", atomic.AddInt64(&driverCount, 1))
	sql.Register(name, New(&sqlite3.SQLiteDriver{}, opts))

	db, err := sql.Open(name, ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return db
}

func TestNew(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()
	ctx := ctxlogger.WithLogger(context.Background(), logger)

	db := openLogged(t, Options{HideFrames: []string{"testing"}})

	_, err := db.ExecContext(ctx, "create table things (id integer, name text)")
	a.NoError(err)
	_, err = db.ExecContext(ctx, "insert into things (id, name) values (?, ?)", 1, "one")
	a.NoError(err)

	var found []string
	for _, e := range hook.AllEntries() {
		if e.Data["sql.kind"] == "exec" {
			found = append(found, e.Data["sql.query"].(string))
		}
	}
	a.Contains(found, "insert into things (id, name) values (1, 'one')")

	hook.Reset()

	_, err = db.ExecContext(ctx, "insert into nowhere values (1)")
	a.Error(err)

	e := hook.LastEntry()
	if a.NotNil(e) {
		a.Equal(logrus.WarnLevel, e.Level)
		a.Equal("sql exec failed", e.Message)
	}
}

func TestNewSlowerThan(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()
	ctx := ctxlogger.WithLogger(context.Background(), logger)

	db := openLogged(t, Options{SlowerThan: time.Hour})

	_, err := db.ExecContext(ctx, "create table things (id integer)")
	a.NoError(err)

	a.Empty(hook.AllEntries())
}

func TestNewIgnoreCallers(t *testing.T) {
	a := assert.New(t)

	logger, hook := test.NewNullLogger()
	ctx := ctxlogger.WithLogger(context.Background(), logger)

	db := openLogged(t, Options{IgnoreCallers: []string{"sqlitelogger.TestNewIgnoreCallers"}})

	_, err := db.ExecContext(ctx, "create table things (id integer)")
	a.NoError(err)

	a.Empty(hook.AllEntries())
}
