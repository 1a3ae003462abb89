// Package sqlitelogger wraps a database/sql driver so statements are logged
// through the context's logger, with their arguments inlined.
package sqlitelogger

import (
	"context"
	"database/sql/driver"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	proxy "github.com/shogo82148/go-sql-proxy"
	"github.com/sirupsen/logrus"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
	"fknsrs.biz/p/vidscribe/internal/ctxlogger"
	"fknsrs.biz/p/vidscribe/internal/stackutil"
)

type Options struct {
	// Only statements taking at least this long are logged. Zero logs all.
	SlowerThan time.Duration
	// Statements issued from a function whose name contains one of these are
	// never logged.
	IgnoreCallers []string
	// Stack frames from files or functions containing one of these are left
	// out of the log fields.
	HideFrames []string
}

type statement struct {
	kind  string
	start time.Time
	stack []runtime.Frame
	query string
	args  []driver.NamedValue
}

func (o *Options) begin(ctx context.Context, kind string, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
	stack := stackutil.Capture(64, 2)

	for _, frame := range stack {
		for _, s := range o.IgnoreCallers {
			if strings.Contains(frame.Function, s) {
				return nil, nil
			}
		}
	}

	s := &statement{kind: kind, start: ctxclock.Now(ctx), stack: stack, args: args}
	if stmt != nil {
		s.query = stmt.QueryString
	}

	return s, nil
}

func (o *Options) end(ctx context.Context, qctx interface{}, upperError error) error {
	s, ok := qctx.(*statement)
	if !ok || s == nil {
		return upperError
	}

	duration := ctxclock.Now(ctx).Sub(s.start)
	if upperError == nil && duration < o.SlowerThan {
		return nil
	}

	fields := logrus.Fields{
		"sql.kind":     s.kind,
		"sql.start":    s.start.Format(time.RFC3339),
		"sql.duration": duration,
	}
	if s.query != "" {
		fields["sql.query"] = inlineArgs(s.query, s.args)
	}
	for i, frame := range stackutil.Without(s.stack, o.HideFrames...) {
		fields[fmt.Sprintf("sql.stack.%02d", i)] = stackutil.FormatFrame(frame)
	}

	l := ctxlogger.GetLogger(ctx).WithFields(fields)
	if upperError != nil {
		l.WithError(upperError).Warn("sql " + s.kind + " failed")
	} else {
		l.Info("sql " + s.kind)
	}

	return upperError
}

func New(wrapped driver.Driver, opts Options) driver.Driver {
	o := &opts

	return proxy.NewProxyContext(wrapped, &proxy.HooksContext{
		PreExec: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return o.begin(ctx, "exec", stmt, args)
		},
		PostExec: func(ctx context.Context, qctx interface{}, _ *proxy.Stmt, _ []driver.NamedValue, _ driver.Result, err error) error {
			return o.end(ctx, qctx, err)
		},
		PreQuery: func(ctx context.Context, stmt *proxy.Stmt, args []driver.NamedValue) (interface{}, error) {
			return o.begin(ctx, "query", stmt, args)
		},
		PostQuery: func(ctx context.Context, qctx interface{}, _ *proxy.Stmt, _ []driver.NamedValue, _ driver.Rows, err error) error {
			return o.end(ctx, qctx, err)
		},
		PreBegin: func(ctx context.Context, _ *proxy.Conn) (interface{}, error) {
			return o.begin(ctx, "begin", nil, nil)
		},
		PostBegin: func(ctx context.Context, qctx interface{}, _ *proxy.Conn, err error) error {
			return o.end(ctx, qctx, err)
		},
		PreCommit: func(ctx context.Context, _ *proxy.Tx) (interface{}, error) {
			return o.begin(ctx, "commit", nil, nil)
		},
		PostCommit: func(ctx context.Context, qctx interface{}, _ *proxy.Tx, err error) error {
			return o.end(ctx, qctx, err)
		},
		PreRollback: func(ctx context.Context, _ *proxy.Tx) (interface{}, error) {
			return o.begin(ctx, "rollback", nil, nil)
		},
		PostRollback: func(ctx context.Context, qctx interface{}, _ *proxy.Tx, err error) error {
			return o.end(ctx, qctx, err)
		},
	})
}

// inlineArgs replaces each placeholder outside of a string literal with the
// matching argument, and collapses whitespace. Bare ? and numbered ?N and
// $N placeholders are understood.
func inlineArgs(query string, args []driver.NamedValue) string {
	var b strings.Builder

	next, quoted := 0, false
	for i := 0; i < len(query); i++ {
		c := query[i]

		if c == '\'' {
			quoted = !quoted
		}
		if (c != '?' && c != '$') || quoted {
			b.WriteByte(c)
			continue
		}

		j := i + 1
		for j < len(query) && query[j] >= '0' && query[j] <= '9' {
			j++
		}

		// "$" only marks a parameter when a number follows
		if c == '$' && j == i+1 {
			b.WriteByte(c)
			continue
		}

		n := next
		if j > i+1 {
			v, _ := strconv.Atoi(query[i+1 : j])
			n = v - 1
		}
		next++

		if n < 0 || n >= len(args) {
			b.WriteString(query[i:j])
		} else {
			b.WriteString(formatValue(args[n].Value))
		}

		i = j - 1
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// formatValue renders one of the driver.Value types.
func formatValue(v driver.Value) string {
	switch e := v.(type) {
	case nil:
		return "NULL"
	case bool:
		return fmt.Sprintf("%t", e)
	case int64:
		return fmt.Sprintf("%d", e)
	case float64:
		return fmt.Sprintf("%g", e)
	case time.Time:
		return "'" + e.Format(time.RFC3339Nano) + "'"
	case string:
		return quote(e)
	case []byte:
		return quote(string(e))
	default:
		return quote(fmt.Sprintf("%v", e))
	}
}

func quote(s string) string {
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return fmt.Sprintf("[%d bytes of binary data]", len(s))
		}
	}

	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
