// Package httpcache keeps successful GET responses (thumbnails and the pages
// the metadata fallback scrapes) in the bbolt state database.
package httpcache

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"fknsrs.biz/p/vidscribe/internal/ctxclock"
)

const (
	// CacheHeader is set on every response that passed through the transport.
	CacheHeader = "x-cache"

	DefaultMaxAge      = time.Hour * 24
	DefaultMaxBodySize = 16 << 20
)

// the bucket shares the state database with settings
var bucketName = []byte("http_cache")

type entry struct {
	StoredAt   time.Time
	ExpiresAt  time.Time
	Status     string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *entry) response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	header.Set(CacheHeader, "hit")

	return &http.Response{
		Status:        e.Status,
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

func key(req *http.Request) []byte {
	h := sha1.Sum([]byte(req.URL.String()))
	return []byte(req.URL.Host + "/" + hex.EncodeToString(h[:]))
}

// lifetime picks how long a response may be served from the cache. Responses
// that forbid storing get zero. max-age is honoured below the ceiling.
func lifetime(h http.Header, ceiling time.Duration) time.Duration {
	for _, directive := range strings.Split(strings.ToLower(h.Get("cache-control")), ",") {
		directive = strings.TrimSpace(directive)

		switch {
		case directive == "no-store", directive == "no-cache", directive == "private":
			return 0
		case strings.HasPrefix(directive, "max-age="):
			n, err := strconv.Atoi(strings.TrimPrefix(directive, "max-age="))
			if err != nil {
				continue
			}
			if d := time.Duration(n) * time.Second; d < ceiling {
				return d
			}
		}
	}

	return ceiling
}

type Options struct {
	MaxAge      time.Duration
	MaxBodySize int64
}

// Transport answers GET requests from the cache while the stored copy is
// fresh. Only 200 responses are stored. A request with "cache-control:
// no-cache" skips the lookup but still refreshes the stored copy.
type Transport struct {
	next    http.RoundTripper
	db      *bbolt.DB
	options Options
}

func NewTransport(next http.RoundTripper, db *bbolt.DB, options Options) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if options.MaxAge == 0 {
		options.MaxAge = DefaultMaxAge
	}
	if options.MaxBodySize == 0 {
		options.MaxBodySize = DefaultMaxBodySize
	}

	return &Transport{next: next, db: db, options: options}
}

func (t *Transport) load(req *http.Request) (*entry, error) {
	var e *entry

	if err := t.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}

		// only valid for the life of the transaction, so decode in here
		d := b.Get(key(req))
		if d == nil {
			return nil
		}

		var v entry
		if err := gob.NewDecoder(bytes.NewReader(d)).Decode(&v); err != nil {
			return err
		}
		e = &v

		return nil
	}); err != nil {
		return nil, fmt.Errorf("httpcache.Transport.load: %w", err)
	}

	return e, nil
}

func (t *Transport) store(req *http.Request, e *entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return fmt.Errorf("httpcache.Transport.store: %w", err)
	}

	if err := t.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}

		return b.Put(key(req), buf.Bytes())
	}); err != nil {
		return fmt.Errorf("httpcache.Transport.store: %w", err)
	}

	return nil
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.next.RoundTrip(req)
	}

	now := ctxclock.Now(req.Context())

	if !strings.Contains(strings.ToLower(req.Header.Get("cache-control")), "no-cache") {
		if e, err := t.load(req); err == nil && e != nil && now.Before(e.ExpiresAt) {
			return e.response(req), nil
		}
	}

	res, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	res.Header.Set(CacheHeader, "miss")

	ttl := lifetime(res.Header, t.options.MaxAge)
	if res.StatusCode != http.StatusOK || ttl <= 0 || res.ContentLength > t.options.MaxBodySize {
		return res, nil
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, t.options.MaxBodySize+1))
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("httpcache.Transport.RoundTrip: %w", err)
	}

	res.Body = io.NopCloser(bytes.NewReader(body))
	res.ContentLength = int64(len(body))

	// too big to keep, but the caller still gets all of it
	if int64(len(body)) > t.options.MaxBodySize {
		return res, nil
	}

	header := res.Header.Clone()
	header.Del(CacheHeader)

	if err := t.store(req, &entry{
		StoredAt:   now,
		ExpiresAt:  now.Add(ttl),
		Status:     res.Status,
		StatusCode: res.StatusCode,
		Header:     header,
		Body:       body,
	}); err != nil {
		return nil, fmt.Errorf("httpcache.Transport.RoundTrip: %w", err)
	}

	return res, nil
}

// Prune deletes every entry that expired before now, and reports how many
// went.
func (t *Transport) Prune(ctx context.Context) (int, error) {
	now := ctxclock.Now(ctx)

	var n int
	if err := t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}

		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			var e entry
			if err := gob.NewDecoder(bytes.NewReader(v)).Decode(&e); err != nil || !now.Before(e.ExpiresAt) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(stale)

		return nil
	}); err != nil {
		return 0, fmt.Errorf("httpcache.Transport.Prune: %w", err)
	}

	return n, nil
}
