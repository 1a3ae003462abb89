// Package ctxhttpclient carries the outbound HTTP client (the cached one, in
// production) through request and job contexts.
package ctxhttpclient

import (
	"context"
	"fmt"
	"net/http"
)

var (
	ErrUnexpectedStatus = fmt.Errorf("unexpected http status")
)

// context registration

var httpClientKey int

func WithHTTPClient(ctx context.Context, httpClient *http.Client) context.Context {
	return context.WithValue(ctx, &httpClientKey, httpClient)
}

func GetHTTPClient(ctx context.Context) *http.Client {
	if v := ctx.Value(&httpClientKey); v != nil && v.(*http.Client) != nil {
		return v.(*http.Client)
	}

	return http.DefaultClient
}

// middleware

func Register(httpClient *http.Client) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithHTTPClient(r.Context(), httpClient)))
	}
}

// main interface

// Get fetches rawURL with the context's client. Anything but a 200 is
// returned as an error wrapping ErrUnexpectedStatus, with the body already
// closed. The caller closes the body of a successful response.
func Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ctxhttpclient.Get: %w", err)
	}

	res, err := GetHTTPClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("ctxhttpclient.Get: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("ctxhttpclient.Get: %s: %w: %s", rawURL, ErrUnexpectedStatus, res.Status)
	}

	return res, nil
}
