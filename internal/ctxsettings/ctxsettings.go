package ctxsettings

import (
	"context"
	"fmt"
	"net/http"

	"fknsrs.biz/p/vidscribe/internal/settings"
)

var (
	ErrNoSettings = fmt.Errorf("ctxsettings: no settings store found in context")
)

// context registration

var settingsKey int

func WithStore(ctx context.Context, s *settings.Store) context.Context {
	return context.WithValue(ctx, &settingsKey, s)
}

func GetStore(ctx context.Context) *settings.Store {
	if v := ctx.Value(&settingsKey); v != nil {
		return v.(*settings.Store)
	}

	return nil
}

// middleware

func Register(s *settings.Store) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithStore(r.Context(), s)))
	}
}

// main interface

func Get(ctx context.Context) (settings.Settings, error) {
	s := GetStore(ctx)
	if s == nil {
		return settings.Settings{}, ErrNoSettings
	}

	return s.Get(ctx)
}
