package ctxconfig

import (
	"context"
	"net/http"

	"fknsrs.biz/p/vidscribe/internal/config"
)

// context registration

var configKey int

func WithConfig(ctx context.Context, c config.Config) context.Context {
	return context.WithValue(ctx, &configKey, c)
}

func GetConfig(ctx context.Context) config.Config {
	if v := ctx.Value(&configKey); v != nil {
		return v.(config.Config)
	}

	return config.Config{}
}

// main interface

func DataFile(ctx context.Context, section string, parts ...string) string {
	return GetConfig(ctx).DataFile(section, parts...)
}

func ResolveDataFile(ctx context.Context, rel string) string {
	return GetConfig(ctx).ResolveDataFile(rel)
}

// middleware

func Register(c config.Config) func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	return func(rw http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
		next(rw, r.WithContext(WithConfig(r.Context(), c)))
	}
}
