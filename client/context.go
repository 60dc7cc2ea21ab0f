package client

import (
	"context"
	"net/http"
)

type cookiesContextKey struct{}

// WithCookies attaches the visitor's cookies to ctx. Every call made with the
// returned context forwards them.
func WithCookies(ctx context.Context, cookies []*http.Cookie) context.Context {
	if len(cookies) == 0 {
		return ctx
	}
	return context.WithValue(ctx, cookiesContextKey{}, cookies)
}

// CookiesFromContext returns the cookies set by WithCookies.
func CookiesFromContext(ctx context.Context) []*http.Cookie {
	if ctx == nil {
		return nil
	}
	cookies, _ := ctx.Value(cookiesContextKey{}).([]*http.Cookie)
	return cookies
}
