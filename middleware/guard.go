package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/client"
	"github.com/google/uuid"
)

// RequestIDHeader is read for an incoming request id and echoed on responses.
const RequestIDHeader = "X-Request-Id"

type grantContextKey struct{}

// GrantFromContext returns the Grant the guard attached to an allowed request.
func GrantFromContext(ctx context.Context) (goGuard.Grant, bool) {
	g, ok := ctx.Value(grantContextKey{}).(goGuard.Grant)
	return g, ok
}

// Options tunes Guard.
type Options struct {
	// ReturnCookie names the cookie holding the post-login return path.
	// Defaults to "gl_return".
	ReturnCookie string
	// SecureCookies marks the return cookie Secure.
	SecureCookies bool
	// ClientIP extracts the caller address used for link rate limiting.
	// Defaults to the host part of RemoteAddr.
	ClientIP func(*http.Request) string
	Logger   *slog.Logger
}

func (o Options) normalize() Options {
	if o.ReturnCookie == "" {
		o.ReturnCookie = DefaultReturnCookie
	}
	if o.ClientIP == nil {
		o.ClientIP = remoteIP
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Guard evaluates every request with engine before it reaches next. Allowed
// requests carry their Grant in the context; everything else is answered with
// a 303 redirect to the decision target.
func Guard(engine *goGuard.Engine, opts Options) func(http.Handler) http.Handler {
	opts = opts.normalize()
	cookieName := ""
	if engine != nil {
		cookieName = engine.Config().Session.CookieName
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			ctx := client.WithCookies(r.Context(), r.Cookies())
			ctx = goGuard.WithClientIP(ctx, opts.ClientIP(r))
			ctx = goGuard.WithRequestID(ctx, reqID)
			if key := sessionKey(r, cookieName); key != "" {
				ctx = goGuard.WithSessionKey(ctx, key)
			}

			ev, err := engine.Evaluate(ctx, r.URL.RequestURI())
			if err != nil {
				if errors.Is(err, goGuard.ErrInvalidURL) {
					http.Error(w, "bad request", http.StatusBadRequest)
					return
				}
				opts.Logger.WarnContext(ctx, "guard evaluation failed", "request_id", reqID, "error", err)
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			d := ev.Decision
			switch d.Kind {
			case goGuard.Allow:
				ctx = context.WithValue(ctx, grantContextKey{}, ev.Grant())
				next.ServeHTTP(w, r.WithContext(ctx))
			case goGuard.RedirectTo:
				if d.Reason == goGuard.ReasonSubscriptionExpired {
					engine.ExpireSession(ctx, ev.Session, "")
				}
				if d.Return != "" {
					setReturnCookie(w, opts, d.Return)
				}
				http.Redirect(w, r, d.Target, http.StatusSeeOther)
			default:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}
		})
	}
}

func sessionKey(r *http.Request, cookieName string) string {
	if cookieName == "" {
		return ""
	}
	ck, err := r.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return goGuard.SessionKey(ck.Value)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
