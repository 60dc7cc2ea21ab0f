package middleware

import (
	"net/http"
	"net/url"

	goGuard "github.com/MrEthical07/goGuard"
)

// DefaultReturnCookie is the default name of the return-path cookie.
const DefaultReturnCookie = "gl_return"

// returnCookieMaxAge bounds how long a remembered page survives, in seconds.
const returnCookieMaxAge = 600

func setReturnCookie(w http.ResponseWriter, opts Options, p string) {
	p, ok := goGuard.SafeReturnPath(p)
	if !ok {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     opts.ReturnCookie,
		Value:    url.QueryEscape(p),
		Path:     "/",
		MaxAge:   returnCookieMaxAge,
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// ReturnPath reads the page remembered by the last login redirect and clears
// it, so the hop happens once. Login handlers call it after a successful
// sign-in. Only local paths are ever returned.
func ReturnPath(w http.ResponseWriter, r *http.Request, opts Options) (string, bool) {
	opts = opts.normalize()
	ck, err := r.Cookie(opts.ReturnCookie)
	if err != nil {
		return "", false
	}

	http.SetCookie(w, &http.Cookie{
		Name:     opts.ReturnCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	p, err := url.QueryUnescape(ck.Value)
	if err != nil {
		return "", false
	}
	return goGuard.SafeReturnPath(p)
}
