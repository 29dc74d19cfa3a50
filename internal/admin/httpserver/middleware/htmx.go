package middleware

import (
	"context"
	"net/http"
	"strings"
)

type htmxContextKey struct{}

// HTMXInfo is what the console reads from htmx request headers.
type HTMXInfo struct {
	IsHTMX bool
	// CurrentURL is the browser location that issued the fragment request.
	CurrentURL string
	Trigger    string
}

// HTMX records the htmx request headers on the context and marks responses as
// varying on HX-Request, since fragments and full pages share URLs.
func HTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := HTMXInfo{
				IsHTMX:     strings.EqualFold(r.Header.Get("HX-Request"), "true"),
				CurrentURL: r.Header.Get("HX-Current-URL"),
				Trigger:    r.Header.Get("HX-Trigger"),
			}
			w.Header().Add("Vary", "HX-Request")
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), htmxContextKey{}, info)))
		})
	}
}

// HTMXInfoFromContext returns the recorded headers, or the zero value.
func HTMXInfoFromContext(ctx context.Context) HTMXInfo {
	info, _ := ctx.Value(htmxContextKey{}).(HTMXInfo)
	return info
}

// IsHTMXRequest reports whether htmx issued the request.
func IsHTMXRequest(ctx context.Context) bool {
	return HTMXInfoFromContext(ctx).IsHTMX
}

// RequireHTMX answers 404 to anything but htmx requests.
func RequireHTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsHTMXRequest(r.Context()) {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Redirect navigates the whole page: HX-Redirect with 204 for htmx, 303 otherwise.
func Redirect(w http.ResponseWriter, r *http.Request, target string) {
	if IsHTMXRequest(r.Context()) {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// Retarget swaps the response into selector instead of the requesting element.
func Retarget(w http.ResponseWriter, selector, swap string) {
	w.Header().Set("HX-Retarget", selector)
	if swap != "" {
		w.Header().Set("HX-Reswap", swap)
	}
}
