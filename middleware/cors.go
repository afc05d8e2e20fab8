// Package middleware wraps httprouter.Handle with cross-cutting request
// concerns: CORS, structured request logging with panic recovery, and
// capacity gating. Grounded on livepeer-catalyst-api/middleware, which
// wraps handlers the same way rather than using net/http middleware chains.
package middleware

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// AllowCORS mirrors the teacher's cors.go: reflects the request Origin,
// allows credentials, and short-circuits OPTIONS preflight requests.
func AllowCORS() func(httprouter.Handle) httprouter.Handle {
	return func(next httprouter.Handle) httprouter.Handle {
		return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			originDomain := r.Header.Get("Origin")
			if originDomain == "" {
				originDomain = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", originDomain)
			w.Header().Set("Access-Control-Allow-Headers", "*")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, DELETE, OPTIONS")

			if r.Method == http.MethodOptions {
				w.Header().Set("content-length", "0")
				w.WriteHeader(http.StatusOK)
				return
			}

			next(w, r, ps)
		}
	}
}
