package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// PanicResponse answers a request whose handler panicked.
type PanicResponse func(w http.ResponseWriter, r *http.Request)

// Recoverer logs panics with their stack and answers through respond.
// A nil respond writes a JSON 500. Nothing is written if the handler had
// already started the response.
func Recoverer(logger *slog.Logger, respond PanicResponse) func(http.Handler) http.Handler {
	if respond == nil {
		respond = internalError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				if err, ok := rvr.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rvr)
				}

				logger.Error("panic recovered",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.Bool("response_started", ww.Status() != 0),
					slog.Any("panic", rvr),
					slog.String("stack", string(debug.Stack())),
				)
				if ww.Status() == 0 {
					respond(ww, r)
				}
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// RedirectHome sends visitors to the site root. Redirect routes use it so a
// scanned code never lands on an error body.
func RedirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func internalError(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"Internal server error"}}`))
}
