package worker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader carries the id assigned to every request
const RequestIDHeader = "X-Request-Id"

type ctxKey struct{}

// RequestID returns the id assigned by the request id middleware
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Router returns the handler chain: request id, panic recovery, request
// logging and the fixed responder for every method and path
func (d *Daemon) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID, d.recoverer, d.logRequest)

	serve := d.serve
	if serve == nil {
		serve = d.respond
	}
	r.HandleFunc("/*", serve)
	r.NotFound(serve)
	r.MethodNotAllowed(serve)
	return r
}

func (d *Daemon) respond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(d.opts.Response))
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (d *Daemon) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.requests.Add(1)
		// Request lines are bare "[timestamp] message" records; the id
		// travels in the response header only
		d.logger.Info(fmt.Sprintf("Incoming request %s %s", r.Method, r.URL.RequestURI()))
		next.ServeHTTP(w, r)
	})
}

// recoverer logs a handler panic with its stack, answers 500 and reports a
// fault so the owner shuts the daemon down
func (d *Daemon) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err := fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
			d.logger.Error("Uncaught exception",
				zap.Error(err),
				zap.String("request_id", RequestID(r.Context())),
				zap.Stack("stack"))
			d.reportFault(err)

			w.WriteHeader(http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
