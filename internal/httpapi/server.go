// Package httpapi serves the JSON query API: /weather and /sources mirror
// the query and sources CLI commands, and /status exposes health plus the
// recent in-memory log entries.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/dwdopendata/brightsky/internal/log"
	"github.com/dwdopendata/brightsky/internal/store"
)

// Server is the HTTP front end over the store's query operations.
type Server struct {
	store  *store.Store
	server *http.Server
}

// New builds the router and binds it to addr.
func New(s *store.Store, addr string) *Server {
	srv := &Server{store: s}

	router := mux.NewRouter()
	router.HandleFunc("/weather", srv.handleWeather).Methods(http.MethodGet)
	router.HandleFunc("/sources", srv.handleSources).Methods(http.MethodGet)
	router.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)

	var handler http.Handler = router
	handler = requestLogger(handler)
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
	handler = handlers.ProxyHeaders(handler)
	handler = handlers.CompressHandler(handler)

	srv.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	return srv
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infof("httpapi: listening on %s", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// statusRecorder captures the response status and size for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.LogHTTPRequest(r.Method, r.URL.Path, rec.status, time.Since(start),
			rec.size, r.RemoteAddr, r.UserAgent(), nil)
	})
}
