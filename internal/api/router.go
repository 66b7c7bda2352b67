package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/finvault/transaction-service/internal/handler"
	"github.com/finvault/transaction-service/internal/infrastructure/auth"
	"github.com/finvault/transaction-service/internal/infrastructure/observability"
	"github.com/finvault/transaction-service/internal/infrastructure/redis"
	service "github.com/finvault/transaction-service/internal/services"
	pkgerrors "github.com/finvault/transaction-service/pkg/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const idempotencyTTL = 24 * time.Hour

func SetupRouter(svc service.TransactionService, redisClient redis.RedisClient, jwtSecret string, metricsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()

	h := handler.NewHandler(svc)

	protected := r.PathPrefix("/transactions").Subrouter()
	protected.Use(metricsMiddleware)
	protected.Use(auth.Middleware(redisClient, jwtSecret))
	// After auth, so a rejected request never burns its idempotency key.
	protected.Use(idempotencyMiddleware(redisClient))
	h.RegisterRoutes(protected)

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := fmt.Sprintf("%d", recorder.status)
		observability.RequestCounter.WithLabelValues(r.Method, endpoint, status).Inc()
		observability.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
	})
}

// idempotencyMiddleware dedupes mutating requests on the Idempotency-Key
// header. The key is claimed with SetNX before the request is processed; a
// repeat within the TTL is rejected with 409. Redis outages fail open so a
// cache problem never blocks payments.
func idempotencyMiddleware(redisClient redis.RedisClient) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			claimed, err := redisClient.SetNX(r.Context(), fmt.Sprintf("idempotency:%s", key), "1", idempotencyTTL)
			if err != nil {
				slog.Warn("idempotency check unavailable, proceeding", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !claimed {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				json.NewEncoder(w).Encode(map[string]string{"error": pkgerrors.ErrRequestAlreadyProcessed.Error()})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
