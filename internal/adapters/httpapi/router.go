// Package httpapi は階層サービスの REST ゲートウェイです。
// レスポンスのノード表現は gRPC の hierarchyv1 と同じ camelCase です。
package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
	"github.com/isola513i/hari-hr-system/internal/platform/logging"
	"github.com/isola513i/hari-hr-system/internal/platform/metrics"
)

// 上流の認証層が付与する呼び出し元ヘッダーです。
const (
	HeaderActorID        = "X-Actor-ID"
	HeaderActorCanMutate = "X-Actor-Can-Mutate"
	HeaderReparented     = "X-Reparented"
	HeaderNewParentID    = "X-New-Parent-ID"
)

// Handler は hierarchy.UseCase を HTTP で公開します。
type Handler struct {
	svc hierarchy.UseCase
}

// NewRouter はルーティングとミドルウェアを組み立てます。logger と m は nil でも動作します。
func NewRouter(svc hierarchy.UseCase, logger *log.Logger, m *metrics.Metrics) http.Handler {
	h := &Handler{svc: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observe(logger, m))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Route("/hierarchy", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/subtree/{rootID}", h.subtree)
		r.Post("/reassign", h.reassign)
		r.Post("/node", h.create)
		r.Get("/node/{id}", h.get)
		r.Patch("/node/{id}", h.update)
		r.Delete("/node/{id}", h.delete)
	})
	return r
}

// observe はリクエストごとにログとメトリクスを記録します。
func observe(logger *log.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			req := r
			if logger != nil {
				req = r.WithContext(logging.WithLogger(r.Context(), logger))
			}
			next.ServeHTTP(ww, req)

			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)

			m.ObserveRequest("http", r.Method+" "+route, strconv.Itoa(code), elapsed)
			if logger == nil {
				return
			}
			fields := []any{
				"method", r.Method,
				"route", route,
				"status", code,
				"duration", elapsed,
				"request_id", middleware.GetReqID(r.Context()),
			}
			if code >= http.StatusInternalServerError {
				logger.Error("http request", fields...)
				return
			}
			logger.Debug("http request", fields...)
		})
	}
}

// actorFromRequest は呼び出し元ヘッダーから Actor を組み立てます。
func actorFromRequest(r *http.Request) hierarchy.Actor {
	actor := hierarchy.Actor{ID: r.Header.Get(HeaderActorID)}
	if raw := r.Header.Get(HeaderActorCanMutate); raw != "" {
		canMutate, err := strconv.ParseBool(raw)
		actor.CanMutate = err == nil && canMutate
	}
	return actor
}
