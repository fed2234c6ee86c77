// Package httpapi implements the HTTP surface of the alert service.
//
// Subscriber routes expect an x-user-id header forwarded by the Gateway.
// Admin routes expect x-admin-token when a token is configured.
//
// Routes:
//
//	GET    /health                  → liveness
//	GET    /metrics                 → Prometheus exposition
//	POST   /admin/alerts/execute    → run one cadence batch now
//	GET    /alerts                  → list the user's alerts (?active=true)
//	POST   /alerts                  → create an alert
//	GET    /alerts/stats            → aggregate statistics
//	POST   /alerts/preview          → search ad-hoc criteria without saving
//	GET    /alerts/:id              → one alert
//	PUT    /alerts/:id              → replace fields of an alert
//	POST   /alerts/:id/toggle       → flip active
//	POST   /alerts/:id/test         → run one alert now (?preview=true)
//	DELETE /alerts/:id              → deactivate
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"jobmate/alert-service/internal/alert"
	"jobmate/alert-service/internal/model"
)

// maxTestMatches caps the matches echoed back by the test route.
const maxTestMatches = 10

// Runner is the part of *alert.Runner the handlers use.
type Runner interface {
	RunBatch(ctx context.Context, cadence model.Cadence, now time.Time) (*alert.RunReport, error)
	RunOne(ctx context.Context, id string, preview bool) (*alert.SingleRun, error)
}

// Handler holds shared dependencies.
type Handler struct {
	svc        *alert.Service
	runner     Runner
	adminToken string
	metrics    http.Handler
	log        *zap.Logger
}

// NewHandler returns a configured Handler. metrics may be nil.
func NewHandler(svc *alert.Service, runner Runner, adminToken string, metrics http.Handler, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, runner: runner, adminToken: adminToken, metrics: metrics, log: log}
}

// NewServer returns an echo instance with middleware and every route mounted.
func (h *Handler) NewServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			h.log.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	}))
	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes mounts all alert-service routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}

	admin := e.Group("/admin", h.requireAdmin)
	admin.POST("/alerts/execute", h.executeBatch)

	g := e.Group("/alerts", requireUser)
	g.GET("", h.listAlerts)
	g.POST("", h.createAlert)
	g.GET("/stats", h.statistics)
	g.POST("/preview", h.preview)
	g.GET("/:id", h.getAlert)
	g.PUT("/:id", h.updateAlert)
	g.POST("/:id/toggle", h.toggleAlert)
	g.POST("/:id/test", h.testAlert)
	g.DELETE("/:id", h.deactivateAlert)
}

// ─── Middleware ──────────────────────────────────────────────────────────────

const userKey = "userID"

func requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Request().Header.Get("x-user-id")
		if userID == "" {
			return jsonError(c, "missing x-user-id header", http.StatusUnauthorized)
		}
		c.Set(userKey, userID)
		return next(c)
	}
}

func (h *Handler) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.adminToken != "" && c.Request().Header.Get("x-admin-token") != h.adminToken {
			return jsonError(c, "invalid admin token", http.StatusUnauthorized)
		}
		return next(c)
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userKey).(string)
	return id
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (h *Handler) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) executeBatch(c echo.Context) error {
	var body struct {
		Cadence string `json:"cadence"`
	}
	if err := c.Bind(&body); err != nil {
		return jsonError(c, "invalid JSON body", http.StatusBadRequest)
	}
	cadence, err := model.ParseCadence(body.Cadence)
	if err != nil {
		return jsonError(c, err.Error(), http.StatusBadRequest)
	}
	report, err := h.runner.RunBatch(c.Request().Context(), cadence, time.Now().UTC())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

func (h *Handler) listAlerts(c echo.Context) error {
	activeOnly, _ := strconv.ParseBool(c.QueryParam("active"))
	list, err := h.svc.List(c.Request().Context(), userID(c), activeOnly)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) createAlert(c echo.Context) error {
	var in alert.CriteriaInput
	if err := c.Bind(&in); err != nil {
		return jsonError(c, "invalid JSON body", http.StatusBadRequest)
	}
	created, err := h.svc.Create(c.Request().Context(), userID(c), in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) statistics(c echo.Context) error {
	st, err := h.svc.Statistics(c.Request().Context(), userID(c))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

func (h *Handler) preview(c echo.Context) error {
	var in alert.CriteriaInput
	if err := c.Bind(&in); err != nil {
		return jsonError(c, "invalid JSON body", http.StatusBadRequest)
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	p, err := h.svc.Preview(c.Request().Context(), userID(c), in, limit)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) getAlert(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) updateAlert(c echo.Context) error {
	var patch alert.CriteriaPatch
	if err := c.Bind(&patch); err != nil {
		return jsonError(c, "invalid JSON body", http.StatusBadRequest)
	}
	updated, err := h.svc.Update(c.Request().Context(), userID(c), c.Param("id"), patch)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) toggleAlert(c echo.Context) error {
	toggled, err := h.svc.Toggle(c.Request().Context(), userID(c), c.Param("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, toggled)
}

func (h *Handler) deactivateAlert(c echo.Context) error {
	if err := h.svc.Deactivate(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) testAlert(c echo.Context) error {
	ctx := c.Request().Context()
	// Ownership check before running.
	if _, err := h.svc.Get(ctx, userID(c), c.Param("id")); err != nil {
		return h.fail(c, err)
	}
	preview, _ := strconv.ParseBool(c.QueryParam("preview"))
	run, err := h.runner.RunOne(ctx, c.Param("id"), preview)
	if err != nil {
		return h.fail(c, err)
	}
	if run.Result != nil && len(run.Result.Matches) > maxTestMatches {
		trimmed := *run.Result
		trimmed.Matches = trimmed.Matches[:maxTestMatches]
		run.Result = &trimmed
	}
	return c.JSON(http.StatusOK, run)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// fail maps domain errors to status codes. Unknown errors are logged and
// hidden behind a generic message.
func (h *Handler) fail(c echo.Context, err error) error {
	var (
		verr *alert.ValidationError
		cerr *alert.CatalogUnavailableError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, map[string]any{"error": verr.Msg, "fields": verr.Fields})
	case errors.Is(err, alert.ErrNotFound):
		return jsonError(c, err.Error(), http.StatusNotFound)
	case errors.Is(err, alert.ErrInactive), errors.Is(err, alert.ErrBatchInProgress):
		return jsonError(c, err.Error(), http.StatusConflict)
	case errors.As(err, &cerr):
		h.log.Warn("catalog unavailable", zap.String("path", c.Path()), zap.Error(err))
		return jsonError(c, "job catalog unavailable", http.StatusServiceUnavailable)
	}
	h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return jsonError(c, "internal error", http.StatusInternalServerError)
}

func jsonError(c echo.Context, msg string, code int) error {
	return c.JSON(code, map[string]string{"error": msg})
}
