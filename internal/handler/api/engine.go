package api

import (
	"errors"

	domrepo "SigWatch/internal/domain/repository"
	"SigWatch/internal/repository"
	"SigWatch/internal/usecase"
	xhttp "SigWatch/pkg/http"
	xlogger "SigWatch/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EngineHandler exposes the monitoring engine over HTTP: on-demand runs,
// run history and current signal state per entity.
type EngineHandler struct {
	logger   *xlogger.Logger
	runner   *usecase.Runner
	entities domrepo.EntitySource
	runLog   domrepo.RunLogSink
	state    domrepo.SignalStateStore
}

func NewEngineHandler(
	logger *xlogger.Logger,
	runner *usecase.Runner,
	entities domrepo.EntitySource,
	runLog domrepo.RunLogSink,
	state domrepo.SignalStateStore,
) *EngineHandler {
	return &EngineHandler{
		logger:   logger,
		runner:   runner,
		entities: entities,
		runLog:   runLog,
		state:    state,
	}
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/entities")
	g.GET("", h.ListEntities)
	g.POST("/:id/run", h.TriggerRun)
	g.GET("/:id/runs", h.RecentRuns)
	g.GET("/:id/state", h.State)
}

func (h *EngineHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status":   "ok",
		"inflight": h.runner.InFlight(),
	})
}

func (h *EngineHandler) ListEntities(c echo.Context) error {
	rows, err := h.entities.List(c.Request().Context())
	if err != nil {
		h.logger.Error("list entities failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

// TriggerRun executes one monitoring run immediately, outside the
// scheduler. With dry_run the full pipeline runs and persists, but the
// alert transport is never called and the hourly counter stays put.
func (h *EngineHandler) TriggerRun(c echo.Context) error {
	req := &TriggerRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	entity, err := h.entities.Get(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrEntityNotFound) {
			return xhttp.NotFoundResponse(c, "entity not found")
		}
		h.logger.Error("entity lookup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	entry, err := h.runner.RunOne(ctx, entity, req.DryRun)
	if errors.Is(err, usecase.ErrRunInFlight) {
		return xhttp.ConflictResponse(c, "run already in flight for this entity")
	}
	if err != nil && entry == nil {
		h.logger.Error("manual run failed",
			xlogger.String("entity_id", entity.ID), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, entry)
}

func (h *EngineHandler) RecentRuns(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 20)
	if limit < 1 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}

	entries, err := h.runLog.Recent(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Error("run log read failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, entries, int64(len(entries)))
}

func (h *EngineHandler) State(c echo.Context) error {
	id := c.Param("id")
	sig, err := h.state.Get(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("signal state read failed",
			xlogger.String("entity_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, &SignalStateResponse{
		EntityID: id,
		Signal:   sig.String(),
	})
}
