// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"codeberg.org/oliverandrich/intragate/internal/database"
	"codeberg.org/oliverandrich/intragate/internal/templates"
	"codeberg.org/oliverandrich/intragate/internal/verification"
	"github.com/labstack/echo/v4"
	"github.com/vinovest/sqlx"
)

// GatewayStatus reports whether the Discord gateway connection is up.
type GatewayStatus interface {
	Connected() bool
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	svc     *verification.Service
	gateway GatewayStatus
	db      *sqlx.DB
	started time.Time
}

// New creates a new Handlers instance. gateway and db may be nil.
func New(svc *verification.Service, gateway GatewayStatus, db *sqlx.DB) *Handlers {
	return &Handlers{
		svc:     svc,
		gateway: gateway,
		db:      db,
		started: time.Now(),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status               string      `json:"status"`
	Gateway              string      `json:"gateway"`
	Database             string      `json:"database"`
	PendingVerifications int         `json:"pending_verifications"`
	Uptime               string      `json:"uptime"`
	Memory               MemoryStats `json:"memory"`
}

// MemoryStats is a subset of runtime.MemStats.
type MemoryStats struct {
	AllocBytes uint64 `json:"alloc_bytes"`
	SysBytes   uint64 `json:"sys_bytes"`
}

// Health reports liveness. It always answers 200 so the process is not
// restarted for a Discord or disk hiccup; status says "degraded" instead.
func (h *Handlers) Health(c echo.Context) error {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := HealthResponse{
		Status:               "ok",
		Gateway:              "disconnected",
		Database:             "disabled",
		PendingVerifications: h.svc.Pending(),
		Uptime:               time.Since(h.started).Round(time.Second).String(),
		Memory: MemoryStats{
			AllocBytes: mem.Alloc,
			SysBytes:   mem.Sys,
		},
	}

	if h.gateway != nil && h.gateway.Connected() {
		resp.Gateway = "connected"
	} else {
		resp.Status = "degraded"
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := database.Ping(ctx, h.db); err != nil {
			slog.Warn("health check database ping failed", "error", err)
			resp.Database = "error"
			resp.Status = "degraded"
		} else {
			resp.Database = "ok"
		}
	}

	return c.JSON(http.StatusOK, resp)
}

// Callback is the redirect target of the intranet authorization.
func (h *Handlers) Callback(c echo.Context) error {
	res := h.svc.ReceiveIdentityCallback(c.Request().Context(), verification.CallbackParams{
		State: c.QueryParam("state"),
		Code:  c.QueryParam("code"),
		Error: c.QueryParam("error"),
	})
	return h.renderOutcome(c, res)
}

// Accept grants the verified role after the rules were accepted.
func (h *Handlers) Accept(c echo.Context) error {
	return h.renderOutcome(c, h.svc.Accept(c.Request().Context(), c.QueryParam("state")))
}

// Decline ends the verification without a role.
func (h *Handlers) Decline(c echo.Context) error {
	return h.renderOutcome(c, h.svc.Decline(c.Request().Context(), c.QueryParam("state")))
}

func (h *Handlers) renderOutcome(c echo.Context, res verification.Result) error {
	header := c.Response().Header()
	header.Set("Cache-Control", "no-store")
	header.Set("Referrer-Policy", "no-referrer")
	return Render(c, StatusFor(res.Outcome), templates.Outcome(res))
}

// StatusFor maps an outcome to the HTTP status of its page.
func StatusFor(o verification.Outcome) int {
	switch o {
	case verification.OutcomeConsent, verification.OutcomeGranted, verification.OutcomeDeclined:
		return http.StatusOK
	case verification.OutcomeProviderError:
		return http.StatusBadGateway
	case verification.OutcomeIneligible:
		return http.StatusForbidden
	case verification.OutcomeGrantFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
