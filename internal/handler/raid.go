// Package handler provides the raid HTTP handlers.
package handler

import (
	"context"
	"io"
	"net/http"

	"city-raid/internal/api"
	"city-raid/internal/service"
)

// RaidService is the part of service.RaidService the handlers use.
type RaidService interface {
	Preview(ctx context.Context, caller, target string) (*service.Preview, error)
	Execute(ctx context.Context, caller string, in service.ExecuteInput) (*service.Outcome, error)
	SaveLoadout(ctx context.Context, caller string, in service.LoadoutInput) (*service.Loadout, error)
	History(ctx context.Context, caller string, limit int) ([]service.HistoryEntry, error)
}

var _ RaidService = (*service.RaidService)(nil)

// RaidHandler handles the /raid endpoints.
type RaidHandler struct {
	raids RaidService
}

// NewRaidHandler creates a new RaidHandler.
func NewRaidHandler(raids RaidService) *RaidHandler {
	return &RaidHandler{raids: raids}
}

// HandlePreview handles POST /raid/preview.
func (h *RaidHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	defer drainBody(r)
	caller := Identity(r.Context())
	if caller == "" {
		WriteProblem(w, service.ErrAuthenticationRequired)
		return
	}

	req, err := api.ParsePreviewRequest(r.Body)
	if err != nil {
		WriteProblem(w, err)
		return
	}

	p, err := h.raids.Preview(r.Context(), caller, req.TargetLogin)
	if err != nil {
		WriteProblem(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, api.NewPreviewResponse(p))
}

// HandleExecute handles POST /raid/execute.
func (h *RaidHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	defer drainBody(r)
	caller := Identity(r.Context())
	if caller == "" {
		WriteProblem(w, service.ErrAuthenticationRequired)
		return
	}

	req, err := api.ParseExecuteRequest(r.Body)
	if err != nil {
		WriteProblem(w, err)
		return
	}

	out, err := h.raids.Execute(r.Context(), caller, service.ExecuteInput{
		TargetLogin:     req.TargetLogin,
		BoostPurchaseID: req.BoostPurchaseID,
		VehicleID:       req.VehicleID,
	})
	if err != nil {
		WriteProblem(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, api.NewExecuteResponse(out))
}

// HandleLoadout handles POST /raid/loadout.
func (h *RaidHandler) HandleLoadout(w http.ResponseWriter, r *http.Request) {
	defer drainBody(r)
	caller := Identity(r.Context())
	if caller == "" {
		WriteProblem(w, service.ErrAuthenticationRequired)
		return
	}

	req, err := api.ParseLoadoutRequest(r.Body)
	if err != nil {
		WriteProblem(w, err)
		return
	}

	lo, err := h.raids.SaveLoadout(r.Context(), caller, service.LoadoutInput{
		VehicleID: req.VehicleID,
		TagStyle:  req.TagStyle,
	})
	if err != nil {
		WriteProblem(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, api.NewLoadoutResponse(lo))
}

// HandleHistory handles GET /raid/history.
func (h *RaidHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	caller := Identity(r.Context())
	if caller == "" {
		WriteProblem(w, service.ErrAuthenticationRequired)
		return
	}

	limit, err := api.ParseHistoryLimit(r.URL.Query().Get("limit"))
	if err != nil {
		WriteProblem(w, err)
		return
	}

	entries, err := h.raids.History(r.Context(), caller, limit)
	if err != nil {
		WriteProblem(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, api.NewHistoryResponse(entries))
}

// drainBody lets the connection be reused after a partial read.
func drainBody(r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	_ = r.Body.Close()
}
