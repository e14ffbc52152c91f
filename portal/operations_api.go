package main

import (
	"net/http"
	"strings"

	"github.com/stackport-labs/stackport-go/internal/domain"
)

type pipelineResultBody struct {
	Success    bool   `json:"success"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

// handlePipelineResult is the push-style reconciliation feed: the pipeline
// (or an operator) reports the terminal build outcome. The poll-based
// reconciler covers pipelines that cannot call back.
func (api *portalAPI) handlePipelineResult(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body pipelineResultBody
	if err := decodeJSON(r, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	updated, err := api.svc.RecordPipelineResult(r.Context(), actor, r.PathValue("id"), body.Success, body.Diagnostic)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

type recordHealthBody struct {
	Health  string `json:"health"`
	Details string `json:"details,omitempty"`
}

func (api *portalAPI) handleRecordHealth(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body recordHealthBody
	if err := decodeJSON(r, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	health := domain.ResourceHealth(strings.ToLower(strings.TrimSpace(body.Health)))
	if err := api.svc.RecordHealth(r.Context(), actor, r.PathValue("id"), health, body.Details); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"request_id": r.PathValue("id"),
		"health":     string(health),
	})
}
