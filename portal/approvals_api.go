package main

import (
	"net/http"
)

func (api *portalAPI) handleListPending(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)

	list, err := api.svc.ListPending(r.Context(), actor, limit)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	out := make([]requestResponse, 0, len(list))
	for _, req := range list {
		out = append(out, toRequestResponse(req))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"requests": out})
}

func (api *portalAPI) handleApprove(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := api.svc.Approve(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	resp := toRequestResponse(result.Request)
	if result.TriggerErr != nil {
		// The approval committed; the caller sees the request still approved
		// together with why deployment has not started.
		resp.TriggerError = result.TriggerErr.Error()
	}
	api.writeJSON(w, http.StatusOK, resp)
}

type rejectBody struct {
	Reason string `json:"reason"`
}

func (api *portalAPI) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body rejectBody
	if err := decodeJSON(r, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	rejected, err := api.svc.Reject(r.Context(), actor, r.PathValue("id"), body.Reason)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, toRequestResponse(rejected))
}

func (api *portalAPI) handleRetryTrigger(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := api.svc.RetryTrigger(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	resp := toRequestResponse(result.Request)
	if result.TriggerErr != nil {
		resp.TriggerError = result.TriggerErr.Error()
	}
	api.writeJSON(w, http.StatusOK, resp)
}
