package main

import (
	"net/http"
	"strings"

	"github.com/stackport-labs/stackport-go/internal/domain"
	"github.com/stackport-labs/stackport-go/internal/service/requests"
)

type createRequestBody struct {
	CatalogItemID string        `json:"catalog_item_id"`
	Params        domain.Params `json:"params"`
	TTLDays       int           `json:"ttl_days,omitempty"`
}

func (api *portalAPI) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(body.CatalogItemID) == "" {
		api.writeError(w, r, http.StatusBadRequest, "catalog_item_id_required")
		return
	}

	created, err := api.svc.Create(r.Context(), actor, requests.CreateInput{
		CatalogItemID: strings.TrimSpace(body.CatalogItemID),
		Params:        body.Params,
		TTLDays:       body.TTLDays,
	})
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (api *portalAPI) handleListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)

	list, err := api.svc.ListMine(r.Context(), actor, limit)
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

func (api *portalAPI) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	req, err := api.svc.Get(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (api *portalAPI) handleCurrentSize(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := r.PathValue("id")
	// Visibility follows the request itself.
	if _, err := api.svc.Get(r.Context(), actor, id); err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	size, err := api.svc.CurrentSize(r.Context(), id)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"request_id": id, "size": size})
}

type lifecycleChangeBody struct {
	Reason  string `json:"reason,omitempty"`
	NewSize string `json:"new_size,omitempty"`
}

func (api *portalAPI) handleDestroy(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body lifecycleChangeBody
	if err := decodeJSON(r, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	child, err := api.svc.RequestDestroy(r.Context(), actor, r.PathValue("id"), body.Reason)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, toRequestResponse(child))
}

func (api *portalAPI) handleScale(w http.ResponseWriter, r *http.Request) {
	actor, ok := api.actor(r)
	if !ok {
		api.writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var body lifecycleChangeBody
	if err := decodeJSON(r, &body); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	if strings.TrimSpace(body.NewSize) == "" {
		api.writeError(w, r, http.StatusBadRequest, "new_size_required")
		return
	}
	child, err := api.svc.RequestScale(r.Context(), actor, r.PathValue("id"), body.NewSize, body.Reason)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusCreated, toRequestResponse(child))
}
