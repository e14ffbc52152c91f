package main

import (
	"net/http"
	"strings"
)

func (api *portalAPI) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	items := api.catalog.All()
	if query != "" {
		items = api.catalog.Search(query)
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"items":      items,
		"categories": api.catalog.Categories(),
	})
}

func (api *portalAPI) handleGetCatalogItem(w http.ResponseWriter, r *http.Request) {
	item, ok := api.catalog.ByID(r.PathValue("item_id"))
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	api.writeJSON(w, http.StatusOK, item)
}
