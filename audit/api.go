package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stackport-labs/stackport-go/internal/auditexport"
	"github.com/stackport-labs/stackport-go/internal/domain"
)

const eventColumns = `event_id, occurred_at, actor, action, resource_type, resource_id, request_id, ip, user_agent, payload, integrity_sha256`

type auditAPI struct {
	logger    *slog.Logger
	db        *sql.DB
	exportCfg auditexport.Config
}

func newAuditAPI(logger *slog.Logger, db *sql.DB, exportCfg auditexport.Config) *auditAPI {
	return &auditAPI{
		logger:    logger,
		db:        db,
		exportCfg: exportCfg,
	}
}

func (api *auditAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /events", api.handleListEvents)
	mux.HandleFunc("GET /events/{event_id}", api.handleGetEvent)
	mux.HandleFunc("POST /export", api.handleExport)
}

// eventFilter is the shared WHERE clause for listing and export. All fields
// are optional; the request trail query (request_id) is the common case.
type eventFilter struct {
	actor        string
	action       string
	resourceType string
	resourceID   string
	requestID    string
	startTime    *time.Time
	endTime      *time.Time
	beforeID     int64
}

func (f eventFilter) build() (string, []any) {
	where := make([]string, 0, 8)
	args := make([]any, 0, 8)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, clause+"$"+strconv.Itoa(len(args)))
	}

	if f.beforeID > 0 {
		add("event_id < ", f.beforeID)
	}
	if f.actor != "" {
		add("actor = ", f.actor)
	}
	if f.action != "" {
		add("action = ", f.action)
	}
	if f.resourceType != "" {
		add("resource_type = ", f.resourceType)
	}
	if f.resourceID != "" {
		add("resource_id = ", f.resourceID)
	}
	if f.requestID != "" {
		add("request_id = ", f.requestID)
	}
	if f.startTime != nil {
		add("occurred_at >= ", f.startTime.UTC())
	}
	if f.endTime != nil {
		add("occurred_at <= ", f.endTime.UTC())
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func (api *auditAPI) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)

	filter := eventFilter{
		actor:        strings.TrimSpace(r.URL.Query().Get("actor")),
		action:       strings.TrimSpace(r.URL.Query().Get("action")),
		resourceType: strings.TrimSpace(r.URL.Query().Get("resource_type")),
		resourceID:   strings.TrimSpace(r.URL.Query().Get("resource_id")),
		requestID:    strings.TrimSpace(r.URL.Query().Get("request_id")),
		beforeID:     parseInt64Query(r, "before_event_id", 0),
	}

	clause, args := filter.build()
	args = append(args, limit)
	query := "SELECT " + eventColumns + " FROM audit_events" + clause +
		" ORDER BY event_id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := api.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	defer rows.Close()

	events := make([]auditEvent, 0, limit)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	resp := map[string]any{"events": events}
	if len(events) > 0 {
		resp["next_before_event_id"] = events[len(events)-1].EventID
	}
	api.writeJSON(w, http.StatusOK, resp)
}

func (api *auditAPI) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, err := strconv.ParseInt(strings.TrimSpace(r.PathValue("event_id")), 10, 64)
	if err != nil || eventID <= 0 {
		api.writeError(w, r, http.StatusBadRequest, "event_id_required")
		return
	}

	row := api.db.QueryRowContext(
		r.Context(),
		"SELECT "+eventColumns+" FROM audit_events WHERE event_id = $1",
		eventID,
	)
	ev, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, ev)
}

type exportRequest struct {
	RequestID string     `json:"request_id"`
	Action    string     `json:"action,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
}

// handleExport streams the full trail of one request as NDJSON, oldest event
// first so the file replays in order.
func (api *auditAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := api.exportCfg.Validate(); err != nil {
		api.writeError(w, r, http.StatusNotImplemented, "export_not_configured")
		return
	}
	if strings.ToLower(strings.TrimSpace(api.exportCfg.Destination)) != "http" {
		api.writeError(w, r, http.StatusNotImplemented, "export_destination_unsupported")
		return
	}
	if strings.ToLower(strings.TrimSpace(api.exportCfg.Format)) != "ndjson" {
		api.writeError(w, r, http.StatusNotImplemented, "export_format_unsupported")
		return
	}

	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		api.writeError(w, r, http.StatusBadRequest, "request_id_required")
		return
	}
	if req.StartTime != nil && req.EndTime != nil && req.EndTime.Before(*req.StartTime) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_time_range")
		return
	}

	filter := eventFilter{
		requestID: requestID,
		action:    strings.TrimSpace(req.Action),
		startTime: req.StartTime,
		endTime:   req.EndTime,
	}
	clause, args := filter.build()
	query := "SELECT " + eventColumns + " FROM audit_events" + clause + " ORDER BY event_id ASC"

	rows, err := api.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	defer rows.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	exporter := auditexport.NewNDJSONExporter(w)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return
		}
		if err := exporter.Export(r.Context(), toDomainEvent(ev)); err != nil {
			return
		}
	}
}

type auditEvent struct {
	EventID         int64           `json:"event_id"`
	OccurredAt      time.Time       `json:"occurred_at"`
	Actor           string          `json:"actor"`
	Action          string          `json:"action"`
	ResourceType    string          `json:"resource_type"`
	ResourceID      string          `json:"resource_id"`
	RequestID       string          `json:"request_id,omitempty"`
	IP              string          `json:"ip,omitempty"`
	UserAgent       string          `json:"user_agent,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	IntegritySHA256 string          `json:"integrity_sha256"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (auditEvent, error) {
	var (
		ev         auditEvent
		reqID      sql.NullString
		ip         sql.NullString
		userAgent  sql.NullString
		payloadRaw []byte
	)
	err := row.Scan(
		&ev.EventID,
		&ev.OccurredAt,
		&ev.Actor,
		&ev.Action,
		&ev.ResourceType,
		&ev.ResourceID,
		&reqID,
		&ip,
		&userAgent,
		&payloadRaw,
		&ev.IntegritySHA256,
	)
	if err != nil {
		return auditEvent{}, err
	}
	ev.RequestID = strings.TrimSpace(reqID.String)
	ev.IP = strings.TrimSpace(ip.String)
	ev.UserAgent = strings.TrimSpace(userAgent.String)
	ev.Payload = normalizeJSON(payloadRaw)
	return ev, nil
}

func toDomainEvent(ev auditEvent) domain.AuditEvent {
	out := domain.AuditEvent{
		EventID:         ev.EventID,
		OccurredAt:      ev.OccurredAt,
		Actor:           ev.Actor,
		Action:          ev.Action,
		ResourceType:    ev.ResourceType,
		ResourceID:      ev.ResourceID,
		RequestID:       ev.RequestID,
		UserAgent:       ev.UserAgent,
		IntegritySHA256: ev.IntegritySHA256,
	}
	if ev.IP != "" {
		out.IP = net.ParseIP(ev.IP)
	}
	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err == nil && payload != nil {
		out.Payload = domain.Metadata(payload)
	} else {
		out.Payload = domain.Metadata{}
	}
	return out
}

func (api *auditAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *auditAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return errors.New("multiple JSON values")
	}
	return nil
}

func normalizeJSON(raw []byte) json.RawMessage {
	raw = []byte(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return []byte("{}")
	}
	return raw
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func parseInt64Query(r *http.Request, key string, def int64) int64 {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
