package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"example.com/signinledger/internal/archive"
	"example.com/signinledger/internal/config"
	"example.com/signinledger/internal/device"
	"example.com/signinledger/internal/domain"
	"example.com/signinledger/internal/ledger"
	"example.com/signinledger/internal/metrics"
)

// Enqueuer accepts stored events for the archive; *ingest.Ingestor
// implements it.
type Enqueuer interface {
	Enqueue(ev domain.Event) bool
}

type ServerDeps struct {
	Cfg    config.Config
	Ledger *ledger.Ledger
	// Ingestor and Archive are nil when no archive driver is configured.
	Ingestor Enqueuer
	Archive  archive.Store
	Metrics  *metrics.Metrics
	// Live serves /api/live. Broadcasts come from the ledger through
	// LedgerFeed, not from the handlers.
	Live   *LiveHub
	Device *device.CommandBit
	Log    *slog.Logger
	Now    func() time.Time
	// StartedAt is the process start time reported by /healthz.
	StartedAt time.Time
}

const (
	defaultArchiveWindow = 24 * time.Hour
	maxArchiveWindow     = 366 * 24 * time.Hour
	readyTimeout         = 2 * time.Second
)

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func writeDecodeError(w http.ResponseWriter, err error) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		WriteProblem(w, http.StatusRequestEntityTooLarge, "body too large", err.Error(), nil)
		return
	}
	WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
}

// --- Health ---

type healthResp struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	EntriesStored int    `json:"entriesStored"`
}

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	up := d.Now().Sub(d.StartedAt)
	if up < 0 {
		up = 0
	}
	WriteJSON(w, http.StatusOK, healthResp{
		Status:        "ok",
		Uptime:        up.Round(time.Second).String(),
		UptimeSeconds: int64(up / time.Second),
		EntriesStored: d.Ledger.Len(),
	})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if d.Archive != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := d.Archive.Ready(ctx); err != nil {
			d.Log.Warn("archive not ready", "err", err)
			WriteProblem(w, http.StatusServiceUnavailable, "not ready", "archive not reachable", nil)
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Events ---

type ingestResp struct {
	Success   bool         `json:"success"`
	Duplicate bool         `json:"duplicate"`
	Message   string       `json:"message,omitempty"`
	Event     domain.Event `json:"event"`
}

func (d *ServerDeps) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)

	var raw domain.RawEvent
	if err := decodeJSON(r, &raw); err != nil {
		d.Metrics.EventRejected("invalid_json")
		writeDecodeError(w, err)
		return
	}

	res, err := d.Ledger.Ingest(raw)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			d.Metrics.EventRejected("validation")
			d.Log.Info("event rejected", "err", err)
			WriteProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", ve.ByField())
			return
		}
		d.Log.Error("ingest failed", "err", err)
		WriteProblem(w, http.StatusInternalServerError, "internal error", "could not record event", nil)
		return
	}

	if res.Duplicate {
		d.Metrics.EventDuplicate()
		d.Log.Debug("duplicate event ignored", "name", res.Event.PersonName, "action", res.Event.Action.String(), "id", res.Event.ID)
		WriteJSON(w, http.StatusOK, ingestResp{
			Success:   true,
			Duplicate: true,
			Message:   "duplicate event ignored",
			Event:     res.Event,
		})
		return
	}

	ev := res.Event
	d.Metrics.EventStored(ev.Action.String(), res.Fallback, res.Evicted)
	if res.Fallback {
		d.Log.Warn("event timestamp missing or unparseable, using receive time", "id", ev.ID, "name", ev.PersonName)
	}
	if d.Ingestor != nil && !d.Ingestor.Enqueue(ev) {
		d.Log.Warn("archive queue full, event not archived", "id", ev.ID)
	}
	d.Log.Info("event stored",
		"id", ev.ID,
		"name", ev.PersonName,
		"action", ev.Action.String(),
		"timestamp", ev.OccurredAt,
	)

	WriteJSON(w, http.StatusCreated, ingestResp{Success: true, Event: ev})
}

type listResp struct {
	Count  int            `json:"count"`
	Events []domain.Event `json:"events"`
}

func (d *ServerDeps) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	evs := d.Ledger.ListRecent()
	WriteJSON(w, http.StatusOK, listResp{Count: len(evs), Events: evs})
}

type latestResp struct {
	Event *domain.Event `json:"event"`
}

func (d *ServerDeps) HandleLatestEvent(w http.ResponseWriter, r *http.Request) {
	var resp latestResp
	if ev, ok := d.Ledger.Latest(); ok {
		resp.Event = &ev
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (d *ServerDeps) HandleClearEvents(w http.ResponseWriter, r *http.Request) {
	n := d.Ledger.Clear()
	d.Metrics.Cleared(n)
	d.Log.Warn("ledger cleared", "removed", n, "remote", r.RemoteAddr)
	WriteJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// --- Sessions & statistics ---

type sessionsResp struct {
	Count    int              `json:"count"`
	Sessions []ledger.Session `json:"sessions"`
}

func (d *ServerDeps) HandleSessions(w http.ResponseWriter, r *http.Request) {
	ss := d.Ledger.ActiveSessions()
	WriteJSON(w, http.StatusOK, sessionsResp{Count: len(ss), Sessions: ss})
}

func (d *ServerDeps) HandleStats(w http.ResponseWriter, r *http.Request) {
	asOf, ok := d.parseInstant(r.URL.Query().Get("asOf"))
	if !ok {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "asOf is not a recognised timestamp", nil)
		return
	}
	WriteJSON(w, http.StatusOK, d.Ledger.Statistics(asOf))
}

// parseInstant reads a query value in any accepted timestamp form. An empty
// value yields the zero time; ok is false only for unparseable input.
func (d *ServerDeps) parseInstant(s string) (time.Time, bool) {
	ts := domain.ParseTimestamp(s)
	if ts.IsAbsent() {
		return time.Time{}, true
	}
	n := domain.Normalize(ts, d.Now(), d.Ledger.Location())
	if n.Fallback {
		return time.Time{}, false
	}
	return n.Time, true
}

// --- Device command bit ---

type commandReq struct {
	Enabled *bool `json:"enabled"`
}

type commandResp struct {
	Enabled bool `json:"enabled"`
}

func (d *ServerDeps) HandleGetCommand(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, commandResp{Enabled: d.Device.Enabled()})
}

// HandlePostCommand toggles the bit, or sets it when the body carries
// {"enabled": bool}.
func (d *ServerDeps) HandlePostCommand(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)

	var req commandReq
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeDecodeError(w, err)
		return
	}
	var enabled bool
	if req.Enabled != nil {
		enabled = *req.Enabled
		d.Device.Set(enabled)
	} else {
		enabled = d.Device.Toggle()
	}
	d.Log.Info("device command updated", "enabled", enabled)
	WriteJSON(w, http.StatusOK, commandResp{Enabled: enabled})
}

// --- Archive ---

func (d *ServerDeps) HandleArchiveStats(w http.ResponseWriter, r *http.Request) {
	if d.Archive == nil {
		WriteProblem(w, http.StatusNotFound, "archive disabled", "no archive driver is configured", nil)
		return
	}

	q := r.URL.Query()
	from, okFrom := d.parseInstant(q.Get("from"))
	to, okTo := d.parseInstant(q.Get("to"))
	if !okFrom || !okTo {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from and to must be epoch seconds, epoch milliseconds or dates", nil)
		return
	}
	if to.IsZero() {
		to = d.Now()
	}
	if from.IsZero() {
		from = to.Add(-defaultArchiveWindow)
	}
	if from.After(to) {
		WriteProblem(w, http.StatusBadRequest, "invalid parameters", "from must not be after to", nil)
		return
	}
	// guardrail: cap excessively large ranges
	if to.Sub(from) > maxArchiveWindow {
		from = to.Add(-maxArchiveWindow)
	}

	tot, err := d.Archive.QueryTotals(r.Context(), from, to)
	if err != nil {
		d.Log.Error("archive query failed", "err", err)
		WriteProblem(w, http.StatusInternalServerError, "query error", "archive query failed", nil)
		return
	}
	WriteJSON(w, http.StatusOK, tot)
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Device == nil {
		d.Device = device.NewCommandBit(false)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	var postEvent http.Handler = http.HandlerFunc(d.HandlePostEvent)
	postEvent = BodyLimit(d.Cfg.MaxBodyBytes)(postEvent)
	postEvent = RequireJSON(postEvent)
	mux.Handle("POST /api/events", postEvent)
	mux.HandleFunc("GET /api/events", d.HandleListEvents)
	mux.HandleFunc("DELETE /api/events", d.HandleClearEvents)
	mux.HandleFunc("GET /api/events/latest", d.HandleLatestEvent)
	mux.HandleFunc("GET /api/sessions", d.HandleSessions)

	var stats http.Handler = http.HandlerFunc(d.HandleStats)
	stats = RateLimitPerMinute(d.Cfg.RateLimitStats, d.Now)(stats)
	mux.Handle("GET /api/stats", stats)

	mux.HandleFunc("GET /api/device/command", d.HandleGetCommand)
	mux.Handle("POST /api/device/command", BodyLimit(d.Cfg.MaxBodyBytes)(http.HandlerFunc(d.HandlePostCommand)))

	mux.HandleFunc("GET /api/archive/stats", d.HandleArchiveStats)
	if d.Live != nil {
		mux.HandleFunc("GET /api/live", d.Live.ServeWS)
	}

	var h http.Handler = mux
	h = Recover(d.Log)(h)
	h = RequestLog(d.Log, d.Now, d.Metrics.HTTPRequest)(h)
	return h
}
