package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"dashcal/internal/config"
	"dashcal/internal/ics"
	"dashcal/internal/metric"
	"dashcal/internal/model"
)

// Server exposes the engine over HTTP and holds the per-feed expanded
// snapshots the day query operates on. The engine itself stays stateless;
// all caching of results lives here, on the caller side.
type Server struct {
	cfg    *config.Config
	engine *ics.Engine
	mux    *http.ServeMux

	mu        sync.RWMutex
	snapshots map[string]*snapshot
	gens      map[string]uint64
}

// snapshot is the result of the most recent fetch/expand cycle for one
// configured feed. Exactly one of result/err is meaningful.
type snapshot struct {
	feed      config.FeedConfig
	result    ics.ExpandResult
	err       error
	window    ics.Window
	fetchedAt time.Time
}

// NewServer constructs a Server around the given engine.
func NewServer(cfg *config.Config, engine *ics.Engine) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    engine,
		mux:       http.NewServeMux(),
		snapshots: make(map[string]*snapshot),
		gens:      make(map[string]uint64),
	}
	s.registerRoutes()
	return s
}

// Handler returns the server's http.Handler, wrapped with basic auth when
// configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		slog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metric.Handler())
	s.mux.HandleFunc("/api/feeds", s.handleFeeds)
	s.mux.HandleFunc("/api/events", s.handleEvents)
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuthMiddleware guards everything except /health and /metrics.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dashcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Window returns the expansion horizon configured around now.
func (s *Server) Window(now time.Time) ics.Window {
	return ics.Window{
		Start: now.AddDate(0, -s.cfg.WindowPastMonths, 0),
		End:   now.AddDate(0, s.cfg.WindowFutureMonths, 0),
	}
}

// RefreshAll runs one fetch/expand cycle per configured feed and stores
// the results. Safe to call concurrently; an in-flight cycle that has
// been superseded by a newer one for the same feed discards its result
// (last request wins).
func (s *Server) RefreshAll(ctx context.Context) {
	for _, feed := range s.cfg.Feeds {
		s.refreshFeed(ctx, feed)
	}
}

func (s *Server) refreshFeed(ctx context.Context, feed config.FeedConfig) {
	gen := s.beginRefresh(feed.ID)
	win := s.Window(time.Now())

	result, err := s.engine.LoadFeed(ctx, feed.URL, win)
	if err != nil {
		slog.Error("feed refresh failed", "feed", feed.ID, "url", ics.RedactURL(feed.URL), "err", err)
	}

	s.commitRefresh(feed.ID, gen, &snapshot{
		feed:      feed,
		result:    result,
		err:       err,
		window:    win,
		fetchedAt: time.Now(),
	})
}

func (s *Server) beginRefresh(feedID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[feedID]++
	return s.gens[feedID]
}

// commitRefresh stores snap unless a newer refresh for the same feed has
// started since gen was taken.
func (s *Server) commitRefresh(feedID string, gen uint64, snap *snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[feedID] != gen {
		slog.Debug("discarding superseded feed refresh", "feed", feedID)
		return
	}
	s.snapshots[feedID] = snap
}

func (s *Server) snapshotFor(feedID string) (*snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[feedID]
	return snap, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// feedDTO is the JSON view of a configured feed.
type feedDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (s *Server) handleFeeds(w http.ResponseWriter, _ *http.Request) {
	out := make([]feedDTO, 0, len(s.cfg.Feeds))
	for _, f := range s.cfg.Feeds {
		out = append(out, feedDTO{ID: f.ID, Name: f.Name, URL: f.URL})
	}
	writeJSON(w, http.StatusOK, out)
}

// eventDTO is the serialized event shape of the boundary contract.
type eventDTO struct {
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Recurrence  []string  `json:"recurrence,omitempty"`
	UID         string    `json:"uid"`
	AllDay      bool      `json:"isAllDay"`
}

// eventsResponse distinguishes the three caller-visible states: feed not
// configured (Configured=false, no error), feed failed (error payload
// instead of this shape), and success with a possibly empty event list.
type eventsResponse struct {
	Configured    bool       `json:"configured"`
	Events        []eventDTO `json:"events"`
	Date          string     `json:"date,omitempty"`
	WindowStart   time.Time  `json:"windowStart"`
	WindowEnd     time.Time  `json:"windowEnd"`
	FetchedAt     time.Time  `json:"fetchedAt,omitempty"`
	TruncatedUIDs []string   `json:"truncatedUids,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleEvents serves the boundary contract.
//
// GET /api/events?feed=<id>&date=YYYY-MM-DD
//
//	day query against the held snapshot of a configured feed
//
// GET /api/events?url=<feed-url>&date=YYYY-MM-DD
//
//	ad-hoc cycle for an arbitrary feed reference
//
// Omitting date returns the full expanded window ordered by start.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	feedID := q.Get("feed")
	adhocURL := q.Get("url")

	loc := s.displayLocation()
	day, hasDay, err := parseDay(q.Get("date"), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
		return
	}

	switch {
	case adhocURL != "":
		win := s.Window(time.Now())
		result, err := s.engine.LoadFeed(r.Context(), adhocURL, win)
		if err != nil {
			writeFeedError(w, err)
			return
		}
		s.writeEvents(w, result, win, time.Now(), day, hasDay)

	case feedID != "":
		snap, ok := s.snapshotFor(feedID)
		if !ok {
			if _, configured := s.cfg.FeedByID(feedID); !configured {
				writeJSON(w, http.StatusOK, eventsResponse{Configured: false, Events: []eventDTO{}})
				return
			}
			// Configured but never fetched yet; do it now.
			s.refreshFeed(r.Context(), mustFeed(s.cfg, feedID))
			snap, ok = s.snapshotFor(feedID)
			if !ok {
				writeError(w, http.StatusServiceUnavailable, "internal_error", "feed refresh superseded; retry")
				return
			}
		}
		if snap.err != nil {
			writeFeedError(w, snap.err)
			return
		}
		s.writeEvents(w, snap.result, snap.window, snap.fetchedAt, day, hasDay)

	default:
		// No feed reference at all: the "not configured" neutral state.
		writeJSON(w, http.StatusOK, eventsResponse{Configured: false, Events: []eventDTO{}})
	}
}

func (s *Server) writeEvents(w http.ResponseWriter, result ics.ExpandResult, win ics.Window, fetchedAt time.Time, day time.Time, hasDay bool) {
	events := result.Events
	resp := eventsResponse{
		Configured:    true,
		WindowStart:   win.Start,
		WindowEnd:     win.End,
		FetchedAt:     fetchedAt,
		TruncatedUIDs: result.TruncatedUIDs,
	}
	if hasDay {
		events = ics.EventsOnDay(events, day)
		resp.Date = day.Format("2006-01-02")
	} else {
		events = sortedByStart(events)
	}

	resp.Events = make([]eventDTO, 0, len(events))
	for _, ev := range events {
		resp.Events = append(resp.Events, toDTO(ev))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toDTO(ev model.CalendarEvent) eventDTO {
	return eventDTO{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
		Location:    ev.Location,
		Recurrence:  ev.RecurrenceRules,
		UID:         ev.UID,
		AllDay:      ev.AllDay,
	}
}

// sortedByStart applies the same total order as the day query, window
// wide: all-day first, then ascending start, stable.
func sortedByStart(events []model.CalendarEvent) []model.CalendarEvent {
	out := make([]model.CalendarEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AllDay != out[j].AllDay {
			return out[i].AllDay
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

func (s *Server) displayLocation() *time.Location {
	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		slog.Warn("invalid timezone in config; using local", "timezone", s.cfg.Timezone)
		return time.Local
	}
	return loc
}

func parseDay(v string, loc *time.Location) (time.Time, bool, error) {
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

func mustFeed(cfg *config.Config, id string) config.FeedConfig {
	f, _ := cfg.FeedByID(id)
	return f
}

// writeFeedError maps engine error categories onto HTTP statuses and the
// structured error payload of the boundary contract.
func writeFeedError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch ics.CategoryOf(err) {
	case ics.CategoryInvalidFeedURL:
		status = http.StatusBadRequest
	case ics.CategoryFetch, ics.CategoryParse:
		status = http.StatusBadGateway
	}

	msg := err.Error()
	var fe *ics.FeedError
	if errors.As(err, &fe) {
		msg = fe.Message
		if fe.Cause != nil {
			msg += ": " + fe.Cause.Error()
		}
	}
	writeJSON(w, status, errorResponse{
		Error:   string(ics.CategoryOf(err)),
		Message: msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("can't write JSON response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, category, msg string) {
	writeJSON(w, status, errorResponse{Error: category, Message: msg})
}
