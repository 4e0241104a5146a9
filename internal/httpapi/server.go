package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/worklifeapp/worklife/internal/sheetsync"
	"github.com/worklifeapp/worklife/internal/worklife"
)

// SyncController is what the server needs from the sync engine. Nil means
// sync endpoints answer 503.
type SyncController interface {
	Status() sheetsync.SyncStatus
	PushNow() error
	PullNow() error
}

type ServerConfig struct {
	BotToken        string
	JWTSecret       string
	TokenTTL        time.Duration
	InitDataMaxAge  time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	MaxBodyBytes    int64
}

type Server struct {
	store       *worklife.Store
	sync        SyncController
	cfg         ServerConfig
	rateLimiter *rateLimiter
	router      chi.Router
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(store *worklife.Store, sync SyncController) *Server {
	return NewServerWithConfig(store, sync, ServerConfig{})
}

func NewServerWithConfig(store *worklife.Store, syncCtl SyncController, cfg ServerConfig) *Server {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.InitDataMaxAge <= 0 {
		cfg.InitDataMaxAge = time.Hour
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		store: store,
		sync:  syncCtl,
		cfg:   cfg,
	}
	if cfg.RateLimitMax > 0 {
		s.rateLimiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/v1/auth/telegram", s.handleAuthTelegram)

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireSession)

		r.Get("/state", s.handleGetState)
		r.Put("/state", s.handleReplaceState)
		r.Get("/search", s.handleSearch)
		r.Get("/events", s.handleEvents)

		r.Route("/days/{date}", func(r chi.Router) {
			r.Put("/status", s.handleSetDayStatus)
			r.Put("/note", s.handleSetDayNote)
			r.Put("/blocks", s.handleSetDayBlocks)
			r.Post("/blocks", s.handleAddDayBlock)
			r.Put("/blocks/{blockID}", s.handleUpdateDayBlock)
			r.Delete("/blocks/{blockID}", s.handleRemoveDayBlock)
			r.Post("/blocks/{blockID}/complete", s.handleCompleteBlock)
			r.Post("/blocks/{blockID}/uncomplete", s.handleUncompleteBlock)
		})

		r.Route("/months/{month}", func(r chi.Router) {
			r.Put("/note", s.handleSetMonthNote)
			r.Put("/blocks", s.handleSetMonthBlocks)
		})

		r.Route("/counters", func(r chi.Router) {
			r.Post("/", s.handleAddCounter)
			r.Put("/{id}", s.handleUpdateCounter)
			r.Delete("/{id}", s.handleRemoveCounter)
			r.Post("/{id}/increment", s.handleIncrementCounter)
			r.Post("/{id}/decrement", s.handleDecrementCounter)
			r.Post("/{id}/toggle-type", s.handleToggleCounterType)
		})

		r.Route("/leads", func(r chi.Router) {
			r.Post("/", s.handleAddLead)
			r.Patch("/{id}", s.handleUpdateLead)
			r.Delete("/{id}", s.handleDeleteLead)
			r.Post("/{id}/history", s.handleAddLeadHistory)
		})

		r.Route("/habits", func(r chi.Router) {
			r.Post("/", s.handleAddHabit)
			r.Delete("/{id}", s.handleDeleteHabit)
			r.Post("/{id}/toggle", s.handleToggleHabit)
			r.Post("/{id}/decrement", s.handleDecrementHabitCount)
		})

		r.Route("/objections", func(r chi.Router) {
			r.Post("/", s.handleAddObjection)
			r.Delete("/{id}", s.handleDeleteObjection)
		})

		r.Route("/techniques", func(r chi.Router) {
			r.Post("/", s.handleAddTechnique)
			r.Delete("/{id}", s.handleDeleteTechnique)
		})

		r.Route("/marathons", func(r chi.Router) {
			r.Post("/", s.handleStartMarathon)
			r.Post("/{id}/end", s.handleEndMarathon)
		})

		r.Post("/xp/grant", s.handleGrantXP)
		r.Put("/settings", s.handleSetSettings)
		r.Put("/settings/sheet-url", s.handleSetSheetURL)
		r.Put("/settings/auto-sync", s.handleSetAutoSync)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", s.handleSyncStatus)
			r.Post("/push", s.handleSyncPush)
			r.Post("/pull", s.handleSyncPull)
		})
	})

	return r
}

func (s *Server) handleAuthTelegram(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InitData string `json:"initData"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.InitData) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "initData is required")
		return
	}
	if s.cfg.BotToken == "" {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "telegram auth is not configured")
		return
	}
	user, authErr := ValidateInitData(req.InitData, s.cfg.BotToken, time.Now().UTC(), s.cfg.InitDataMaxAge)
	if authErr != nil {
		writeError(w, authErr.status, authErr.code, authErr.message)
		return
	}
	token, err := IssueSessionToken(s.cfg.JWTSecret, user, time.Now().UTC(), s.cfg.TokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not issue session token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int64(s.cfg.TokenTTL.Seconds()),
		"user":      user,
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, authErr := authorizeBearer(r.Header.Get("Authorization"), s.cfg.JWTSecret, time.Now().UTC())
		if authErr != nil {
			writeError(w, authErr.status, authErr.code, authErr.message)
			return
		}
		if s.rateLimiter != nil && !s.rateLimiter.allow(claims.Subject, time.Now().UTC()) {
			retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleReplaceState(w http.ResponseWriter, r *http.Request) {
	var req worklife.ReplaceState
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.ReplaceAll(req)
	writeJSON(w, http.StatusOK, map[string]int64{"lastModified": s.store.LastModified()})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "q is required")
		return
	}
	doc := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{"results": doc.Search(query)})
}

func (s *Server) handleSetDayStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status worklife.DayStatus `json:"status"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	switch req.Status {
	case worklife.DayNeutral, worklife.DayGood, worklife.DayBad:
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "unknown day status")
		return
	}
	s.store.SetDayStatus(chi.URLParam(r, "date"), req.Status)
	s.writeClock(w)
}

func (s *Server) handleSetDayNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.SetDayNote(chi.URLParam(r, "date"), req.Note)
	s.writeClock(w)
}

func (s *Server) handleSetDayBlocks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Blocks []worklife.ContentBlock `json:"blocks"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.SetDayBlocks(chi.URLParam(r, "date"), req.Blocks)
	s.writeClock(w)
}

func (s *Server) handleAddDayBlock(w http.ResponseWriter, r *http.Request) {
	var req worklife.ContentBlock
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	id := s.store.AddDayBlock(chi.URLParam(r, "date"), req)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "lastModified": s.store.LastModified()})
}

func (s *Server) handleUpdateDayBlock(w http.ResponseWriter, r *http.Request) {
	var req worklife.ContentBlock
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "blockID")
	if !s.store.UpdateDayBlock(chi.URLParam(r, "date"), req) {
		writeError(w, http.StatusNotFound, "not_found", "block not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleRemoveDayBlock(w http.ResponseWriter, r *http.Request) {
	if !s.store.RemoveDayBlock(chi.URLParam(r, "date"), chi.URLParam(r, "blockID")) {
		writeError(w, http.StatusNotFound, "not_found", "block not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleCompleteBlock(w http.ResponseWriter, r *http.Request) {
	granted := s.store.CompleteBlock(chi.URLParam(r, "date"), chi.URLParam(r, "blockID"))
	writeJSON(w, http.StatusOK, map[string]any{"xpGranted": granted, "lastModified": s.store.LastModified()})
}

func (s *Server) handleUncompleteBlock(w http.ResponseWriter, r *http.Request) {
	refunded := s.store.UncompleteBlock(chi.URLParam(r, "date"), chi.URLParam(r, "blockID"))
	writeJSON(w, http.StatusOK, map[string]any{"xpRefunded": refunded, "lastModified": s.store.LastModified()})
}

func (s *Server) handleSetMonthNote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Note string `json:"note"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.SetMonthNote(chi.URLParam(r, "month"), req.Note)
	s.writeClock(w)
}

func (s *Server) handleSetMonthBlocks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Blocks []worklife.ContentBlock `json:"blocks"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.SetMonthBlocks(chi.URLParam(r, "month"), req.Blocks)
	s.writeClock(w)
}

func (s *Server) handleAddCounter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string               `json:"name"`
		Type  worklife.CounterType `json:"type"`
		Color string               `json:"color"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	id := s.store.AddCounter(req.Name, req.Type, req.Color)
	if id == "" {
		writeError(w, http.StatusConflict, "limit_reached", "counter limit reached")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "lastModified": s.store.LastModified()})
}

func (s *Server) handleUpdateCounter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  *string `json:"name"`
		Color *string `json:"color"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	changed := false
	if req.Name != nil {
		changed = s.store.RenameCounter(id, *req.Name) || changed
	}
	if req.Color != nil {
		changed = s.store.SetCounterColor(id, *req.Color) || changed
	}
	if !changed {
		writeError(w, http.StatusNotFound, "not_found", "counter not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleRemoveCounter(w http.ResponseWriter, r *http.Request) {
	if !s.store.RemoveCounter(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "counter not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleIncrementCounter(w http.ResponseWriter, r *http.Request) {
	leadID := s.store.IncrementCounter(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"leadId": leadID, "lastModified": s.store.LastModified()})
}

func (s *Server) handleDecrementCounter(w http.ResponseWriter, r *http.Request) {
	removedLeadID := s.store.DecrementCounter(chi.URLParam(r, "id"))
	writeJSON(w, http.StatusOK, map[string]any{"removedLeadId": removedLeadID, "lastModified": s.store.LastModified()})
}

func (s *Server) handleToggleCounterType(w http.ResponseWriter, r *http.Request) {
	if !s.store.ToggleCounterType(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "counter not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleAddLead(w http.ResponseWriter, r *http.Request) {
	var req worklife.Lead
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	id := s.store.AddLead(req)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "lastModified": s.store.LastModified()})
}

func (s *Server) handleUpdateLead(w http.ResponseWriter, r *http.Request) {
	var req worklife.LeadPatch
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if !s.store.UpdateLead(chi.URLParam(r, "id"), req) {
		writeError(w, http.StatusNotFound, "not_found", "lead not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleDeleteLead(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteLead(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "lead not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleAddLeadHistory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "action is required")
		return
	}
	if !s.store.AddLeadHistory(chi.URLParam(r, "id"), req.Action) {
		writeError(w, http.StatusNotFound, "not_found", "lead not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleAddHabit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string              `json:"name"`
		Difficulty worklife.Difficulty `json:"difficulty"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "name is required")
		return
	}
	id := s.store.AddHabit(req.Name, req.Difficulty)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "lastModified": s.store.LastModified()})
}

func (s *Server) handleDeleteHabit(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteHabit(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "habit not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleToggleHabit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Date string `json:"date"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.Date == "" {
		req.Date = worklife.DateKey(time.Now())
	}
	delta := s.store.ToggleHabit(chi.URLParam(r, "id"), req.Date)
	writeJSON(w, http.StatusOK, map[string]any{"xpDelta": delta, "lastModified": s.store.LastModified()})
}

func (s *Server) handleDecrementHabitCount(w http.ResponseWriter, r *http.Request) {
	if !s.store.DecrementHabitCount(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "habit not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleAddObjection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string   `json:"question"`
		Answer   string   `json:"answer"`
		Tags     []string `json:"tags"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "question is required")
		return
	}
	id := s.store.AddObjection(req.Question, req.Answer, req.Tags)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "lastModified": s.store.LastModified()})
}

func (s *Server) handleDeleteObjection(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteObjection(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "objection not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleAddTechnique(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title is required")
		return
	}
	id := s.store.AddTechnique(req.Title, req.Content)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "lastModified": s.store.LastModified()})
}

func (s *Server) handleDeleteTechnique(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteTechnique(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "technique not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleStartMarathon(w http.ResponseWriter, r *http.Request) {
	var req worklife.Marathon
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if req.Title == "" || req.StartDate == "" || req.EndDate == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "title, startDate and endDate are required")
		return
	}
	id := s.store.StartMarathon(req)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "lastModified": s.store.LastModified()})
}

func (s *Server) handleEndMarathon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Abandoned bool `json:"abandoned"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	if !s.store.EndMarathon(chi.URLParam(r, "id"), req.Abandoned) {
		writeError(w, http.StatusNotFound, "not_found", "marathon not found")
		return
	}
	s.writeClock(w)
}

func (s *Server) handleGrantXP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points int `json:"points"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.GrantXP(req.Points)
	doc := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"total":        doc.XP.Total,
		"level":        worklife.Level(doc.XP.Total),
		"lastModified": doc.LastModified,
	})
}

func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var req worklife.Settings
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.SetSettings(req)
	s.writeClock(w)
}

func (s *Server) handleSetSheetURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.SetSheetURL(req.URL)
	s.writeClock(w)
}

func (s *Server) handleSetAutoSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	s.store.SetAutoSync(req.Enabled)
	s.writeClock(w)
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, _ *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "sync is not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleSyncPush(w http.ResponseWriter, _ *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "sync is not configured")
		return
	}
	if err := s.sync.PushNow(); err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.sync.Status())
}

func (s *Server) handleSyncPull(w http.ResponseWriter, _ *http.Request) {
	if s.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "sync is not configured")
		return
	}
	if err := s.sync.PullNow(); err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       s.sync.Status(),
		"lastModified": s.store.LastModified(),
	})
}

func (s *Server) writeClock(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]int64{"lastModified": s.store.LastModified()})
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, s.cfg.MaxBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "could not read request body")
		return false
	}
	if int64(len(body)) > s.cfg.MaxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds limit")
		return false
	}
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			writeError(w, http.StatusBadRequest, "bad_request", "malformed json body")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func (r *rateLimiter) allow(key string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	if !ok || now.After(entry.resetAt) {
		r.entries[key] = rateEntry{count: 1, resetAt: now.Add(r.window)}
		return true
	}
	if entry.count >= r.max {
		return false
	}
	entry.count++
	r.entries[key] = entry
	return true
}
