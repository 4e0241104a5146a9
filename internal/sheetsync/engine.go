package sheetsync

import (
	"context"
	"sync"
	"time"

	"github.com/worklifeapp/worklife/internal/worklife"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// SyncStatus is the externally visible snapshot of the engine.
type SyncStatus struct {
	Push       Status `json:"push"`
	Pull       Status `json:"pull"`
	LastSynced int64  `json:"lastSynced,omitempty"`
	LastError  string `json:"lastError,omitempty"`
}

type Options struct {
	Store  *worklife.Store
	Client RemoteClient
	Logger worklife.Logger

	// Debounce delays auto pushes so bursts of edits coalesce into one
	// upload. Poll is the auto pull interval. StatusTTL is how long a
	// terminal push/pull status lingers before reverting to idle.
	// EchoGuard suppresses the push that an applied pull would otherwise
	// trigger. Zero values pick the defaults.
	Debounce  time.Duration
	Poll      time.Duration
	StatusTTL time.Duration
	EchoGuard time.Duration

	Now func() time.Time
}

const (
	defaultDebounce  = 5 * time.Second
	defaultPoll      = 15 * time.Second
	defaultStatusTTL = 3 * time.Second
	defaultEchoGuard = time.Second

	requestTimeout = 20 * time.Second
)

// Engine keeps the store and the remote spreadsheet converged: local edits
// are pushed after a debounce, the remote is polled on an interval, and
// conflicts resolve last-writer-wins on the document clock.
type Engine struct {
	store     *worklife.Store
	client    RemoteClient
	logger    worklife.Logger
	debounce  time.Duration
	poll      time.Duration
	statusTTL time.Duration
	echoGuard time.Duration
	now       func() time.Time

	mu            sync.Mutex
	running       bool
	pushStatus    Status
	pullStatus    Status
	pushGen       int
	pullGen       int
	lastError     string
	lastSynced    time.Time
	debounceTimer *time.Timer
	stop          chan struct{}
	unsubscribe   func()
	wg            sync.WaitGroup
}

func NewEngine(opts Options) *Engine {
	e := &Engine{
		store:      opts.Store,
		client:     opts.Client,
		logger:     opts.Logger,
		debounce:   opts.Debounce,
		poll:       opts.Poll,
		statusTTL:  opts.StatusTTL,
		echoGuard:  opts.EchoGuard,
		now:        opts.Now,
		pushStatus: StatusIdle,
		pullStatus: StatusIdle,
	}
	if e.debounce <= 0 {
		e.debounce = defaultDebounce
	}
	if e.poll <= 0 {
		e.poll = defaultPoll
	}
	if e.statusTTL <= 0 {
		e.statusTTL = defaultStatusTTL
	}
	if e.echoGuard <= 0 {
		e.echoGuard = defaultEchoGuard
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// enabled reports whether auto sync should run right now. Both the toggle
// and the endpoint live in settings, so this is re-read on every decision.
func (e *Engine) enabled() bool {
	settings := e.store.Snapshot().Settings
	return settings.AutoSync && settings.SheetURL != ""
}

func (e *Engine) endpoint() string {
	return e.store.Snapshot().Settings.SheetURL
}

// Start begins watching the store and polling the remote. An immediate
// pull runs first so a fresh device converges before its first edit.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.mu.Unlock()

	e.unsubscribe = e.store.Subscribe(e.onStoreChange)
	e.wg.Add(1)
	go e.pollLoop()
}

// Stop halts polling and cancels any pending debounced push. A push that
// is already in flight finishes on its own.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.wg.Wait()
}

func (e *Engine) onStoreChange() {
	if !e.enabled() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	// An applied pull notifies subscribers like any edit; without this
	// guard every successful import would bounce straight back up.
	if !e.lastSynced.IsZero() && e.now().Sub(e.lastSynced) < e.echoGuard {
		return
	}
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
	}
	e.debounceTimer = time.AfterFunc(e.debounce, func() {
		if err := e.push(); err != nil {
			e.logf("sheetsync: auto push: %v", err)
		}
	})
}

func (e *Engine) pollLoop() {
	defer e.wg.Done()

	if e.enabled() {
		if err := e.pull(true); err != nil {
			e.logf("sheetsync: initial pull: %v", err)
		}
	}

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			if !e.enabled() {
				continue
			}
			// A pull racing an in-flight upload would clobber the very
			// state being pushed, so polling yields to the push.
			if e.pushBusy() {
				continue
			}
			if err := e.pull(true); err != nil {
				e.logf("sheetsync: poll pull: %v", err)
			}
		}
	}
}

func (e *Engine) pushBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pushStatus == StatusLoading
}

// PushNow uploads immediately, bypassing the debounce. Used by the manual
// export action.
func (e *Engine) PushNow() error {
	e.mu.Lock()
	if e.debounceTimer != nil {
		e.debounceTimer.Stop()
		e.debounceTimer = nil
	}
	e.mu.Unlock()
	return e.push()
}

// PullNow downloads and applies immediately, bypassing the freshness skip.
// Used by the manual import action.
func (e *Engine) PullNow() error {
	return e.pull(false)
}

func (e *Engine) push() error {
	endpoint := e.endpoint()
	if endpoint == "" {
		return nil
	}
	e.setPushStatus(StatusLoading, "")

	payload := BuildExport(e.store.Snapshot())
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := e.client.Push(ctx, endpoint, payload); err != nil {
		e.setPushStatusTransient(StatusError, err.Error())
		return err
	}

	e.mu.Lock()
	e.lastSynced = e.now()
	e.mu.Unlock()
	e.setPushStatusTransient(StatusSuccess, "")
	return nil
}

func (e *Engine) pull(auto bool) error {
	endpoint := e.endpoint()
	if endpoint == "" {
		return nil
	}
	if !auto {
		e.setPullStatus(StatusLoading, "")
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	data, err := e.client.Fetch(ctx, endpoint)
	if err != nil {
		e.setPullStatusTransient(StatusError, err.Error())
		return err
	}
	if err := ValidatePull(data); err != nil {
		e.setPullStatusTransient(StatusError, err.Error())
		return err
	}
	remote, err := DecodeRemote(data, e.now())
	if err != nil {
		e.setPullStatusTransient(StatusError, err.Error())
		return err
	}

	local := e.store.Snapshot()
	// Last writer wins: an auto pull never replaces a local document that
	// is at least as new, unless the local one holds nothing worth
	// keeping. Manual imports skip this check on purpose.
	if auto && !local.IsEmpty() && remote.LastModified > 0 && local.LastModified >= remote.LastModified {
		return nil
	}
	if !remote.Usable() {
		e.setPullStatusTransient(StatusIdle, "")
		return nil
	}

	// lastSynced must be stamped before ReplaceAll: applying notifies
	// subscribers synchronously, and the change handler consults it to tell
	// our own import apart from a user edit.
	e.mu.Lock()
	e.lastSynced = e.now()
	e.mu.Unlock()
	e.store.ReplaceAll(buildReplace(remote, local))
	e.setPullStatusTransient(StatusSuccess, "")
	return nil
}

// buildReplace merges the remote document over the local one. Leads and
// counters keep the local copy when the remote column came back empty;
// calendar days and month notes are replaced wholesale because an empty
// remote map there legitimately means "cleared".
func buildReplace(remote RemoteDocument, local worklife.Document) worklife.ReplaceState {
	state := worklife.ReplaceState{
		Days:         remote.Days,
		MonthNotes:   remote.MonthNotes,
		Leads:        remote.Leads,
		Counters:     remote.Counters,
		XP:           remote.XP,
		Settings:     remote.Settings,
		LastModified: remote.LastModified,
	}
	if len(state.Leads) == 0 {
		state.Leads = local.Leads
	}
	if len(state.Counters) == 0 {
		state.Counters = local.Counters
	}
	return state
}

func (e *Engine) Status() SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	status := SyncStatus{
		Push:      e.pushStatus,
		Pull:      e.pullStatus,
		LastError: e.lastError,
	}
	if !e.lastSynced.IsZero() {
		status.LastSynced = e.lastSynced.UnixMilli()
	}
	return status
}

func (e *Engine) setPushStatus(status Status, errText string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pushStatus = status
	e.pushGen++
	if errText != "" {
		e.lastError = errText
	}
}

func (e *Engine) setPullStatus(status Status, errText string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pullStatus = status
	e.pullGen++
	if errText != "" {
		e.lastError = errText
	}
}

// Transient terminal statuses revert to idle after the TTL unless a newer
// transition already superseded them. The generation counters stop a late
// timer from stomping a fresher status.
func (e *Engine) setPushStatusTransient(status Status, errText string) {
	e.mu.Lock()
	e.pushStatus = status
	e.pushGen++
	gen := e.pushGen
	if errText != "" {
		e.lastError = errText
	}
	e.mu.Unlock()

	time.AfterFunc(e.statusTTL, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.pushGen == gen {
			e.pushStatus = StatusIdle
			e.pushGen++
		}
	})
}

func (e *Engine) setPullStatusTransient(status Status, errText string) {
	e.mu.Lock()
	e.pullStatus = status
	e.pullGen++
	gen := e.pullGen
	if errText != "" {
		e.lastError = errText
	}
	e.mu.Unlock()

	time.AfterFunc(e.statusTTL, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.pullGen == gen {
			e.pullStatus = StatusIdle
			e.pullGen++
		}
	})
}
