package worklife

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	// UndoWindow is the interval after a counter-created lead's creation
	// during which decrementing the same counter retracts the lead instead
	// of leaving it standing.
	UndoWindow = 15 * time.Second

	persistTimeout = 10 * time.Second
	hydrateTimeout = 10 * time.Second
)

type Logger interface {
	Printf(format string, args ...any)
}

type StoreOptions struct {
	KV         KVStore
	StorageKey string
	Logger     Logger
	Now        func() time.Time
	NewID      func() string
}

// Store is the single source of truth for the Document. Every mutation is
// atomic under one mutex, advances the logical clock, notifies subscribers,
// and schedules a full-state persist to the KV bridge as a detached
// follow-up; callers never block on I/O.
type Store struct {
	kv     KVStore
	key    string
	logger Logger
	now    func() time.Time
	newID  func() string

	mu  sync.Mutex
	doc Document

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	persistCh chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	lastSaveNano atomic.Int64
}

func NewStore(opts StoreOptions) (*Store, error) {
	if opts.KV == nil {
		return nil, ErrInvalidInput
	}
	key := strings.TrimSpace(opts.StorageKey)
	if key == "" {
		key = StorageKey
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idFn := opts.NewID
	if idFn == nil {
		idFn = uuid.NewString
	}
	s := &Store{
		kv:        opts.KV,
		key:       key,
		logger:    opts.Logger,
		now:       nowFn,
		newID:     idFn,
		subs:      map[int]func(){},
		persistCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.hydrate()
	s.wg.Add(1)
	go s.persistLoop()
	return s, nil
}

func (s *Store) hydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), hydrateTimeout)
	defer cancel()

	doc := DefaultDocument()
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		// A failing read on cold start degrades to "absent".
		s.logf("kv get %s failed, starting fresh: %v", s.key, err)
	} else if ok {
		var loaded Document
		if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
			s.logf("stored state unreadable, starting fresh: %v", err)
		} else {
			loaded.normalize()
			doc = loaded
		}
	}
	if doc.XP.LastReset == 0 {
		// First run on this cadence epoch: stamp without zeroing, so legacy
		// documents keep their XP.
		doc.XP.LastReset = s.nowMillis()
	}
	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	s.CheckXPReset()
}

func (s *Store) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

// tickLocked advances the logical clock. Wall time normally suffices; the
// +1 keeps it strictly monotonic when two mutations land in the same
// millisecond.
func (s *Store) tickLocked() int64 {
	next := s.nowMillis()
	if next <= s.doc.LastModified {
		next = s.doc.LastModified + 1
	}
	return next
}

// mutate runs fn under the lock; when fn reports a change it bumps
// lastModified, schedules persistence, and notifies subscribers.
func (s *Store) mutate(fn func(d *Document) bool) bool {
	s.mu.Lock()
	changed := fn(&s.doc)
	if changed {
		s.doc.LastModified = s.tickLocked()
	}
	s.mu.Unlock()
	if changed {
		s.schedulePersist()
		s.notify()
	}
	return changed
}

// Subscribe registers a change callback invoked after every mutation
// (including full-state replaces). Callbacks must be fast and must not call
// back into mutation methods synchronously.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (s *Store) schedulePersist() {
	select {
	case s.persistCh <- struct{}{}:
	default:
	}
}

func (s *Store) persistLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			// Flush anything scheduled after the last save.
			select {
			case <-s.persistCh:
				s.persistOnce()
			default:
			}
			return
		case <-s.persistCh:
			s.persistOnce()
		}
	}
}

func (s *Store) persistOnce() {
	s.mu.Lock()
	data, err := json.Marshal(s.doc)
	s.mu.Unlock()
	if err != nil {
		s.logf("serialize state failed: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		// Set failures are surfaced, not swallowed; the next mutation
		// re-persists the full state.
		s.logf("persist state failed: %v", err)
		return
	}
	s.lastSaveNano.Store(s.now().UnixNano())
}

// RecentlySaved reports whether the store wrote its own state file within
// the window. The file watcher uses it to ignore the echo of our own saves.
func (s *Store) RecentlySaved(window time.Duration) bool {
	last := s.lastSaveNano.Load()
	if last == 0 {
		return false
	}
	return s.now().UnixNano()-last < int64(window)
}

// Flush forces a synchronous persist, mainly for shutdown paths.
func (s *Store) Flush() {
	s.persistOnce()
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	s.persistOnce()
	return s.kv.Close()
}

// Snapshot returns a deep copy of the current Document.
func (s *Store) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func (s *Store) LastModified() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.LastModified
}

// Reload re-reads the persisted state (used by the file watcher when
// another process rewrote it). Absent or unreadable state is a no-op.
func (s *Store) Reload(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil || !ok {
		return err
	}
	var loaded Document
	if err := json.Unmarshal([]byte(raw), &loaded); err != nil {
		return err
	}
	loaded.normalize()
	s.mu.Lock()
	same := loaded.LastModified == s.doc.LastModified
	if !same {
		s.doc = loaded
	}
	s.mu.Unlock()
	if !same {
		s.notify()
	}
	return nil
}

// ---- calendar ----

func (s *Store) SetDayStatus(date string, status DayStatus) {
	s.mutate(func(d *Document) bool {
		rec := d.Days[date]
		rec.Status = status
		rec.LastModified = s.nowMillis()
		d.Days[date] = rec
		return true
	})
}

func (s *Store) SetDayNote(date, note string) {
	s.mutate(func(d *Document) bool {
		rec := d.Days[date]
		rec.Note = note
		rec.LastModified = s.nowMillis()
		d.Days[date] = rec
		return true
	})
}

// SetDayBlocks replaces the whole ordered block list; the order is
// user-controlled and meaningful.
func (s *Store) SetDayBlocks(date string, blocks []ContentBlock) {
	s.mutate(func(d *Document) bool {
		rec := d.Days[date]
		rec.Blocks = s.withBlockIDs(blocks)
		rec.LastModified = s.nowMillis()
		d.Days[date] = rec
		return true
	})
}

func (s *Store) AddDayBlock(date string, block ContentBlock) string {
	if block.ID == "" {
		block.ID = s.newID()
	}
	if block.Type == "" {
		block.Type = BlockText
	}
	s.mutate(func(d *Document) bool {
		rec := d.Days[date]
		rec.Blocks = append(rec.Blocks, block)
		rec.LastModified = s.nowMillis()
		d.Days[date] = rec
		return true
	})
	return block.ID
}

func (s *Store) UpdateDayBlock(date string, block ContentBlock) bool {
	return s.mutate(func(d *Document) bool {
		rec, ok := d.Days[date]
		if !ok {
			return false
		}
		for i := range rec.Blocks {
			if rec.Blocks[i].ID != block.ID {
				continue
			}
			// Completion state and its XP snapshot only move through
			// CompleteBlock/UncompleteBlock.
			block.Completed = rec.Blocks[i].Completed
			block.XPReward = rec.Blocks[i].XPReward
			rec.Blocks[i] = block
			rec.LastModified = s.nowMillis()
			d.Days[date] = rec
			return true
		}
		return false
	})
}

func (s *Store) RemoveDayBlock(date, blockID string) bool {
	return s.mutate(func(d *Document) bool {
		rec, ok := d.Days[date]
		if !ok {
			return false
		}
		for i := range rec.Blocks {
			if rec.Blocks[i].ID == blockID {
				rec.Blocks = append(rec.Blocks[:i], rec.Blocks[i+1:]...)
				rec.LastModified = s.nowMillis()
				d.Days[date] = rec
				return true
			}
		}
		return false
	})
}

// CompleteBlock marks a todo block done, grants XP computed from the
// current level and the configured reward table, and freezes the grant on
// the block so a later uncomplete refunds exactly it. Returns the granted
// amount, 0 when nothing changed.
func (s *Store) CompleteBlock(date, blockID string) int {
	granted := 0
	s.mutate(func(d *Document) bool {
		rec, ok := d.Days[date]
		if !ok {
			return false
		}
		for i := range rec.Blocks {
			b := &rec.Blocks[i]
			if b.ID != blockID || b.Type != BlockTodo || b.Completed {
				continue
			}
			reward := TaskReward(Level(d.XP.Total), b.Difficulty, taskTable(d.Settings))
			b.Completed = true
			b.XPReward = &reward
			d.XP.Total += reward
			rec.LastModified = s.nowMillis()
			d.Days[date] = rec
			granted = reward
			return true
		}
		return false
	})
	return granted
}

// UncompleteBlock is the exact inverse of CompleteBlock: it refunds the
// frozen snapshot, not a recomputed reward, falling back to a fresh
// computation only for legacy blocks that predate snapshots.
func (s *Store) UncompleteBlock(date, blockID string) int {
	refunded := 0
	s.mutate(func(d *Document) bool {
		rec, ok := d.Days[date]
		if !ok {
			return false
		}
		for i := range rec.Blocks {
			b := &rec.Blocks[i]
			if b.ID != blockID || b.Type != BlockTodo || !b.Completed {
				continue
			}
			refund := 0
			if b.XPReward != nil {
				refund = *b.XPReward
			} else {
				refund = TaskReward(Level(d.XP.Total), b.Difficulty, taskTable(d.Settings))
			}
			b.Completed = false
			b.XPReward = nil
			d.XP.Total -= refund
			if d.XP.Total < 0 {
				d.XP.Total = 0
			}
			rec.LastModified = s.nowMillis()
			d.Days[date] = rec
			refunded = refund
			return true
		}
		return false
	})
	return refunded
}

func (s *Store) SetMonthNote(month, note string) {
	s.mutate(func(d *Document) bool {
		rec := d.MonthNotes[month]
		rec.Note = note
		d.MonthNotes[month] = rec
		return true
	})
}

func (s *Store) SetMonthBlocks(month string, blocks []ContentBlock) {
	s.mutate(func(d *Document) bool {
		rec := d.MonthNotes[month]
		rec.Blocks = s.withBlockIDs(blocks)
		d.MonthNotes[month] = rec
		return true
	})
}

func (s *Store) withBlockIDs(blocks []ContentBlock) []ContentBlock {
	out := make([]ContentBlock, len(blocks))
	copy(out, blocks)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = s.newID()
		}
		if out[i].Type == "" {
			out[i].Type = BlockText
		}
	}
	return out
}

// ---- counters and leads ----

// AddCounter appends a counter unless the cap of 15 live counters is
// already reached, in which case it is a no-op and the clock stays put.
func (s *Store) AddCounter(name string, ctype CounterType, color string) string {
	if ctype == "" {
		ctype = CounterPersonal
	}
	if color == "" {
		color = "#EF4444"
	}
	id := ""
	s.mutate(func(d *Document) bool {
		if len(d.Counters) >= MaxCounters {
			return false
		}
		id = s.newID()
		d.Counters = append(d.Counters, Counter{ID: id, Name: name, Value: 0, Type: ctype, Color: color})
		return true
	})
	return id
}

func (s *Store) RemoveCounter(id string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Counters {
			if d.Counters[i].ID == id {
				d.Counters = append(d.Counters[:i], d.Counters[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *Store) ToggleCounterType(id string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Counters {
			if d.Counters[i].ID != id {
				continue
			}
			if d.Counters[i].Type == CounterWork {
				d.Counters[i].Type = CounterPersonal
			} else {
				d.Counters[i].Type = CounterWork
			}
			return true
		}
		return false
	})
}

func (s *Store) RenameCounter(id, name string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Counters {
			if d.Counters[i].ID == id {
				d.Counters[i].Name = name
				return true
			}
		}
		return false
	})
}

func (s *Store) SetCounterColor(id, color string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Counters {
			if d.Counters[i].ID == id {
				d.Counters[i].Color = color
				return true
			}
		}
		return false
	})
}

// IncrementCounter bumps the counter and, for work counters, appends an
// auto-created lead stamped with the source counter and creation time in
// the same atomic step. Returns the new lead's id, empty for personal
// counters.
func (s *Store) IncrementCounter(id string) string {
	leadID := ""
	s.mutate(func(d *Document) bool {
		for i := range d.Counters {
			if d.Counters[i].ID != id {
				continue
			}
			d.Counters[i].Value++
			if d.Counters[i].Type == CounterWork {
				leadID = s.newID()
				d.Leads = append(d.Leads, Lead{
					ID:               leadID,
					Status:           LeadNew,
					History:          []LeadHistoryItem{},
					IsWork:           true,
					SourceCounterID:  id,
					CreatedAt:        s.nowMillis(),
					FirstContactDate: isoTime(s.now()),
				})
			}
			return true
		}
		return false
	})
	return leadID
}

// DecrementCounter lowers the counter value. For work counters it first
// looks for the most recently created lead sourced from this counter that
// is still inside the undo window and deletes it; past the window (or when
// a different lead landed in between) only the number changes. Returns the
// retracted lead's id, if any.
func (s *Store) DecrementCounter(id string) string {
	deleted := ""
	s.mutate(func(d *Document) bool {
		for i := range d.Counters {
			if d.Counters[i].ID != id {
				continue
			}
			d.Counters[i].Value--
			if d.Counters[i].Type == CounterWork {
				now := s.nowMillis()
				for j := len(d.Leads) - 1; j >= 0; j-- {
					l := d.Leads[j]
					if l.SourceCounterID == id && now-l.CreatedAt < UndoWindow.Milliseconds() {
						deleted = l.ID
						d.Leads = append(d.Leads[:j], d.Leads[j+1:]...)
						break
					}
				}
			}
			return true
		}
		return false
	})
	return deleted
}

func (s *Store) AddLead(lead Lead) string {
	if lead.ID == "" {
		lead.ID = s.newID()
	}
	if lead.Status == "" {
		lead.Status = LeadNew
	}
	if lead.History == nil {
		lead.History = []LeadHistoryItem{}
	}
	lead.CreatedAt = s.nowMillis()
	s.mutate(func(d *Document) bool {
		d.Leads = append(d.Leads, lead)
		return true
	})
	return lead.ID
}

// LeadPatch carries partial lead updates; nil fields are left untouched.
type LeadPatch struct {
	Name             *string
	Status           *LeadStatus
	Offer            *OfferKind
	Link             *string
	Notes            *string
	FirstContactDate *string
}

func (s *Store) UpdateLead(id string, patch LeadPatch) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Leads {
			if d.Leads[i].ID != id {
				continue
			}
			l := &d.Leads[i]
			if patch.Name != nil {
				l.Name = *patch.Name
			}
			if patch.Status != nil {
				l.Status = *patch.Status
			}
			if patch.Offer != nil {
				l.Offer = *patch.Offer
			}
			if patch.Link != nil {
				l.Link = *patch.Link
			}
			if patch.Notes != nil {
				l.Notes = *patch.Notes
			}
			if patch.FirstContactDate != nil {
				l.FirstContactDate = *patch.FirstContactDate
			}
			return true
		}
		return false
	})
}

func (s *Store) AddLeadHistory(leadID, action string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Leads {
			if d.Leads[i].ID != leadID {
				continue
			}
			d.Leads[i].History = append(d.Leads[i].History, LeadHistoryItem{
				ID:        s.newID(),
				Timestamp: isoTime(s.now()),
				Action:    action,
			})
			return true
		}
		return false
	})
}

func (s *Store) DeleteLead(id string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Leads {
			if d.Leads[i].ID == id {
				d.Leads = append(d.Leads[:i], d.Leads[i+1:]...)
				return true
			}
		}
		return false
	})
}

// ---- habits ----

func (s *Store) AddHabit(name string, difficulty Difficulty) string {
	if difficulty == "" {
		difficulty = DifficultyMedium
	}
	id := s.newID()
	s.mutate(func(d *Document) bool {
		d.Habits = append(d.Habits, Habit{
			ID:             id,
			Name:           name,
			Difficulty:     difficulty,
			CompletedDates: []string{},
		})
		return true
	})
	return id
}

func (s *Store) DeleteHabit(id string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Habits {
			if d.Habits[i].ID == id {
				d.Habits = append(d.Habits[:i], d.Habits[i+1:]...)
				return true
			}
		}
		return false
	})
}

// ToggleHabit marks or unmarks the habit done on the given day and adjusts
// streak, completion count, and XP. Habit XP carries the multiplier of the
// marathon covering that date; habits predate XP snapshots, so the refund
// recomputes the same amount.
func (s *Store) ToggleHabit(id, date string) int {
	delta := 0
	s.mutate(func(d *Document) bool {
		for i := range d.Habits {
			h := &d.Habits[i]
			if h.ID != id {
				continue
			}
			reward := HabitReward(h.Difficulty, habitTable(d.Settings))
			amount := int(float64(reward)*marathonMultiplierOn(d, date) + 0.5)
			if idx := indexOf(h.CompletedDates, date); idx >= 0 {
				h.CompletedDates = append(h.CompletedDates[:idx], h.CompletedDates[idx+1:]...)
				if h.Count > 0 {
					h.Count--
				}
				h.Streak = recomputeStreak(h.CompletedDates)
				d.XP.Total -= amount
				if d.XP.Total < 0 {
					d.XP.Total = 0
				}
				delta = -amount
			} else {
				h.CompletedDates = append(h.CompletedDates, date)
				h.Count++
				if indexOf(h.CompletedDates, previousDateKey(date)) >= 0 {
					h.Streak++
				} else {
					h.Streak = 1
				}
				d.XP.Total += amount
				delta = amount
			}
			return true
		}
		return false
	})
	return delta
}

func (s *Store) DecrementHabitCount(id string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Habits {
			if d.Habits[i].ID == id && d.Habits[i].Count > 0 {
				d.Habits[i].Count--
				return true
			}
		}
		return false
	})
}

// ---- dojo ----

func (s *Store) AddObjection(question, answer string, tags []string) string {
	id := s.newID()
	s.mutate(func(d *Document) bool {
		d.Objections = append(d.Objections, Objection{ID: id, Question: question, Answer: answer, Tags: tags})
		return true
	})
	return id
}

func (s *Store) DeleteObjection(id string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Objections {
			if d.Objections[i].ID == id {
				d.Objections = append(d.Objections[:i], d.Objections[i+1:]...)
				return true
			}
		}
		return false
	})
}

func (s *Store) AddTechnique(title, content string) string {
	id := s.newID()
	s.mutate(func(d *Document) bool {
		d.Techniques = append(d.Techniques, Technique{ID: id, Title: title, Content: content})
		return true
	})
	return id
}

func (s *Store) DeleteTechnique(id string) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Techniques {
			if d.Techniques[i].ID == id {
				d.Techniques = append(d.Techniques[:i], d.Techniques[i+1:]...)
				return true
			}
		}
		return false
	})
}

// ---- marathons ----

func (s *Store) StartMarathon(m Marathon) string {
	if m.ID == "" {
		m.ID = s.newID()
	}
	m.Status = MarathonActive
	if m.StartDate == "" {
		m.StartDate = isoTime(s.now())
	}
	if m.Multiplier <= 0 {
		m.Multiplier = MarathonMultiplier(marathonDays(m), m.IsHardcore)
	}
	s.mutate(func(d *Document) bool {
		d.Marathons = append(d.Marathons, m)
		d.ActiveMarathonID = m.ID
		return true
	})
	return m.ID
}

func (s *Store) EndMarathon(id string, abandoned bool) bool {
	return s.mutate(func(d *Document) bool {
		for i := range d.Marathons {
			if d.Marathons[i].ID != id {
				continue
			}
			if abandoned {
				d.Marathons[i].Status = MarathonAbandoned
			} else {
				d.Marathons[i].Status = MarathonFinished
			}
			if d.ActiveMarathonID == id {
				d.ActiveMarathonID = ""
			}
			return true
		}
		return false
	})
}

// ---- xp and settings ----

func (s *Store) GrantXP(points int) {
	s.mutate(func(d *Document) bool {
		d.XP.Total += points
		if d.XP.Total < 0 {
			d.XP.Total = 0
		}
		return true
	})
}

func (s *Store) SetSettings(settings Settings) {
	s.mutate(func(d *Document) bool {
		if settings.XPResetCadence == "" {
			settings.XPResetCadence = d.Settings.XPResetCadence
		}
		d.Settings = settings
		return true
	})
}

func (s *Store) SetSheetURL(url string) {
	s.mutate(func(d *Document) bool {
		d.Settings.SheetURL = strings.TrimSpace(url)
		return true
	})
}

func (s *Store) SetAutoSync(enabled bool) {
	s.mutate(func(d *Document) bool {
		d.Settings.AutoSync = enabled
		return true
	})
}

// CheckXPReset zeroes the XP counters when the configured calendar period
// rolled over since the last reset. The comparison is boundary-based, not
// elapsed-duration: crossing midnight triggers a daily reset regardless of
// elapsed hours. Reports whether a reset happened.
func (s *Store) CheckXPReset() bool {
	return s.mutate(func(d *Document) bool {
		cadence := d.Settings.XPResetCadence
		if cadence == "" || cadence == ResetNever {
			return false
		}
		now := s.now()
		last := time.UnixMilli(d.XP.LastReset)
		if !periodRolledOver(cadence, last, now) {
			return false
		}
		d.XP.Total = 0
		d.XP.LastReset = now.UnixMilli()
		return true
	})
}

// ---- full-state replace ----

// ReplaceState is the pull path's wholesale import fragment. Nil maps,
// slices, and pointers keep the current value; everything else overwrites
// the corresponding collection without per-record merging.
type ReplaceState struct {
	Days         map[string]DayRecord
	MonthNotes   map[string]MonthRecord
	Counters     []Counter
	Leads        []Lead
	XP           *XPState
	Settings     *Settings
	LastModified int64
}

// ReplaceAll applies a remote document: last-writer-wins at whole-document
// granularity. The remote clock is adopted as-is instead of bumping the
// local one, so a subsequent comparison still sees both copies as equal.
func (s *Store) ReplaceAll(state ReplaceState) {
	s.mu.Lock()
	if state.Days != nil {
		s.doc.Days = state.Days
	}
	if state.MonthNotes != nil {
		s.doc.MonthNotes = state.MonthNotes
	}
	if state.Counters != nil {
		s.doc.Counters = state.Counters
	}
	if state.Leads != nil {
		s.doc.Leads = state.Leads
	}
	if state.XP != nil {
		s.doc.XP = *state.XP
	}
	if state.Settings != nil {
		s.doc.Settings = *state.Settings
	}
	if state.LastModified > 0 {
		s.doc.LastModified = state.LastModified
	} else {
		s.doc.LastModified = s.tickLocked()
	}
	s.doc.normalize()
	s.mu.Unlock()
	s.schedulePersist()
	s.notify()
}

// ---- helpers ----

func taskTable(settings Settings) *RewardTable {
	if settings.XPSettings == nil {
		return nil
	}
	t := settings.XPSettings.Tasks
	return &t
}

func habitTable(settings Settings) *RewardTable {
	if settings.XPSettings == nil {
		return nil
	}
	t := settings.XPSettings.Habits
	return &t
}

// marathonMultiplierOn returns the multiplier of the marathon whose span
// covers the given date key, 1 when none does. ISO date strings are
// compared by their date prefix, which orders correctly lexically.
func marathonMultiplierOn(d *Document, dateKey string) float64 {
	for i := range d.Marathons {
		m := d.Marathons[i]
		if m.Multiplier <= 0 {
			continue
		}
		start := datePrefix(m.StartDate)
		end := datePrefix(m.EndDate)
		if start == "" || end == "" {
			continue
		}
		if start <= dateKey && dateKey <= end {
			return m.Multiplier
		}
	}
	return 1
}

func datePrefix(iso string) string {
	if len(iso) < len(dateKeyLayout) {
		return ""
	}
	return iso[:len(dateKeyLayout)]
}

func indexOf(values []string, target string) int {
	for i, v := range values {
		if v == target {
			return i
		}
	}
	return -1
}

func marathonDays(m Marathon) int {
	start, err := time.Parse(dateKeyLayout, datePrefix(m.StartDate))
	if err != nil {
		return 1
	}
	end, err := time.Parse(dateKeyLayout, datePrefix(m.EndDate))
	if err != nil {
		return 1
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}

func previousDateKey(date string) string {
	t, err := time.Parse(dateKeyLayout, date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(dateKeyLayout)
}

func recomputeStreak(dates []string) int {
	if len(dates) == 0 {
		return 0
	}
	sorted := append([]string(nil), dates...)
	sort.Strings(sorted)
	streak := 1
	for i := len(sorted) - 1; i > 0; i-- {
		if previousDateKey(sorted[i]) == sorted[i-1] {
			streak++
		} else {
			break
		}
	}
	return streak
}

func periodRolledOver(cadence ResetCadence, last, now time.Time) bool {
	switch cadence {
	case ResetDaily:
		return last.Year() != now.Year() || last.YearDay() != now.YearDay()
	case ResetWeekly:
		ly, lw := last.ISOWeek()
		ny, nw := now.ISOWeek()
		return ly != ny || lw != nw
	case ResetMonthly:
		return last.Year() != now.Year() || last.Month() != now.Month()
	case ResetYearly:
		return last.Year() != now.Year()
	default:
		return false
	}
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
