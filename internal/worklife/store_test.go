package worklife

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T, kv KVStore) (*Store, *testClock) {
	t.Helper()
	clock := newTestClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	seq := 0
	store, err := NewStore(StoreOptions{
		KV:  kv,
		Now: clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("id-%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store, clock
}

func findCounter(t *testing.T, doc Document, id string) Counter {
	t.Helper()
	for _, c := range doc.Counters {
		if c.ID == id {
			return c
		}
	}
	t.Fatalf("counter %s not found", id)
	return Counter{}
}

func TestClockStrictlyMonotonic(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())

	store.SetDayNote("2024-03-10", "a")
	first := store.LastModified()
	// Same wall-clock millisecond; the clock must still advance.
	store.SetDayNote("2024-03-10", "b")
	second := store.LastModified()

	if second <= first {
		t.Fatalf("clock did not advance: %d then %d", first, second)
	}
	if second != first+1 {
		t.Fatalf("expected +1 step on same-millisecond mutation, got %d -> %d", first, second)
	}
}

func TestNoopMutationKeepsClock(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	before := store.LastModified()
	if store.RemoveCounter("no-such-id") {
		t.Fatal("removing a missing counter reported a change")
	}
	if store.LastModified() != before {
		t.Fatal("no-op mutation advanced the clock")
	}
}

func TestIncrementWorkCounterCreatesLead(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())

	leadID := store.IncrementCounter("1")
	if leadID == "" {
		t.Fatal("work counter increment returned no lead id")
	}
	doc := store.Snapshot()
	if got := findCounter(t, doc, "1").Value; got != 1 {
		t.Fatalf("counter value = %d, want 1", got)
	}
	if len(doc.Leads) != 1 {
		t.Fatalf("len(leads) = %d, want 1", len(doc.Leads))
	}
	lead := doc.Leads[0]
	if lead.ID != leadID || lead.Status != LeadNew || !lead.IsWork || lead.SourceCounterID != "1" {
		t.Fatalf("auto-created lead wrong: %+v", lead)
	}
	if lead.CreatedAt == 0 || lead.FirstContactDate == "" {
		t.Fatalf("lead missing timestamps: %+v", lead)
	}
}

func TestIncrementPersonalCounterCreatesNoLead(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	id := store.AddCounter("Water", CounterPersonal, "")
	if leadID := store.IncrementCounter(id); leadID != "" {
		t.Fatalf("personal counter produced lead %q", leadID)
	}
	if got := len(store.Snapshot().Leads); got != 0 {
		t.Fatalf("len(leads) = %d, want 0", got)
	}
}

func TestDecrementInsideUndoWindowRetractsLead(t *testing.T) {
	store, clock := newTestStore(t, NewMemoryKV())

	leadID := store.IncrementCounter("1")
	clock.Advance(10 * time.Second)
	removed := store.DecrementCounter("1")

	if removed != leadID {
		t.Fatalf("removed lead %q, want %q", removed, leadID)
	}
	doc := store.Snapshot()
	if len(doc.Leads) != 0 {
		t.Fatalf("lead not retracted: %+v", doc.Leads)
	}
	if got := findCounter(t, doc, "1").Value; got != 0 {
		t.Fatalf("counter value = %d, want 0", got)
	}
}

func TestDecrementAfterUndoWindowKeepsLead(t *testing.T) {
	store, clock := newTestStore(t, NewMemoryKV())

	store.IncrementCounter("1")
	clock.Advance(UndoWindow + time.Second)
	removed := store.DecrementCounter("1")

	if removed != "" {
		t.Fatalf("removed lead %q after window expired", removed)
	}
	doc := store.Snapshot()
	if len(doc.Leads) != 1 {
		t.Fatalf("len(leads) = %d, want 1", len(doc.Leads))
	}
	if got := findCounter(t, doc, "1").Value; got != 0 {
		t.Fatalf("counter value = %d, want 0", got)
	}
}

func TestDecrementOnlyRetractsOwnCounterLead(t *testing.T) {
	store, clock := newTestStore(t, NewMemoryKV())
	other := store.AddCounter("Outreach", CounterWork, "#0000FF")

	first := store.IncrementCounter("1")
	clock.Advance(time.Second)
	second := store.IncrementCounter(other)
	clock.Advance(time.Second)

	// The newest lead overall belongs to the other counter; decrementing
	// counter 1 must still retract counter 1's lead.
	removed := store.DecrementCounter("1")
	if removed != first {
		t.Fatalf("removed %q, want %q", removed, first)
	}
	doc := store.Snapshot()
	if len(doc.Leads) != 1 || doc.Leads[0].ID != second {
		t.Fatalf("wrong lead survived: %+v", doc.Leads)
	}
}

func TestAddCounterCapIsSilentNoop(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())

	for i := len(store.Snapshot().Counters); i < MaxCounters; i++ {
		if id := store.AddCounter(fmt.Sprintf("c%d", i), CounterPersonal, ""); id == "" {
			t.Fatalf("counter %d rejected below the cap", i)
		}
	}
	before := store.LastModified()
	if id := store.AddCounter("overflow", CounterPersonal, ""); id != "" {
		t.Fatalf("counter added past the cap: %q", id)
	}
	if store.LastModified() != before {
		t.Fatal("rejected add advanced the clock")
	}
	if got := len(store.Snapshot().Counters); got != MaxCounters {
		t.Fatalf("len(counters) = %d, want %d", got, MaxCounters)
	}
}

func TestCompleteBlockFreezesRewardAcrossLevelChange(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())

	store.GrantXP(380) // level 2
	store.SetDayBlocks("2024-03-10", []ContentBlock{
		{ID: "b1", Type: BlockTodo, Content: "ship it", Difficulty: DifficultyHigh},
	})

	granted := store.CompleteBlock("2024-03-10", "b1")
	if granted != 40 { // 20 * level 2
		t.Fatalf("granted = %d, want 40", granted)
	}
	doc := store.Snapshot()
	if doc.XP.Total != 420 {
		t.Fatalf("xp total = %d, want 420", doc.XP.Total)
	}
	if Level(doc.XP.Total) != 3 {
		t.Fatalf("level = %d, want 3 after grant", Level(doc.XP.Total))
	}
	block := doc.Days["2024-03-10"].Blocks[0]
	if block.XPReward == nil || *block.XPReward != 40 {
		t.Fatalf("reward snapshot = %v, want 40", block.XPReward)
	}

	// Level is 3 now; a recomputed refund would be 60. The snapshot wins.
	refunded := store.UncompleteBlock("2024-03-10", "b1")
	if refunded != 40 {
		t.Fatalf("refunded = %d, want 40", refunded)
	}
	doc = store.Snapshot()
	if doc.XP.Total != 380 {
		t.Fatalf("xp total = %d, want 380 after refund", doc.XP.Total)
	}
	if doc.Days["2024-03-10"].Blocks[0].XPReward != nil {
		t.Fatal("reward snapshot not cleared")
	}
}

func TestCompleteBlockIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.SetDayBlocks("2024-03-10", []ContentBlock{
		{ID: "b1", Type: BlockTodo, Content: "call"},
	})

	first := store.CompleteBlock("2024-03-10", "b1")
	second := store.CompleteBlock("2024-03-10", "b1")
	if first == 0 || second != 0 {
		t.Fatalf("grants = %d then %d, want non-zero then 0", first, second)
	}
}

func TestCompleteBlockIgnoresTextBlocks(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.SetDayBlocks("2024-03-10", []ContentBlock{
		{ID: "b1", Type: BlockText, Content: "just a note"},
	})
	if granted := store.CompleteBlock("2024-03-10", "b1"); granted != 0 {
		t.Fatalf("text block granted %d xp", granted)
	}
}

func TestUncompleteLegacyBlockRecomputesRefund(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.GrantXP(50)
	// A block completed before reward snapshots existed: Completed without
	// XPReward.
	store.SetDayBlocks("2024-03-10", []ContentBlock{
		{ID: "b1", Type: BlockTodo, Content: "old", Completed: true, Difficulty: DifficultyLow},
	})

	refunded := store.UncompleteBlock("2024-03-10", "b1")
	if refunded != 5 { // low task at level 1
		t.Fatalf("refunded = %d, want 5", refunded)
	}
	if got := store.Snapshot().XP.Total; got != 45 {
		t.Fatalf("xp total = %d, want 45", got)
	}
}

func TestXPNeverGoesNegative(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.SetDayBlocks("2024-03-10", []ContentBlock{
		{ID: "b1", Type: BlockTodo, Content: "old", Completed: true, Difficulty: DifficultyHigh},
	})
	store.UncompleteBlock("2024-03-10", "b1")
	if got := store.Snapshot().XP.Total; got != 0 {
		t.Fatalf("xp total = %d, want clamp at 0", got)
	}
}

func TestUpdateDayBlockPreservesCompletionState(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.SetDayBlocks("2024-03-10", []ContentBlock{
		{ID: "b1", Type: BlockTodo, Content: "draft"},
	})
	store.CompleteBlock("2024-03-10", "b1")

	ok := store.UpdateDayBlock("2024-03-10", ContentBlock{
		ID: "b1", Type: BlockTodo, Content: "draft v2", Completed: false,
	})
	if !ok {
		t.Fatal("update reported no change")
	}
	block := store.Snapshot().Days["2024-03-10"].Blocks[0]
	if block.Content != "draft v2" {
		t.Fatalf("content = %q", block.Content)
	}
	if !block.Completed || block.XPReward == nil {
		t.Fatal("edit clobbered completion state or reward snapshot")
	}
}

func TestToggleHabitStreakAndXP(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	id := store.AddHabit("run", DifficultyLow)

	if delta := store.ToggleHabit(id, "2024-03-09"); delta != 10 {
		t.Fatalf("first toggle delta = %d, want 10", delta)
	}
	if delta := store.ToggleHabit(id, "2024-03-10"); delta != 10 {
		t.Fatalf("second toggle delta = %d, want 10", delta)
	}
	habit := store.Snapshot().Habits[0]
	if habit.Streak != 2 || habit.Count != 2 {
		t.Fatalf("streak=%d count=%d, want 2/2", habit.Streak, habit.Count)
	}

	if delta := store.ToggleHabit(id, "2024-03-10"); delta != -10 {
		t.Fatalf("untoggle delta = %d, want -10", delta)
	}
	habit = store.Snapshot().Habits[0]
	if habit.Streak != 1 || habit.Count != 1 {
		t.Fatalf("streak=%d count=%d after untoggle, want 1/1", habit.Streak, habit.Count)
	}
	if got := store.Snapshot().XP.Total; got != 10 {
		t.Fatalf("xp total = %d, want 10", got)
	}
}

func TestMarathonMultiplierScalesHabitXP(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.StartMarathon(Marathon{
		Title:      "spring push",
		StartDate:  "2024-03-01",
		EndDate:    "2024-03-31",
		Multiplier: 2.0,
	})
	id := store.AddHabit("run", DifficultyLow)

	if delta := store.ToggleHabit(id, "2024-03-10"); delta != 20 {
		t.Fatalf("delta inside marathon = %d, want 20", delta)
	}
	if delta := store.ToggleHabit(id, "2024-04-02"); delta != 10 {
		t.Fatalf("delta outside marathon = %d, want 10", delta)
	}
}

func TestStartMarathonDerivesMultiplier(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	id := store.StartMarathon(Marathon{
		Title:     "month",
		StartDate: "2024-03-01",
		EndDate:   "2024-03-30",
	})
	doc := store.Snapshot()
	if doc.ActiveMarathonID != id {
		t.Fatalf("active marathon = %q, want %q", doc.ActiveMarathonID, id)
	}
	m := doc.Marathons[0]
	if m.Status != MarathonActive {
		t.Fatalf("status = %q", m.Status)
	}
	if m.Multiplier != 1.25 { // 30 days
		t.Fatalf("multiplier = %v, want 1.25", m.Multiplier)
	}

	if !store.EndMarathon(id, false) {
		t.Fatal("end marathon failed")
	}
	doc = store.Snapshot()
	if doc.Marathons[0].Status != MarathonFinished || doc.ActiveMarathonID != "" {
		t.Fatalf("marathon not finished cleanly: %+v active=%q", doc.Marathons[0], doc.ActiveMarathonID)
	}
}

func TestXPResetOnDailyBoundary(t *testing.T) {
	kv := NewMemoryKV()
	clock := newTestClock(time.Date(2024, 3, 10, 23, 50, 0, 0, time.UTC))
	store, err := NewStore(StoreOptions{KV: kv, Now: clock.Now})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()

	store.SetSettings(Settings{XPResetCadence: ResetDaily})
	store.GrantXP(120)

	// Still the same calendar day: no reset.
	if store.CheckXPReset() {
		t.Fatal("reset fired without a boundary crossing")
	}

	clock.Advance(20 * time.Minute) // crosses midnight
	if !store.CheckXPReset() {
		t.Fatal("reset did not fire after midnight")
	}
	doc := store.Snapshot()
	if doc.XP.Total != 0 {
		t.Fatalf("xp total = %d, want 0", doc.XP.Total)
	}
	if doc.XP.LastReset != clock.Now().UnixMilli() {
		t.Fatalf("lastReset = %d, want %d", doc.XP.LastReset, clock.Now().UnixMilli())
	}

	// Same day again: idempotent.
	if store.CheckXPReset() {
		t.Fatal("second check reset again on the same day")
	}
}

func TestXPResetNeverCadence(t *testing.T) {
	store, clock := newTestStore(t, NewMemoryKV())
	store.GrantXP(100)
	clock.Advance(400 * 24 * time.Hour)
	if store.CheckXPReset() {
		t.Fatal("reset fired with cadence never")
	}
	if got := store.Snapshot().XP.Total; got != 100 {
		t.Fatalf("xp total = %d, want 100", got)
	}
}

func TestHydrateStampsLastResetWithoutZeroing(t *testing.T) {
	kv := NewMemoryKV()
	legacy := `{"xp":{"total":250},"lastModified":1000}`
	if err := kv.Set(context.Background(), StorageKey, legacy); err != nil {
		t.Fatalf("seed kv: %v", err)
	}
	store, _ := newTestStore(t, kv)
	doc := store.Snapshot()
	if doc.XP.Total != 250 {
		t.Fatalf("legacy xp lost: %d", doc.XP.Total)
	}
	if doc.XP.LastReset == 0 {
		t.Fatal("lastReset not stamped on hydrate")
	}
}

func TestHydrateUnreadableStateStartsFresh(t *testing.T) {
	kv := NewMemoryKV()
	if err := kv.Set(context.Background(), StorageKey, "{not json"); err != nil {
		t.Fatalf("seed kv: %v", err)
	}
	store, _ := newTestStore(t, kv)
	doc := store.Snapshot()
	if len(doc.Counters) != 1 || doc.Counters[0].Name != "Leads" {
		t.Fatalf("expected fresh default document, got %+v", doc.Counters)
	}
}

func TestReplaceAllAdoptsRemoteClock(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.SetDayNote("2024-03-10", "local")

	remote := ReplaceState{
		Days: map[string]DayRecord{
			"2024-03-11": {Status: DayGood},
		},
		Leads:        []Lead{{ID: "r1", Status: LeadResponded, History: []LeadHistoryItem{}}},
		LastModified: 7_777_777,
	}
	store.ReplaceAll(remote)

	doc := store.Snapshot()
	if doc.LastModified != 7_777_777 {
		t.Fatalf("lastModified = %d, want adopted remote clock", doc.LastModified)
	}
	if _, ok := doc.Days["2024-03-10"]; ok {
		t.Fatal("days not replaced wholesale")
	}
	if len(doc.Leads) != 1 || doc.Leads[0].ID != "r1" {
		t.Fatalf("leads not replaced: %+v", doc.Leads)
	}

	// Applying the same remote state again changes nothing.
	store.ReplaceAll(remote)
	if store.LastModified() != 7_777_777 {
		t.Fatalf("second apply moved the clock to %d", store.LastModified())
	}
}

func TestReplaceAllNilFieldsKeepCurrent(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	store.GrantXP(90)
	store.IncrementCounter("1")

	store.ReplaceAll(ReplaceState{
		Days:         map[string]DayRecord{"2024-03-12": {Status: DayBad}},
		LastModified: 9_999_999,
	})

	doc := store.Snapshot()
	if doc.XP.Total != 90 {
		t.Fatalf("nil XP fragment overwrote total: %d", doc.XP.Total)
	}
	if len(doc.Leads) != 1 {
		t.Fatalf("nil leads fragment overwrote leads: %+v", doc.Leads)
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	kv := NewMemoryKV()
	store, _ := newTestStore(t, kv)
	store.SetDayNote("2024-03-10", "persisted")
	store.IncrementCounter("1")
	store.Flush()
	wantClock := store.LastModified()

	reopened, _ := newTestStore(t, kv)
	doc := reopened.Snapshot()
	if doc.Days["2024-03-10"].Note != "persisted" {
		t.Fatalf("note lost across restart: %+v", doc.Days)
	}
	if len(doc.Leads) != 1 {
		t.Fatalf("leads lost across restart: %+v", doc.Leads)
	}
	if doc.LastModified != wantClock {
		t.Fatalf("clock = %d, want %d", doc.LastModified, wantClock)
	}
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	store, _ := newTestStore(t, NewMemoryKV())
	var mu sync.Mutex
	calls := 0
	unsubscribe := store.Subscribe(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	store.SetDayNote("2024-03-10", "x")
	store.RemoveCounter("missing") // no-op, no notification
	unsubscribe()
	store.SetDayNote("2024-03-10", "y")

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("subscriber called %d times, want 1", calls)
	}
}

func TestReloadSkipsSameClock(t *testing.T) {
	kv := NewMemoryKV()
	store, _ := newTestStore(t, kv)
	store.SetDayNote("2024-03-10", "v1")
	store.Flush()

	notified := make(chan struct{}, 1)
	store.Subscribe(func() {
		select {
		case notified <- struct{}{}:
		default:
		}
	})

	// Same persisted clock: reload is a no-op.
	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	select {
	case <-notified:
		t.Fatal("reload of identical state notified subscribers")
	default:
	}

	// Another process wrote a newer document.
	external := store.Snapshot()
	external.Days["2024-03-10"] = DayRecord{Note: "v2"}
	external.LastModified = store.LastModified() + 50
	data, err := json.Marshal(external)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := kv.Set(context.Background(), StorageKey, string(data)); err != nil {
		t.Fatalf("seed kv: %v", err)
	}
	if err := store.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := store.Snapshot().Days["2024-03-10"].Note; got != "v2" {
		t.Fatalf("note = %q, want reloaded v2", got)
	}
	select {
	case <-notified:
	default:
		t.Fatal("reload of newer state did not notify")
	}
}
