package worklife

import (
	"encoding/json"
	"strings"
	"time"
)

// StorageKey is the single key under which the serialized Document lives.
// The version suffix changes whenever the schema breaks, so a new shape
// starts fresh instead of migrating in place.
const StorageKey = "worklife-storage-v2"

const MaxCounters = 15

type DayStatus string

const (
	DayNeutral DayStatus = "neutral"
	DayGood    DayStatus = "good"
	DayBad     DayStatus = "bad"
)

type BlockType string

const (
	BlockText BlockType = "text"
	BlockTodo BlockType = "todo"
)

type Difficulty string

const (
	DifficultyLow    Difficulty = "low"
	DifficultyMedium Difficulty = "medium"
	DifficultyHigh   Difficulty = "high"
)

// ContentBlock is one ordered entry inside a day or month note. XPReward is
// the snapshot of what completing the block actually granted; refunds use it
// verbatim so a later level change cannot be farmed through
// complete/uncomplete cycles. A nil snapshot marks pre-snapshot legacy data.
type ContentBlock struct {
	ID         string     `json:"id"`
	Type       BlockType  `json:"type"`
	Content    string     `json:"content"`
	Completed  bool       `json:"completed,omitempty"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	XPReward   *int       `json:"xpReward,omitempty"`
}

type DayRecord struct {
	Status       DayStatus      `json:"status"`
	Note         string         `json:"note,omitempty"`
	Blocks       []ContentBlock `json:"blocks,omitempty"`
	LastModified int64          `json:"lastModified,omitempty"`
}

// MonthRecord holds the free-form note attached to a whole month. Legacy
// documents stored it as a bare string; UnmarshalJSON migrates that shape on
// load so read sites never branch on it.
type MonthRecord struct {
	Note   string         `json:"note,omitempty"`
	Blocks []ContentBlock `json:"blocks,omitempty"`
}

func (m *MonthRecord) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var note string
		if err := json.Unmarshal(data, &note); err != nil {
			return err
		}
		*m = MonthRecord{Note: note}
		return nil
	}
	type alias MonthRecord
	var rec alias
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*m = MonthRecord(rec)
	return nil
}

type CounterType string

const (
	CounterWork     CounterType = "work"
	CounterPersonal CounterType = "personal"
)

type Counter struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Value int         `json:"value"`
	Type  CounterType `json:"type"`
	Color string      `json:"color,omitempty"`
}

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadResponded LeadStatus = "responded"
	LeadInterview LeadStatus = "interview"
	LeadRejected  LeadStatus = "rejected"
)

type OfferKind string

const (
	OfferModel    OfferKind = "model"
	OfferAgent    OfferKind = "agent"
	OfferChatter  OfferKind = "chatter"
	OfferOperator OfferKind = "operator"
)

type LeadHistoryItem struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
}

// Lead is one CRM entry. CreatedAt is unix milliseconds; it drives the
// 15-second undo window for counter-created leads.
type Lead struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Status           LeadStatus        `json:"status"`
	Offer            OfferKind         `json:"offer,omitempty"`
	Link             string            `json:"link,omitempty"`
	Notes            string            `json:"notes,omitempty"`
	FirstContactDate string            `json:"firstContactDate,omitempty"`
	History          []LeadHistoryItem `json:"history"`
	IsWork           bool              `json:"isWork,omitempty"`
	SourceCounterID  string            `json:"sourceCounterId,omitempty"`
	CreatedAt        int64             `json:"createdAt"`
}

type Habit struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Difficulty     Difficulty `json:"difficulty,omitempty"`
	Streak         int        `json:"streak"`
	Count          int        `json:"count"`
	CompletedDates []string   `json:"completedDates"`
}

type Objection struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Tags     []string `json:"tags,omitempty"`
}

type Technique struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type MarathonStatus string

const (
	MarathonActive    MarathonStatus = "active"
	MarathonFinished  MarathonStatus = "finished"
	MarathonAbandoned MarathonStatus = "abandoned"
)

type MarathonPlan struct {
	Habits []string `json:"habits,omitempty"`
	Tasks  int      `json:"tasks,omitempty"`
}

type Marathon struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Goal       string         `json:"goal,omitempty"`
	StartDate  string         `json:"startDate"`
	EndDate    string         `json:"endDate"`
	Multiplier float64        `json:"multiplier"`
	Color      string         `json:"color,omitempty"`
	IsHardcore bool           `json:"isHardcore,omitempty"`
	DailyPlan  MarathonPlan   `json:"dailyPlan,omitempty"`
	Status     MarathonStatus `json:"status"`
}

type ResetCadence string

const (
	ResetNever   ResetCadence = "never"
	ResetDaily   ResetCadence = "daily"
	ResetWeekly  ResetCadence = "weekly"
	ResetMonthly ResetCadence = "monthly"
	ResetYearly  ResetCadence = "yearly"
)

type RewardTable struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

type XPSettings struct {
	Tasks  RewardTable `json:"tasks"`
	Habits RewardTable `json:"habits"`
}

type Settings struct {
	XPResetCadence       ResetCadence `json:"xpResetCadence,omitempty"`
	Theme                string       `json:"theme,omitempty"`
	NotificationsEnabled bool         `json:"notificationsEnabled,omitempty"`
	SoundEnabled         bool         `json:"soundEnabled,omitempty"`
	XPSettings           *XPSettings  `json:"xpSettings,omitempty"`
	SheetURL             string       `json:"sheetUrl,omitempty"`
	AutoSync             bool         `json:"autoSync,omitempty"`
}

// XPState holds the aggregate experience counters. Total never goes
// negative. LastReset is unix milliseconds of the last cadence reset.
type XPState struct {
	Total     int   `json:"total"`
	LastReset int64 `json:"lastXpReset,omitempty"`
}

// Document is the entire persisted application state, one singleton per
// installation. LastModified is a logical clock in unix milliseconds: it
// only advances, and it is only meaningful for greater-than comparisons
// between two copies of the same document lineage.
type Document struct {
	Days             map[string]DayRecord   `json:"days"`
	MonthNotes       map[string]MonthRecord `json:"monthNotes"`
	Counters         []Counter              `json:"counters"`
	Leads            []Lead                 `json:"leads"`
	Habits           []Habit                `json:"habits"`
	Objections       []Objection            `json:"objections"`
	Techniques       []Technique            `json:"techniques"`
	Marathons        []Marathon             `json:"marathons"`
	ActiveMarathonID string                 `json:"activeMarathonId,omitempty"`
	XP               XPState                `json:"xp"`
	Settings         Settings               `json:"settings"`
	LastModified     int64                  `json:"lastModified"`
}

// DefaultDocument returns the state of a fresh installation: one work
// counter named Leads, everything else empty.
func DefaultDocument() Document {
	return Document{
		Days:       map[string]DayRecord{},
		MonthNotes: map[string]MonthRecord{},
		Counters: []Counter{
			{ID: "1", Name: "Leads", Value: 0, Type: CounterWork, Color: "#EF4444"},
		},
		Leads:      []Lead{},
		Habits:     []Habit{},
		Objections: []Objection{},
		Techniques: []Technique{},
		Marathons:  []Marathon{},
		Settings: Settings{
			XPResetCadence: ResetNever,
			Theme:          "dark",
			AutoSync:       true,
		},
	}
}

func (d *Document) normalize() {
	if d.Days == nil {
		d.Days = map[string]DayRecord{}
	}
	if d.MonthNotes == nil {
		d.MonthNotes = map[string]MonthRecord{}
	}
	if d.Counters == nil {
		d.Counters = []Counter{}
	}
	if d.Leads == nil {
		d.Leads = []Lead{}
	}
	if d.Habits == nil {
		d.Habits = []Habit{}
	}
	if d.Objections == nil {
		d.Objections = []Objection{}
	}
	if d.Techniques == nil {
		d.Techniques = []Technique{}
	}
	if d.Marathons == nil {
		d.Marathons = []Marathon{}
	}
	if d.Settings.XPResetCadence == "" {
		d.Settings.XPResetCadence = ResetNever
	}
	if d.XP.Total < 0 {
		d.XP.Total = 0
	}
}

// Clone returns a deep copy of the document via a JSON round trip.
func (d Document) Clone() Document {
	data, err := json.Marshal(d)
	if err != nil {
		return DefaultDocument()
	}
	var clone Document
	if err := json.Unmarshal(data, &clone); err != nil {
		return DefaultDocument()
	}
	clone.normalize()
	return clone
}

// IsEmpty reports whether the document still looks like a fresh
// installation: no leads, no touched days, at most the default counter.
func (d Document) IsEmpty() bool {
	return len(d.Leads) == 0 && len(d.Days) == 0 && len(d.Counters) <= 1
}

const (
	dateKeyLayout  = "2006-01-02"
	monthKeyLayout = "2006-01"
)

func DateKey(t time.Time) string {
	return t.Format(dateKeyLayout)
}

func MonthKey(t time.Time) string {
	return t.Format(monthKeyLayout)
}
