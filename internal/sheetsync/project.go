package sheetsync

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/worklifeapp/worklife/internal/worklife"
)

// The spreadsheet shows human-readable Russian labels instead of internal
// enum codes; these tables define the wire contract in both directions.
var statusLabels = map[worklife.LeadStatus]string{
	worklife.LeadNew:       "Написал",
	worklife.LeadResponded: "Ответил",
	worklife.LeadInterview: "Собес",
	worklife.LeadRejected:  "Отказ",
}

var offerLabels = map[worklife.OfferKind]string{
	worklife.OfferModel:    "Модель",
	worklife.OfferAgent:    "Агент",
	worklife.OfferChatter:  "Чаттер",
	worklife.OfferOperator: "Оператор",
}

var (
	statusFromLabel = invertStatusLabels()
	offerFromLabel  = invertOfferLabels()
)

func invertStatusLabels() map[string]worklife.LeadStatus {
	out := make(map[string]worklife.LeadStatus, len(statusLabels)*2)
	for code, label := range statusLabels {
		out[label] = code
		out[string(code)] = code
	}
	return out
}

func invertOfferLabels() map[string]worklife.OfferKind {
	out := make(map[string]worklife.OfferKind, len(offerLabels)*2)
	for code, label := range offerLabels {
		out[label] = code
		out[string(code)] = code
	}
	return out
}

const (
	leadDateLayout    = "2006-01-02 15:04"
	historyDateLayout = "02.01 15:04"
)

type ExportLead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Status  string `json:"status"`
	Offer   string `json:"offer"`
	Link    string `json:"link"`
	Notes   string `json:"notes"`
	Date    string `json:"date"`
	Source  string `json:"source"`
	History string `json:"history"`
}

type ExportCounter struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

type ExportDay struct {
	Date   string `json:"date"`
	Status string `json:"status"`
	Note   string `json:"note"`
	Todos  string `json:"todos"`
	Blocks string `json:"blocks"`
}

type ExportMonthNote struct {
	Month  string `json:"month"`
	Note   string `json:"note"`
	Todos  string `json:"todos"`
	Blocks string `json:"blocks"`
}

// ExportPayload is the push body: a curated, flattened projection of the
// Document with display labels in place of enum codes. Nested block lists
// travel as embedded JSON strings so each row stays one spreadsheet line.
type ExportPayload struct {
	Type         string            `json:"type"`
	LastModified int64             `json:"lastModified"`
	XP           worklife.XPState  `json:"xp"`
	Settings     worklife.Settings `json:"settings"`
	Leads        []ExportLead      `json:"leads"`
	Counters     []ExportCounter   `json:"counters"`
	Calendar     []ExportDay       `json:"calendar"`
	MonthNotes   []ExportMonthNote `json:"monthNotes"`
}

// BuildExport projects the document into the spreadsheet shape. Map-backed
// collections are emitted in key order so repeated pushes of the same state
// produce identical bodies.
func BuildExport(doc worklife.Document) ExportPayload {
	payload := ExportPayload{
		Type:         "sync_up",
		LastModified: doc.LastModified,
		XP:           doc.XP,
		Settings:     doc.Settings,
		Leads:        make([]ExportLead, 0, len(doc.Leads)),
		Counters:     make([]ExportCounter, 0, len(doc.Counters)),
		Calendar:     make([]ExportDay, 0, len(doc.Days)),
		MonthNotes:   make([]ExportMonthNote, 0, len(doc.MonthNotes)),
	}

	counterNames := make(map[string]string, len(doc.Counters))
	for _, c := range doc.Counters {
		counterNames[c.ID] = c.Name
	}

	for _, l := range doc.Leads {
		source := "Manual"
		if name, ok := counterNames[l.SourceCounterID]; ok {
			source = name
		}
		payload.Leads = append(payload.Leads, ExportLead{
			ID:      l.ID,
			Name:    l.Name,
			Status:  statusLabel(l.Status),
			Offer:   offerLabel(l.Offer),
			Link:    l.Link,
			Notes:   l.Notes,
			Date:    displayDate(l.FirstContactDate),
			Source:  source,
			History: flattenHistory(l.History),
		})
	}

	for _, c := range doc.Counters {
		payload.Counters = append(payload.Counters, ExportCounter{
			ID:    c.ID,
			Name:  c.Name,
			Value: c.Value,
			Type:  string(c.Type),
			Color: c.Color,
		})
	}

	dayKeys := make([]string, 0, len(doc.Days))
	for key := range doc.Days {
		dayKeys = append(dayKeys, key)
	}
	sort.Strings(dayKeys)
	for _, key := range dayKeys {
		rec := doc.Days[key]
		payload.Calendar = append(payload.Calendar, ExportDay{
			Date:   key,
			Status: string(rec.Status),
			Note:   rec.Note,
			Blocks: marshalBlocks(rec.Blocks),
		})
	}

	monthKeys := make([]string, 0, len(doc.MonthNotes))
	for key := range doc.MonthNotes {
		monthKeys = append(monthKeys, key)
	}
	sort.Strings(monthKeys)
	for _, key := range monthKeys {
		rec := doc.MonthNotes[key]
		payload.MonthNotes = append(payload.MonthNotes, ExportMonthNote{
			Month:  key,
			Note:   rec.Note,
			Blocks: marshalBlocks(rec.Blocks),
		})
	}

	return payload
}

func statusLabel(status worklife.LeadStatus) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return string(status)
}

func offerLabel(offer worklife.OfferKind) string {
	if offer == "" {
		return ""
	}
	if label, ok := offerLabels[offer]; ok {
		return label
	}
	return string(offer)
}

func displayDate(iso string) string {
	if iso == "" {
		return ""
	}
	t, err := parseAnyTime(iso)
	if err != nil {
		return iso
	}
	return t.Format(leadDateLayout)
}

func flattenHistory(items []worklife.LeadHistoryItem) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		stamp := item.Timestamp
		if t, err := parseAnyTime(item.Timestamp); err == nil {
			stamp = t.Format(historyDateLayout)
		}
		parts = append(parts, fmt.Sprintf("%s - %s", stamp, item.Action))
	}
	return strings.Join(parts, "; ")
}

func marshalBlocks(blocks []worklife.ContentBlock) string {
	if len(blocks) == 0 {
		return ""
	}
	data, err := json.Marshal(blocks)
	if err != nil {
		return ""
	}
	return string(data)
}

// RemoteDocument is the decoded pull body. Collections the remote did not
// provide stay empty; the engine decides fallbacks.
type RemoteDocument struct {
	LastModified int64
	Leads        []worklife.Lead
	Counters     []worklife.Counter
	Days         map[string]worklife.DayRecord
	MonthNotes   map[string]worklife.MonthRecord
	XP           *worklife.XPState
	Settings     *worklife.Settings
}

// Usable reports whether the pull yielded anything importable. A payload
// with zero usable collections is treated as a no-op, never an error.
func (r RemoteDocument) Usable() bool {
	return len(r.Leads) > 0 || len(r.Counters) > 0 || len(r.Days) > 0 || len(r.MonthNotes) > 0
}

type rawPayload struct {
	LastModified json.Number       `json:"lastModified"`
	Leads        []map[string]any  `json:"leads"`
	Counters     []map[string]any  `json:"counters"`
	Calendar     []map[string]any  `json:"calendar"`
	MonthNotes   []map[string]any  `json:"monthNotes"`
	XP           *worklife.XPState `json:"xp"`
	Settings     *worklife.Settings
}

func (p *rawPayload) UnmarshalJSON(data []byte) error {
	type alias struct {
		LastModified json.Number        `json:"lastModified"`
		Leads        []map[string]any   `json:"leads"`
		Counters     []map[string]any   `json:"counters"`
		Calendar     []map[string]any   `json:"calendar"`
		MonthNotes   []map[string]any   `json:"monthNotes"`
		XP           *worklife.XPState  `json:"xp"`
		Settings     *worklife.Settings `json:"settings"`
	}
	var a alias
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&a); err != nil {
		return err
	}
	*p = rawPayload{
		LastModified: a.LastModified,
		Leads:        a.Leads,
		Counters:     a.Counters,
		Calendar:     a.Calendar,
		MonthNotes:   a.MonthNotes,
		XP:           a.XP,
		Settings:     a.Settings,
	}
	return nil
}

// DecodeRemote remaps the pull body back into internal shapes. Rows may use
// either the internal English keys or the localized spreadsheet headers;
// unrecognized status labels fall back to "new", unrecognized offers to
// absent.
func DecodeRemote(data []byte, now time.Time) (RemoteDocument, error) {
	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return RemoteDocument{}, err
	}

	out := RemoteDocument{
		Days:       map[string]worklife.DayRecord{},
		MonthNotes: map[string]worklife.MonthRecord{},
		XP:         raw.XP,
		Settings:   raw.Settings,
	}
	if ms, err := raw.LastModified.Int64(); err == nil {
		out.LastModified = ms
	} else if f, err := raw.LastModified.Float64(); err == nil {
		out.LastModified = int64(f)
	}

	for _, row := range raw.Leads {
		id := pickString(row, "id", "ID")
		if id == "" {
			continue
		}
		lead := worklife.Lead{
			ID:               id,
			Name:             pickString(row, "name", "Имя"),
			Status:           remapStatus(pickString(row, "status", "Статус")),
			Offer:            remapOffer(pickString(row, "offer", "Оффер")),
			Link:             pickString(row, "link", "Ссылка"),
			Notes:            pickString(row, "notes", "Заметки"),
			History:          []worklife.LeadHistoryItem{},
			IsWork:           true,
			CreatedAt:        now.UnixMilli(),
			FirstContactDate: remapContactDate(pickString(row, "date", "Дата"), now),
		}
		out.Leads = append(out.Leads, lead)
	}

	for _, row := range raw.Counters {
		id := pickString(row, "id", "ID")
		if id == "" {
			continue
		}
		ctype := worklife.CounterType(pickString(row, "type", "Type"))
		if ctype != worklife.CounterWork {
			ctype = worklife.CounterPersonal
		}
		out.Counters = append(out.Counters, worklife.Counter{
			ID:    id,
			Name:  pickString(row, "name", "Name"),
			Value: pickInt(row, "value", "Value"),
			Type:  ctype,
			Color: pickString(row, "color", "Color"),
		})
	}

	for _, row := range raw.Calendar {
		date := pickString(row, "date", "Date")
		if date == "" {
			continue
		}
		out.Days[date] = worklife.DayRecord{
			Status: remapDayStatus(pickString(row, "status", "Status")),
			Note:   pickString(row, "note", "Note"),
			Blocks: unmarshalBlocks(pickString(row, "blocks", "Blocks"), pickString(row, "todos", "Todos")),
		}
	}

	for _, row := range raw.MonthNotes {
		month := pickString(row, "month", "Month")
		if month == "" {
			continue
		}
		out.MonthNotes[month] = worklife.MonthRecord{
			Note:   pickString(row, "note", "Note"),
			Blocks: unmarshalBlocks(pickString(row, "blocks", "Blocks"), pickString(row, "todos", "Todos")),
		}
	}

	return out, nil
}

func remapStatus(value string) worklife.LeadStatus {
	if status, ok := statusFromLabel[strings.TrimSpace(value)]; ok {
		return status
	}
	return worklife.LeadNew
}

func remapOffer(value string) worklife.OfferKind {
	if offer, ok := offerFromLabel[strings.TrimSpace(value)]; ok {
		return offer
	}
	return ""
}

func remapDayStatus(value string) worklife.DayStatus {
	switch worklife.DayStatus(strings.TrimSpace(value)) {
	case worklife.DayGood:
		return worklife.DayGood
	case worklife.DayBad:
		return worklife.DayBad
	default:
		return worklife.DayNeutral
	}
}

func remapContactDate(value string, now time.Time) string {
	if strings.TrimSpace(value) == "" {
		return now.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	t, err := parseAnyTime(value)
	if err != nil {
		return now.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// unmarshalBlocks reads the embedded blocks JSON, falling back to the
// legacy todos column, whose entries become todo-type blocks.
func unmarshalBlocks(blocksJSON, todosJSON string) []worklife.ContentBlock {
	if strings.TrimSpace(blocksJSON) != "" {
		var blocks []worklife.ContentBlock
		if err := json.Unmarshal([]byte(blocksJSON), &blocks); err == nil {
			return blocks
		}
	}
	if strings.TrimSpace(todosJSON) != "" {
		var blocks []worklife.ContentBlock
		if err := json.Unmarshal([]byte(todosJSON), &blocks); err == nil {
			for i := range blocks {
				blocks[i].Type = worklife.BlockTodo
			}
			return blocks
		}
	}
	return nil
}

func pickString(row map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := row[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(v)
		}
	}
	return ""
}

func pickInt(row map[string]any, keys ...string) int {
	for _, key := range keys {
		value, ok := row[key]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n)
			}
			if f, err := v.Float64(); err == nil {
				return int(f)
			}
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

func parseAnyTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		leadDateLayout,
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
