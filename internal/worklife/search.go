package worklife

import (
	"sort"
	"strings"
)

type SearchKind string

const (
	SearchDay       SearchKind = "day"
	SearchMonth     SearchKind = "month"
	SearchLead      SearchKind = "lead"
	SearchHabit     SearchKind = "habit"
	SearchObjection SearchKind = "objection"
	SearchTechnique SearchKind = "technique"
)

type SearchResult struct {
	Kind    SearchKind `json:"kind"`
	Key     string     `json:"key"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet,omitempty"`
}

// Search scans notes, blocks, leads, habits, and dojo cards for the query,
// case-insensitively. Results come back grouped by kind, days and months
// sorted by key.
func (d Document) Search(query string) []SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	match := func(values ...string) (string, bool) {
		for _, v := range values {
			if strings.Contains(strings.ToLower(v), query) {
				return v, true
			}
		}
		return "", false
	}

	var results []SearchResult

	dayKeys := make([]string, 0, len(d.Days))
	for key := range d.Days {
		dayKeys = append(dayKeys, key)
	}
	sort.Strings(dayKeys)
	for _, key := range dayKeys {
		rec := d.Days[key]
		values := []string{rec.Note}
		for _, b := range rec.Blocks {
			values = append(values, b.Content)
		}
		if hit, ok := match(values...); ok {
			results = append(results, SearchResult{Kind: SearchDay, Key: key, Title: key, Snippet: hit})
		}
	}

	monthKeys := make([]string, 0, len(d.MonthNotes))
	for key := range d.MonthNotes {
		monthKeys = append(monthKeys, key)
	}
	sort.Strings(monthKeys)
	for _, key := range monthKeys {
		rec := d.MonthNotes[key]
		values := []string{rec.Note}
		for _, b := range rec.Blocks {
			values = append(values, b.Content)
		}
		if hit, ok := match(values...); ok {
			results = append(results, SearchResult{Kind: SearchMonth, Key: key, Title: key, Snippet: hit})
		}
	}

	for _, l := range d.Leads {
		if hit, ok := match(l.Name, l.Notes, l.Link); ok {
			results = append(results, SearchResult{Kind: SearchLead, Key: l.ID, Title: l.Name, Snippet: hit})
		}
	}
	for _, h := range d.Habits {
		if hit, ok := match(h.Name); ok {
			results = append(results, SearchResult{Kind: SearchHabit, Key: h.ID, Title: h.Name, Snippet: hit})
		}
	}
	for _, o := range d.Objections {
		if hit, ok := match(o.Question, o.Answer, strings.Join(o.Tags, " ")); ok {
			results = append(results, SearchResult{Kind: SearchObjection, Key: o.ID, Title: o.Question, Snippet: hit})
		}
	}
	for _, t := range d.Techniques {
		if hit, ok := match(t.Title, t.Content); ok {
			results = append(results, SearchResult{Kind: SearchTechnique, Key: t.ID, Title: t.Title, Snippet: hit})
		}
	}
	return results
}
