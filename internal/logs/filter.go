package logs

import (
	"encoding/json"
	"strings"
)

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects log lines. Zero values match everything.
type Filter struct {
	Component string
	MinLevel  string
}

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	if f.Component == "" && f.MinLevel == "" {
		return true
	}
	entry := Parse(line)
	if f.Component != "" && !strings.EqualFold(entry.Component, f.Component) {
		return false
	}
	if f.MinLevel != "" {
		floor, ok := levelRank[strings.ToLower(f.MinLevel)]
		got, known := levelRank[entry.Level]
		if ok && known && got < floor {
			return false
		}
	}
	return true
}

// Entry holds the fields of a log line needed for filtering.
type Entry struct {
	Level     string
	Component string
}

// Parse extracts level and component from a console or JSON log line.
func Parse(line string) Entry {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var payload struct {
			Level     string `json:"level"`
			Component string `json:"component"`
		}
		if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
			return Entry{Level: strings.ToLower(payload.Level), Component: payload.Component}
		}
		return Entry{}
	}

	// "ts LEVEL component: [subject] message"
	fields := strings.SplitN(trimmed, " ", 4)
	if len(fields) < 3 {
		return Entry{}
	}
	entry := Entry{Level: strings.ToLower(fields[1])}
	if name, ok := strings.CutSuffix(fields[2], ":"); ok && !strings.HasPrefix(name, "[") {
		entry.Component = name
	}
	return entry
}
