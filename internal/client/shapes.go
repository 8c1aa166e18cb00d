package client

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"captcha_relay/internal/state"
)

var flatLogKeyPattern = regexp.MustCompile(`^E([0-9]+)$`)

// normalizeData re-derives a full State from whatever shape the façade (or a
// legacy deployment of it) produced. Missing fields come back as empty
// strings, never as a parse failure.
func normalizeData(data map[string]interface{}) *state.State {
	st := &state.State{Logs: []state.LogEntry{}}
	if data == nil {
		return st
	}

	st.A2 = fieldString(data, "A2")
	st.B2 = fieldString(data, "B2")
	st.C2 = fieldString(data, "C2")
	st.D2 = fieldString(data, "D2")
	st.E2 = fieldString(data, "E2")

	// Named field beats the lettered cell.
	image := fieldString(data, "imageUrl")
	if image == "" {
		image = fieldString(data, "C3")
	}
	if image == "" {
		image = st.C2
	}
	resolved := state.UnwrapImageFormula(image)
	st.ImageURL = resolved
	st.C3 = resolved

	st.Logs = extractLogs(data)
	return st
}

// logStrategy is one extraction attempt. Strategies run in priority order;
// the first one that yields any entries wins.
type logStrategy func(map[string]interface{}) []state.LogEntry

var logStrategies = []logStrategy{
	logsFromNamedField,
	logsFromE2Multiline,
	logsFromFlatKeys,
}

func extractLogs(data map[string]interface{}) []state.LogEntry {
	for _, strategy := range logStrategies {
		if entries := strategy(data); len(entries) > 0 {
			return sortEntries(entries)
		}
	}
	return []state.LogEntry{}
}

// logsFromNamedField handles the canonical "logs" array as well as the
// legacy "log" field, in any of its historical forms: array of objects,
// array of strings, or one multiline string.
func logsFromNamedField(data map[string]interface{}) []state.LogEntry {
	var raw interface{}
	for _, key := range []string{"logs", "log"} {
		if v, ok := data[key]; ok && v != nil {
			raw = v
			break
		}
	}
	if raw == nil {
		return nil
	}

	switch v := raw.(type) {
	case []interface{}:
		var entries []state.LogEntry
		for i, item := range v {
			switch entry := item.(type) {
			case map[string]interface{}:
				row := entryRow(entry, i)
				text := strings.TrimSpace(entryText(entry))
				if text != "" {
					entries = append(entries, state.LogEntry{Row: row, Text: text})
				}
			default:
				text := strings.TrimSpace(coerceString(item))
				if text != "" {
					entries = append(entries, state.LogEntry{Row: i + 2, Text: text})
				}
			}
		}
		return entries
	case string:
		return splitMultiline(v)
	}
	return nil
}

// logsFromE2Multiline handles the oldest shape: the whole log crammed into
// the E2 cell as one newline-separated string.
func logsFromE2Multiline(data map[string]interface{}) []state.LogEntry {
	raw := fieldString(data, "E2")
	if !strings.Contains(raw, "\n") {
		return nil
	}
	return splitMultiline(raw)
}

// logsFromFlatKeys handles flat E3, E4, ... keys alongside the lettered
// cells. E2 is deliberately excluded: as a single line it is the raw cell
// value, not a log dump.
func logsFromFlatKeys(data map[string]interface{}) []state.LogEntry {
	var entries []state.LogEntry
	for key, value := range data {
		m := flatLogKeyPattern.FindStringSubmatch(key)
		if m == nil || key == "E2" {
			continue
		}
		row, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		text := strings.TrimSpace(coerceString(value))
		if text != "" {
			entries = append(entries, state.LogEntry{Row: row, Text: text})
		}
	}
	return entries
}

func splitMultiline(raw string) []state.LogEntry {
	var entries []state.LogEntry
	for i, line := range strings.Split(raw, "\n") {
		text := strings.TrimSpace(line)
		if text != "" {
			entries = append(entries, state.LogEntry{Row: i + 2, Text: text})
		}
	}
	return entries
}

// sortEntries deduplicates by row (last write wins) and sorts ascending, so
// reconstruction is deterministic regardless of which shape produced the
// entries.
func sortEntries(entries []state.LogEntry) []state.LogEntry {
	byRow := make(map[int]string, len(entries))
	for _, e := range entries {
		byRow[e.Row] = e.Text
	}
	out := make([]state.LogEntry, 0, len(byRow))
	for row, text := range byRow {
		out = append(out, state.LogEntry{Row: row, Text: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

func entryRow(entry map[string]interface{}, position int) int {
	if row, ok := entryInt(entry, "row"); ok {
		return row
	}
	if idx, ok := entryInt(entry, "index"); ok {
		return idx + 2
	}
	return position + 2
}

func entryText(entry map[string]interface{}) string {
	for _, key := range []string{"text", "value"} {
		if v, ok := entry[key]; ok && v != nil {
			return coerceString(v)
		}
	}
	return ""
}

func entryInt(entry map[string]interface{}, key string) (int, bool) {
	v, ok := entry[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func fieldString(data map[string]interface{}, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	return coerceString(v)
}

func coerceString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
