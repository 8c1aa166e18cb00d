// Package state shapes raw spreadsheet rows into the fixed-field response
// the relay serves to its UI.
//
// The sheet layout is one conceptual control row plus a log column:
//
//	A: status/command ("RUN" while a login attempt is in progress)
//	B: free-text time/metadata
//	C: captcha image reference (URL, raw base64, or an =IMAGE(...) formula)
//	D: operator-supplied three-digit captcha answer
//	E: one log line per row, extending downward from row 2
package state

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	colStatus = 0
	colTime   = 1
	colImage  = 2
	colAnswer = 3
	colLog    = 4
)

// firstDataRow is the spreadsheet row number of the first row returned by the
// gateway (reads start at A2).
const firstDataRow = 2

// imageFormulaPattern matches a spreadsheet image formula wrapping a
// double-quoted URL, optionally followed by sizing arguments:
// =IMAGE("https://...", 4, 80, 200).
var imageFormulaPattern = regexp.MustCompile(`(?i)^\s*=\s*image\s*\(\s*"([^"]*)"\s*(?:,[^)]*)?\)\s*$`)

// LogEntry is one log line with the spreadsheet row it came from.
type LogEntry struct {
	Row  int    `json:"row"`
	Text string `json:"text"`
}

// State is the normalized backend-to-frontend contract. C3 and ImageURL carry
// the same resolved value; both survive for compatibility with clients that
// still read the lettered cell.
type State struct {
	A2       string     `json:"A2"`
	B2       string     `json:"B2"`
	C2       string     `json:"C2"`
	C3       string     `json:"C3"`
	ImageURL string     `json:"imageUrl"`
	D2       string     `json:"D2"`
	E2       string     `json:"E2"`
	Logs     []LogEntry `json:"logs"`
}

// Normalize shapes raw gateway rows into a State. rows[0] is sheet row 2,
// the status row; rows[1], when present, is preferred as the image source.
func Normalize(rows [][]interface{}) State {
	st := State{Logs: []LogEntry{}}
	if len(rows) == 0 {
		return st
	}

	statusRow := rows[0]
	st.A2 = cellString(statusRow, colStatus)
	st.B2 = cellString(statusRow, colTime)
	st.C2 = cellString(statusRow, colImage)
	st.D2 = cellString(statusRow, colAnswer)
	st.E2 = cellString(statusRow, colLog)

	imageRow := statusRow
	if len(rows) > 1 {
		imageRow = rows[1]
	}
	image := cellString(imageRow, colImage)
	if image == "" {
		image = st.C2
	}
	resolved := UnwrapImageFormula(image)
	st.ImageURL = resolved
	st.C3 = resolved

	st.Logs = collectLogs(rows)
	return st
}

// UnwrapImageFormula extracts the URL out of an image formula string. Any
// other input comes back trimmed but otherwise unchanged, which makes the
// function idempotent: an already-unwrapped URL passes straight through.
func UnwrapImageFormula(value string) string {
	trimmed := strings.TrimSpace(value)
	if m := imageFormulaPattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// collectLogs walks every row, takes the log column, and produces the
// complete ordered log. Blank or whitespace-only lines are dropped. Row
// numbers are real spreadsheet rows (first data row = 2). If the same row
// number is assigned twice during reconstruction, the last write wins, so
// the result is deterministic for a given raw row set.
func collectLogs(rows [][]interface{}) []LogEntry {
	byRow := make(map[int]string)
	for i, row := range rows {
		text := strings.TrimSpace(cellString(row, colLog))
		if text == "" {
			continue
		}
		byRow[i+firstDataRow] = text
	}

	entries := make([]LogEntry, 0, len(byRow))
	for row, text := range byRow {
		entries = append(entries, LogEntry{Row: row, Text: text})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Row < entries[j].Row })
	return entries
}

// cellString safely extracts a string-coerced cell from a positional row.
// Missing trailing cells and nils become the empty string; unformatted
// numeric cells get their %v form.
func cellString(row []interface{}, index int) string {
	if len(row) > index && row[index] != nil {
		if s, ok := row[index].(string); ok {
			return s
		}
		return fmt.Sprintf("%v", row[index])
	}
	return ""
}
