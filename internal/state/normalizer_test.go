package state_test

import (
	"math/rand"
	"strings"
	"testing"

	"captcha_relay/internal/state"
)

func TestNormalizeSecondRowImagePreferred(t *testing.T) {
	rows := [][]interface{}{
		{"RUN", "t1", "http://x/img.png", "", ""},
		{"RUN", "t1", "http://y/img2.png", "", "line2"},
	}

	st := state.Normalize(rows)

	if st.ImageURL != "http://y/img2.png" {
		t.Errorf("Expected second row image to win, got %q", st.ImageURL)
	}
	if st.C3 != st.ImageURL {
		t.Errorf("C3 should mirror imageUrl, got %q vs %q", st.C3, st.ImageURL)
	}
	if st.C2 != "http://x/img.png" {
		t.Errorf("C2 should stay the raw first-row value, got %q", st.C2)
	}
	if len(st.Logs) != 1 || st.Logs[0].Row != 3 || st.Logs[0].Text != "line2" {
		t.Errorf("Expected logs [{3 line2}], got %v", st.Logs)
	}
}

func TestNormalizeImageFallsBackToStatusRow(t *testing.T) {
	rows := [][]interface{}{
		{"RUN", "t1", "http://x/img.png", "123", "first"},
		{"", "", "", "", "second"},
	}

	st := state.Normalize(rows)

	if st.ImageURL != "http://x/img.png" {
		t.Errorf("Expected fallback to first-row image, got %q", st.ImageURL)
	}
	if st.D2 != "123" {
		t.Errorf("Expected D2 '123', got %q", st.D2)
	}
}

func TestNormalizeEmptyRows(t *testing.T) {
	st := state.Normalize(nil)

	if st.A2 != "" || st.B2 != "" || st.C2 != "" || st.D2 != "" || st.E2 != "" || st.ImageURL != "" {
		t.Errorf("Expected all-empty state, got %+v", st)
	}
	if st.Logs == nil || len(st.Logs) != 0 {
		t.Errorf("Expected empty non-nil logs, got %v", st.Logs)
	}
}

func TestNormalizeShortAndNilCells(t *testing.T) {
	rows := [][]interface{}{
		{"RUN"},
		{nil, nil, nil, nil, 42},
	}

	st := state.Normalize(rows)

	if st.A2 != "RUN" {
		t.Errorf("Expected A2 RUN, got %q", st.A2)
	}
	if st.B2 != "" || st.C2 != "" {
		t.Errorf("Missing trailing cells should be empty strings, got B2=%q C2=%q", st.B2, st.C2)
	}
	if len(st.Logs) != 1 || st.Logs[0].Text != "42" {
		t.Errorf("Non-string log cells should be string-coerced, got %v", st.Logs)
	}
}

func TestNormalizeUnwrapsImageFormula(t *testing.T) {
	rows := [][]interface{}{
		{"RUN", "", `=IMAGE("https://example.com/cap.png", 4, 80, 200)`, "", ""},
	}

	st := state.Normalize(rows)

	if st.ImageURL != "https://example.com/cap.png" {
		t.Errorf("Expected unwrapped URL, got %q", st.ImageURL)
	}
}

func TestUnwrapImageFormula(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain formula", `=IMAGE("https://x/y.png")`, "https://x/y.png"},
		{"sizing args", `=IMAGE("https://x/y.png", 4, 80, 200)`, "https://x/y.png"},
		{"lowercase and padding", ` =image( "https://x/y.png" ) `, "https://x/y.png"},
		{"plain url untouched", "https://x/y.png", "https://x/y.png"},
		{"raw base64 untouched", "iVBORw0KGgo=", "iVBORw0KGgo="},
		{"data uri untouched", "data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{"whitespace trimmed", "  hello  ", "hello"},
		{"empty", "", ""},
		{"unclosed formula untouched", `=IMAGE("https://x/y.png"`, `=IMAGE("https://x/y.png"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := state.UnwrapImageFormula(tc.input)
			if got != tc.want {
				t.Errorf("UnwrapImageFormula(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestUnwrapImageFormulaIdempotent(t *testing.T) {
	inputs := []string{
		`=IMAGE("https://x/y.png", 1)`,
		"https://x/y.png",
		"data:image/png;base64,AAAA",
		"iVBORw0KGgo=",
		"  padded  ",
		"",
		`=IMAGE("")`,
	}

	for _, in := range inputs {
		once := state.UnwrapImageFormula(in)
		twice := state.UnwrapImageFormula(once)
		if once != twice {
			t.Errorf("Not idempotent for %q: once %q, twice %q", in, once, twice)
		}
	}
}

func TestLogsSortedAndNonEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 50; iter++ {
		n := rng.Intn(40)
		rows := make([][]interface{}, n)
		for i := range rows {
			var cell interface{}
			switch rng.Intn(5) {
			case 0:
				cell = ""
			case 1:
				cell = "   \t "
			case 2:
				cell = nil
			case 3:
				cell = rng.Intn(1000)
			default:
				cell = "line"
			}
			rows[i] = []interface{}{"RUN", "", "", "", cell}
		}

		st := state.Normalize(rows)

		for i, entry := range st.Logs {
			if strings.TrimSpace(entry.Text) == "" {
				t.Fatalf("iter %d: blank log entry at %d", iter, i)
			}
			if entry.Row < 2 || entry.Row > n+1 {
				t.Fatalf("iter %d: row %d out of range", iter, entry.Row)
			}
			if i > 0 && st.Logs[i-1].Row >= entry.Row {
				t.Fatalf("iter %d: logs not strictly ascending: %v", iter, st.Logs)
			}
		}
	}
}
