package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	c, err := New(ts.URL)
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}
	return ts, c
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("   "); err == nil {
		t.Fatal("Expected an error for empty base URL")
	}
}

func TestFetchStateCanonical(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sheet" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		if req["action"] != "get-state" {
			t.Errorf("Expected get-state action, got %v", req["action"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"A2":       "RUN",
				"imageUrl": "http://y/cap.png",
				"D2":       "042",
				"logs":     []map[string]interface{}{{"row": 3, "text": "line2"}},
			},
		})
	})

	st, err := c.FetchState(context.Background())
	if err != nil {
		t.Fatalf("FetchState failed: %v", err)
	}
	if st.A2 != "RUN" || st.ImageURL != "http://y/cap.png" || st.D2 != "042" {
		t.Errorf("Unexpected state: %+v", st)
	}
	if len(st.Logs) != 1 || st.Logs[0].Row != 3 {
		t.Errorf("Unexpected logs: %v", st.Logs)
	}
}

func TestFetchStateLegacyShape(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"A2": "RUN",
				"C2": `=IMAGE("http://x/cap.png", 4)`,
				"E2": "one\ntwo",
			},
		})
	})

	st, err := c.FetchState(context.Background())
	if err != nil {
		t.Fatalf("FetchState failed: %v", err)
	}
	if st.ImageURL != "http://x/cap.png" {
		t.Errorf("Expected unwrapped C2 fallback, got %q", st.ImageURL)
	}
	if len(st.Logs) != 2 || st.Logs[1].Text != "two" {
		t.Errorf("Expected multiline E2 logs, got %v", st.Logs)
	}
}

func TestFetchStateRemoteError(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "sheet on fire",
		})
	})

	_, err := c.FetchState(context.Background())
	var rerr *RemoteError
	if !errors.As(err, &rerr) {
		t.Fatalf("Expected RemoteError, got %T: %v", err, err)
	}
	if rerr.Message != "sheet on fire" {
		t.Errorf("Expected server-supplied message, got %q", rerr.Message)
	}
}

func TestFetchStateNetworkErrorOnNon2xx(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := c.FetchState(context.Background())
	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected NetworkError, got %T: %v", err, err)
	}
	if nerr.StatusCode != http.StatusBadGateway {
		t.Errorf("Expected status 502, got %d", nerr.StatusCode)
	}
}

func TestFetchStateNetworkErrorOnTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(url)
	if err != nil {
		t.Fatalf("Failed to build client: %v", err)
	}

	_, err = c.FetchState(context.Background())
	var nerr *NetworkError
	if !errors.As(err, &nerr) {
		t.Fatalf("Expected NetworkError, got %T: %v", err, err)
	}
}

func TestTriggerRunWritesRunCommand(t *testing.T) {
	var got map[string]interface{}
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	if err := c.TriggerRun(context.Background()); err != nil {
		t.Fatalf("TriggerRun failed: %v", err)
	}
	if got["action"] != "update-cell" || got["cell"] != "A2" || got["value"] != "RUN" {
		t.Errorf("Unexpected request body: %v", got)
	}
}

func TestSubmitAnswer(t *testing.T) {
	var got map[string]interface{}
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	if err := c.SubmitAnswer(context.Background(), "123"); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if got["cell"] != "D2" || got["value"] != "123" {
		t.Errorf("Unexpected request body: %v", got)
	}
}

// Validation is centralized in the client: a malformed answer is rejected
// before any request goes out.
func TestSubmitAnswerRejectsNonThreeDigits(t *testing.T) {
	var hits int64
	_, c := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt64(&hits, 1)
		json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
	})

	for _, answer := range []string{"", "12", "1234", "12a", "abc", " 123"} {
		if err := c.SubmitAnswer(context.Background(), answer); err == nil {
			t.Errorf("Expected %q to be rejected", answer)
		}
	}
	if atomic.LoadInt64(&hits) != 0 {
		t.Errorf("Rejected answers must not issue writes, saw %d requests", hits)
	}
}
