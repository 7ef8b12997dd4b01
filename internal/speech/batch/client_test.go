package batch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/drewano/VocalAlchemy/internal/speech"
)

func newTestClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(endpoint, "test-key", "fr-FR")
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestSubmitReturnsJobURL(t *testing.T) {
	var gotBody createRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transcriptionsPath {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "test-key" {
			t.Errorf("missing subscription key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"self":   "https://example.test/transcriptions/job-1",
			"status": "NotStarted",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	jobURL, err := c.Submit(context.Background(), "https://example.test/audio.flac", "standup.mp3")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobURL != "https://example.test/transcriptions/job-1" {
		t.Fatalf("jobURL = %q", jobURL)
	}
	if len(gotBody.ContentURLs) != 1 || gotBody.Locale != "fr-FR" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
}

func TestStatusMapsProviderStates(t *testing.T) {
	tests := []struct {
		name     string
		payload  map[string]any
		want     speech.JobState
		wantErrS string
	}{
		{name: "succeeded", payload: map[string]any{"status": "Succeeded"}, want: speech.StateSucceeded},
		{name: "running", payload: map[string]any{"status": "Running"}, want: speech.StateRunning},
		{
			name: "failed with detail",
			payload: map[string]any{
				"status":     "Failed",
				"properties": map[string]any{"error": map[string]any{"code": "InvalidAudio", "message": "bad audio"}},
			},
			want:     speech.StateFailed,
			wantErrS: "bad audio",
		},
		// A status this client has never seen must count as running.
		{name: "unknown status", payload: map[string]any{"status": "SomethingNew"}, want: speech.StateRunning},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(tt.payload)
			}))
			defer srv.Close()

			c := newTestClient(t, srv.URL)
			got, err := c.Status(context.Background(), srv.URL+"/transcriptions/job-1")
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if got.State != tt.want {
				t.Fatalf("state = %s, want %s", got.State, tt.want)
			}
			if tt.wantErrS != "" && got.Error != tt.wantErrS {
				t.Fatalf("error = %q, want %q", got.Error, tt.wantErrS)
			}
		})
	}
}

func TestFetchResultJoinsPhrases(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/transcriptions/job-1/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"values": []map[string]any{
				{"kind": "TranscriptionReport", "links": map[string]any{"contentUrl": srv.URL + "/report.json"}},
				{"kind": "Transcription", "links": map[string]any{"contentUrl": srv.URL + "/result.json"}},
			},
		})
	})
	mux.HandleFunc("/result.json", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "" {
			t.Errorf("content download must not send the subscription key")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"combinedRecognizedPhrases": []map[string]any{
				{"channel": 0, "display": "Bonjour tout le monde."},
				{"channel": 1, "display": "On commence."},
			},
		})
	})

	c := newTestClient(t, srv.URL)
	text, err := c.FetchResult(context.Background(), srv.URL+"/transcriptions/job-1")
	if err != nil {
		t.Fatalf("FetchResult: %v", err)
	}
	want := "Bonjour tout le monde.\nOn commence."
	if text != want {
		t.Fatalf("text = %q, want %q", text, want)
	}
}
