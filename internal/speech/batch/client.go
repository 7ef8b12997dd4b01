// Package batch implements speech.Provider against an Azure-style batch
// transcription REST API.
package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drewano/VocalAlchemy/internal/speech"
)

const transcriptionsPath = "/speechtotext/v3.1/transcriptions"

// Client talks to the batch transcription API.
type Client struct {
	endpoint   string
	apiKey     string
	locale     string
	httpClient *http.Client
}

// NewClient constructs a batch transcription client.
func NewClient(endpoint, apiKey, locale string) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("SPEECH_ENDPOINT is required")
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("SPEECH_API_KEY is required")
	}
	if strings.TrimSpace(locale) == "" {
		locale = "fr-FR"
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		locale:   locale,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

type createRequest struct {
	ContentURLs []string       `json:"contentUrls"`
	Locale      string         `json:"locale"`
	DisplayName string         `json:"displayName"`
	Properties  map[string]any `json:"properties,omitempty"`
}

type transcriptionResource struct {
	Self       string `json:"self"`
	Status     string `json:"status"`
	Properties struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"properties"`
}

// Submit creates a transcription job for the audio at audioURL and returns
// the job's resource URL.
func (c *Client) Submit(ctx context.Context, audioURL, displayName string) (string, error) {
	payload, err := json.Marshal(createRequest{
		ContentURLs: []string{audioURL},
		Locale:      c.locale,
		DisplayName: displayName,
		Properties: map[string]any{
			"diarizationEnabled":  true,
			"punctuationMode":     "DictatedAndAutomatic",
			"profanityFilterMode": "None",
		},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+transcriptionsPath, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	var resource transcriptionResource
	if err := c.do(req, http.StatusCreated, &resource); err != nil {
		return "", fmt.Errorf("submit transcription: %w", err)
	}
	if resource.Self == "" {
		return "", fmt.Errorf("submit transcription: response missing self URL")
	}
	return resource.Self, nil
}

// Status maps the provider's job status onto speech.JobState. Statuses this
// client does not recognize count as still running so a provider rollout
// cannot fail jobs spuriously.
func (c *Client) Status(ctx context.Context, jobURL string) (speech.StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jobURL, nil)
	if err != nil {
		return speech.StatusResult{}, err
	}
	c.setHeaders(req)

	var resource transcriptionResource
	if err := c.do(req, http.StatusOK, &resource); err != nil {
		return speech.StatusResult{}, fmt.Errorf("poll transcription: %w", err)
	}

	switch strings.ToLower(resource.Status) {
	case "succeeded":
		return speech.StatusResult{State: speech.StateSucceeded}, nil
	case "failed":
		detail := resource.Properties.Error.Message
		if detail == "" {
			detail = resource.Properties.Error.Code
		}
		if detail == "" {
			detail = "transcription failed"
		}
		return speech.StatusResult{State: speech.StateFailed, Error: detail}, nil
	default:
		return speech.StatusResult{State: speech.StateRunning}, nil
	}
}

type filesResponse struct {
	Values []struct {
		Kind  string `json:"kind"`
		Links struct {
			ContentURL string `json:"contentUrl"`
		} `json:"links"`
	} `json:"values"`
}

type resultDocument struct {
	CombinedRecognizedPhrases []struct {
		Channel int    `json:"channel"`
		Display string `json:"display"`
	} `json:"combinedRecognizedPhrases"`
}

// FetchResult downloads the transcript text of a succeeded job.
func (c *Client) FetchResult(ctx context.Context, jobURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(jobURL, "/")+"/files", nil)
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	var files filesResponse
	if err := c.do(req, http.StatusOK, &files); err != nil {
		return "", fmt.Errorf("list transcription files: %w", err)
	}

	var contentURL string
	for _, f := range files.Values {
		if strings.EqualFold(f.Kind, "Transcription") {
			contentURL = f.Links.ContentURL
			break
		}
	}
	if contentURL == "" {
		return "", fmt.Errorf("transcription result file not found")
	}

	// Content URLs are pre-signed; no subscription key header.
	contentReq, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return "", err
	}
	var doc resultDocument
	if err := c.do(contentReq, http.StatusOK, &doc); err != nil {
		return "", fmt.Errorf("download transcription result: %w", err)
	}

	var b strings.Builder
	for i, phrase := range doc.CombinedRecognizedPhrases {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(phrase.Display)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("transcription result is empty")
	}
	return b.String(), nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (c *Client) do(req *http.Request, wantStatus int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ speech.Provider = (*Client)(nil)
