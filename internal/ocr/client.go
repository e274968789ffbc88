package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"beaconattend/internal/apperr"
)

// Prompt is the instruction sent alongside the timetable image.
const Prompt = "You are a timetable parser. Extract ALL class sessions from this timetable image.\n" +
	"Return ONLY valid JSON – an array of objects, no markdown, no extra text.\n" +
	`Each object: { "subject": string, "timeStart": "HH:MM", "timeEnd": "HH:MM", "room": string }` + "\n" +
	`Example: [{"subject":"Machine Learning","timeStart":"09:00","timeEnd":"10:30","room":"LH-204"}]`

// MaxImageBytes is the largest decoded image the service accepts.
const MaxImageBytes = 20 * 1024 * 1024

const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel     = "gemini-1.5-flash"
	DefaultMockDelay = 1800 * time.Millisecond
)

// Entry is one timetable row.
type Entry struct {
	Subject   string `json:"subject"`
	TimeStart string `json:"timeStart"`
	TimeEnd   string `json:"timeEnd"`
	Room      string `json:"room"`
}

// MockEntries is returned when no API key is configured.
var MockEntries = []Entry{
	{Subject: "Machine Learning", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-204"},
	{Subject: "Data Structures", TimeStart: "11:00", TimeEnd: "12:30", Room: "LH-101"},
	{Subject: "AI Fundamentals", TimeStart: "14:00", TimeEnd: "15:30", Room: "LH-204"},
	{Subject: "Database Systems", TimeStart: "16:00", TimeEnd: "17:00", Room: "LH-302"},
}

// Client calls the Gemini generateContent endpoint.
type Client struct {
	BaseURL   string
	Model     string
	APIKey    string
	MockDelay time.Duration
	HTTP      *http.Client
}

// New creates a client. An empty apiKey switches the client to mock mode.
func New(baseURL, model, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Model:     model,
		APIKey:    apiKey,
		MockDelay: DefaultMockDelay,
		HTTP: &http.Client{
			Timeout: 60 * time.Second, // vision calls on large images are slow
		},
	}
}

// Mock reports whether the client returns canned data.
func (c *Client) Mock() bool { return c.APIKey == "" }

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseTimetable extracts timetable rows from an image data URL (or raw base64).
func (c *Client) ParseTimetable(ctx context.Context, dataURL string) ([]Entry, error) {
	if c.Mock() {
		select {
		case <-time.After(c.MockDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		out := make([]Entry, len(MockEntries))
		copy(out, MockEntries)
		return out, nil
	}
	if dataURL == "" {
		return nil, apperr.Clone(apperr.ErrValidation, "no image data provided")
	}

	mime, data := splitDataURL(dataURL)
	if len(data)*3/4 > MaxImageBytes {
		return nil, apperr.Clone(apperr.ErrValidation, "image too large, use an image smaller than 20MB")
	}

	body, _ := json.Marshal(map[string]any{
		"contents": []content{{Parts: []part{
			{InlineData: &inlineData{MimeType: mime, Data: data}},
			{Text: Prompt},
		}}},
	})
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.BaseURL, c.Model, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("ocr request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 100))
		return nil, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("ocr service error %s: %s", resp.Status, string(bodyBytes)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("failed to decode response: %w", err))
	}
	if out.Error != nil {
		return nil, apperr.Wrap(apperr.ErrUpstream, fmt.Errorf("ocr service error: %s", out.Error.Message))
	}

	raw := "[]"
	if len(out.Candidates) > 0 && len(out.Candidates[0].Content.Parts) > 0 && out.Candidates[0].Content.Parts[0].Text != "" {
		raw = out.Candidates[0].Content.Parts[0].Text
	}
	return Decode(raw)
}

var (
	jsonFence = regexp.MustCompile("(?i)```json\\s*")
	anyFence  = regexp.MustCompile("```\\s*")
)

// Decode strips Markdown code fences from model output and parses it as a JSON
// array of entries.
func Decode(raw string) ([]Entry, error) {
	cleaned := strings.TrimSpace(anyFence.ReplaceAllString(jsonFence.ReplaceAllString(raw, ""), ""))

	var probe json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidOCRPayload, fmt.Errorf("failed to parse timetable data: %w", err))
	}
	if !strings.HasPrefix(strings.TrimSpace(string(probe)), "[") {
		return nil, apperr.Wrap(apperr.ErrInvalidOCRPayload, fmt.Errorf("parsed result is not an array"))
	}
	var entries []Entry
	if err := json.Unmarshal(probe, &entries); err != nil {
		return nil, apperr.Wrap(apperr.ErrInvalidOCRPayload, fmt.Errorf("failed to parse timetable data: %w", err))
	}
	return entries, nil
}

// splitDataURL returns the mime type and base64 payload of a data URL. Raw
// base64 is treated as JPEG.
func splitDataURL(s string) (string, string) {
	header, data := "", s
	if i := strings.Index(s, ","); i >= 0 {
		header, data = s[:i], s[i+1:]
	}
	mime := "image/jpeg"
	if strings.Contains(header, "png") {
		mime = "image/png"
	}
	return mime, data
}
