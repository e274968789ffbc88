package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beaconattend/internal/apperr"
)

func geminiReply(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}},
		},
	}
}

func TestDecodeStripsFences(t *testing.T) {
	raw := "```json\n[{\"subject\":\"Machine Learning\",\"timeStart\":\"09:00\",\"timeEnd\":\"10:30\",\"room\":\"LH-204\"}]\n```"
	entries, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, Entry{Subject: "Machine Learning", TimeStart: "09:00", TimeEnd: "10:30", Room: "LH-204"}, entries[0])

	entries, err = Decode("```\n[]\n```")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecodeRejectsNonArray(t *testing.T) {
	_, err := Decode(`{"subject":"ML"}`)
	assert.ErrorIs(t, err, apperr.ErrInvalidOCRPayload)

	_, err = Decode("Sorry, I cannot read this image.")
	assert.ErrorIs(t, err, apperr.ErrInvalidOCRPayload)
}

func TestParseTimetableMock(t *testing.T) {
	c := New("", "", "")
	c.MockDelay = time.Millisecond
	require.True(t, c.Mock())

	entries, err := c.ParseTimetable(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, MockEntries, entries)
	assert.Len(t, entries, 4)
}

func TestParseTimetableMockHonoursContext(t *testing.T) {
	c := New("", "", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ParseTimetable(ctx, "data:image/png;base64,AAAA")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseTimetableCallsGemini(t *testing.T) {
	var got struct {
		Contents []struct {
			Parts []struct {
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(geminiReply("```json\n[{\"subject\":\"DBMS\",\"timeStart\":\"16:00\",\"timeEnd\":\"17:00\",\"room\":\"LH-302\"}]```"))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "k1")
	entries, err := c.ParseTimetable(context.Background(), "data:image/png;base64,iVBORw0KGgo=")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "DBMS", entries[0].Subject)

	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "image/png", got.Contents[0].Parts[0].InlineData.MimeType)
	assert.Equal(t, "iVBORw0KGgo=", got.Contents[0].Parts[0].InlineData.Data)
	assert.True(t, strings.HasPrefix(got.Contents[0].Parts[1].Text, "You are a timetable parser"))
}

func TestParseTimetableUpstreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "bad" {
			http.Error(w, "API key not valid", http.StatusForbidden)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 429, "message": "quota"}})
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", "bad").ParseTimetable(context.Background(), "AAAA")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	_, err = New(srv.URL, "", "good").ParseTimetable(context.Background(), "AAAA")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
	assert.Contains(t, err.Error(), "quota")
}

func TestParseTimetableNonArrayReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(geminiReply(`{"classes": []}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", "k").ParseTimetable(context.Background(), "AAAA")
	assert.ErrorIs(t, err, apperr.ErrInvalidOCRPayload)
}

func TestParseTimetableRejectsHugeImage(t *testing.T) {
	c := New("http://unused.invalid", "", "k")
	_, err := c.ParseTimetable(context.Background(), strings.Repeat("A", MaxImageBytes/3*4+8))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSplitDataURL(t *testing.T) {
	mime, data := splitDataURL("data:image/png;base64,QUJD")
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, "QUJD", data)

	mime, data = splitDataURL("QUJD")
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "QUJD", data)
}
