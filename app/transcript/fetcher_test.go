package transcript

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const sampleTimedText = `<?xml version="1.0" encoding="utf-8"?>
<transcript>
  <text start="0.0" dur="2.5">Hello   everyone,</text>
  <text start="2.5" dur="3.0">welcome back to the channel.</text>
  <text start="5.5" dur="2.0">Let&amp;#39;s get started.</text>
</transcript>`

func watchPage(tracksJSON string) string {
	return fmt.Sprintf(`<html><body><script>var ytInitialPlayerResponse = {"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":%s,"audioTracks":[]}}};</script></body></html>`, tracksJSON)
}

func newTestFetcher(server *httptest.Server) *Fetcher {
	fetcher := NewFetcher(server.Client(), "test-agent")
	fetcher.watchURLTemplate = server.URL + "/watch?v=%s"
	fetcher.retryDelay = time.Millisecond
	return fetcher
}

func TestFetchPrefersManualTrack(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/watch"):
			tracks := fmt.Sprintf(`[{"baseUrl":"%s/timedtext?lang=en&kind=asr","languageCode":"en","kind":"asr"},{"baseUrl":"%s/timedtext?lang=en","languageCode":"en"}]`, server.URL, server.URL)
			fmt.Fprint(w, watchPage(tracks))
		case strings.HasPrefix(r.URL.Path, "/timedtext"):
			if r.URL.Query().Get("kind") == "asr" {
				t.Error("Expected manual track to be fetched, got auto-generated")
			}
			fmt.Fprint(w, sampleTimedText)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	text, err := newTestFetcher(server).Fetch(context.Background(), "video-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := "Hello everyone, welcome back to the channel. Let's get started."
	if text != expected {
		t.Errorf("Expected %q, got %q", expected, text)
	}
}

func TestFetchFallsBackToGeneratedTrack(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/watch"):
			tracks := fmt.Sprintf(`[{"baseUrl":"%s/timedtext?lang=ko","languageCode":"ko"},{"baseUrl":"%s/timedtext?lang=en&kind=asr","languageCode":"en","kind":"asr"}]`, server.URL, server.URL)
			fmt.Fprint(w, watchPage(tracks))
		case strings.HasPrefix(r.URL.Path, "/timedtext"):
			if r.URL.Query().Get("lang") != "en" {
				t.Errorf("Expected English track, got lang=%s", r.URL.Query().Get("lang"))
			}
			fmt.Fprint(w, sampleTimedText)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	text, err := newTestFetcher(server).Fetch(context.Background(), "video-2")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if text == "" {
		t.Error("Expected non-empty transcript")
	}
}

func TestFetchNoCaptionTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>no captions in here</body></html>`)
	}))
	defer server.Close()

	_, err := newTestFetcher(server).Fetch(context.Background(), "video-3")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("Expected ErrNoTranscript, got: %v", err)
	}
}

func TestFetchNoEnglishTrack(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracks := fmt.Sprintf(`[{"baseUrl":"%s/timedtext?lang=ko","languageCode":"ko"},{"baseUrl":"%s/timedtext?lang=ja","languageCode":"ja"}]`, server.URL, server.URL)
		fmt.Fprint(w, watchPage(tracks))
	}))
	defer server.Close()

	_, err := newTestFetcher(server).Fetch(context.Background(), "video-4")
	if !errors.Is(err, ErrNoTranscript) {
		t.Errorf("Expected ErrNoTranscript, got: %v", err)
	}
}

func TestFetchRetriesTransientFailure(t *testing.T) {
	attempts := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/watch"):
			attempts++
			if attempts == 1 {
				http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
				return
			}
			tracks := fmt.Sprintf(`[{"baseUrl":"%s/timedtext?lang=en","languageCode":"en"}]`, server.URL)
			fmt.Fprint(w, watchPage(tracks))
		case strings.HasPrefix(r.URL.Path, "/timedtext"):
			fmt.Fprint(w, sampleTimedText)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	text, err := newTestFetcher(server).Fetch(context.Background(), "video-5")
	if err != nil {
		t.Fatalf("Expected no error after retry, got: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 watch page attempts, got: %d", attempts)
	}
	if text == "" {
		t.Error("Expected non-empty transcript")
	}
}

func TestSelectEnglishTrack(t *testing.T) {
	tests := []struct {
		name     string
		tracks   []captionTrack
		expected string
	}{
		{
			name: "manual beats generated",
			tracks: []captionTrack{
				{BaseURL: "gen", LanguageCode: "en", Kind: "asr"},
				{BaseURL: "manual", LanguageCode: "en-GB"},
			},
			expected: "manual",
		},
		{
			name: "generated only",
			tracks: []captionTrack{
				{BaseURL: "gen", LanguageCode: "en", Kind: "asr"},
			},
			expected: "gen",
		},
		{
			name: "no english",
			tracks: []captionTrack{
				{BaseURL: "ko", LanguageCode: "ko"},
			},
			expected: "",
		},
		{
			name:     "empty",
			tracks:   nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := selectEnglishTrack(tt.tracks)
			got := ""
			if track != nil {
				got = track.BaseURL
			}
			if got != tt.expected {
				t.Errorf("Expected track %q, got %q", tt.expected, got)
			}
		})
	}
}
