package transcript

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// ErrNoTranscript is returned when a video has no usable English caption
// track. Callers treat it as a permanent condition rather than a transient
// fetch failure.
var ErrNoTranscript = errors.New("no English transcript available")

const (
	defaultWatchURLTemplate = "https://www.youtube.com/watch?v=%s"
	fetchAttempts           = 2
	retryDelay              = 500 * time.Millisecond
)

var englishMatcher = language.NewMatcher([]language.Tag{language.English})

var whitespacePattern = regexp.MustCompile(`\s+`)

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"`
}

type timedTextBody struct {
	Texts []struct {
		Value string `xml:",chardata"`
	} `xml:"text"`
}

// Fetcher retrieves English caption text for a video by scraping the watch
// page's player configuration.
type Fetcher struct {
	httpClient       *http.Client
	userAgent        string
	watchURLTemplate string
	retryDelay       time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string) *Fetcher {
	return &Fetcher{
		httpClient:       httpClient,
		userAgent:        userAgent,
		watchURLTemplate: defaultWatchURLTemplate,
		retryDelay:       retryDelay,
	}
}

// Fetch returns the plain-text English transcript for videoID. A manually
// created track is preferred over an auto-generated one.
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (string, error) {
	var lastErr error

	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		text, err := f.fetchOnce(ctx, videoID)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, ErrNoTranscript) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("failed to fetch transcript: %w", lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, videoID string) (string, error) {
	page, err := f.get(ctx, fmt.Sprintf(f.watchURLTemplate, videoID))
	if err != nil {
		return "", err
	}

	tracks, err := parseCaptionTracks(page)
	if err != nil {
		return "", err
	}

	track := selectEnglishTrack(tracks)
	if track == nil {
		return "", ErrNoTranscript
	}

	data, err := f.get(ctx, track.BaseURL)
	if err != nil {
		return "", err
	}

	text, err := parseTimedText(data)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoTranscript
	}

	return text, nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}

// parseCaptionTracks locates the captionTracks array embedded in the watch
// page's player response JSON.
func parseCaptionTracks(page []byte) ([]captionTrack, error) {
	const marker = `"captionTracks":`

	idx := strings.Index(string(page), marker)
	if idx == -1 {
		return nil, ErrNoTranscript
	}

	decoder := json.NewDecoder(strings.NewReader(string(page[idx+len(marker):])))

	var tracks []captionTrack
	if err := decoder.Decode(&tracks); err != nil {
		return nil, fmt.Errorf("failed to parse caption tracks: %w", err)
	}

	return tracks, nil
}

func selectEnglishTrack(tracks []captionTrack) *captionTrack {
	var generated *captionTrack

	for i := range tracks {
		track := &tracks[i]
		if track.BaseURL == "" || !isEnglish(track.LanguageCode) {
			continue
		}

		// "asr" marks an auto-generated track; keep it as a fallback.
		if track.Kind == "asr" {
			if generated == nil {
				generated = track
			}
			continue
		}

		return track
	}

	return generated
}

func isEnglish(code string) bool {
	tag, err := language.Parse(code)
	if err != nil {
		return false
	}

	_, _, confidence := englishMatcher.Match(tag)
	return confidence >= language.High
}

func parseTimedText(data []byte) (string, error) {
	var body timedTextBody
	if err := xml.Unmarshal(data, &body); err != nil {
		return "", fmt.Errorf("failed to parse timed text: %w", err)
	}

	parts := make([]string, 0, len(body.Texts))
	for _, text := range body.Texts {
		unescaped := strings.TrimSpace(html.UnescapeString(text.Value))
		if unescaped != "" {
			parts = append(parts, unescaped)
		}
	}

	return whitespacePattern.ReplaceAllString(strings.Join(parts, " "), " "), nil
}
