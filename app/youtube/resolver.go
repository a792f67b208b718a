package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var embeddedChannelIDPattern = regexp.MustCompile(`"channelId":"(UC[0-9A-Za-z_-]{22})"`)

// Resolver turns user-supplied channel references (UC ids, /channel/ URLs,
// @handles and handle URLs) into canonical channel identifiers.
type Resolver struct {
	httpClient *http.Client
	userAgent  string
}

func NewResolver(httpClient *http.Client, userAgent string) *Resolver {
	return &Resolver{
		httpClient: httpClient,
		userAgent:  userAgent,
	}
}

func (r *Resolver) Resolve(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("channel reference is empty")
	}

	if IsChannelID(input) {
		return input, nil
	}

	if id := extractChannelIDFromURL(input); id != "" {
		return id, nil
	}

	pageURL, err := handlePageURL(input)
	if err != nil {
		return "", err
	}

	id, err := r.resolveFromPage(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to resolve channel from %s: %w", pageURL, err)
	}

	return id, nil
}

// extractChannelIDFromURL handles URLs of the form .../channel/UCxxx[/...].
func extractChannelIDFromURL(input string) string {
	idx := strings.Index(input, "/channel/")
	if idx == -1 {
		return ""
	}

	rest := input[idx+len("/channel/"):]
	if end := strings.IndexAny(rest, "/?#"); end != -1 {
		rest = rest[:end]
	}

	if IsChannelID(rest) {
		return rest
	}

	return ""
}

// handlePageURL normalizes a handle reference to the channel's root page.
func handlePageURL(input string) (string, error) {
	if strings.HasPrefix(input, "@") {
		return "https://www.youtube.com/" + input, nil
	}

	if strings.Contains(input, "youtube.com/") {
		parsed, err := url.Parse(input)
		if err != nil {
			return "", fmt.Errorf("failed to parse channel URL: %w", err)
		}

		path := strings.TrimPrefix(parsed.Path, "/")
		if strings.HasPrefix(path, "@") {
			// Strip trailing segments such as /videos or /streams.
			handle := path
			if end := strings.Index(handle, "/"); end != -1 {
				handle = handle[:end]
			}
			return "https://www.youtube.com/" + handle, nil
		}

		// Legacy /c/ and /user/ pages also embed the channel id.
		if strings.HasPrefix(path, "c/") || strings.HasPrefix(path, "user/") {
			return "https://www.youtube.com/" + path, nil
		}
	}

	return "", fmt.Errorf("unrecognized channel reference: %s", input)
}

func (r *Resolver) resolveFromPage(ctx context.Context, pageURL string) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch channel page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err == nil {
		if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
			if id := extractChannelIDFromURL(href); id != "" {
				return id, nil
			}
		}
	}

	if m := embeddedChannelIDPattern.FindStringSubmatch(string(body)); m != nil {
		return m[1], nil
	}

	return "", fmt.Errorf("no channel id found in page")
}
