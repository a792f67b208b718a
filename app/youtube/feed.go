package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"
)

const defaultFeedURLTemplate = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

// FeedClient fetches a channel's upload feed and normalizes its entries.
type FeedClient struct {
	httpClient      *http.Client
	gofeedParser    *gofeed.Parser
	userAgent       string
	feedURLTemplate string
}

func NewFeedClient(httpClient *http.Client, userAgent string) *FeedClient {
	return &FeedClient{
		httpClient:      httpClient,
		gofeedParser:    gofeed.NewParser(),
		userAgent:       userAgent,
		feedURLTemplate: defaultFeedURLTemplate,
	}
}

// FetchEntries returns the channel title and the feed's entries, newest first.
func (c *FeedClient) FetchEntries(ctx context.Context, channelID string) (string, []Entry, error) {
	data, err := c.fetchFeed(ctx, fmt.Sprintf(c.feedURLTemplate, channelID))
	if err != nil {
		return "", nil, fmt.Errorf("failed to fetch feed: %w", err)
	}

	feed, err := c.gofeedParser.ParseString(string(data))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	entries := make([]Entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		entry := c.normalizeEntry(item, channelID, feed.Title)
		if entry.VideoID == "" {
			continue
		}
		entries = append(entries, entry)
	}

	return feed.Title, entries, nil
}

func (c *FeedClient) fetchFeed(ctx context.Context, feedURL string) ([]byte, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
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

func (c *FeedClient) normalizeEntry(item *gofeed.Item, channelID, channelTitle string) Entry {
	entry := Entry{
		Title:        item.Title,
		URL:          item.Link,
		ChannelID:    channelID,
		ChannelTitle: channelTitle,
	}

	if item.PublishedParsed != nil {
		entry.PublishedAt = *item.PublishedParsed
	}

	entry.VideoID = extractVideoID(item)
	if entry.URL == "" && entry.VideoID != "" {
		entry.URL = "https://www.youtube.com/watch?v=" + entry.VideoID
	}

	return entry
}

func extractVideoID(item *gofeed.Item) string {
	if ext, ok := item.Extensions["yt"]; ok {
		if ids, ok := ext["videoId"]; ok && len(ids) > 0 {
			return ids[0].Value
		}
	}

	if item.Link != "" {
		if parsed, err := url.Parse(item.Link); err == nil {
			if v := parsed.Query().Get("v"); v != "" {
				return v
			}
		}
	}

	return ""
}
