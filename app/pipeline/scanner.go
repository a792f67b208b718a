package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwhan/tubedigest/app/database"
)

// Scanner walks a user's registered channels and records their most recent
// uploads. A failing channel is logged and skipped so one dead feed cannot
// block the rest of the scan.
type Scanner struct {
	feed        FeedFetcher
	channelRepo database.ChannelRepository
	scanRepo    database.ScanRepository
	perChannel  int
}

func NewScanner(feed FeedFetcher, channelRepo database.ChannelRepository, scanRepo database.ScanRepository, perChannel int) *Scanner {
	return &Scanner{
		feed:        feed,
		channelRepo: channelRepo,
		scanRepo:    scanRepo,
		perChannel:  perChannel,
	}
}

// Run scans every channel owned by userID and returns the number of items
// recorded. With reset set, previously scanned items are cleared first so the
// scan starts from a blank slate.
func (s *Scanner) Run(ctx context.Context, userID int64, reset bool) (int, error) {
	if reset {
		if err := s.scanRepo.DeleteScannedItems(userID); err != nil {
			return 0, fmt.Errorf("failed to reset scanned items: %w", err)
		}
	}

	channels, err := s.channelRepo.ListChannels(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to list channels: %w", err)
	}

	scanned := 0
	for _, channel := range channels {
		select {
		case <-ctx.Done():
			return scanned, ctx.Err()
		default:
		}

		count, err := s.scanChannel(ctx, userID, channel)
		if err != nil {
			slog.Warn("Channel scan failed", "channel", channel.ChannelID, "title", channel.Title, "error", err)
			continue
		}
		scanned += count
	}

	return scanned, nil
}

func (s *Scanner) scanChannel(ctx context.Context, userID int64, channel database.Channel) (int, error) {
	feedTitle, entries, err := s.feed.FetchEntries(ctx, channel.ChannelID)
	if err != nil {
		return 0, err
	}

	if feedTitle == "" {
		feedTitle = channel.Title
	} else if feedTitle != channel.Title {
		// Channels added through the dashboard start without a title.
		if err := s.channelRepo.UpsertChannel(userID, channel.ChannelID, channel.Source, feedTitle, channel.RecipientEmail); err != nil {
			return 0, fmt.Errorf("failed to update channel title: %w", err)
		}
	}

	if len(entries) > s.perChannel {
		entries = entries[:s.perChannel]
	}

	now := time.Now().UTC()
	for _, entry := range entries {
		item := database.ScannedItem{
			UserID:       userID,
			ChannelID:    channel.ChannelID,
			ChannelTitle: feedTitle,
			VideoID:      entry.VideoID,
			VideoTitle:   entry.Title,
			VideoURL:     entry.URL,
			PublishedAt:  entry.PublishedAt,
			ScannedAt:    now,
		}
		if err := s.scanRepo.UpsertScannedItem(item); err != nil {
			return 0, fmt.Errorf("failed to store scanned item: %w", err)
		}
	}

	slog.Debug("Channel scanned", "channel", channel.ChannelID, "title", feedTitle, "items", len(entries))

	return len(entries), nil
}
