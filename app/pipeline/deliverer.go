package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwhan/tubedigest/app/database"
	"github.com/jwhan/tubedigest/app/mailer"
	"github.com/jwhan/tubedigest/app/summarizer"
	"github.com/jwhan/tubedigest/app/youtube"
)

// CLIOwnerID is the synthetic account that owns channels registered through
// the command line rather than the web dashboard.
const CLIOwnerID int64 = 0

// DelivererOptions carry the environment-level settings the CLI delivery
// path runs with.
type DelivererOptions struct {
	APIKey            string
	Model             string
	RecipientFallback string
	PerChannel        int
}

// Deliverer implements the command-line poll cycle: fetch recent uploads,
// summarize the ones not yet sent, and email them out.
type Deliverer struct {
	feed        FeedFetcher
	transcripts TranscriptFetcher
	summarizer  Summarizer
	mailer      Mailer
	channelRepo database.ChannelRepository
	sentRepo    database.SentRepository
	opts        DelivererOptions
}

func NewDeliverer(feed FeedFetcher, transcripts TranscriptFetcher, summarizer Summarizer,
	mailer Mailer, channelRepo database.ChannelRepository, sentRepo database.SentRepository,
	opts DelivererOptions) *Deliverer {
	if opts.PerChannel <= 0 {
		opts.PerChannel = 5
	}
	return &Deliverer{
		feed:        feed,
		transcripts: transcripts,
		summarizer:  summarizer,
		mailer:      mailer,
		channelRepo: channelRepo,
		sentRepo:    sentRepo,
		opts:        opts,
	}
}

// RunOnce processes every CLI-registered channel once and returns the number
// of emails sent.
func (d *Deliverer) RunOnce(ctx context.Context) (int, error) {
	if d.opts.APIKey == "" {
		slog.Error("OpenAI API key is not configured, skipping delivery cycle")
		return 0, fmt.Errorf("OpenAI API key is not configured")
	}

	channels, err := d.channelRepo.ListChannels(CLIOwnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to list channels: %w", err)
	}

	if len(channels) == 0 {
		slog.Info("No channels registered, nothing to deliver")
		return 0, nil
	}

	sent := 0
	for _, channel := range channels {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}

		count, err := d.deliverChannel(ctx, channel)
		if err != nil {
			slog.Warn("Channel delivery failed", "channel", channel.ChannelID, "title", channel.Title, "error", err)
			continue
		}
		sent += count
	}

	slog.Info("Delivery cycle completed", "channels", len(channels), "sent", sent)

	return sent, nil
}

// RunDaemon runs delivery cycles on a fixed interval until ctx is cancelled.
// The first cycle starts immediately.
func (d *Deliverer) RunDaemon(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Polling started", "interval", interval.String())

	for {
		if _, err := d.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("Delivery cycle failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Deliverer) deliverChannel(ctx context.Context, channel database.Channel) (int, error) {
	feedTitle, entries, err := d.feed.FetchEntries(ctx, channel.ChannelID)
	if err != nil {
		return 0, err
	}

	if feedTitle == "" {
		feedTitle = channel.Title
	}

	if len(entries) > d.opts.PerChannel {
		entries = entries[:d.opts.PerChannel]
	}

	recipient := channel.RecipientEmail
	if recipient == "" {
		recipient = d.opts.RecipientFallback
	}
	if recipient == "" {
		slog.Warn("No recipient configured for channel, skipping", "channel", channel.ChannelID, "title", feedTitle)
		return 0, nil
	}

	// Send in upload order so the inbox reads chronologically.
	sent := 0
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]

		alreadySent, err := d.sentRepo.IsSent(CLIOwnerID, entry.VideoID)
		if err != nil {
			return sent, fmt.Errorf("failed to check sent state: %w", err)
		}
		if alreadySent {
			continue
		}

		body := d.summarize(ctx, entry)

		err = d.mailer.SendSummary(recipient, mailer.Summary{
			ChannelTitle: feedTitle,
			VideoTitle:   entry.Title,
			VideoURL:     entry.URL,
			Body:         body,
		})
		if err != nil {
			return sent, fmt.Errorf("failed to send summary for %s: %w", entry.VideoID, err)
		}

		if _, err := d.sentRepo.MarkSent(CLIOwnerID, channel.ChannelID, entry.VideoID, entry.Title); err != nil {
			return sent, fmt.Errorf("failed to mark video sent: %w", err)
		}

		slog.Info("Summary delivered", "video", entry.VideoID, "title", entry.Title, "recipient", recipient)
		sent++
	}

	return sent, nil
}

// summarize returns the summary body, falling back to a placeholder when the
// transcript or the API call fails. Delivery still happens so the subscriber
// learns about the video either way.
func (d *Deliverer) summarize(ctx context.Context, entry youtube.Entry) string {
	text, err := d.transcripts.Fetch(ctx, entry.VideoID)
	if err != nil {
		slog.Warn("Transcript unavailable, sending fallback body", "video", entry.VideoID, "error", err)
		return fallbackBody(entry, err)
	}

	summary, err := d.summarizer.Summarize(ctx, summarizer.Request{
		APIKey:     d.opts.APIKey,
		Model:      d.opts.Model,
		Title:      entry.Title,
		URL:        entry.URL,
		Transcript: text,
	})
	if err != nil {
		slog.Warn("Summarization failed, sending fallback body", "video", entry.VideoID, "error", err)
		return fallbackBody(entry, err)
	}

	return summary
}

func fallbackBody(entry youtube.Entry, cause error) string {
	return fmt.Sprintf("요약 생성에 실패했습니다.\n\n제목: %s\nURL: %s\n\n오류: %s",
		entry.Title, entry.URL, truncateError(cause))
}
