package pipeline

import (
	"context"

	"github.com/jwhan/tubedigest/app/mailer"
	"github.com/jwhan/tubedigest/app/summarizer"
	"github.com/jwhan/tubedigest/app/transcript"
	"github.com/jwhan/tubedigest/app/youtube"
)

type FeedFetcher interface {
	FetchEntries(ctx context.Context, channelID string) (string, []youtube.Entry, error)
}

type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, r summarizer.Request) (string, error)
}

type Mailer interface {
	SendSummary(recipient string, summary mailer.Summary) error
}

var _ FeedFetcher = (*youtube.FeedClient)(nil)
var _ TranscriptFetcher = (*transcript.Fetcher)(nil)
var _ Summarizer = (*summarizer.Client)(nil)
var _ Mailer = (*mailer.Mailer)(nil)
