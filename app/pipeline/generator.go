package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwhan/tubedigest/app/database"
	"github.com/jwhan/tubedigest/app/secrets"
	"github.com/jwhan/tubedigest/app/summarizer"
)

const (
	maxErrorMessageChars = 1000

	// How many of the most recently scanned items to process when the
	// caller does not name specific videos.
	defaultGenerateBatch = 20
)

// Generator turns scanned items into stored summaries using the owner's API
// credential. Failures are recorded per item with a truncated error message
// so a retry can overwrite them later.
type Generator struct {
	userRepo    database.UserRepository
	scanRepo    database.ScanRepository
	summaryRepo database.SummaryRepository
	transcripts TranscriptFetcher
	summarizer  Summarizer
	cipher      *secrets.Cipher
}

func NewGenerator(userRepo database.UserRepository, scanRepo database.ScanRepository,
	summaryRepo database.SummaryRepository, transcripts TranscriptFetcher,
	summarizer Summarizer, cipher *secrets.Cipher) *Generator {
	return &Generator{
		userRepo:    userRepo,
		scanRepo:    scanRepo,
		summaryRepo: summaryRepo,
		transcripts: transcripts,
		summarizer:  summarizer,
		cipher:      cipher,
	}
}

// Run generates summaries for the given scanned videos, oldest first, and
// returns the generated and failed counts. An empty videoIDs list means the
// most recently scanned batch.
func (g *Generator) Run(ctx context.Context, userID int64, videoIDs []string) (int, int, error) {
	user, err := g.userRepo.GetUserByID(userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return 0, 0, fmt.Errorf("user %d not found", userID)
	}
	if user.OpenAIAPIKey == "" {
		return 0, 0, fmt.Errorf("no API key configured for user %d", userID)
	}

	apiKey := g.decryptAPIKey(user.OpenAIAPIKey)

	var items []database.ScannedItem
	if len(videoIDs) == 0 {
		items, err = g.scanRepo.GetRecentScanned(userID, defaultGenerateBatch)
	} else {
		items, err = g.scanRepo.GetScannedByVideoIDs(userID, videoIDs)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load scanned items: %w", err)
	}

	// Items come back newest first; summaries are generated in upload order.
	generated := 0
	failed := 0
	for i := len(items) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			return generated, failed, ctx.Err()
		default:
		}

		item := items[i]
		if err := g.generateOne(ctx, user, apiKey, item); err != nil {
			failed++
			slog.Warn("Summary generation failed", "video", item.VideoID, "title", item.VideoTitle, "error", err)
			g.storeFailure(userID, item, err)
			continue
		}
		generated++
	}

	return generated, failed, nil
}

func (g *Generator) generateOne(ctx context.Context, user *database.User, apiKey string, item database.ScannedItem) error {
	text, err := g.transcripts.Fetch(ctx, item.VideoID)
	if err != nil {
		return fmt.Errorf("failed to fetch transcript: %w", err)
	}

	summary, err := g.summarizer.Summarize(ctx, summarizer.Request{
		APIKey:      apiKey,
		Model:       user.OpenAIModel,
		Instruction: user.SummaryPrompt,
		Title:       item.VideoTitle,
		URL:         item.VideoURL,
		Transcript:  text,
	})
	if err != nil {
		return fmt.Errorf("failed to summarize: %w", err)
	}

	return g.summaryRepo.UpsertGeneratedItem(database.GeneratedItem{
		UserID:       user.ID,
		ChannelID:    item.ChannelID,
		ChannelTitle: item.ChannelTitle,
		VideoID:      item.VideoID,
		VideoTitle:   item.VideoTitle,
		VideoURL:     item.VideoURL,
		Status:       database.StatusGenerated,
		Summary:      summary,
		GeneratedAt:  time.Now().UTC(),
	})
}

func (g *Generator) storeFailure(userID int64, item database.ScannedItem, cause error) {
	errMsg := truncateError(cause)
	body := fmt.Sprintf("요약 생성에 실패했습니다.\n\n제목: %s\nURL: %s\n\n오류: %s",
		item.VideoTitle, item.VideoURL, errMsg)

	err := g.summaryRepo.UpsertGeneratedItem(database.GeneratedItem{
		UserID:       userID,
		ChannelID:    item.ChannelID,
		ChannelTitle: item.ChannelTitle,
		VideoID:      item.VideoID,
		VideoTitle:   item.VideoTitle,
		VideoURL:     item.VideoURL,
		Status:       database.StatusFailed,
		Summary:      body,
		ErrorMessage: errMsg,
		GeneratedAt:  time.Now().UTC(),
	})
	if err != nil {
		slog.Error("Failed to record generation failure", "video", item.VideoID, "error", err)
	}
}

// decryptAPIKey accepts keys stored before encryption was introduced: when
// decryption fails, the stored value is used as-is.
func (g *Generator) decryptAPIKey(stored string) string {
	if g.cipher == nil {
		return stored
	}

	plain, err := g.cipher.Decrypt(stored)
	if err != nil {
		return stored
	}

	return plain
}

func truncateError(err error) string {
	msg := err.Error()
	runes := []rune(msg)
	if len(runes) <= maxErrorMessageChars {
		return msg
	}
	return string(runes[:maxErrorMessageChars])
}
