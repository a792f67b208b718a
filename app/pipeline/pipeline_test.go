package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jwhan/tubedigest/app/database"
	"github.com/jwhan/tubedigest/app/mailer"
	"github.com/jwhan/tubedigest/app/secrets"
	"github.com/jwhan/tubedigest/app/summarizer"
	"github.com/jwhan/tubedigest/app/youtube"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

type fakeFeed struct {
	titles  map[string]string
	entries map[string][]youtube.Entry
	errs    map[string]error
}

func (f *fakeFeed) FetchEntries(ctx context.Context, channelID string) (string, []youtube.Entry, error) {
	if err := f.errs[channelID]; err != nil {
		return "", nil, err
	}
	return f.titles[channelID], f.entries[channelID], nil
}

type fakeTranscripts struct {
	texts map[string]string
	errs  map[string]error
}

func (f *fakeTranscripts) Fetch(ctx context.Context, videoID string) (string, error) {
	if err := f.errs[videoID]; err != nil {
		return "", err
	}
	text, ok := f.texts[videoID]
	if !ok {
		return "", errors.New("unknown video")
	}
	return text, nil
}

type fakeSummarizer struct {
	requests []summarizer.Request
	err      error
}

func (f *fakeSummarizer) Summarize(ctx context.Context, r summarizer.Request) (string, error) {
	f.requests = append(f.requests, r)
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + r.Title, nil
}

type sentMail struct {
	recipient string
	summary   mailer.Summary
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) SendSummary(recipient string, summary mailer.Summary) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{recipient: recipient, summary: summary})
	return nil
}

func entry(videoID, title string, published time.Time) youtube.Entry {
	return youtube.Entry{
		VideoID:     videoID,
		Title:       title,
		URL:         "https://www.youtube.com/watch?v=" + videoID,
		PublishedAt: published,
	}
}

func TestScannerRunIsolatesChannelFailures(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)
	scanRepo := database.NewScanRepository(db)

	if err := channelRepo.UpsertChannel(1, "UCgood", "src", "Good Channel", ""); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}
	if err := channelRepo.UpsertChannel(1, "UCdead", "src", "Dead Channel", ""); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}

	feed := &fakeFeed{
		titles: map[string]string{"UCgood": "Good Channel"},
		entries: map[string][]youtube.Entry{
			"UCgood": {
				entry("vid-1", "Video One", time.Now()),
				entry("vid-2", "Video Two", time.Now()),
			},
		},
		errs: map[string]error{"UCdead": errors.New("feed unreachable")},
	}

	scanner := NewScanner(feed, channelRepo, scanRepo, 5)

	count, err := scanner.Run(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 scanned items, got: %d", count)
	}

	stored, _ := scanRepo.CountScanned(1)
	if stored != 2 {
		t.Errorf("Expected 2 stored items, got: %d", stored)
	}
}

func TestScannerRunPerChannelLimit(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)
	scanRepo := database.NewScanRepository(db)

	if err := channelRepo.UpsertChannel(1, "UCbusy", "src", "Busy Channel", ""); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}

	entries := make([]youtube.Entry, 8)
	for i := range entries {
		entries[i] = entry(string(rune('a'+i))+"-vid", "Video", time.Now())
	}

	feed := &fakeFeed{
		titles:  map[string]string{"UCbusy": "Busy Channel"},
		entries: map[string][]youtube.Entry{"UCbusy": entries},
	}

	count, err := NewScanner(feed, channelRepo, scanRepo, 5).Run(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if count != 5 {
		t.Errorf("Expected 5 scanned items, got: %d", count)
	}
}

func TestScannerRunReset(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)
	scanRepo := database.NewScanRepository(db)

	stale := database.ScannedItem{UserID: 1, ChannelID: "UCold", VideoID: "stale-vid", ScannedAt: time.Now()}
	if err := scanRepo.UpsertScannedItem(stale); err != nil {
		t.Fatalf("failed to seed stale item: %v", err)
	}

	feed := &fakeFeed{titles: map[string]string{}, entries: map[string][]youtube.Entry{}}

	if _, err := NewScanner(feed, channelRepo, scanRepo, 5).Run(context.Background(), 1, true); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	count, _ := scanRepo.CountScanned(1)
	if count != 0 {
		t.Errorf("Expected reset to clear scanned items, got: %d", count)
	}
}

func seedGeneratorUser(t *testing.T, db *database.DB, apiKey string) int64 {
	t.Helper()

	userRepo := database.NewUserRepository(db)
	id, err := userRepo.CreateUser("gen@example.com", "hash", "")
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	if apiKey != "" {
		if err := userRepo.UpdateSettings(id, apiKey, "gpt-4o-mini", "요약해줘"); err != nil {
			t.Fatalf("failed to store settings: %v", err)
		}
	}
	return id
}

func seedScannedItem(t *testing.T, db *database.DB, userID int64, videoID, title string, scannedAt time.Time) {
	t.Helper()

	item := database.ScannedItem{
		UserID:       userID,
		ChannelID:    "UCchannel",
		ChannelTitle: "Channel",
		VideoID:      videoID,
		VideoTitle:   title,
		VideoURL:     "https://www.youtube.com/watch?v=" + videoID,
		ScannedAt:    scannedAt,
	}
	if err := database.NewScanRepository(db).UpsertScannedItem(item); err != nil {
		t.Fatalf("failed to seed scanned item: %v", err)
	}
}

func TestGeneratorRun(t *testing.T) {
	db := setupTestDB(t)
	userID := seedGeneratorUser(t, db, "sk-stored")

	seedScannedItem(t, db, userID, "vid-old", "Old Video", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	seedScannedItem(t, db, userID, "vid-new", "New Video", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	seedScannedItem(t, db, userID, "vid-bad", "Broken Video", time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))

	transcripts := &fakeTranscripts{
		texts: map[string]string{"vid-old": "old text", "vid-new": "new text"},
		errs:  map[string]error{"vid-bad": errors.New("no transcript")},
	}
	summ := &fakeSummarizer{}
	summaryRepo := database.NewSummaryRepository(db)

	generator := NewGenerator(database.NewUserRepository(db), database.NewScanRepository(db),
		summaryRepo, transcripts, summ, nil)

	generated, failed, err := generator.Run(context.Background(), userID, []string{"vid-old", "vid-new", "vid-bad"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if generated != 2 {
		t.Errorf("Expected 2 generated, got: %d", generated)
	}
	if failed != 1 {
		t.Errorf("Expected 1 failed, got: %d", failed)
	}

	// Oldest scanned item is summarized first.
	if len(summ.requests) != 2 {
		t.Fatalf("Expected 2 summarize calls, got: %d", len(summ.requests))
	}
	if summ.requests[0].Title != "Old Video" {
		t.Errorf("Expected oldest video first, got '%s'", summ.requests[0].Title)
	}
	if summ.requests[0].APIKey != "sk-stored" {
		t.Errorf("Expected stored key to be used, got '%s'", summ.requests[0].APIKey)
	}
	if summ.requests[0].Instruction != "요약해줘" {
		t.Errorf("Expected user prompt, got '%s'", summ.requests[0].Instruction)
	}

	item, err := summaryRepo.GetGeneratedItem(userID, "vid-new")
	if err != nil || item == nil {
		t.Fatalf("Expected generated item, got item=%v err=%v", item, err)
	}
	if item.Status != database.StatusGenerated {
		t.Errorf("Expected status '%s', got '%s'", database.StatusGenerated, item.Status)
	}
	if item.Summary != "summary of New Video" {
		t.Errorf("Unexpected summary body: %s", item.Summary)
	}

	failedItem, err := summaryRepo.GetGeneratedItem(userID, "vid-bad")
	if err != nil || failedItem == nil {
		t.Fatalf("Expected failure record, got item=%v err=%v", failedItem, err)
	}
	if failedItem.Status != database.StatusFailed {
		t.Errorf("Expected status '%s', got '%s'", database.StatusFailed, failedItem.Status)
	}
	if failedItem.ErrorMessage == "" {
		t.Error("Expected error message on failure record")
	}
}

func TestGeneratorRunDefaultsToRecentBatch(t *testing.T) {
	db := setupTestDB(t)
	userID := seedGeneratorUser(t, db, "sk-stored")

	transcripts := &fakeTranscripts{texts: map[string]string{}}
	for i := 0; i < defaultGenerateBatch+3; i++ {
		id := fmt.Sprintf("vid-%02d", i)
		seedScannedItem(t, db, userID, id, "Video "+id, time.Date(2024, 6, 1, 0, i, 0, 0, time.UTC))
		transcripts.texts[id] = "text"
	}
	summ := &fakeSummarizer{}

	generator := NewGenerator(database.NewUserRepository(db), database.NewScanRepository(db),
		database.NewSummaryRepository(db), transcripts, summ, nil)

	generated, failed, err := generator.Run(context.Background(), userID, nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if generated != defaultGenerateBatch || failed != 0 {
		t.Errorf("Expected %d generated from the recent batch, got generated=%d failed=%d",
			defaultGenerateBatch, generated, failed)
	}
}

func TestGeneratorRunRequiresAPIKey(t *testing.T) {
	db := setupTestDB(t)
	userID := seedGeneratorUser(t, db, "")

	generator := NewGenerator(database.NewUserRepository(db), database.NewScanRepository(db),
		database.NewSummaryRepository(db), &fakeTranscripts{}, &fakeSummarizer{}, nil)

	if _, _, err := generator.Run(context.Background(), userID, []string{"vid-1"}); err == nil {
		t.Error("Expected error when no API key is configured")
	}
}

func TestGeneratorDecryptAPIKey(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{7}, 32))
	cipher, err := secrets.NewCipher(key)
	if err != nil {
		t.Fatalf("failed to build cipher: %v", err)
	}

	generator := &Generator{cipher: cipher}

	encrypted, err := cipher.Encrypt("sk-plain")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}
	if got := generator.decryptAPIKey(encrypted); got != "sk-plain" {
		t.Errorf("Expected decrypted key, got '%s'", got)
	}

	// Values stored before encryption was introduced pass through untouched.
	if got := generator.decryptAPIKey("sk-legacy"); got != "sk-legacy" {
		t.Errorf("Expected legacy key to pass through, got '%s'", got)
	}
}

func TestTruncateError(t *testing.T) {
	long := make([]rune, maxErrorMessageChars+50)
	for i := range long {
		long[i] = '에'
	}

	truncated := truncateError(errors.New(string(long)))
	if len([]rune(truncated)) != maxErrorMessageChars {
		t.Errorf("Expected %d runes, got %d", maxErrorMessageChars, len([]rune(truncated)))
	}
}

func setupDeliverer(t *testing.T, db *database.DB, feed *fakeFeed, transcripts *fakeTranscripts,
	summ *fakeSummarizer, mail *fakeMailer, opts DelivererOptions) *Deliverer {
	t.Helper()
	return NewDeliverer(feed, transcripts, summ, mail,
		database.NewChannelRepository(db), database.NewSentRepository(db), opts)
}

func TestDelivererRunOnce(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)
	sentRepo := database.NewSentRepository(db)

	if err := channelRepo.UpsertChannel(CLIOwnerID, "UCchannel", "src", "Channel", "inbox@example.com"); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}

	// Feeds list newest first; vid-sent was delivered in a previous cycle.
	feed := &fakeFeed{
		titles: map[string]string{"UCchannel": "Channel"},
		entries: map[string][]youtube.Entry{
			"UCchannel": {
				entry("vid-new", "Newest", time.Now()),
				entry("vid-old", "Oldest", time.Now().Add(-time.Hour)),
				entry("vid-sent", "Already Sent", time.Now().Add(-2*time.Hour)),
			},
		},
	}
	if _, err := sentRepo.MarkSent(CLIOwnerID, "UCchannel", "vid-sent", "Already Sent"); err != nil {
		t.Fatalf("failed to seed sent item: %v", err)
	}

	transcripts := &fakeTranscripts{texts: map[string]string{"vid-new": "text", "vid-old": "text"}}
	mail := &fakeMailer{}

	deliverer := setupDeliverer(t, db, feed, transcripts, &fakeSummarizer{}, mail,
		DelivererOptions{APIKey: "sk-env"})

	sent, err := deliverer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sent != 2 {
		t.Fatalf("Expected 2 emails sent, got: %d", sent)
	}

	// Oldest unsent video goes out first.
	if mail.sent[0].summary.VideoTitle != "Oldest" {
		t.Errorf("Expected 'Oldest' first, got '%s'", mail.sent[0].summary.VideoTitle)
	}
	if mail.sent[0].recipient != "inbox@example.com" {
		t.Errorf("Expected channel recipient, got '%s'", mail.sent[0].recipient)
	}

	for _, videoID := range []string{"vid-new", "vid-old"} {
		isSent, _ := sentRepo.IsSent(CLIOwnerID, videoID)
		if !isSent {
			t.Errorf("Expected %s to be marked sent", videoID)
		}
	}

	// A second cycle sends nothing new.
	sent, err = deliverer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sent != 0 {
		t.Errorf("Expected 0 emails on second cycle, got: %d", sent)
	}
}

func TestDelivererFallbackBodyOnTranscriptFailure(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)

	if err := channelRepo.UpsertChannel(CLIOwnerID, "UCchannel", "src", "Channel", "inbox@example.com"); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}

	feed := &fakeFeed{
		titles:  map[string]string{"UCchannel": "Channel"},
		entries: map[string][]youtube.Entry{"UCchannel": {entry("vid-1", "Video", time.Now())}},
	}
	transcripts := &fakeTranscripts{errs: map[string]error{"vid-1": errors.New("no transcript")}}
	mail := &fakeMailer{}

	deliverer := setupDeliverer(t, db, feed, transcripts, &fakeSummarizer{}, mail,
		DelivererOptions{APIKey: "sk-env"})

	sent, err := deliverer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sent != 1 {
		t.Fatalf("Expected 1 email sent, got: %d", sent)
	}
	body := mail.sent[0].summary.Body
	if !strings.Contains(body, "no transcript") {
		t.Errorf("Expected fallback body to carry the error, got '%s'", body)
	}
	if !strings.Contains(body, "Video") || !strings.Contains(body, "https://www.youtube.com/watch?v=vid-1") {
		t.Errorf("Expected fallback body to carry title and URL, got '%s'", body)
	}
}

func TestDelivererRunOnceRequiresAPIKey(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)
	sentRepo := database.NewSentRepository(db)

	if err := channelRepo.UpsertChannel(CLIOwnerID, "UCchannel", "src", "Channel", "inbox@example.com"); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}

	feed := &fakeFeed{
		titles:  map[string]string{"UCchannel": "Channel"},
		entries: map[string][]youtube.Entry{"UCchannel": {entry("vid-1", "Video", time.Now())}},
	}
	transcripts := &fakeTranscripts{texts: map[string]string{"vid-1": "text"}}
	mail := &fakeMailer{}

	deliverer := setupDeliverer(t, db, feed, transcripts, &fakeSummarizer{}, mail, DelivererOptions{})

	sent, err := deliverer.RunOnce(context.Background())
	if err == nil {
		t.Fatal("Expected error when no API key is configured")
	}
	if sent != 0 {
		t.Errorf("Expected 0 emails without an API key, got: %d", sent)
	}
	if len(mail.sent) != 0 {
		t.Errorf("Expected no mail, got: %d", len(mail.sent))
	}

	// The video stays eligible for the next cycle.
	isSent, _ := sentRepo.IsSent(CLIOwnerID, "vid-1")
	if isSent {
		t.Error("Expected vid-1 to remain unsent")
	}
}

func TestDelivererRecipientFallback(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)

	if err := channelRepo.UpsertChannel(CLIOwnerID, "UCa", "src", "No Recipient", ""); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}

	feed := &fakeFeed{
		titles:  map[string]string{"UCa": "No Recipient"},
		entries: map[string][]youtube.Entry{"UCa": {entry("vid-1", "Video", time.Now())}},
	}
	transcripts := &fakeTranscripts{texts: map[string]string{"vid-1": "text"}}
	mail := &fakeMailer{}

	deliverer := setupDeliverer(t, db, feed, transcripts, &fakeSummarizer{}, mail,
		DelivererOptions{APIKey: "sk-env", RecipientFallback: "default@example.com"})

	sent, err := deliverer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sent != 1 {
		t.Fatalf("Expected 1 email sent, got: %d", sent)
	}
	if mail.sent[0].recipient != "default@example.com" {
		t.Errorf("Expected fallback recipient, got '%s'", mail.sent[0].recipient)
	}
}

func TestDelivererSkipsChannelWithoutRecipient(t *testing.T) {
	db := setupTestDB(t)
	channelRepo := database.NewChannelRepository(db)

	if err := channelRepo.UpsertChannel(CLIOwnerID, "UCa", "src", "No Recipient", ""); err != nil {
		t.Fatalf("failed to register channel: %v", err)
	}

	feed := &fakeFeed{
		titles:  map[string]string{"UCa": "No Recipient"},
		entries: map[string][]youtube.Entry{"UCa": {entry("vid-1", "Video", time.Now())}},
	}
	mail := &fakeMailer{}

	deliverer := setupDeliverer(t, db, feed, &fakeTranscripts{}, &fakeSummarizer{}, mail,
		DelivererOptions{APIKey: "sk-env"})

	sent, err := deliverer.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if sent != 0 {
		t.Errorf("Expected 0 emails without any recipient, got: %d", sent)
	}
	if len(mail.sent) != 0 {
		t.Errorf("Expected no mail, got: %d", len(mail.sent))
	}
}
