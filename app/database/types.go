package database

import (
	"time"
)

// Generation statuses for generated_items rows.
const (
	StatusGenerated = "generated"
	StatusFailed    = "failed"
)

type User struct {
	ID             int64
	AccountEmail   string
	PasswordHash   string
	RecipientEmail string
	OpenAIAPIKey   string // encrypted at rest
	OpenAIModel    string
	SummaryPrompt  string
	CreatedAt      time.Time
}

type Channel struct {
	ID             int64
	UserID         int64
	ChannelID      string // canonical UC... identifier
	Source         string // the user-supplied reference (URL, handle, or ID)
	Title          string
	RecipientEmail string
	CreatedAt      time.Time
}

// ScannedItem records that a video is known to exist, independent of
// whether a summary was ever generated or delivered for it.
type ScannedItem struct {
	ID           int64
	UserID       int64
	ChannelID    string
	ChannelTitle string
	VideoID      string
	VideoTitle   string
	VideoURL     string
	PublishedAt  time.Time
	ScannedAt    time.Time
}

// GeneratedItem records a summary attempt, successful or not.
type GeneratedItem struct {
	ID           int64
	UserID       int64
	ChannelID    string
	ChannelTitle string
	VideoID      string
	VideoTitle   string
	VideoURL     string
	Summary      string
	Status       string // StatusGenerated or StatusFailed
	ErrorMessage string
	GeneratedAt  time.Time
}

// SentItem is the delivery guard for the CLI loop: one row per
// (user, video) that has been emailed.
type SentItem struct {
	ID         int64
	UserID     int64
	ChannelID  string
	VideoID    string
	VideoTitle string
	SentAt     time.Time
}
