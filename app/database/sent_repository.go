package database

import (
	"database/sql"
	"fmt"
	"time"
)

type SentRepositoryImpl struct {
	db *DB
}

var _ SentRepository = (*SentRepositoryImpl)(nil)

func NewSentRepository(db *DB) *SentRepositoryImpl {
	return &SentRepositoryImpl{db: db}
}

func (r *SentRepositoryImpl) IsSent(userID int64, videoID string) (bool, error) {
	var one int
	err := r.db.QueryRow(`
		SELECT 1 FROM sent_items WHERE user_id = ? AND video_id = ?
	`, userID, videoID).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check sent item: %w", err)
	}
	return true, nil
}

func (r *SentRepositoryImpl) MarkSent(userID int64, channelID, videoID, videoTitle string) (bool, error) {
	result, err := r.db.Exec(`
		INSERT OR IGNORE INTO sent_items (user_id, channel_id, video_id, video_title, sent_at)
		VALUES (?, ?, ?, ?, ?)
	`, userID, channelID, videoID, videoTitle, formatTime(time.Now()))

	if err != nil {
		return false, fmt.Errorf("failed to mark item sent: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	return affected > 0, nil
}
