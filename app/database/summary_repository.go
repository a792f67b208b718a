package database

import (
	"database/sql"
	"fmt"
)

type SummaryRepositoryImpl struct {
	db *DB
}

var _ SummaryRepository = (*SummaryRepositoryImpl)(nil)

func NewSummaryRepository(db *DB) *SummaryRepositoryImpl {
	return &SummaryRepositoryImpl{db: db}
}

// UpsertGeneratedItem records a summary attempt. Regeneration replaces
// the previous record for (user, video), so a failed attempt can flip
// to generated on retry.
func (r *SummaryRepositoryImpl) UpsertGeneratedItem(item GeneratedItem) error {
	_, err := r.db.Exec(`
		INSERT INTO generated_items (
			user_id, channel_id, channel_title, video_id, video_title, video_url,
			summary_ko, generation_status, error_message, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, video_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			channel_title = excluded.channel_title,
			video_title = excluded.video_title,
			video_url = excluded.video_url,
			summary_ko = excluded.summary_ko,
			generation_status = excluded.generation_status,
			error_message = excluded.error_message,
			generated_at = excluded.generated_at
	`, item.UserID, item.ChannelID, item.ChannelTitle, item.VideoID, item.VideoTitle,
		item.VideoURL, item.Summary, item.Status, item.ErrorMessage, formatTime(item.GeneratedAt))

	if err != nil {
		return fmt.Errorf("failed to upsert generated item: %w", err)
	}

	return nil
}

func (r *SummaryRepositoryImpl) GetGeneratedItem(userID int64, videoID string) (*GeneratedItem, error) {
	var item GeneratedItem
	var generatedAt string
	err := r.db.QueryRow(`
		SELECT id, user_id, channel_id, COALESCE(channel_title, ''), video_id,
		       COALESCE(video_title, ''), COALESCE(video_url, ''), COALESCE(summary_ko, ''),
		       generation_status, COALESCE(error_message, ''), generated_at
		FROM generated_items
		WHERE user_id = ? AND video_id = ?
	`, userID, videoID).Scan(
		&item.ID, &item.UserID, &item.ChannelID, &item.ChannelTitle, &item.VideoID,
		&item.VideoTitle, &item.VideoURL, &item.Summary, &item.Status,
		&item.ErrorMessage, &generatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generated item: %w", err)
	}

	item.GeneratedAt = parseTime(generatedAt)
	return &item, nil
}

func (r *SummaryRepositoryImpl) ListGeneratedPage(userID int64, limit, offset int) ([]GeneratedItem, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, channel_id, COALESCE(channel_title, ''), video_id,
		       COALESCE(video_title, ''), COALESCE(video_url, ''), COALESCE(summary_ko, ''),
		       generation_status, COALESCE(error_message, ''), generated_at
		FROM generated_items
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated items: %w", err)
	}
	defer rows.Close()

	var items []GeneratedItem
	for rows.Next() {
		var item GeneratedItem
		var generatedAt string
		err := rows.Scan(&item.ID, &item.UserID, &item.ChannelID, &item.ChannelTitle,
			&item.VideoID, &item.VideoTitle, &item.VideoURL, &item.Summary,
			&item.Status, &item.ErrorMessage, &generatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generated row: %w", err)
		}
		item.GeneratedAt = parseTime(generatedAt)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generated rows: %w", err)
	}

	return items, nil
}

func (r *SummaryRepositoryImpl) CountGenerated(userID int64) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM generated_items WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count generated items: %w", err)
	}
	return count, nil
}

func (r *SummaryRepositoryImpl) DeleteGeneratedItem(userID int64, videoID string) error {
	_, err := r.db.Exec(`
		DELETE FROM generated_items WHERE user_id = ? AND video_id = ?
	`, userID, videoID)

	if err != nil {
		return fmt.Errorf("failed to delete generated item: %w", err)
	}

	return nil
}
