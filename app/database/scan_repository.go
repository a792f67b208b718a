package database

import (
	"fmt"
	"strings"
)

type ScanRepositoryImpl struct {
	db *DB
}

var _ ScanRepository = (*ScanRepositoryImpl)(nil)

func NewScanRepository(db *DB) *ScanRepositoryImpl {
	return &ScanRepositoryImpl{db: db}
}

// UpsertScannedItem records a feed entry, refreshing metadata and the
// scan timestamp when (user, video) was already scanned. Rescans never
// produce a second row for the same video.
func (r *ScanRepositoryImpl) UpsertScannedItem(item ScannedItem) error {
	_, err := r.db.Exec(`
		INSERT INTO scanned_items (
			user_id, channel_id, channel_title, video_id, video_title, video_url,
			published_at, scanned_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, video_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			channel_title = excluded.channel_title,
			video_title = excluded.video_title,
			video_url = excluded.video_url,
			published_at = excluded.published_at,
			scanned_at = excluded.scanned_at
	`, item.UserID, item.ChannelID, item.ChannelTitle, item.VideoID, item.VideoTitle,
		item.VideoURL, formatTime(item.PublishedAt), formatTime(item.ScannedAt))

	if err != nil {
		return fmt.Errorf("failed to upsert scanned item: %w", err)
	}

	return nil
}

func (r *ScanRepositoryImpl) DeleteScannedItems(userID int64) error {
	_, err := r.db.Exec(`DELETE FROM scanned_items WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete scanned items: %w", err)
	}
	return nil
}

func (r *ScanRepositoryImpl) GetRecentScanned(userID int64, limit int) ([]ScannedItem, error) {
	return r.queryScanned(`
		SELECT id, user_id, channel_id, COALESCE(channel_title, ''), video_id,
		       COALESCE(video_title, ''), COALESCE(video_url, ''),
		       COALESCE(published_at, ''), scanned_at
		FROM scanned_items
		WHERE user_id = ?
		ORDER BY scanned_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
}

func (r *ScanRepositoryImpl) GetScannedByVideoIDs(userID int64, videoIDs []string) ([]ScannedItem, error) {
	if len(videoIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(videoIDs)), ",")
	args := make([]interface{}, 0, len(videoIDs)+1)
	args = append(args, userID)
	for _, id := range videoIDs {
		args = append(args, id)
	}

	return r.queryScanned(fmt.Sprintf(`
		SELECT id, user_id, channel_id, COALESCE(channel_title, ''), video_id,
		       COALESCE(video_title, ''), COALESCE(video_url, ''),
		       COALESCE(published_at, ''), scanned_at
		FROM scanned_items
		WHERE user_id = ?
		  AND video_id IN (%s)
		ORDER BY scanned_at DESC, id DESC
	`, placeholders), args...)
}

func (r *ScanRepositoryImpl) ListScannedPage(userID int64, limit, offset int) ([]ScannedItem, error) {
	return r.queryScanned(`
		SELECT id, user_id, channel_id, COALESCE(channel_title, ''), video_id,
		       COALESCE(video_title, ''), COALESCE(video_url, ''),
		       COALESCE(published_at, ''), scanned_at
		FROM scanned_items
		WHERE user_id = ?
		ORDER BY scanned_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, limit, offset)
}

func (r *ScanRepositoryImpl) CountScanned(userID int64) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM scanned_items WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scanned items: %w", err)
	}
	return count, nil
}

func (r *ScanRepositoryImpl) queryScanned(query string, args ...interface{}) ([]ScannedItem, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get scanned items: %w", err)
	}
	defer rows.Close()

	var items []ScannedItem
	for rows.Next() {
		var item ScannedItem
		var publishedAt, scannedAt string
		err := rows.Scan(&item.ID, &item.UserID, &item.ChannelID, &item.ChannelTitle,
			&item.VideoID, &item.VideoTitle, &item.VideoURL, &publishedAt, &scannedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item.PublishedAt = parseTime(publishedAt)
		item.ScannedAt = parseTime(scannedAt)
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return items, nil
}
