package database

import (
	"fmt"
	"time"
)

type ChannelRepositoryImpl struct {
	db *DB
}

var _ ChannelRepository = (*ChannelRepositoryImpl)(nil)

func NewChannelRepository(db *DB) *ChannelRepositoryImpl {
	return &ChannelRepositoryImpl{db: db}
}

// UpsertChannel registers a channel, refreshing source, title and
// recipient when the (user, channel) pair already exists. A blank title
// keeps the one recorded by an earlier scan.
func (r *ChannelRepositoryImpl) UpsertChannel(userID int64, channelID, source, title, recipientEmail string) error {
	_, err := r.db.Exec(`
		INSERT INTO user_channels (user_id, channel_id, source, title, recipient_email, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, channel_id) DO UPDATE SET
			source = excluded.source,
			title = CASE WHEN excluded.title != '' THEN excluded.title ELSE user_channels.title END,
			recipient_email = excluded.recipient_email
	`, userID, channelID, source, title, recipientEmail, formatTime(time.Now()))

	if err != nil {
		return fmt.Errorf("failed to upsert channel: %w", err)
	}

	return nil
}

func (r *ChannelRepositoryImpl) ListChannels(userID int64) ([]Channel, error) {
	rows, err := r.db.Query(`
		SELECT id, user_id, channel_id, source, COALESCE(title, ''),
		       COALESCE(recipient_email, ''), created_at
		FROM user_channels
		WHERE user_id = ?
		ORDER BY id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		var createdAt string
		err := rows.Scan(&ch.ID, &ch.UserID, &ch.ChannelID, &ch.Source, &ch.Title,
			&ch.RecipientEmail, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel row: %w", err)
		}
		ch.CreatedAt = parseTime(createdAt)
		channels = append(channels, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel rows: %w", err)
	}

	return channels, nil
}

func (r *ChannelRepositoryImpl) DeleteChannel(userID, channelPK int64) error {
	_, err := r.db.Exec(`
		DELETE FROM user_channels WHERE id = ? AND user_id = ?
	`, channelPK, userID)

	if err != nil {
		return fmt.Errorf("failed to delete channel: %w", err)
	}

	return nil
}
