package database

import (
	"database/sql"
	"fmt"
	"time"
)

type channelRepository struct {
	db *DB
}

func NewChannelRepository(db *DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) Get(channelID string) (*Channel, error) {
	var channel Channel
	err := r.db.QueryRow(`
		SELECT id, name, num_videos, created_at, updated_at
		FROM channels
		WHERE id = ?
	`, channelID).Scan(
		&channel.ID, &channel.Name, &channel.NumVideos,
		&channel.CreatedAt, &channel.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	return &channel, nil
}

func (r *channelRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM channels`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get channel count: %w", err)
	}
	return count, nil
}

func (r *channelRepository) Insert(channelID, name string, numVideos int64) error {
	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO channels (id, name, num_videos, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, channelID, name, numVideos, now, now)

	if err != nil {
		return fmt.Errorf("failed to insert channel: %w", err)
	}

	return nil
}

func (r *channelRepository) Update(channelID, name string, numVideos int64) error {
	_, err := r.db.Exec(`
		UPDATE channels
		SET name = ?, num_videos = ?, updated_at = ?
		WHERE id = ?
	`, name, numVideos, time.Now().UTC(), channelID)

	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}

	return nil
}
