package database

import (
	"database/sql"
	"fmt"
	"time"
)

type videoRepository struct {
	db *DB
}

func NewVideoRepository(db *DB) VideoRepository {
	return &videoRepository{db: db}
}

func (r *videoRepository) GetByChannel(channelID string) (*Video, error) {
	var video Video
	err := r.db.QueryRow(`
		SELECT id, title, url, thumbnail_url, is_short, is_livestream,
		       uploaded_at, channel_id, created_at
		FROM videos
		WHERE channel_id = ?
	`, channelID).Scan(
		&video.ID, &video.Title, &video.URL, &video.ThumbnailURL,
		&video.IsShort, &video.IsLivestream, &video.UploadedAt,
		&video.ChannelID, &video.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return &video, nil
}

func (r *videoRepository) Replace(video Video) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM videos WHERE channel_id = ?`, video.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to delete previous video: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO videos (id, title, url, thumbnail_url, is_short, is_livestream,
		                    uploaded_at, channel_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, video.ID, video.Title, video.URL, video.ThumbnailURL,
		video.IsShort, video.IsLivestream, video.UploadedAt,
		video.ChannelID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit video replace: %w", err)
	}

	return nil
}

func (r *videoRepository) ListRecent(limit int) ([]Video, error) {
	rows, err := r.db.Query(`
		SELECT id, title, url, thumbnail_url, is_short, is_livestream,
		       uploaded_at, channel_id, created_at
		FROM videos
		ORDER BY uploaded_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent videos: %w", err)
	}
	defer rows.Close()

	var videos []Video
	for rows.Next() {
		var video Video
		err := rows.Scan(
			&video.ID, &video.Title, &video.URL, &video.ThumbnailURL,
			&video.IsShort, &video.IsLivestream, &video.UploadedAt,
			&video.ChannelID, &video.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video row: %w", err)
		}
		videos = append(videos, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating video rows: %w", err)
	}

	return videos, nil
}
