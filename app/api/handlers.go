package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/sub-comb/app/database"
)

func NewHandler(credRepo database.CredentialRepository, channelRepo database.ChannelRepository,
	videoRepo database.VideoRepository, quotaReader QuotaReader) *Handler {
	return &Handler{
		credRepo:    credRepo,
		channelRepo: channelRepo,
		videoRepo:   videoRepo,
		quotaReader: quotaReader,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if channelCount, err := h.channelRepo.Count(); err == nil {
		health["channels"] = channelCount
	}

	if cred, err := h.credRepo.Load(); err == nil {
		health["credential"] = cred != nil
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if channelCount, err := h.channelRepo.Count(); err == nil {
		stats["channels"] = channelCount
	} else {
		slog.Error("Database error", "operation", "channel_count", "error", err)
	}

	if usage, err := h.quotaReader.Usage(database.ServiceYouTube); err == nil {
		stats["quota"] = gin.H{
			"used":         usage.UsageCount,
			"remaining":    usage.QuotaRemaining,
			"window_start": usage.WindowStart.Format(time.RFC3339),
			"window_end":   usage.WindowEnd.Format(time.RFC3339),
			"reset_at":     usage.ResetAt.Format(time.RFC3339),
		}
	} else {
		slog.Debug("Quota usage not available yet", "error", err)
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListVideos(c *gin.Context) {
	videos, err := h.videoRepo.ListRecent(50)
	if err != nil {
		slog.Error("Database error", "operation", "list_videos", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	out := make([]gin.H, 0, len(videos))
	for _, video := range videos {
		out = append(out, gin.H{
			"id":            video.ID,
			"title":         video.Title,
			"url":           video.URL,
			"thumbnail_url": video.ThumbnailURL,
			"channel_id":    video.ChannelID,
			"uploaded_at":   video.UploadedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{"videos": out})
}
