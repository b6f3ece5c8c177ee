package database

import (
	"time"
)

// Service identifies an external API provider with its own quota policy.
type Service string

const (
	ServiceYouTube Service = "youtube"
)

// Credential represents a stored OAuth credential row.
type Credential struct {
	ID           int64
	ClientID     string
	ClientSecret string
	UserID       string
	UserEmail    string
	AccessToken  string
	RefreshToken string
	TokenURI     string
	Scopes       string // space-delimited granted scopes
	TokenType    string
	Expiry       *time.Time // nil means non-expiring, let the server reject
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Channel represents a subscribed channel and the video count observed
// during the last successful listing sweep.
type Channel struct {
	ID        string // platform-assigned channel id
	Name      string
	NumVideos int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Video is the most recently detected upload for a channel. At most one
// row is kept per channel; each detection replaces the previous one.
type Video struct {
	ID           string // platform video id
	Title        string
	URL          string
	ThumbnailURL string
	IsShort      bool
	IsLivestream bool
	UploadedAt   time.Time
	ChannelID    string
	CreatedAt    time.Time
}

// QuotaPolicy describes the daily request-unit budget for a service.
type QuotaPolicy struct {
	ID         int64
	Service    Service
	DailyLimit int
}

// QuotaUsage tracks cumulative unit consumption within one reset window.
// A new row is created when a new window begins; past windows are kept as
// an audit trail.
type QuotaUsage struct {
	ID             int64
	PolicyID       int64
	SnapshotAt     time.Time
	WindowStart    time.Time
	WindowEnd      time.Time
	UsageCount     int
	QuotaRemaining int
	ResetAt        time.Time
}
