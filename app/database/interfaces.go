package database

import (
	"time"
)

// TokenMaterial carries the token fields written on every save, both for
// newly acquired credentials and in-place refreshes.
type TokenMaterial struct {
	AccessToken  string
	RefreshToken string
	TokenURI     string
	Scopes       string
	TokenType    string
	Expiry       *time.Time
}

// Identity carries optional identity overrides. A nil field leaves the
// previously stored value untouched; absence of an override must never
// null out a known identity field.
type Identity struct {
	ClientID     *string
	ClientSecret *string
	UserID       *string
	UserEmail    *string
}

type CredentialRepository interface {
	// Load returns the first stored credential, or nil when none exist.
	Load() (*Credential, error)
	List() ([]Credential, error)
	// Save updates existing in place when given, otherwise inserts a new row.
	Save(material TokenMaterial, existing *Credential, identity Identity) (*Credential, error)
	Delete(id int64) error
}

type ChannelRepository interface {
	Get(channelID string) (*Channel, error)
	Count() (int, error)
	Insert(channelID, name string, numVideos int64) error
	Update(channelID, name string, numVideos int64) error
}

type VideoRepository interface {
	GetByChannel(channelID string) (*Video, error)
	// Replace removes any stored video for the channel and inserts the
	// new one within a single transaction.
	Replace(video Video) error
	ListRecent(limit int) ([]Video, error)
}

type QuotaRepository interface {
	GetPolicy(service Service) (*QuotaPolicy, error)
	InsertPolicy(service Service, dailyLimit int) (*QuotaPolicy, error)
	GetUsage(policyID int64, windowStart time.Time) (*QuotaUsage, error)
	InsertUsage(usage QuotaUsage) (*QuotaUsage, error)
	// ApplyUsage atomically adds units to usage_count and subtracts them
	// from quota_remaining. Returns false when the remaining budget is
	// smaller than units, in which case nothing is written.
	ApplyUsage(usageID int64, units int) (bool, error)
}
