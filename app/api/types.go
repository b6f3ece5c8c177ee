package api

import (
	"github.com/lysyi3m/sub-comb/app/database"
	"github.com/lysyi3m/sub-comb/app/quota"
)

// QuotaReader exposes the current window's usage for reporting.
type QuotaReader interface {
	Usage(service database.Service) (*database.QuotaUsage, error)
}

var _ QuotaReader = (*quota.Ledger)(nil)

type Handler struct {
	credRepo    database.CredentialRepository
	channelRepo database.ChannelRepository
	videoRepo   database.VideoRepository
	quotaReader QuotaReader
}
