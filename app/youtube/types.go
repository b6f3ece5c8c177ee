package youtube

import (
	"time"
)

// Subscription is one entry from the authenticated user's subscription
// listing, reduced to the fields the polling loop diffs against stored
// channel state.
type Subscription struct {
	ChannelID      string
	Title          string
	TotalItemCount int64
}

// Upload is the newest item of a channel's uploads playlist.
type Upload struct {
	VideoID       string
	Title         string
	URL           string
	ThumbnailURL  string
	PrivacyStatus string
	PublishedAt   time.Time
	ChannelID     string
}

// UploadsPlaylistID derives a channel's uploads playlist id. The platform
// convention is the channel id with its "UC" prefix swapped for "UU".
func UploadsPlaylistID(channelID string) string {
	if len(channelID) < 2 {
		return channelID
	}
	return "UU" + channelID[2:]
}
