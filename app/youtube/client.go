package youtube

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/lysyi3m/sub-comb/app/database"
)

const (
	// maxPageSize is the largest page the subscriptions and channels
	// listings accept.
	maxPageSize = 50

	// unitsPerCall is the quota cost of one list request.
	unitsPerCall = 1
)

// QuotaGate is the slice of the quota ledger the client needs: a check
// before every outgoing call and an increment after every successful one.
type QuotaGate interface {
	CheckAvailable(service database.Service) (bool, error)
	Increment(service database.Service, units int) error
}

// Client wraps the YouTube Data API behind quota gating. Operations that
// find the budget exhausted return a skipped result instead of an error
// so the polling loop can log and sit the cycle out.
type Client struct {
	svc  *yt.Service
	gate QuotaGate
}

// NewClient builds an authenticated client from a bearer access token.
// The credential lifecycle is managed elsewhere; the token source here is
// static on purpose.
func NewClient(ctx context.Context, accessToken string, gate QuotaGate) (*Client, error) {
	svc, err := yt.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})))
	if err != nil {
		return nil, fmt.Errorf("failed to build youtube service: %w", err)
	}

	return &Client{svc: svc, gate: gate}, nil
}

// NewClientFromService wraps an already constructed service. Used by
// tests to point the client at a local server.
func NewClientFromService(svc *yt.Service, gate QuotaGate) *Client {
	return &Client{svc: svc, gate: gate}
}

// ListSubscriptions returns the authenticated user's subscriptions,
// following NextPageToken pagination at 50 entries per page. Each page
// costs one quota unit, checked before and recorded after the request.
// The second return value reports whether the listing was cut short by
// quota exhaustion.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, bool, error) {
	var subs []Subscription
	pageToken := ""

	for {
		ok, err := c.gate.CheckAvailable(database.ServiceYouTube)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			slog.Warn("Quota exhausted, skipping subscriptions listing", "collected", len(subs))
			return subs, true, nil
		}

		call := c.svc.Subscriptions.List([]string{"snippet", "contentDetails"}).
			Mine(true).
			MaxResults(maxPageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, false, fmt.Errorf("failed to list subscriptions: %w", err)
		}

		if err := c.gate.Increment(database.ServiceYouTube, unitsPerCall); err != nil {
			return nil, false, err
		}

		for _, item := range resp.Items {
			if item.Snippet == nil || item.Snippet.ResourceId == nil || item.ContentDetails == nil {
				continue
			}
			subs = append(subs, Subscription{
				ChannelID:      item.Snippet.ResourceId.ChannelId,
				Title:          item.Snippet.Title,
				TotalItemCount: item.ContentDetails.TotalItemCount,
			})
		}

		if resp.NextPageToken == "" {
			return subs, false, nil
		}
		pageToken = resp.NextPageToken
	}
}

// LatestUpload fetches the newest entry of the channel's uploads playlist
// for one quota unit. Returns nil when the playlist is empty, and
// skipped=true when the quota budget was exhausted before the call.
func (c *Client) LatestUpload(ctx context.Context, channelID string) (*Upload, bool, error) {
	ok, err := c.gate.CheckAvailable(database.ServiceYouTube)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		slog.Warn("Quota exhausted, skipping latest upload lookup", "channel_id", channelID)
		return nil, true, nil
	}

	resp, err := c.svc.PlaylistItems.List([]string{"snippet", "status", "contentDetails"}).
		PlaylistId(UploadsPlaylistID(channelID)).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, false, fmt.Errorf("failed to list playlist items: %w", err)
	}

	if err := c.gate.Increment(database.ServiceYouTube, unitsPerCall); err != nil {
		return nil, false, err
	}

	if len(resp.Items) == 0 {
		return nil, false, nil
	}

	item := resp.Items[0]
	if item.Snippet == nil || item.ContentDetails == nil {
		return nil, false, fmt.Errorf("playlist item for channel %s is missing snippet or content details", channelID)
	}

	upload := &Upload{
		VideoID:   item.ContentDetails.VideoId,
		Title:     item.Snippet.Title,
		URL:       "https://www.youtube.com/watch?v=" + item.ContentDetails.VideoId,
		ChannelID: channelID,
	}

	if item.Status != nil {
		upload.PrivacyStatus = item.Status.PrivacyStatus
	}

	if thumbs := item.Snippet.Thumbnails; thumbs != nil {
		switch {
		case thumbs.High != nil:
			upload.ThumbnailURL = thumbs.High.Url
		case thumbs.Medium != nil:
			upload.ThumbnailURL = thumbs.Medium.Url
		case thumbs.Default != nil:
			upload.ThumbnailURL = thumbs.Default.Url
		}
	}

	if item.ContentDetails.VideoPublishedAt != "" {
		publishedAt, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt)
		if err != nil {
			return nil, false, fmt.Errorf("failed to parse video published time: %w", err)
		}
		upload.PublishedAt = publishedAt.In(time.Local)
	}

	return upload, false, nil
}

// LookupChannels verifies channel ids against the channels listing,
// batching up to 50 ids per request at one quota unit per batch. Returns
// the number of channels the platform recognized.
func (c *Client) LookupChannels(ctx context.Context, ids []string) (int, bool, error) {
	found := 0

	for _, batch := range chunkIDs(ids, maxPageSize) {
		ok, err := c.gate.CheckAvailable(database.ServiceYouTube)
		if err != nil {
			return found, false, err
		}
		if !ok {
			slog.Warn("Quota exhausted, skipping channel lookup", "remaining_ids", len(ids))
			return found, true, nil
		}

		resp, err := c.svc.Channels.List([]string{"id"}).
			Id(batch...).
			Context(ctx).
			Do()
		if err != nil {
			return found, false, fmt.Errorf("failed to list channels: %w", err)
		}

		if err := c.gate.Increment(database.ServiceYouTube, unitsPerCall); err != nil {
			return found, false, err
		}

		found += len(resp.Items)
	}

	return found, false, nil
}

// chunkIDs splits ids into groups of at most size entries.
func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
