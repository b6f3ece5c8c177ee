package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/sub-comb/app/database"
	"github.com/lysyi3m/sub-comb/app/notify"
	"github.com/lysyi3m/sub-comb/app/youtube"
)

// ErrNoCredential means no usable credential could be established at all;
// the process has nothing left to do and should exit non-zero.
var ErrNoCredential = errors.New("no usable credential available")

// PlatformClient is the slice of the quota-gated API client the polling
// loop consumes.
type PlatformClient interface {
	ListSubscriptions(ctx context.Context) ([]youtube.Subscription, bool, error)
	LatestUpload(ctx context.Context, channelID string) (*youtube.Upload, bool, error)
}

// ClientFactory builds a platform client from a bearer access token. The
// poller rebuilds the client every cycle so it always runs on a fresh
// credential.
type ClientFactory func(ctx context.Context, accessToken string) (PlatformClient, error)

// CredentialSource is the slice of the OAuth lifecycle manager the poller
// consumes.
type CredentialSource interface {
	GetValidCredential(ctx context.Context, forceAuth bool) (*database.Credential, error)
	RevokeStaleCredentials(ctx context.Context) error
}

// UsageInitializer opens the quota window for the current day before any
// gated calls are made.
type UsageInitializer interface {
	InitializeUsage(service database.Service) (*database.QuotaUsage, error)
}

// Poller runs the main sequential loop: acquire a credential, sweep
// subscriptions, diff against stored channel state, fetch the newest
// upload for changed channels, and hand the batch to notification
// dispatch.
type Poller struct {
	creds     CredentialSource
	ledger    UsageInitializer
	channels  database.ChannelRepository
	videos    database.VideoRepository
	notifier  notify.Dispatcher
	newClient ClientFactory
}

func New(creds CredentialSource, ledger UsageInitializer, channels database.ChannelRepository,
	videos database.VideoRepository, notifier notify.Dispatcher, newClient ClientFactory) *Poller {
	return &Poller{
		creds:     creds,
		ledger:    ledger,
		channels:  channels,
		videos:    videos,
		notifier:  notifier,
		newClient: newClient,
	}
}

// Run loops until ctx is canceled (graceful shutdown) or a fatal
// condition surfaces: no credential can be established, or the
// authenticated client cannot be built from a valid one.
func (p *Poller) Run(ctx context.Context) error {
	for {
		interval, err := p.runCycle(ctx)
		if err != nil {
			return err
		}

		slog.Info("Cycle complete, sleeping until next sweep", "interval", interval.String())

		select {
		case <-ctx.Done():
			slog.Info("Shutdown requested, stopping polling loop")
			return nil
		case <-time.After(interval):
		}
	}
}

func (p *Poller) runCycle(ctx context.Context) (time.Duration, error) {
	cred, err := p.creds.GetValidCredential(ctx, true)
	if err != nil {
		return 0, err
	}
	if cred == nil {
		return 0, ErrNoCredential
	}

	// Maintenance sweep; failures here must not stall polling.
	if err := p.creds.RevokeStaleCredentials(ctx); err != nil {
		slog.Error("Stale credential sweep failed", "error", err)
	}

	if _, err := p.ledger.InitializeUsage(database.ServiceYouTube); err != nil {
		return 0, fmt.Errorf("failed to initialize quota usage: %w", err)
	}

	client, err := p.newClient(ctx, cred.AccessToken)
	if err != nil {
		// The credential itself was valid, so no recovery path applies.
		return 0, fmt.Errorf("failed to build platform client: %w", err)
	}

	subs, skipped, err := client.ListSubscriptions(ctx)
	if err != nil {
		slog.Error("Failed to list subscriptions, skipping cycle", "error", err)
		return p.currentInterval()
	}
	if skipped {
		slog.Warn("Subscription listing skipped on exhausted quota, sitting this cycle out")
		return p.currentInterval()
	}

	flagged, err := p.sweepChannels(subs)
	if err != nil {
		return 0, err
	}

	interval, err := p.currentInterval()
	if err != nil {
		return 0, err
	}

	events := p.collectUploads(ctx, client, flagged, interval)
	if len(events) > 0 {
		p.notifier.Dispatch(ctx, events)
	}

	return interval, nil
}

// sweepChannels diffs the listed subscriptions against stored channel
// state and returns the channels flagged as recently uploaded. A jump of
// more than one video cannot be disambiguated without extra calls, so it
// updates the baseline without flagging.
func (p *Poller) sweepChannels(subs []youtube.Subscription) ([]database.Channel, error) {
	var flagged []database.Channel

	for _, sub := range subs {
		stored, err := p.channels.Get(sub.ChannelID)
		if err != nil {
			return nil, err
		}

		if stored == nil {
			if err := p.channels.Insert(sub.ChannelID, sub.Title, sub.TotalItemCount); err != nil {
				return nil, err
			}
			slog.Info("Tracking new channel", "channel", sub.Title, "videos", sub.TotalItemCount)
			continue
		}

		switch {
		case sub.TotalItemCount == stored.NumVideos+1:
			slog.Info("Channel has new video(s)", "channel", sub.Title)
			flagged = append(flagged, database.Channel{ID: sub.ChannelID, Name: sub.Title, NumVideos: sub.TotalItemCount})
		case sub.TotalItemCount > stored.NumVideos+1:
			slog.Warn("More than 1 video uploaded since last check, skipping notification",
				"channel", sub.Title, "stored", stored.NumVideos, "current", sub.TotalItemCount)
		}

		if err := p.channels.Update(sub.ChannelID, sub.Title, sub.TotalItemCount); err != nil {
			return nil, err
		}
	}

	return flagged, nil
}

// collectUploads fetches the newest upload of each flagged channel,
// applies the publicness and staleness guards, replaces the stored video
// row, and builds the notification batch. Per-channel failures are logged
// and skipped, never fatal.
func (p *Poller) collectUploads(ctx context.Context, client PlatformClient, flagged []database.Channel, interval time.Duration) []notify.Event {
	var events []notify.Event

	for _, channel := range flagged {
		upload, skipped, err := client.LatestUpload(ctx, channel.ID)
		if err != nil {
			slog.Error("Failed to fetch latest upload", "channel", channel.Name, "error", err)
			continue
		}
		if skipped {
			slog.Warn("Quota exhausted before fetching remaining uploads", "channel", channel.Name)
			break
		}
		if upload == nil {
			continue
		}

		if upload.PrivacyStatus != "public" {
			slog.Info("Skipping video because it is not public",
				"video", upload.Title, "channel", channel.Name, "privacy", upload.PrivacyStatus)
			continue
		}

		existing, err := p.videos.GetByChannel(channel.ID)
		if err != nil {
			slog.Error("Failed to load stored video", "channel", channel.Name, "error", err)
			continue
		}

		// Guard against notifying for backlog: a different video that was
		// published before this cycle's window is old news, not a fresh
		// upload.
		if existing != nil && existing.ID != upload.VideoID && time.Since(upload.PublishedAt) > interval {
			slog.Info("Skipping stale upload outside the current cycle window",
				"video", upload.Title, "channel", channel.Name, "published_at", upload.PublishedAt)
			continue
		}

		video := database.Video{
			ID:           upload.VideoID,
			Title:        upload.Title,
			URL:          upload.URL,
			ThumbnailURL: upload.ThumbnailURL,
			UploadedAt:   upload.PublishedAt,
			ChannelID:    channel.ID,
		}

		if err := p.videos.Replace(video); err != nil {
			slog.Error("Failed to store video", "channel", channel.Name, "error", err)
			continue
		}

		slog.Info("Found new video", "video", upload.Title, "channel", channel.Name)

		events = append(events, notify.Event{
			ChannelName:  channel.Name,
			VideoTitle:   upload.Title,
			VideoURL:     upload.URL,
			ThumbnailURL: upload.ThumbnailURL,
			UploadedAt:   upload.PublishedAt,
		})
	}

	return events
}

func (p *Poller) currentInterval() (time.Duration, error) {
	count, err := p.channels.Count()
	if err != nil {
		return 0, err
	}
	return ComputeCycleInterval(count), nil
}
