package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/containrrr/shoutrrr"
	"github.com/containrrr/shoutrrr/pkg/router"
	"github.com/containrrr/shoutrrr/pkg/types"
)

// Event describes one newly detected upload handed over by the polling
// loop.
type Event struct {
	ChannelName  string
	VideoTitle   string
	VideoURL     string
	ThumbnailURL string
	UploadedAt   time.Time
}

// Dispatcher delivers upload events. Implementations must never block the
// polling loop on delivery failures; they log and move on.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []Event)
}

type target struct {
	name   string
	sender *router.ServiceRouter
}

// Notifier fans events out to the configured shoutrrr URLs, one message
// per event per channel.
type Notifier struct {
	targets []target
}

// NewNotifier builds a sender per configured channel. Malformed URLs are
// a configuration error and surface at startup, not at delivery time.
func NewNotifier(config *Config) (*Notifier, error) {
	var targets []target
	for _, channel := range config.Channels {
		sender, err := shoutrrr.CreateSender(channel.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create notification sender %q: %w", channel.Name, err)
		}
		targets = append(targets, target{name: channel.Name, sender: sender})
	}

	return &Notifier{targets: targets}, nil
}

func (n *Notifier) Dispatch(ctx context.Context, events []Event) {
	if len(n.targets) == 0 && len(events) > 0 {
		slog.Warn("No notification channels configured, dropping events", "count", len(events))
		return
	}

	for _, event := range events {
		params := types.Params{
			"title": fmt.Sprintf("%s has uploaded a new video to YouTube!", event.ChannelName),
		}
		body := fmt.Sprintf("%s\n%s\nUploaded at: %s",
			event.VideoTitle, event.VideoURL, event.UploadedAt.Format(time.RFC3339))

		slog.Info("Sending notification", "video", event.VideoTitle, "channel", event.ChannelName)

		for _, tg := range n.targets {
			for _, err := range tg.sender.Send(body, &params) {
				if err != nil {
					slog.Error("Notification delivery failed", "target", tg.name, "error", err)
				}
			}
		}
	}
}
