package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lysyi3m/sub-comb/app/database"
	"github.com/lysyi3m/sub-comb/app/notify"
	"github.com/lysyi3m/sub-comb/app/youtube"
)

// MockCredentialSource implements a simple mock for testing
type MockCredentialSource struct {
	cred      *database.Credential
	err       error
	revokeErr error
}

var _ CredentialSource = (*MockCredentialSource)(nil)

func (m *MockCredentialSource) GetValidCredential(ctx context.Context, forceAuth bool) (*database.Credential, error) {
	return m.cred, m.err
}

func (m *MockCredentialSource) RevokeStaleCredentials(ctx context.Context) error {
	return m.revokeErr
}

// MockUsageInitializer implements a simple mock for testing
type MockUsageInitializer struct {
	err error
}

var _ UsageInitializer = (*MockUsageInitializer)(nil)

func (m *MockUsageInitializer) InitializeUsage(service database.Service) (*database.QuotaUsage, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &database.QuotaUsage{QuotaRemaining: 10000}, nil
}

// MockChannelRepository implements an in-memory mock for testing
type MockChannelRepository struct {
	channels map[string]*database.Channel
	inserted []string
}

var _ database.ChannelRepository = (*MockChannelRepository)(nil)

func NewMockChannelRepository() *MockChannelRepository {
	return &MockChannelRepository{channels: make(map[string]*database.Channel)}
}

func (m *MockChannelRepository) Get(channelID string) (*database.Channel, error) {
	channel, ok := m.channels[channelID]
	if !ok {
		return nil, nil
	}
	copied := *channel
	return &copied, nil
}

func (m *MockChannelRepository) Count() (int, error) {
	return len(m.channels), nil
}

func (m *MockChannelRepository) Insert(channelID, name string, numVideos int64) error {
	m.channels[channelID] = &database.Channel{ID: channelID, Name: name, NumVideos: numVideos}
	m.inserted = append(m.inserted, channelID)
	return nil
}

func (m *MockChannelRepository) Update(channelID, name string, numVideos int64) error {
	m.channels[channelID] = &database.Channel{ID: channelID, Name: name, NumVideos: numVideos}
	return nil
}

// MockVideoRepository implements an in-memory mock for testing
type MockVideoRepository struct {
	videos map[string]*database.Video
}

var _ database.VideoRepository = (*MockVideoRepository)(nil)

func NewMockVideoRepository() *MockVideoRepository {
	return &MockVideoRepository{videos: make(map[string]*database.Video)}
}

func (m *MockVideoRepository) GetByChannel(channelID string) (*database.Video, error) {
	video, ok := m.videos[channelID]
	if !ok {
		return nil, nil
	}
	copied := *video
	return &copied, nil
}

func (m *MockVideoRepository) Replace(video database.Video) error {
	m.videos[video.ChannelID] = &video
	return nil
}

func (m *MockVideoRepository) ListRecent(limit int) ([]database.Video, error) {
	var out []database.Video
	for _, video := range m.videos {
		out = append(out, *video)
	}
	return out, nil
}

// MockDispatcher records dispatched events
type MockDispatcher struct {
	events []notify.Event
}

var _ notify.Dispatcher = (*MockDispatcher)(nil)

func (m *MockDispatcher) Dispatch(ctx context.Context, events []notify.Event) {
	m.events = append(m.events, events...)
}

// MockPlatformClient implements a scripted mock for testing
type MockPlatformClient struct {
	subs        []youtube.Subscription
	listSkipped bool
	listErr     error
	uploads     map[string]*youtube.Upload
	uploadErr   error
}

var _ PlatformClient = (*MockPlatformClient)(nil)

func (m *MockPlatformClient) ListSubscriptions(ctx context.Context) ([]youtube.Subscription, bool, error) {
	return m.subs, m.listSkipped, m.listErr
}

func (m *MockPlatformClient) LatestUpload(ctx context.Context, channelID string) (*youtube.Upload, bool, error) {
	if m.uploadErr != nil {
		return nil, false, m.uploadErr
	}
	return m.uploads[channelID], false, nil
}

func newTestPoller(client *MockPlatformClient, channels *MockChannelRepository,
	videos *MockVideoRepository, dispatcher *MockDispatcher) *Poller {
	creds := &MockCredentialSource{cred: &database.Credential{ID: 1, AccessToken: "token"}}
	factory := func(ctx context.Context, accessToken string) (PlatformClient, error) {
		return client, nil
	}
	return New(creds, &MockUsageInitializer{}, channels, videos, dispatcher, factory)
}

func TestRunCycleNoCredential(t *testing.T) {
	channels := NewMockChannelRepository()
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}

	poller := New(&MockCredentialSource{cred: nil}, &MockUsageInitializer{}, channels, videos, dispatcher,
		func(ctx context.Context, accessToken string) (PlatformClient, error) {
			t.Fatal("Client factory must not be called without a credential")
			return nil, nil
		})

	_, err := poller.runCycle(context.Background())
	if !errors.Is(err, ErrNoCredential) {
		t.Errorf("Expected ErrNoCredential, got %v", err)
	}
}

func TestRunCycleTracksNewChannelWithoutFlagging(t *testing.T) {
	channels := NewMockChannelRepository()
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{
		subs: []youtube.Subscription{
			{ChannelID: "UC001", Title: "New Channel", TotalItemCount: 42},
		},
		uploads: map[string]*youtube.Upload{},
	}

	poller := newTestPoller(client, channels, videos, dispatcher)

	if _, err := poller.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}

	stored, _ := channels.Get("UC001")
	if stored == nil {
		t.Fatal("Expected unseen channel to be inserted")
	}
	if stored.NumVideos != 42 {
		t.Errorf("Expected stored count 42, got %d", stored.NumVideos)
	}
	if len(dispatcher.events) != 0 {
		t.Errorf("Expected no events for a freshly tracked channel, got %d", len(dispatcher.events))
	}
}

func TestRunCycleFlagsSingleNewVideo(t *testing.T) {
	channels := NewMockChannelRepository()
	channels.Update("UC001", "Channel One", 10)
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{
		subs: []youtube.Subscription{
			{ChannelID: "UC001", Title: "Channel One", TotalItemCount: 11},
		},
		uploads: map[string]*youtube.Upload{
			"UC001": {
				VideoID:       "vid123",
				Title:         "Fresh Upload",
				URL:           "https://www.youtube.com/watch?v=vid123",
				PrivacyStatus: "public",
				PublishedAt:   time.Now().Add(-2 * time.Second),
				ChannelID:     "UC001",
			},
		},
	}

	poller := newTestPoller(client, channels, videos, dispatcher)

	if _, err := poller.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}

	if len(dispatcher.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(dispatcher.events))
	}
	if dispatcher.events[0].VideoTitle != "Fresh Upload" {
		t.Errorf("Expected event for 'Fresh Upload', got '%s'", dispatcher.events[0].VideoTitle)
	}

	stored, _ := channels.Get("UC001")
	if stored.NumVideos != 11 {
		t.Errorf("Expected baseline updated to 11, got %d", stored.NumVideos)
	}
	video, _ := videos.GetByChannel("UC001")
	if video == nil || video.ID != "vid123" {
		t.Errorf("Expected stored video vid123, got %+v", video)
	}
}

func TestRunCycleSkipsMultiVideoJump(t *testing.T) {
	channels := NewMockChannelRepository()
	channels.Update("UC001", "Channel One", 10)
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{
		subs: []youtube.Subscription{
			{ChannelID: "UC001", Title: "Channel One", TotalItemCount: 13},
		},
		uploads: map[string]*youtube.Upload{},
	}

	poller := newTestPoller(client, channels, videos, dispatcher)

	if _, err := poller.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}

	if len(dispatcher.events) != 0 {
		t.Errorf("Expected no events on a multi-video jump, got %d", len(dispatcher.events))
	}
	stored, _ := channels.Get("UC001")
	if stored.NumVideos != 13 {
		t.Errorf("Expected baseline still updated to 13, got %d", stored.NumVideos)
	}
}

func TestRunCycleSkipsNonPublicUpload(t *testing.T) {
	channels := NewMockChannelRepository()
	channels.Update("UC001", "Channel One", 10)
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{
		subs: []youtube.Subscription{
			{ChannelID: "UC001", Title: "Channel One", TotalItemCount: 11},
		},
		uploads: map[string]*youtube.Upload{
			"UC001": {
				VideoID:       "vid123",
				Title:         "Members Only",
				PrivacyStatus: "private",
				PublishedAt:   time.Now(),
				ChannelID:     "UC001",
			},
		},
	}

	poller := newTestPoller(client, channels, videos, dispatcher)

	if _, err := poller.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}

	if len(dispatcher.events) != 0 {
		t.Errorf("Expected no events for a non-public video, got %d", len(dispatcher.events))
	}
	if video, _ := videos.GetByChannel("UC001"); video != nil {
		t.Errorf("Expected non-public video not to be stored, got %+v", video)
	}
}

func TestRunCycleStalenessGuard(t *testing.T) {
	channels := NewMockChannelRepository()
	channels.Update("UC001", "Channel One", 10)
	videos := NewMockVideoRepository()
	videos.Replace(database.Video{ID: "oldvid", ChannelID: "UC001", UploadedAt: time.Now().Add(-48 * time.Hour)})
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{
		subs: []youtube.Subscription{
			{ChannelID: "UC001", Title: "Channel One", TotalItemCount: 11},
		},
		uploads: map[string]*youtube.Upload{
			"UC001": {
				VideoID:       "backlogvid",
				Title:         "Old News",
				PrivacyStatus: "public",
				PublishedAt:   time.Now().Add(-24 * time.Hour),
				ChannelID:     "UC001",
			},
		},
	}

	poller := newTestPoller(client, channels, videos, dispatcher)

	if _, err := poller.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}

	if len(dispatcher.events) != 0 {
		t.Errorf("Expected staleness guard to suppress the event, got %d events", len(dispatcher.events))
	}
	if video, _ := videos.GetByChannel("UC001"); video.ID != "oldvid" {
		t.Errorf("Expected stored video unchanged, got %s", video.ID)
	}
}

func TestRunCycleSkipsOnExhaustedQuota(t *testing.T) {
	channels := NewMockChannelRepository()
	channels.Update("UC001", "Channel One", 10)
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{listSkipped: true}

	poller := newTestPoller(client, channels, videos, dispatcher)

	interval, err := poller.runCycle(context.Background())
	if err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if interval <= 0 {
		t.Errorf("Expected a positive sleep interval on a skipped cycle, got %v", interval)
	}
	if len(dispatcher.events) != 0 {
		t.Errorf("Expected no events on a skipped cycle, got %d", len(dispatcher.events))
	}
}

func TestRunCycleListErrorIsNotFatal(t *testing.T) {
	channels := NewMockChannelRepository()
	channels.Update("UC001", "Channel One", 10)
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{listErr: errors.New("transient API failure")}

	poller := newTestPoller(client, channels, videos, dispatcher)

	if _, err := poller.runCycle(context.Background()); err != nil {
		t.Errorf("Expected a transient listing error to be swallowed, got %v", err)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	channels := NewMockChannelRepository()
	videos := NewMockVideoRepository()
	dispatcher := &MockDispatcher{}
	client := &MockPlatformClient{uploads: map[string]*youtube.Upload{}}

	poller := newTestPoller(client, channels, videos, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- poller.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}
