package database

import (
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewConnection(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

func strPtr(s string) *string {
	return &s
}

func TestCredentialLoadEmpty(t *testing.T) {
	repo := NewCredentialRepository(setupTestDB(t))

	cred, err := repo.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cred != nil {
		t.Errorf("Expected nil credential from an empty store, got %+v", cred)
	}
}

func TestCredentialSaveInsertAndLoad(t *testing.T) {
	repo := NewCredentialRepository(setupTestDB(t))

	expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	saved, err := repo.Save(TokenMaterial{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenURI:     "https://oauth2.googleapis.com/token",
		Scopes:       "scope-a scope-b",
		TokenType:    "Bearer",
		Expiry:       &expiry,
	}, nil, Identity{
		ClientID:  strPtr("client-1"),
		UserEmail: strPtr("user@example.com"),
	})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if saved.ID == 0 {
		t.Error("Expected a row id after insert")
	}

	loaded, err := repo.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded == nil {
		t.Fatal("Expected stored credential, got nil")
	}
	if loaded.AccessToken != "access-1" || loaded.RefreshToken != "refresh-1" {
		t.Errorf("Unexpected tokens: %s / %s", loaded.AccessToken, loaded.RefreshToken)
	}
	if loaded.ClientID != "client-1" {
		t.Errorf("Expected client id 'client-1', got '%s'", loaded.ClientID)
	}
	if loaded.UserEmail != "user@example.com" {
		t.Errorf("Expected user email persisted, got '%s'", loaded.UserEmail)
	}
	if loaded.Expiry == nil || !loaded.Expiry.UTC().Equal(expiry) {
		t.Errorf("Expected expiry %v, got %v", expiry, loaded.Expiry)
	}
}

func TestCredentialSaveUpdatePreservesIdentity(t *testing.T) {
	repo := NewCredentialRepository(setupTestDB(t))

	saved, err := repo.Save(TokenMaterial{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil, Identity{
		ClientID:  strPtr("client-1"),
		UserID:    strPtr("user-42"),
		UserEmail: strPtr("user@example.com"),
	})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	// A refresh updates token material without supplying identity; the
	// stored identity must survive.
	updated, err := repo.Save(TokenMaterial{AccessToken: "access-2", RefreshToken: "refresh-1"}, saved, Identity{})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.ID != saved.ID {
		t.Errorf("Expected in-place update of row %d, got %d", saved.ID, updated.ID)
	}
	if updated.AccessToken != "access-2" {
		t.Errorf("Expected refreshed access token, got '%s'", updated.AccessToken)
	}
	if updated.ClientID != "client-1" || updated.UserID != "user-42" || updated.UserEmail != "user@example.com" {
		t.Errorf("Identity fields were clobbered: %+v", updated)
	}
}

func TestCredentialDelete(t *testing.T) {
	repo := NewCredentialRepository(setupTestDB(t))

	saved, err := repo.Save(TokenMaterial{AccessToken: "access-1"}, nil, Identity{})
	if err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if err := repo.Delete(saved.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	cred, err := repo.Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cred != nil {
		t.Errorf("Expected empty store after delete, got %+v", cred)
	}
}

func TestChannelRepository(t *testing.T) {
	repo := NewChannelRepository(setupTestDB(t))

	missing, err := repo.Get("UC404")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil for unknown channel, got %+v", missing)
	}

	if err := repo.Insert("UC001", "Channel One", 10); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}
	if err := repo.Insert("UC002", "Channel Two", 20); err != nil {
		t.Fatalf("Insert returned error: %v", err)
	}

	count, err := repo.Count()
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 channels, got %d", count)
	}

	if err := repo.Update("UC001", "Channel One Renamed", 11); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	channel, err := repo.Get("UC001")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if channel.Name != "Channel One Renamed" {
		t.Errorf("Expected updated name, got '%s'", channel.Name)
	}
	if channel.NumVideos != 11 {
		t.Errorf("Expected updated video count 11, got %d", channel.NumVideos)
	}
}

func TestVideoReplaceKeepsOneRowPerChannel(t *testing.T) {
	db := setupTestDB(t)
	channels := NewChannelRepository(db)
	videos := NewVideoRepository(db)

	if err := channels.Insert("UC001", "Channel One", 1); err != nil {
		t.Fatalf("Insert channel returned error: %v", err)
	}

	first := Video{
		ID:         "vid1",
		Title:      "First",
		URL:        "https://www.youtube.com/watch?v=vid1",
		UploadedAt: time.Now().UTC().Add(-time.Hour),
		ChannelID:  "UC001",
	}
	if err := videos.Replace(first); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	second := Video{
		ID:         "vid2",
		Title:      "Second",
		URL:        "https://www.youtube.com/watch?v=vid2",
		UploadedAt: time.Now().UTC(),
		ChannelID:  "UC001",
	}
	if err := videos.Replace(second); err != nil {
		t.Fatalf("Replace returned error: %v", err)
	}

	stored, err := videos.GetByChannel("UC001")
	if err != nil {
		t.Fatalf("GetByChannel returned error: %v", err)
	}
	if stored == nil || stored.ID != "vid2" {
		t.Errorf("Expected only the latest video stored, got %+v", stored)
	}

	recent, err := videos.ListRecent(10)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(recent) != 1 {
		t.Errorf("Expected 1 video row, got %d", len(recent))
	}
}

func TestVideoListRecentOrdering(t *testing.T) {
	db := setupTestDB(t)
	channels := NewChannelRepository(db)
	videos := NewVideoRepository(db)

	now := time.Now().UTC()
	for i, channelID := range []string{"UC001", "UC002", "UC003"} {
		if err := channels.Insert(channelID, "Channel", 1); err != nil {
			t.Fatalf("Insert channel returned error: %v", err)
		}
		video := Video{
			ID:         channelID + "-vid",
			Title:      "Video",
			URL:        "https://www.youtube.com/watch?v=" + channelID,
			UploadedAt: now.Add(time.Duration(i) * time.Hour),
			ChannelID:  channelID,
		}
		if err := videos.Replace(video); err != nil {
			t.Fatalf("Replace returned error: %v", err)
		}
	}

	recent, err := videos.ListRecent(2)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected limit of 2 rows, got %d", len(recent))
	}
	if recent[0].ChannelID != "UC003" {
		t.Errorf("Expected newest upload first, got %s", recent[0].ChannelID)
	}
}

func TestQuotaApplyUsageGuard(t *testing.T) {
	repo := NewQuotaRepository(setupTestDB(t))

	policy, err := repo.InsertPolicy(ServiceYouTube, 100)
	if err != nil {
		t.Fatalf("InsertPolicy returned error: %v", err)
	}

	windowStart := time.Date(2025, 6, 15, 7, 0, 0, 0, time.UTC)
	usage, err := repo.InsertUsage(QuotaUsage{
		PolicyID:       policy.ID,
		SnapshotAt:     windowStart,
		WindowStart:    windowStart,
		WindowEnd:      windowStart.AddDate(0, 0, 1),
		UsageCount:     0,
		QuotaRemaining: policy.DailyLimit,
		ResetAt:        windowStart.AddDate(0, 0, 1),
	})
	if err != nil {
		t.Fatalf("InsertUsage returned error: %v", err)
	}

	applied, err := repo.ApplyUsage(usage.ID, 95)
	if err != nil {
		t.Fatalf("ApplyUsage returned error: %v", err)
	}
	if !applied {
		t.Fatal("Expected increment within budget to apply")
	}

	// 5 units remain; 10 must be rejected without writing
	applied, err = repo.ApplyUsage(usage.ID, 10)
	if err != nil {
		t.Fatalf("ApplyUsage returned error: %v", err)
	}
	if applied {
		t.Error("Expected over-budget increment to be rejected")
	}

	current, err := repo.GetUsage(policy.ID, windowStart)
	if err != nil {
		t.Fatalf("GetUsage returned error: %v", err)
	}
	if current.UsageCount != 95 || current.QuotaRemaining != 5 {
		t.Errorf("Expected 95 used / 5 remaining, got %d / %d", current.UsageCount, current.QuotaRemaining)
	}

	// Draining the exact remainder is allowed
	applied, err = repo.ApplyUsage(usage.ID, 5)
	if err != nil {
		t.Fatalf("ApplyUsage returned error: %v", err)
	}
	if !applied {
		t.Error("Expected increment equal to the remaining budget to apply")
	}
}

func TestQuotaPolicyLookup(t *testing.T) {
	repo := NewQuotaRepository(setupTestDB(t))

	missing, err := repo.GetPolicy(ServiceYouTube)
	if err != nil {
		t.Fatalf("GetPolicy returned error: %v", err)
	}
	if missing != nil {
		t.Errorf("Expected nil policy before insert, got %+v", missing)
	}

	inserted, err := repo.InsertPolicy(ServiceYouTube, 10000)
	if err != nil {
		t.Fatalf("InsertPolicy returned error: %v", err)
	}

	policy, err := repo.GetPolicy(ServiceYouTube)
	if err != nil {
		t.Fatalf("GetPolicy returned error: %v", err)
	}
	if policy == nil || policy.ID != inserted.ID || policy.DailyLimit != 10000 {
		t.Errorf("Unexpected policy: %+v", policy)
	}
}
