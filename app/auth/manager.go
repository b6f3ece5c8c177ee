package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lysyi3m/sub-comb/app/database"
)

const (
	// DefaultRefreshMargin is how long before actual expiry a credential
	// is refreshed proactively.
	DefaultRefreshMargin = 300 * time.Second

	defaultPollInterval = 5 * time.Second
	maxPollInterval     = 60 * time.Second
	slowDownIncrement   = 5 * time.Second
)

// Manager owns the OAuth credential lifecycle: device-grant acquisition,
// proactive refresh, revocation of unrecoverable credentials, and the
// "get me a valid credential" orchestration on top of the store.
type Manager struct {
	repo          database.CredentialRepository
	httpClient    *http.Client
	endpoints     Endpoints
	clientID      string
	clientSecret  string
	scopes        string
	refreshMargin time.Duration
	out           io.Writer
	now           func() time.Time
	sleep         func(time.Duration)
}

func NewManager(repo database.CredentialRepository, clientID, clientSecret, scopes string, refreshMargin time.Duration) *Manager {
	if scopes == "" {
		scopes = DefaultScopes
	}
	if refreshMargin <= 0 {
		refreshMargin = DefaultRefreshMargin
	}

	return &Manager{
		repo:          repo,
		httpClient:    &http.Client{Timeout: 15 * time.Second},
		endpoints:     GoogleEndpoints(),
		clientID:      clientID,
		clientSecret:  clientSecret,
		scopes:        scopes,
		refreshMargin: refreshMargin,
		out:           os.Stdout,
		now:           time.Now,
		sleep:         time.Sleep,
	}
}

// IsExpired reports whether the credential is expired or expires within
// margin. A credential without expiry information is treated as valid;
// the server will reject it if not.
func IsExpired(cred *database.Credential, margin time.Duration, now time.Time) bool {
	if cred.Expiry == nil {
		return false
	}
	expiry := cred.Expiry.UTC()
	return expiry.Sub(now.UTC()) <= margin
}

// Refresh exchanges the stored refresh token for a new access token and
// persists the result in place. A missing refresh token, or any failure
// of the exchange, deletes the stale row and returns (nil, nil) so the
// next cycle falls back to a fresh device grant; refreshes are never
// retried in place.
func (m *Manager) Refresh(ctx context.Context, row *database.Credential) (*database.Credential, error) {
	if row.RefreshToken == "" {
		slog.Error("No refresh token stored, cannot refresh credential", "id", row.ID)
		if err := m.repo.Delete(row.ID); err != nil {
			return nil, fmt.Errorf("failed to delete unrefreshable credential: %w", err)
		}
		return nil, nil
	}

	tokenURL := row.TokenURI
	if tokenURL == "" {
		tokenURL = m.endpoints.TokenURL
	}

	form := url.Values{
		"client_id":     {firstNonEmpty(row.ClientID, m.clientID)},
		"client_secret": {firstNonEmpty(row.ClientSecret, m.clientSecret)},
		"refresh_token": {row.RefreshToken},
		"grant_type":    {"refresh_token"},
	}

	var token tokenResponse
	err := m.postForm(ctx, tokenURL, form, &token)
	if err == nil && token.Error != "" {
		err = fmt.Errorf("token endpoint returned %q", token.Error)
	}
	if err != nil {
		slog.Error("Failed to refresh access token, removing stale credential", "id", row.ID, "error", err)
		if delErr := m.repo.Delete(row.ID); delErr != nil {
			return nil, fmt.Errorf("failed to delete stale credential: %w", delErr)
		}
		return nil, nil
	}

	material := database.TokenMaterial{
		AccessToken:  token.AccessToken,
		RefreshToken: row.RefreshToken,
		TokenURI:     tokenURL,
		Scopes:       row.Scopes,
		TokenType:    "Bearer",
		Expiry:       m.expiryFromNow(token.ExpiresIn),
	}
	if token.RefreshToken != "" {
		material.RefreshToken = token.RefreshToken
	}

	updated, err := m.repo.Save(material, row, database.Identity{})
	if err != nil {
		return nil, fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	slog.Info("Successfully refreshed access token", "id", updated.ID)
	return updated, nil
}

// AuthenticateWithDeviceGrant runs the full Device Authorization Grant
// flow: fetch a device code, surface the verification URL and user code
// to the operator, then poll the token endpoint until authorization
// completes or the device code expires. Returns (nil, nil) on any abort.
func (m *Manager) AuthenticateWithDeviceGrant(ctx context.Context) (*database.Credential, error) {
	if m.clientID == "" || m.clientSecret == "" {
		slog.Error("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set to run device auth")
		return nil, nil
	}

	slog.Info("Starting device code OAuth flow")

	var device deviceCodeResponse
	err := m.postForm(ctx, m.endpoints.DeviceAuthURL, url.Values{
		"client_id": {m.clientID},
		"scope":     {m.scopes},
	}, &device)
	if err != nil {
		slog.Error("Failed to obtain device code", "error", err)
		return nil, nil
	}
	if device.DeviceCode == "" {
		slog.Error("Device authorization endpoint returned no device code")
		return nil, nil
	}

	fmt.Fprintf(m.out, "\n%s\n  To authorize this application, visit:\n    %s\n  and enter the code:  %s\n%s\n\n",
		strings.Repeat("=", 60), device.verification(), device.UserCode, strings.Repeat("=", 60))
	slog.Info("Waiting for user to complete device authorization", "user_code", device.UserCode)

	token := m.pollForTokens(ctx, device)
	if token == nil {
		return nil, nil
	}

	material := database.TokenMaterial{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     m.endpoints.TokenURL,
		Scopes:       m.scopes,
		TokenType:    "Bearer",
		Expiry:       m.expiryFromNow(token.ExpiresIn),
	}

	identity := database.Identity{
		ClientID:     &m.clientID,
		ClientSecret: &m.clientSecret,
	}

	// Identity lookup is best-effort; a failure here must not abort the flow.
	if info, err := m.fetchUserInfo(ctx, token.AccessToken); err != nil {
		slog.Warn("Could not fetch user info, continuing without identity", "error", err)
	} else {
		identity.UserID = &info.ID
		identity.UserEmail = &info.Email
		slog.Info("Authenticated", "email", info.Email, "user_id", info.ID)
	}

	row, err := m.repo.Save(material, nil, identity)
	if err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	slog.Info("Credential stored in database", "id", row.ID)
	return row, nil
}

func (m *Manager) pollForTokens(ctx context.Context, device deviceCodeResponse) *tokenResponse {
	interval := time.Duration(device.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	expiresIn := time.Duration(device.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = 30 * time.Minute
	}
	deadline := m.now().Add(expiresIn)

	for m.now().Before(deadline) {
		select {
		case <-ctx.Done():
			slog.Error("Device authorization canceled", "error", ctx.Err())
			return nil
		default:
		}

		m.sleep(interval)

		var token tokenResponse
		err := m.postForm(ctx, m.endpoints.TokenURL, url.Values{
			"client_id":     {m.clientID},
			"client_secret": {m.clientSecret},
			"device_code":   {device.DeviceCode},
			"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
		}, &token)
		if err != nil {
			slog.Warn("Device code polling request failed, retrying", "error", err)
			continue
		}

		switch token.Error {
		case "":
			return &token
		case "authorization_pending":
			continue
		case "slow_down":
			interval += slowDownIncrement
			if interval > maxPollInterval {
				interval = maxPollInterval
			}
			continue
		default:
			slog.Error("Device code polling error", "error", token.Error)
			return nil
		}
	}

	slog.Error("Device code expired before the user completed authorization")
	return nil
}

// RevokeStaleCredentials sweeps all stored credentials and deletes the
// unrecoverable ones. Expired credentials with a refresh token go through
// Refresh, which self-heals by deleting on failure. Expired credentials
// without one get a best-effort revoke call and are deleted regardless of
// its outcome; revoke failures are logged, never raised.
func (m *Manager) RevokeStaleCredentials(ctx context.Context) error {
	rows, err := m.repo.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	for i := range rows {
		row := &rows[i]

		if !IsExpired(row, m.refreshMargin, m.now()) {
			continue
		}

		if row.RefreshToken != "" {
			slog.Info("Credential is expired, attempting refresh before revoke check", "id", row.ID)
			if _, err := m.Refresh(ctx, row); err != nil {
				return err
			}
			continue
		}

		slog.Warn("Credential is expired with no refresh token, revoking and deleting", "id", row.ID)
		if row.AccessToken != "" {
			if err := m.revokeToken(ctx, row.AccessToken); err != nil {
				slog.Warn("Revoke request failed", "id", row.ID, "error", err)
			}
		}
		if err := m.repo.Delete(row.ID); err != nil {
			return fmt.Errorf("failed to delete revoked credential: %w", err)
		}
	}

	return nil
}

// GetValidCredential returns a ready-to-use credential, running device
// auth when no credential is stored (and forceAuth is set) and refreshing
// expiring ones. Every failure branch resolves to (nil, nil); only
// storage errors propagate.
func (m *Manager) GetValidCredential(ctx context.Context, forceAuth bool) (*database.Credential, error) {
	row, err := m.repo.Load()
	if err != nil {
		return nil, err
	}

	if row == nil {
		if !forceAuth {
			return nil, nil
		}
		slog.Info("No stored credential found, starting device auth flow")
		row, err = m.AuthenticateWithDeviceGrant(ctx)
		if err != nil || row == nil {
			return nil, err
		}
	}

	if IsExpired(row, m.refreshMargin, m.now()) {
		slog.Info("Credential is expired or expiring soon, refreshing", "id", row.ID)
		row, err = m.Refresh(ctx, row)
		if err != nil {
			return nil, err
		}
		if row == nil {
			// The stale row is already gone; a device grant is the only way back.
			slog.Info("Refresh failed, starting device auth flow")
			row, err = m.AuthenticateWithDeviceGrant(ctx)
			if err != nil || row == nil {
				return nil, err
			}
		}
	}

	return row, nil
}

func (m *Manager) fetchUserInfo(ctx context.Context, accessToken string) (*userInfoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned HTTP %d", resp.StatusCode)
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo response: %w", err)
	}

	return &info, nil
}

func (m *Manager) revokeToken(ctx context.Context, accessToken string) error {
	revokeURL := m.endpoints.RevokeURL + "?" + url.Values{"token": {accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("revoke endpoint returned HTTP %d", resp.StatusCode)
	}

	return nil
}

func (m *Manager) postForm(ctx context.Context, endpoint string, form url.Values, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Error payloads (authorization_pending etc.) arrive with 4xx status
	// codes; the decoded body carries the distinction.
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}

	return nil
}

func (m *Manager) expiryFromNow(expiresIn int) *time.Time {
	if expiresIn <= 0 {
		return nil
	}
	expiry := m.now().UTC().Add(time.Duration(expiresIn) * time.Second)
	return &expiry
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
