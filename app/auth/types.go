package auth

// Endpoints holds the provider URLs used by the device-grant flow and
// token lifecycle. Overridable so tests can point at a local server.
type Endpoints struct {
	DeviceAuthURL string
	TokenURL      string
	UserInfoURL   string
	RevokeURL     string
}

// GoogleEndpoints returns the production Google OAuth 2.0 endpoints.
func GoogleEndpoints() Endpoints {
	return Endpoints{
		DeviceAuthURL: "https://oauth2.googleapis.com/device/code",
		TokenURL:      "https://oauth2.googleapis.com/token",
		UserInfoURL:   "https://www.googleapis.com/oauth2/v2/userinfo",
		RevokeURL:     "https://oauth2.googleapis.com/revoke",
	}
}

// DefaultScopes are requested when OAUTH_SCOPES is not configured.
const DefaultScopes = "https://www.googleapis.com/auth/youtube.readonly " +
	"https://www.googleapis.com/auth/userinfo.email " +
	"https://www.googleapis.com/auth/userinfo.profile"

type deviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	VerificationURI string `json:"verification_uri"`
	Interval        int    `json:"interval"`
	ExpiresIn       int    `json:"expires_in"`
}

func (r deviceCodeResponse) verification() string {
	if r.VerificationURL != "" {
		return r.VerificationURL
	}
	return r.VerificationURI
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

type userInfoResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}
