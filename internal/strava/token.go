package strava

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"example.com/trainload/internal/domain"
)

// DefaultTokenURL is the provider's OAuth token endpoint.
const DefaultTokenURL = "https://www.strava.com/oauth/token"

// expiryBuffer refreshes the credential this long before it actually expires.
const expiryBuffer = 5 * time.Minute

// OAuthConfig holds the application credential for token refresh.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// RefreshFunc is invoked with the rotated credential whenever a refresh
// happens, so callers can persist the new token pair.
type RefreshFunc func(accessToken, refreshToken string, expiry time.Time) error

// TokenSource adapts an athlete's stored credential to oauth2, persisting
// rotated tokens through the callback. Safe for concurrent use.
func TokenSource(cfg OAuthConfig, profile *domain.AthleteProfile, onRefresh RefreshFunc) oauth2.TokenSource {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	token := &oauth2.Token{
		AccessToken:  profile.AccessToken,
		RefreshToken: profile.RefreshToken,
		Expiry:       profile.TokenExpiry.Add(-expiryBuffer),
	}

	return &persistingTokenSource{
		inner:     oauthCfg.TokenSource(context.Background(), token),
		current:   token,
		onRefresh: onRefresh,
	}
}

type persistingTokenSource struct {
	mu        sync.Mutex
	inner     oauth2.TokenSource
	current   *oauth2.Token
	onRefresh RefreshFunc
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.inner.Token()
	if err != nil {
		return nil, err
	}

	if token.AccessToken != s.current.AccessToken && s.onRefresh != nil {
		if err := s.onRefresh(token.AccessToken, token.RefreshToken, token.Expiry); err != nil {
			return nil, err
		}
	}
	s.current = token
	return token, nil
}
