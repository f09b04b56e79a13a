// Package auth implements the token/session broker for Drive access.
//
// The broker holds a short-lived access token in memory and a minimal user
// identity marker on disk. The two are deliberately distinct:
// IsAuthenticated answers "is there a signed-in user" (survives restarts),
// while HasValidAccessToken answers "can we call Drive right now without
// prompting". Background code paths must check the latter and skip work
// instead of triggering a consent prompt; only SignIn, a direct user gesture,
// may run the interactive flow.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/dvloznov/financetracker/internal/events"
	"github.com/dvloznov/financetracker/internal/logger"
)

// ErrInteractiveAuthRequired signals that no usable access token exists and
// only an interactive consent flow can obtain one. Automatic callers must
// treat this as "skip the operation", never as a reason to prompt.
var ErrInteractiveAuthRequired = errors.New("interactive authentication is required")

// tokenValidityMargin is subtracted from the token expiry when deciding
// whether the token is still usable, so calls never race the real expiry.
const tokenValidityMargin = 5 * time.Second

const (
	defaultUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	defaultRevokeURL   = "https://oauth2.googleapis.com/revoke"
)

// Flow performs the interactive consent flow and returns a fresh token.
// Implementations may open a browser; the broker only invokes a Flow from
// SignIn.
type Flow interface {
	RequestToken(ctx context.Context) (*oauth2.Token, error)
}

// DataClearer wipes locally cached application data. The local store
// implements it so sign-out removes the user's data from the device.
type DataClearer interface {
	Clear(ctx context.Context) error
}

// tokenState is the broker-owned in-memory token. There is deliberately no
// refresh token: when the access token expires, privileged calls fail with
// ErrInteractiveAuthRequired until the user signs in again.
type tokenState struct {
	value     string
	expiresAt time.Time
}

// Broker owns token state and the persisted identity marker.
type Broker struct {
	mu    sync.Mutex
	token tokenState

	flow       Flow
	identities IdentityStore
	local      DataClearer
	bus        *events.Bus

	httpClient  *http.Client
	userinfoURL string
	revokeURL   string
	now         func() time.Time
}

// NewBroker wires a broker from its collaborators. local may be nil when
// there is no device-local data to wipe on sign-out.
func NewBroker(flow Flow, identities IdentityStore, local DataClearer, bus *events.Bus) *Broker {
	return &Broker{
		flow:        flow,
		identities:  identities,
		local:       local,
		bus:         bus,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		userinfoURL: defaultUserinfoURL,
		revokeURL:   defaultRevokeURL,
		now:         time.Now,
	}
}

// SignIn runs the interactive consent flow, caches the resulting token,
// persists the user identity marker and announces the auth change. This is
// the only broker operation allowed to prompt the user.
func (b *Broker) SignIn(ctx context.Context) error {
	log := logger.FromContext(ctx)

	tok, err := b.flow.RequestToken(ctx)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = b.now().Add(time.Hour)
	}

	b.mu.Lock()
	b.token = tokenState{value: tok.AccessToken, expiresAt: expiry}
	b.mu.Unlock()

	// Profile fetch is best-effort: a failure leaves the session usable but
	// without a persisted marker, matching the sign-in-every-device model.
	if profile, err := b.fetchProfile(ctx, tok.AccessToken); err != nil {
		log.Warn().Err(err).Msg("Failed to fetch user profile")
	} else if err := b.identities.Save(*profile); err != nil {
		log.Warn().Err(err).Msg("Failed to persist user identity marker")
	}

	b.bus.Publish(events.AuthChanged)
	return nil
}

// AccessToken returns the cached token when it is still inside its validity
// window. Otherwise it fails with ErrInteractiveAuthRequired; it never
// performs network I/O and never prompts.
func (b *Broker) AccessToken() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tokenValidLocked() {
		return b.token.value, nil
	}
	return "", ErrInteractiveAuthRequired
}

// HasValidAccessToken reports whether a privileged call would succeed right
// now without interactive auth.
func (b *Broker) HasValidAccessToken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokenValidLocked()
}

// IsAuthenticated reports whether a signed-in user exists: either a live
// token or a persisted identity marker. Used for session persistence across
// restarts; it says nothing about token freshness.
func (b *Broker) IsAuthenticated() bool {
	if b.HasValidAccessToken() {
		return true
	}
	profile, err := b.identities.Load()
	return err == nil && profile != nil
}

// Profile returns the persisted identity marker, or nil when signed out.
func (b *Broker) Profile() (*UserProfile, error) {
	return b.identities.Load()
}

// SignOut revokes the token server-side (best effort), then unconditionally
// clears the in-memory token, the identity marker and all locally cached
// application data. It is idempotent; remote revocation failure never
// prevents local cleanup.
func (b *Broker) SignOut(ctx context.Context) {
	log := logger.FromContext(ctx)

	b.mu.Lock()
	token := b.token.value
	b.token = tokenState{}
	b.mu.Unlock()

	if token != "" {
		if err := b.revoke(ctx, token); err != nil {
			log.Warn().Err(err).Msg("Token revocation failed")
		}
	}

	if err := b.identities.Clear(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear identity marker")
	}
	if b.local != nil {
		if err := b.local.Clear(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to clear local data")
		}
	}

	b.bus.Publish(events.AuthChanged)
}

// Token implements oauth2.TokenSource so the Drive client can consume broker
// tokens directly. An expired token surfaces ErrInteractiveAuthRequired
// through the transport unchanged.
func (b *Broker) Token() (*oauth2.Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.tokenValidLocked() {
		return nil, ErrInteractiveAuthRequired
	}
	return &oauth2.Token{AccessToken: b.token.value, Expiry: b.token.expiresAt}, nil
}

// TokenSource exposes the broker as an oauth2.TokenSource.
func (b *Broker) TokenSource() oauth2.TokenSource {
	return b
}

func (b *Broker) tokenValidLocked() bool {
	return b.token.value != "" && b.now().Before(b.token.expiresAt.Add(-tokenValidityMargin))
}

func (b *Broker) fetchProfile(ctx context.Context, token string) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch profile: unexpected status %d", resp.StatusCode)
	}

	profile, err := decodeProfile(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return profile, nil
}

func (b *Broker) revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke token: unexpected status %d", resp.StatusCode)
	}
	return nil
}
