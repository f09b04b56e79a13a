package auth

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/dvloznov/financetracker/internal/logger"
)

// Scopes requested at sign-in: profile identity plus file-scoped and
// app-data-scoped Drive access. drive.appdata is required for the
// appDataFolder state file; requesting a narrower scope leads to 403s there.
var Scopes = []string{
	"openid",
	"profile",
	"email",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/drive.appdata",
}

// NewGoogleConfig builds the OAuth config for the Google endpoint. The
// redirect URL is filled in per flow run (loopback port is dynamic).
func NewGoogleConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       Scopes,
	}
}

// LoopbackFlow implements the interactive consent flow with a loopback
// redirect: it serves a one-shot 127.0.0.1 callback, sends the user to the
// provider's consent page, and exchanges the returned code for a token.
type LoopbackFlow struct {
	Config *oauth2.Config

	// OpenURL delivers the consent URL to the user. When nil the URL is
	// printed to stderr for the user to open manually.
	OpenURL func(url string) error
}

type callbackResult struct {
	code string
	err  error
}

// RequestToken runs one interactive consent round trip. It blocks until the
// user completes (or rejects) consent, or until ctx is done.
func (f *LoopbackFlow) RequestToken(ctx context.Context) (*oauth2.Token, error) {
	log := logger.FromContext(ctx)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("request token: listen on loopback: %w", err)
	}
	defer lis.Close()

	cfg := *f.Config
	cfg.RedirectURL = fmt.Sprintf("http://%s/oauth2/callback", lis.Addr().String())

	state := uuid.New().String()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			results <- callbackResult{err: fmt.Errorf("state mismatch in consent callback")}
		case q.Get("error") != "":
			http.Error(w, "consent denied", http.StatusForbidden)
			results <- callbackResult{err: fmt.Errorf("consent denied: %s", q.Get("error"))}
		default:
			fmt.Fprintln(w, "Signed in. You can close this tab and return to the terminal.")
			results <- callbackResult{code: q.Get("code")}
		}
	})

	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("Consent callback server stopped unexpectedly")
		}
	}()
	defer srv.Close()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
	if f.OpenURL != nil {
		if err := f.OpenURL(authURL); err != nil {
			return nil, fmt.Errorf("request token: open consent page: %w", err)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Open the following URL in a browser to sign in:\n\n  %s\n\n", authURL)
	}

	select {
	case res := <-results:
		if res.err != nil {
			return nil, fmt.Errorf("request token: %w", res.err)
		}
		tok, err := cfg.Exchange(ctx, res.code)
		if err != nil {
			return nil, fmt.Errorf("request token: exchange code: %w", err)
		}
		return tok, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("request token: %w", ctx.Err())
	}
}
