package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"

	"github.com/harrisonrobin/agendify/pkg/model"
)

const (
	// LocalhostAuthPort is the port the local callback server listens on
	// during the authorization-code flow.
	LocalhostAuthPort = "6789"

	authTimeout = 5 * time.Minute
)

// DefaultScopes is read-only access to the user's calendars.
var DefaultScopes = []string{calendar.CalendarReadonlyScope}

// Settings carries the OAuth client registration. Either ClientSecretsFile
// (a Google credentials.json) or ClientID/ClientSecret must be set.
type Settings struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	ClientSecretsFile string
	Scopes            []string
}

// NewOAuthConfig builds the oauth2.Config for the Google token endpoint.
func NewOAuthConfig(s Settings) (*oauth2.Config, error) {
	scopes := s.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	var config *oauth2.Config
	if s.ClientSecretsFile != "" {
		b, err := os.ReadFile(s.ClientSecretsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read client secret file %s: %w", s.ClientSecretsFile, err)
		}
		config, err = google.ConfigFromJSON(b, scopes...)
		if err != nil {
			return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
		}
	} else {
		if s.ClientID == "" || s.ClientSecret == "" {
			return nil, errors.New("oauth client id and secret are required")
		}
		config = &oauth2.Config{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RedirectURL:  s.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		}
	}
	if s.RedirectURL != "" {
		config.RedirectURL = s.RedirectURL
	}
	config.RedirectURL = localRedirect(config.RedirectURL)
	return config, nil
}

// localRedirect forces the redirect URL onto the local callback listener.
func localRedirect(raw string) string {
	fallback := fmt.Sprintf("http://localhost:%s/oauth2callback", LocalhostAuthPort)
	if raw == "" || raw == "urn:ietf:wg:oauth:2.0:oob" {
		return fallback
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		slog.Warn("could not parse redirect url, using it as is", "redirect_url", raw, "error", err)
		return raw
	}
	if parsed.Hostname() != "localhost" && parsed.Hostname() != "127.0.0.1" {
		slog.Warn("redirect url is not a localhost callback", "redirect_url", raw)
		return raw
	}
	if parsed.Port() != LocalhostAuthPort {
		parsed.Host = net.JoinHostPort(parsed.Hostname(), LocalhostAuthPort)
	}
	return parsed.String()
}

// WebFlow runs the authorization-code flow through a short-lived local server
// and returns the resulting credential. Persisting it is the caller's job.
type WebFlow struct {
	config *oauth2.Config
	out    io.Writer
}

func NewWebFlow(config *oauth2.Config, out io.Writer) *WebFlow {
	return &WebFlow{config: config, out: out}
}

func (f *WebFlow) Authorize(ctx context.Context) (model.Credential, error) {
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	listener, err := net.Listen("tcp", ":"+LocalhostAuthPort)
	if err != nil {
		return model.Credential{}, fmt.Errorf("failed to start listener on port %s: %w", LocalhostAuthPort, err)
	}
	defer listener.Close()

	state := fmt.Sprintf("agendify-%d", time.Now().UnixNano())
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("state") != state {
				http.Error(w, "State mismatch", http.StatusBadRequest)
				return
			}
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Authorization code not found", http.StatusBadRequest)
				errCh <- errors.New("authorization code not found in redirect URL")
				return
			}
			fmt.Fprint(w, "Authentication successful! You can close this window.")
			codeCh <- code
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
	defer server.Shutdown(context.Background())

	go func() {
		slog.Info("waiting for oauth redirect", "redirect_url", f.config.RedirectURL)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Offline access is what makes the endpoint hand out a refresh token.
	authURL := f.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(f.out, "Open the following URL in your browser to authorize agendify:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		exCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		tok, err := f.config.Exchange(exCtx, code)
		if err != nil {
			return model.Credential{}, fmt.Errorf("unable to retrieve token: %w", err)
		}
		return credentialFromToken(tok), nil
	case err := <-errCh:
		return model.Credential{}, err
	case <-ctx.Done():
		return model.Credential{}, ctx.Err()
	case <-time.After(authTimeout):
		return model.Credential{}, errors.New("authorization timed out, please try again")
	}
}

func credentialFromToken(tok *oauth2.Token) model.Credential {
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(defaultTokenLifetime)
	}
	return model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt.UTC(),
	}
}
