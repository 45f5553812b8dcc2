package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/zalando/go-keyring"
	"golang.org/x/oauth2"
)

// DocumentsScope grants read/write access to the user's documents.
const DocumentsScope = "https://www.googleapis.com/auth/documents"

// GoogleEndpoint is the OAuth 2.0 endpoint of the host document platform.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const (
	keyringService     = "outline-assistant"
	defaultUser        = "default"
	callbackPath       = "/callback"
	defaultConsentWait = 3 * time.Minute
)

// OAuthIdentity issues tokens through the OAuth installed-app flow. Tokens
// live in the OS keyring; interactive consent opens the browser and receives
// the code on a loopback callback.
type OAuthIdentity struct {
	Config *oauth2.Config

	// Account names the keyring entry; empty uses "default".
	Account string

	// CallbackPort fixes the loopback port; 0 picks a free one.
	CallbackPort int

	// Open shows the consent URL; defaults to browser.OpenURL.
	Open        func(url string) error
	ConsentWait time.Duration
	HTTPClient  *http.Client
	Logger      *log.Logger
}

func (o *OAuthIdentity) account() string {
	if o.Account == "" {
		return defaultUser
	}
	return o.Account
}

func (o *OAuthIdentity) ctx(ctx context.Context) context.Context {
	if o.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, o.HTTPClient)
	}
	return ctx
}

// GetAuthToken returns the cached access token, silently refreshing it when a
// refresh token is stored. Only interactive calls show the consent page.
func (o *OAuthIdentity) GetAuthToken(ctx context.Context, interactive bool) (string, error) {
	if o.Config == nil {
		return "", errors.New("oauth config is required")
	}

	cached, err := o.load()
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return "", fmt.Errorf("read token cache: %w", err)
	}
	if cached != nil {
		if cached.Valid() {
			return cached.AccessToken, nil
		}
		if cached.RefreshToken != "" {
			tok, err := o.Config.TokenSource(o.ctx(ctx), cached).Token()
			if err == nil {
				if err := o.save(tok); err != nil {
					return "", err
				}
				return tok.AccessToken, nil
			}
			o.logger().Printf("[WARN] [auth] silent refresh failed: %v", err)
		}
	}

	if !interactive {
		return "", ErrNoToken
	}
	tok, err := o.consent(ctx)
	if err != nil {
		return "", err
	}
	if err := o.save(tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// RemoveCachedAuthToken drops token from the keyring. A stored refresh token
// is kept so the next call can mint a new access token without consent.
func (o *OAuthIdentity) RemoveCachedAuthToken(_ context.Context, token string) error {
	cached, err := o.load()
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if cached.AccessToken != token {
		return nil
	}
	if cached.RefreshToken == "" {
		return o.Forget(context.Background())
	}
	cached.AccessToken = ""
	cached.Expiry = time.Time{}
	return o.save(cached)
}

// Forget deletes every stored credential for the account.
func (o *OAuthIdentity) Forget(context.Context) error {
	err := keyring.Delete(keyringService, o.account())
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Cached reports the stored token without refreshing or prompting.
func (o *OAuthIdentity) Cached() (*oauth2.Token, error) {
	tok, err := o.load()
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	return tok, err
}

func (o *OAuthIdentity) load() (*oauth2.Token, error) {
	raw, err := keyring.Get(keyringService, o.account())
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, fmt.Errorf("decode cached token: %w", err)
	}
	return &tok, nil
}

func (o *OAuthIdentity) save(tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := keyring.Set(keyringService, o.account(), string(raw)); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}
	return nil
}

func (o *OAuthIdentity) logger() *log.Logger {
	if o.Logger == nil {
		return log.Default()
	}
	return o.Logger
}

type callbackResult struct {
	code string
	err  error
}

// consent runs the loopback authorization code flow with PKCE.
func (o *OAuthIdentity) consent(ctx context.Context) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", o.CallbackPort))
	if err != nil {
		return nil, fmt.Errorf("start callback listener: %w", err)
	}

	cfg := *o.Config
	cfg.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = fmt.Errorf("%w: state mismatch", ErrAuthDenied)
		case q.Get("error") != "":
			res.err = fmt.Errorf("%w: %s", ErrAuthDenied, q.Get("error"))
		case q.Get("code") == "":
			res.err = fmt.Errorf("%w: no authorization code", ErrAuthDenied)
		default:
			res.code = q.Get("code")
		}
		if res.err != nil {
			http.Error(w, "Authorization failed. You can close this window.", http.StatusBadRequest)
		} else {
			fmt.Fprintln(w, "Authorization complete. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(ln) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	open := o.Open
	if open == nil {
		open = browser.OpenURL
	}
	if err := open(authURL); err != nil {
		o.logger().Printf("[WARN] [auth] could not open browser, visit %s", authURL)
	}

	wait := o.ConsentWait
	if wait <= 0 {
		wait = defaultConsentWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	var res callbackResult
	select {
	case res = <-results:
	case <-timer.C:
		return nil, fmt.Errorf("%w: consent timed out", ErrAuthDenied)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := cfg.Exchange(o.ctx(ctx), res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("%w: exchange code: %w", ErrAuthDenied, err)
	}
	return tok, nil
}
