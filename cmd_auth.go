package main

import (
	"errors"
	"log"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	"outline_assistant/auth"
	"outline_assistant/config"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage document access credentials",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and grant document access",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		tokens, _, err := buildTokenManager(cfg)
		if err != nil {
			return err
		}
		pterm.Info.Println("Opening the consent page in your browser...")
		if _, err := tokens.Token(cmd.Context(), true); err != nil {
			return err
		}
		pterm.Success.Println("Signed in")
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and forget stored credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		tokens, _, err := buildTokenManager(cfg)
		if err != nil {
			return err
		}
		if err := tokens.Clear(cmd.Context()); err != nil {
			return err
		}
		pterm.Success.Println("Signed out")
		return nil
	},
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		_, identity, err := buildTokenManager(cfg)
		if err != nil {
			return err
		}
		tok, err := identity.Cached()
		if err != nil {
			return err
		}
		if tok == nil {
			pterm.Info.Println("Not signed in")
			return nil
		}
		expiry := "unknown"
		if !tok.Expiry.IsZero() {
			expiry = tok.Expiry.Local().Format(time.RFC1123)
		}
		data := pterm.TableData{
			{"Field", "Value"},
			{"Access token", yesNo(tok.AccessToken != "")},
			{"Valid", yesNo(tok.Valid())},
			{"Refresh token", yesNo(tok.RefreshToken != "")},
			{"Expires", expiry},
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}

func init() {
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authStatusCmd)
}

func buildTokenManager(cfg config.Config) (*auth.TokenManager, *auth.OAuthIdentity, error) {
	if cfg.Google.ClientID == "" {
		return nil, nil, errors.New("google.client_id is required (or set GOOGLE_CLIENT_ID)")
	}
	identity := &auth.OAuthIdentity{
		Config: &oauth2.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			Endpoint:     auth.GoogleEndpoint,
			Scopes:       cfg.Google.Scopes,
		},
		CallbackPort: cfg.Google.RedirectPort,
		Logger:       log.Default(),
	}
	tokens, err := auth.NewTokenManager(identity, cfg.Google.RevokeURL, nil, log.Default(), verbose)
	if err != nil {
		return nil, nil, err
	}
	return tokens, identity, nil
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
