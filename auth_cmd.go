package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/agendify/pkg/auth"
	"github.com/harrisonrobin/agendify/pkg/config"
)

var authName string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize read access to the user's Google Calendar",
	Long: `Runs the OAuth authorization-code flow through a local callback server and
stores the resulting credential for the user given with --user.`,
	RunE: runAuth,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect the stored calendar credential",
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the access token if it has expired",
	RunE:  runTokenRefresh,
}

func init() {
	authCmd.Flags().StringVar(&authName, "name", "", "Display name for a newly registered user")
	tokenCmd.AddCommand(tokenRefreshCmd)
}

func runAuth(cmd *cobra.Command, args []string) error {
	if cfg.CalendarSource != config.SourceGoogle {
		return errors.New("auth is only needed for the google calendar source")
	}
	if userEmail == "" {
		return errors.New("--user is required to register a credential")
	}
	ctx := cmd.Context()
	oauthCfg, err := auth.NewOAuthConfig(oauthSettings())
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	user, err := a.users.Ensure(ctx, userEmail, authName)
	if err != nil {
		return err
	}
	if _, err := a.creds.Load(ctx, user.ID); err == nil {
		slog.Info("removing existing credential", "user", user.Email)
		if err := a.creds.Delete(ctx, user.ID); err != nil {
			return fmt.Errorf("could not delete existing credential: %w", err)
		}
	}

	cred, err := auth.NewWebFlow(oauthCfg, os.Stdout).Authorize(ctx)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if cred.RefreshToken == "" {
		slog.Warn("no refresh token granted, access will stop when the token expires")
	}
	if err := a.creds.Save(ctx, user.ID, cred); err != nil {
		return err
	}
	fmt.Printf("Authentication successful for %s.\n", user.Email)
	return nil
}

func runTokenRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.keeper == nil {
		return errors.New("no google oauth client is configured")
	}
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	cred, refreshed, err := a.keeper.Ensure(ctx, user.ID)
	if err != nil {
		return err
	}
	state := "still valid"
	if refreshed {
		state = "refreshed"
	}
	fmt.Printf("Token %s, expires at %s\n", state, cred.ExpiresAt.In(cfg.Location()).Format("2006-01-02 15:04 MST"))
	return nil
}
