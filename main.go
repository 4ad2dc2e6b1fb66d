package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/agendify/pkg/agenda"
	"github.com/harrisonrobin/agendify/pkg/auth"
	"github.com/harrisonrobin/agendify/pkg/config"
	"github.com/harrisonrobin/agendify/pkg/google"
	"github.com/harrisonrobin/agendify/pkg/ics"
	"github.com/harrisonrobin/agendify/pkg/mail"
	"github.com/harrisonrobin/agendify/pkg/model"
	"github.com/harrisonrobin/agendify/pkg/store"
)

var (
	configPath string
	userEmail  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "agendify",
	Short:         "Upcoming calendar events and tasks, plus a daily agenda digest",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		level, _ := config.ParseLevel(cfg.LogLevel)
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/agendify/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&userEmail, "user", "", "Email of the user to act as (optional with a single user)")

	rootCmd.AddCommand(serveCmd, upcomingCmd, digestCmd, calendarsCmd, authCmd, tokenCmd, tasksCmd, usersCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("agendify failed", "error", err)
		os.Exit(1)
	}
}

// app holds everything a command may need, built from cfg.
type app struct {
	db      *store.DB
	users   *store.UserRepo
	creds   *store.CredentialRepo
	tasks   *store.TaskRepo
	keeper  *auth.Keeper
	google  *google.Source
	mailer  *mail.Sender
	service *agenda.Service
}

func openApp(ctx context.Context) (*app, error) {
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.RunMigrations(db.Writer); err != nil {
		db.Close()
		return nil, err
	}

	a := &app{
		db:    db,
		users: store.NewUserRepo(db),
		creds: store.NewCredentialRepo(db),
		tasks: store.NewTaskRepo(db),
	}

	var (
		credentials agenda.Credentials
		source      agenda.CalendarSource
	)
	switch cfg.CalendarSource {
	case config.SourceICS:
		credentials = auth.Anonymous{}
		source = ics.NewSource(cfg.ICSURL, cfg.Location())
	default:
		a.google = google.NewSource(cfg.Calendar)
		source = a.google
		oauthCfg, err := auth.NewOAuthConfig(oauthSettings())
		if err != nil {
			slog.Warn("google oauth client not configured, calendar disabled", "error", err)
			credentials = unconfigured{err: err}
			break
		}
		a.keeper = auth.NewKeeper(a.creds, auth.NewLifecycle(auth.NewExchanger(oauthCfg)))
		credentials = a.keeper
	}

	opts := []agenda.Option{agenda.WithUsers(a.users)}
	if cfg.SMTP.Enabled() {
		a.mailer = mail.NewSender(mail.Settings{
			Server:   cfg.SMTP.Server,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		opts = append(opts, agenda.WithMailer(a.mailer))
	}
	a.service = agenda.NewService(credentials, source, a.tasks, cfg.Location(), opts...)
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		slog.Warn("closing database", "error", err)
	}
}

// currentUser resolves --user, or the only registered user when the flag is empty.
func (a *app) currentUser(ctx context.Context) (model.User, error) {
	if userEmail != "" {
		u, err := a.users.ByEmail(ctx, userEmail)
		if errors.Is(err, store.ErrNotFound) {
			return model.User{}, fmt.Errorf("no user registered as %s, run 'agendify auth' or 'agendify users add'", userEmail)
		}
		return u, err
	}
	all, err := a.users.List(ctx)
	if err != nil {
		return model.User{}, err
	}
	switch len(all) {
	case 0:
		return model.User{}, errors.New("no users registered, run 'agendify auth' or 'agendify users add'")
	case 1:
		return all[0], nil
	}
	return model.User{}, errors.New("several users registered, pick one with --user")
}

func oauthSettings() auth.Settings {
	return auth.Settings{
		ClientID:          cfg.Google.ClientID,
		ClientSecret:      cfg.Google.ClientSecret,
		RedirectURL:       cfg.Google.RedirectURL,
		ClientSecretsFile: cfg.Google.ClientSecretsFile,
	}
}

// unconfigured stands in for the credential keeper when no OAuth client is set up.
type unconfigured struct{ err error }

func (u unconfigured) Usable(context.Context, string) (model.Credential, error) {
	return model.Credential{}, &auth.CredentialError{Kind: auth.NoCredential, Err: u.err}
}

func (unconfigured) Invalidate(context.Context, string, string) error { return nil }
