package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/agendify/pkg/mail"
)

var (
	lookahead  int
	asJSON     bool
	digestDate string
	digestSend bool
	digestHTML bool
	testEmail  bool
)

var upcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "List events and tasks starting soon",
	RunE:  runUpcoming,
}

var calendarsCmd = &cobra.Command{
	Use:   "calendars",
	Short: "List the Google calendars the user can read",
	Long: `Lists the calendars visible to the stored credential. The NAME column is
what the calendar setting accepts in place of an ID.`,
	RunE: runCalendars,
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Show or send the daily agenda digest",
	RunE:  runDigest,
}

func init() {
	upcomingCmd.Flags().IntVar(&lookahead, "lookahead", 0, "Minutes to look ahead (default from config)")
	upcomingCmd.Flags().BoolVar(&asJSON, "json", false, "Print the API response shape as JSON")

	digestCmd.Flags().StringVar(&digestDate, "date", "", "Day to summarize as YYYY-MM-DD (default today)")
	digestCmd.Flags().BoolVar(&digestSend, "send", false, "Email the digest instead of printing it")
	digestCmd.Flags().BoolVar(&digestHTML, "html", false, "Print the HTML email body")
	digestCmd.Flags().BoolVar(&testEmail, "test-email", false, "Send a test message to check the SMTP settings")
	digestCmd.MarkFlagsMutuallyExclusive("send", "html", "test-email")

	calendarsCmd.Flags().BoolVar(&asJSON, "json", false, "Print the calendar list as JSON")
}

func runUpcoming(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	minutes := cfg.Lookahead
	if lookahead != 0 {
		minutes = lookahead
	}
	up, err := a.service.GetUpcoming(ctx, user.ID, time.Now(), minutes)
	if err != nil {
		return err
	}
	if up.CalendarErr != nil {
		slog.Warn("calendar unavailable, showing tasks only", "error", up.CalendarErr)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"success":        true,
			"upcoming_items": up.Items,
			"count":          len(up.Items),
		})
	}
	if len(up.Items) == 0 {
		fmt.Printf("Nothing in the next %d minutes.\n", minutes)
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IN\tTYPE\tTITLE\tWHEN")
	for _, it := range up.Items {
		fmt.Fprintf(w, "%dm\t%s\t%s\t%s\n", it.MinutesUntil, it.Kind, it.Title, it.EffectiveTime.In(cfg.Location()).Format("15:04"))
	}
	return w.Flush()
}

func runCalendars(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.google == nil || a.keeper == nil {
		return errors.New("calendar listing needs the google source with an oauth client configured")
	}
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	cred, err := a.keeper.Usable(ctx, user.ID)
	if err != nil {
		return err
	}
	calendars, err := a.google.Calendars(ctx, cred)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"success": true, "calendars": calendars})
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tID\tROLE\tPRIMARY")
	for _, c := range calendars {
		primary := ""
		if c.Primary {
			primary = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Summary, c.ID, c.AccessRole, primary)
	}
	return w.Flush()
}

func runDigest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	user, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	day := time.Now().In(cfg.Location())
	if digestDate != "" {
		if day, err = time.ParseInLocation(time.DateOnly, digestDate, cfg.Location()); err != nil {
			return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
	}

	if testEmail {
		if a.mailer == nil {
			return errors.New("smtp is not configured")
		}
		if err := a.mailer.SendTest(ctx, user.Email); err != nil {
			return err
		}
		fmt.Printf("Test email sent to %s\n", user.Email)
		return nil
	}

	if digestSend {
		if err := a.service.SendDailyDigest(ctx, user.ID, day); err != nil {
			return err
		}
		fmt.Printf("Daily digest sent to %s\n", user.Email)
		return nil
	}

	d, err := a.service.GetDailyDigest(ctx, user.ID, day)
	if err != nil {
		return err
	}
	if d.CalendarErr != nil {
		slog.Warn("calendar unavailable, digest has tasks only", "error", d.CalendarErr)
	}
	if digestHTML {
		html, err := mail.RenderHTML(d.Payload)
		if err != nil {
			return err
		}
		fmt.Print(html)
		return nil
	}
	fmt.Print(mail.RenderText(d.Payload))
	return nil
}
