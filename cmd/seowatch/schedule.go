package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/seowatch/internal/models"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage monitoring schedules",
}

var scheduleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a monitoring schedule",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(cmd *cobra.Command, a *app, _ []string) error {
		user, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		typ, _ := cmd.Flags().GetString("type")
		cronExpr, _ := cmd.Flags().GetString("cron")
		target, _ := cmd.Flags().GetString("target")
		property, _ := cmd.Flags().GetString("property")
		disabled, _ := cmd.Flags().GetBool("disabled")

		sched := &models.MonitoringSchedule{
			UserID:         user,
			Name:           name,
			Type:           models.ScheduleType(typ),
			CronExpression: cronExpr,
			Enabled:        !disabled,
			Config:         map[string]string{},
		}
		if target != "" {
			sched.Config[models.ConfigTargetURL] = target
		}
		if property != "" {
			sched.Config[models.ConfigProperty] = property
		}
		if err := a.sched.Add(cmd.Context(), sched); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s created\n", sched.ID)
		return nil
	}),
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List monitoring schedules",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(cmd *cobra.Command, a *app, _ []string) error {
		list, err := a.store.ListSchedules(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tTYPE\tCRON\tENABLED\tLAST RUN\tSTATUS\tFAILURES")
		for _, s := range list {
			lastRun := "-"
			if s.LastRunAt != nil {
				lastRun = s.LastRunAt.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\t%d\n",
				s.ID, s.UserID, s.Type, s.CronExpression, s.Enabled, lastRun, s.LastRunStatus, s.ConsecutiveFailures)
		}
		return w.Flush()
	}),
}

func setEnabled(enabled bool) func(*cobra.Command, *app, []string) error {
	return func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.store.SetScheduleEnabled(cmd.Context(), args[0], enabled); err != nil {
			return err
		}
		state := "disabled"
		if enabled {
			state = "enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s %s\n", args[0], state)
		return nil
	}
}

var scheduleEnableCmd = &cobra.Command{
	Use:   "enable [SCHEDULE_ID]",
	Short: "Enable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(false, setEnabled(true)),
}

var scheduleDisableCmd = &cobra.Command{
	Use:   "disable [SCHEDULE_ID]",
	Short: "Disable a schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(false, setEnabled(false)),
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run [SCHEDULE_ID]",
	Short: "Run a schedule now",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		if err := a.sched.RunNow(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Schedule %s ran successfully\n", args[0])
		return nil
	}),
}

var keywordsCmd = &cobra.Command{
	Use:   "keywords",
	Short: "Track keywords and sync their rankings",
}

var keywordsTrackCmd = &cobra.Command{
	Use:   "track [URL] [KEYWORD...]",
	Short: "Start tracking keywords for a page",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		for _, kw := range args[1:] {
			if err := a.syncer.Track(cmd.Context(), args[0], kw); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Tracking %d keyword(s) for %s\n", len(args)-1, args[0])
		return nil
	}),
}

var keywordsListCmd = &cobra.Command{
	Use:   "list [URL]",
	Short: "List tracked keywords for a page",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		list, err := a.store.ListKeywords(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEYWORD\tPOSITION\tPREVIOUS\tTREND\tCLICKS\tIMPRESSIONS")
		for _, k := range list {
			var clicks, impressions int64
			if m := k.ExternalMetrics; m != nil {
				clicks, impressions = m.Clicks, m.Impressions
			}
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%d\n", k.Keyword, k.Position, k.PreviousPosition, k.Trend, clicks, impressions)
		}
		return w.Flush()
	}),
}

var keywordsSyncCmd = &cobra.Command{
	Use:   "sync [URL]",
	Short: "Pull rankings for the tracked keywords of a page now",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		property, _ := cmd.Flags().GetString("property")

		out, err := a.pipeline.SyncKeywords(cmd.Context(), user, args[0], property)
		if out != nil {
			for _, alert := range out.Raised {
				fmt.Fprintf(cmd.ErrOrStderr(), "alert raised: [%s] %s\n", alert.Severity, alert.Title)
			}
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %d keyword(s), %d without data\n", len(out.Sync.Series), len(out.Sync.Missing))
		return nil
	}),
}

func init() {
	scheduleAddCmd.Flags().String("user", "default", "Owner of the schedule")
	scheduleAddCmd.Flags().String("name", "", "Schedule name")
	scheduleAddCmd.Flags().String("type", string(models.ScheduleAudit), "Job type (audit, keyword_sync, daily_digest, weekly_digest)")
	scheduleAddCmd.Flags().String("cron", "", "Cron expression, e.g. \"0 6 * * *\" or @daily")
	scheduleAddCmd.Flags().String("target", "", "Target URL for audit and keyword_sync jobs")
	scheduleAddCmd.Flags().String("property", "", "Provider property for keyword_sync jobs (defaults to the target URL)")
	scheduleAddCmd.Flags().Bool("disabled", false, "Create the schedule disabled")
	_ = scheduleAddCmd.MarkFlagRequired("cron")
	scheduleCmd.AddCommand(scheduleAddCmd, scheduleListCmd, scheduleEnableCmd, scheduleDisableCmd, scheduleRunCmd)

	keywordsSyncCmd.Flags().String("user", "default", "User whose provider credential is used")
	keywordsSyncCmd.Flags().String("property", "", "Provider property (defaults to the URL)")
	keywordsCmd.AddCommand(keywordsTrackCmd, keywordsListCmd, keywordsSyncCmd)

	rootCmd.AddCommand(scheduleCmd, keywordsCmd)
}
