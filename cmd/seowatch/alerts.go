package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/alerts"
	"github.com/amosWeiskopf/seowatch/pkg/rules"
	"github.com/amosWeiskopf/seowatch/pkg/store"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List and manage alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(cmd *cobra.Command, a *app, _ []string) error {
		user, _ := cmd.Flags().GetString("user")
		status, _ := cmd.Flags().GetString("status")
		since, _ := cmd.Flags().GetDuration("since")

		f := store.AlertFilter{UserID: user, Status: models.AlertStatus(status)}
		if since > 0 {
			f.Since = time.Now().Add(-since)
		}
		list, err := a.alerts.List(cmd.Context(), f)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSEVERITY\tSTATUS\tTYPE\tTARGET\tTITLE")
		for _, al := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				al.ID, al.CreatedAt.Format(time.RFC3339), al.Severity, al.Status, al.Type, al.TargetURL, utils.TruncateText(al.Title, 72))
		}
		return w.Flush()
	}),
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack [ALERT_ID]",
	Short: "Acknowledge an active alert",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		al, err := a.alerts.Acknowledge(cmd.Context(), args[0], actor)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert %s acknowledged by %s\n", al.ID, al.AcknowledgedBy)
		return nil
	}),
}

var alertsDismissCmd = &cobra.Command{
	Use:   "dismiss [ALERT_ID]",
	Short: "Dismiss an active or acknowledged alert",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		al, err := a.alerts.Dismiss(cmd.Context(), args[0], actor)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert %s dismissed\n", al.ID)
		return nil
	}),
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage alert rules",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an alert rule",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(cmd *cobra.Command, a *app, _ []string) error {
		user, _ := cmd.Flags().GetString("user")
		name, _ := cmd.Flags().GetString("name")
		typ, _ := cmd.Flags().GetString("type")
		target, _ := cmd.Flags().GetString("target")
		condition, _ := cmd.Flags().GetString("condition")
		severity, _ := cmd.Flags().GetString("severity")

		if !json.Valid([]byte(condition)) {
			return fmt.Errorf("condition must be a JSON object")
		}
		if models.Severity(severity).Rank() == 0 {
			return fmt.Errorf("unknown severity %q", severity)
		}
		rule := models.AlertRule{
			ID:        uuid.NewString(),
			UserID:    user,
			Name:      name,
			Type:      models.AlertType(typ),
			TargetURL: target,
			Condition: json.RawMessage(condition),
			Severity:  models.Severity(severity),
			Enabled:   true,
			CreatedAt: time.Now(),
		}
		if err := rules.Validate(rule); err != nil {
			return err
		}
		if err := a.store.SaveRule(cmd.Context(), &rule); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rule %s created\n", rule.ID)
		return nil
	}),
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	Args:  cobra.NoArgs,
	RunE: withApp(false, func(cmd *cobra.Command, a *app, _ []string) error {
		user, _ := cmd.Flags().GetString("user")
		list, err := a.store.ListRules(cmd.Context(), user)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSER\tTYPE\tSEVERITY\tENABLED\tCONDITION")
		for _, r := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", r.ID, r.UserID, r.Type, r.Severity, r.Enabled, r.Condition)
		}
		return w.Flush()
	}),
}

var prefsCmd = &cobra.Command{
	Use:   "prefs [USER]",
	Short: "Show or change notification preferences",
	Long: `Without flags the current preferences are printed. Flags that are set
replace the stored value; the rest are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		p, err := a.alerts.Preferences(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		changed := false
		if flags.Changed("email") {
			p.Address, _ = flags.GetString("email")
			changed = true
		}
		for name, field := range map[string]*bool{
			"enabled":   &p.EmailEnabled,
			"immediate": &p.ImmediateAlerts,
			"daily":     &p.DailyDigest,
			"weekly":    &p.WeeklyDigest,
		} {
			if flags.Changed(name) {
				*field, _ = flags.GetBool(name)
				changed = true
			}
		}
		if changed {
			if err := a.alerts.UpdatePreferences(cmd.Context(), p); err != nil {
				return err
			}
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "USER\t%s\n", p.UserID)
		fmt.Fprintf(w, "EMAIL\t%s\n", p.Address)
		fmt.Fprintf(w, "ENABLED\t%t\n", p.EmailEnabled)
		fmt.Fprintf(w, "IMMEDIATE\t%t\n", p.ImmediateAlerts)
		fmt.Fprintf(w, "DAILY\t%t\n", p.DailyDigest)
		fmt.Fprintf(w, "WEEKLY\t%t\n", p.WeeklyDigest)
		return w.Flush()
	}),
}

var digestCmd = &cobra.Command{
	Use:   "digest [daily|weekly] [USER]",
	Short: "Send an alert digest now",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		period, err := alerts.ParsePeriod(args[0])
		if err != nil {
			return err
		}
		n, err := a.alerts.SendDigest(cmd.Context(), args[1], period, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Digest sent with %d alert(s)\n", n)
		return nil
	}),
}

func init() {
	alertsListCmd.Flags().String("user", "", "Only alerts of this user")
	alertsListCmd.Flags().String("status", "", "Only alerts in this status (active, acknowledged, dismissed)")
	alertsListCmd.Flags().Duration("since", 0, "Only alerts created within this duration")
	alertsAckCmd.Flags().String("actor", "cli", "Who acknowledges the alert")
	alertsDismissCmd.Flags().String("actor", "cli", "Who dismisses the alert")
	alertsCmd.AddCommand(alertsListCmd, alertsAckCmd, alertsDismissCmd)

	rulesAddCmd.Flags().String("user", "default", "Owner of the rule")
	rulesAddCmd.Flags().String("name", "", "Rule name")
	rulesAddCmd.Flags().String("type", "", "Rule type (score_drop, keyword_change, external_source_issue, performance_issue)")
	rulesAddCmd.Flags().String("target", "", "Only evaluate for this target URL")
	rulesAddCmd.Flags().String("condition", "{}", "Rule condition as JSON")
	rulesAddCmd.Flags().String("severity", string(models.SeverityMedium), "Alert severity (low, medium, high, critical)")
	_ = rulesAddCmd.MarkFlagRequired("type")
	rulesListCmd.Flags().String("user", "", "Only rules of this user")
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd)

	prefsCmd.Flags().String("email", "", "Delivery address")
	prefsCmd.Flags().Bool("enabled", true, "Deliver notifications at all")
	prefsCmd.Flags().Bool("immediate", true, "Send each alert as it is raised")
	prefsCmd.Flags().Bool("daily", false, "Send a daily digest")
	prefsCmd.Flags().Bool("weekly", true, "Send a weekly digest")

	rootCmd.AddCommand(alertsCmd, rulesCmd, prefsCmd, digestCmd)
}
