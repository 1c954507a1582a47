package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/amosWeiskopf/seowatch/internal/models"
	"github.com/amosWeiskopf/seowatch/pkg/reporter"
	"github.com/amosWeiskopf/seowatch/pkg/utils"
)

var auditCmd = &cobra.Command{
	Use:   "audit [URL]",
	Short: "Audit a page, print its report and evaluate alert rules",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(false, func(cmd *cobra.Command, a *app, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		user, _ := cmd.Flags().GetString("user")

		out, err := a.pipeline.Audit(cmd.Context(), user, args[0], models.TriggeredManual)
		if err != nil && out == nil {
			return fmt.Errorf("audit failed: %w", err)
		}
		if err != nil {
			a.logger.WithError(err).Warn("Audit stored but alert evaluation failed")
		}
		for _, rerr := range out.RuleErrors {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", rerr)
		}
		for _, alert := range out.Raised {
			fmt.Fprintf(cmd.ErrOrStderr(), "alert raised: [%s] %s\n", alert.Severity, alert.Title)
		}

		report, err := reporter.Render(out.Record, reporter.Format(format))
		if err != nil {
			return fmt.Errorf("report generation failed: %w", err)
		}

		if output != "" {
			if info, statErr := os.Stat(output); statErr == nil && info.IsDir() {
				output = filepath.Join(output, utils.SanitizeFilename(args[0])+reportExt(reporter.Format(format)))
			}
			if err := os.WriteFile(output, report, 0o644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report saved to %s\n", output)
			return nil
		}
		_, err = cmd.OutOrStdout().Write(report)
		return err
	}),
}

func reportExt(f reporter.Format) string {
	switch f {
	case reporter.FormatJSON:
		return ".json"
	case reporter.FormatCSV:
		return ".csv"
	case reporter.FormatHTML:
		return ".html"
	default:
		return ".md"
	}
}

func init() {
	auditCmd.Flags().String("format", "markdown", "Report format (json, csv, markdown, html)")
	auditCmd.Flags().String("output", "", "Output file or directory for the report")
	auditCmd.Flags().String("user", "default", "User whose alert rules are evaluated")

	rootCmd.AddCommand(auditCmd)
}
