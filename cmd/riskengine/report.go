package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/digital-twin-risk-engine/internal/report"
	"github.com/digital-twin-risk-engine/internal/service"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <name>",
		Short: "Render the report for a patient's latest assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")

			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				if format == "" {
					format = a.cfg.Report.Format
				}
				if out == "-" {
					renderer, err := report.NewRenderer(format)
					if err != nil {
						return err
					}
					_, err = svc.RequestReport(ctx, args[0], renderer, cmd.OutOrStdout())
					return err
				}

				path, err := writeReport(ctx, a, svc, args[0], format, out)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	cmd.Flags().String("format", "", "Report format: pdf or text (default from config)")
	cmd.Flags().StringP("out", "o", "", "Output file, or - for stdout (default <report dir>/<name>_report.<ext>)")
	return cmd
}

func trendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trend <name>",
		Short: "Export a patient's risk history as an XLSX workbook with a trend chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")

			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				if out == "" {
					out = filepath.Join(a.cfg.Report.Dir, report.TrendFileName(args[0]))
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("creating workbook: %w", err)
				}
				if err := svc.ExportTrend(ctx, args[0], f); err != nil {
					f.Close()
					os.Remove(out)
					return err
				}
				if err := f.Close(); err != nil {
					return fmt.Errorf("closing workbook: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output file (default <report dir>/<name>_trend.xlsx)")
	return cmd
}
