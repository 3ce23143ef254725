package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/digital-twin-risk-engine/internal/domain"
	"github.com/digital-twin-risk-engine/internal/service"
)

func patientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patients",
		Short: "List patients with recorded assessments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				names, err := svc.QueryPatients(ctx)
				if err != nil {
					return err
				}
				if len(names) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "No patients recorded yet.")
					return nil
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show a patient's assessments, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				records, err := svc.QueryHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if len(records) == 0 {
					return domain.NewStorageError("history", fmt.Errorf("patient %q: %w", args[0], domain.ErrNotFound))
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(records)
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "DATE\tAGE\tHEART\tDIABETES\tHYPERTENSION\tSCORE")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%d\t%.1f%%\t%.1f%%\t%.1f%%\t%.1f\n",
						r.CreatedAt.Format(domain.DisplayTimeLayout), r.Patient.Age,
						r.Heart.Percent(), r.Diabetes.Percent(), r.Hypertension.Percent(), float64(r.Score))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Bool("json", false, "Print records as JSON")
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete every assessment for a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !promptFor(cmd).confirm(fmt.Sprintf("Delete all records for %q?", args[0])) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
				return nil
			}

			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				removed, err := svc.DeletePatient(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s) for %s.\n", removed, args[0])
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func deleteAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every recorded assessment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !promptFor(cmd).confirm("Delete ALL patient records?") {
				fmt.Fprintln(cmd.ErrOrStderr(), "Aborted.")
				return nil
			}

			return withHistory(cmd, func(ctx context.Context, a *app, svc *service.HistoryService) error {
				removed, err := svc.DeleteAllPatients(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s).\n", removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}
