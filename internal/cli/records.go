package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdougie/handscan/internal/explainer"
	"github.com/bdougie/handscan/internal/models"
	"github.com/bdougie/handscan/internal/scanrecord"
)

func newConfirmCmd(a *app) *cobra.Command {
	var (
		age       int
		gender    string
		confirmed bool
	)

	cmd := &cobra.Command{
		Use:   "confirm <scan-id>",
		Short: "Store the real age and gender for a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var input models.ScanEntryInput
			if cmd.Flags().Changed("age") {
				if age < 0 || age > 130 {
					return fmt.Errorf("age %d is out of range", age)
				}
				input.RealAge = &age
			}
			if cmd.Flags().Changed("gender") {
				code, err := parseGender(gender)
				if err != nil {
					return err
				}
				input.RealGender = &code
			}
			input.Confirmed = &confirmed

			client := scanrecord.NewClient(a.cfg.RecordURL, scanrecord.WithLogger(a.logger))
			entry, err := client.UpdateScanEntry(cmd.Context(), args[0], input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan %s updated", entry.ID)
			if entry.RealAge != nil {
				fmt.Fprintf(cmd.OutOrStdout(), ", age %d", *entry.RealAge)
			}
			if entry.RealGender != nil {
				fmt.Fprintf(cmd.OutOrStdout(), ", %s", explainer.GenderLabel(*entry.RealGender))
			}
			if entry.Confirmed {
				fmt.Fprint(cmd.OutOrStdout(), ", confirmed")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().IntVar(&age, "age", 0, "Real age")
	cmd.Flags().StringVar(&gender, "gender", "", "Real gender: female or male")
	cmd.Flags().BoolVar(&confirmed, "confirmed", true, "Mark the scan as confirmed by the person")

	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <scan-id>",
		Short: "Withdraw a scan and delete its record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := scanrecord.NewClient(a.cfg.RecordURL, scanrecord.WithLogger(a.logger))
			err := client.DeleteScanEntry(cmd.Context(), args[0])
			if errors.Is(err, scanrecord.ErrNotFound) {
				return fmt.Errorf("scan %s does not exist", args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan %s deleted\n", args[0])
			return nil
		},
	}
}

func parseGender(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "female", "f", "0":
		return 0, nil
	case "male", "m", "1":
		return 1, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return 0, fmt.Errorf("unknown gender code %d", n)
	}
	return 0, fmt.Errorf("unknown gender %q, use female or male", s)
}
