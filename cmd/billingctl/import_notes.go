package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcclellann/fredBilling/pkg/ledger"
)

func ImportNotesCmd() *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "import-notes",
		Short: "Move legacy payment tags from notes into the installment ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantID, err := uuid.Parse(tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %v", err)
			}

			cfg, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()

			l := ledger.NewLedger(s, ledger.WithLocation(cfg.Location))
			res, err := l.ImportNotes(cmd.Context(), tenantID)
			if err != nil {
				return fmt.Errorf("failed to import notes: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d allocations into %d obligations (%d skipped).\n",
				res.Allocations, res.Obligations, res.Skipped)
			return nil
		},
	}

	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant ID")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}
