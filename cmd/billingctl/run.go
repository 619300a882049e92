package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcclellann/fredBilling/pkg/notify"
	"github.com/mcclellann/fredBilling/pkg/scheduler"
)

func RunCmd() *cobra.Command {
	var (
		hour          int
		batch         int
		batchSize     int
		testRecipient string
		all           bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send today's reminders for one batch of tenants",
		Long: `Send due-today and overdue reminders for one page of tenants.

Without --hour the current hour in TIMEZONE selects which tenants are due.
With --test-recipient every message goes to that phone and nothing is
recorded in the sent log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("hour") && (hour < 0 || hour > 23) {
				return fmt.Errorf("--hour must be between 0 and 23")
			}
			if all && testRecipient != "" {
				return fmt.Errorf("--all cannot be combined with --test-recipient")
			}

			cfg, s, err := setup()
			if err != nil {
				return err
			}
			defer s.Close()

			if cfg.MessagingBaseURL == "" {
				return fmt.Errorf("MESSAGING_BASE_URL not set in environment or .env file")
			}
			sender, err := notify.NewHTTPSender(notify.HTTPOptions{
				BaseURL:     cfg.MessagingBaseURL,
				APIKey:      cfg.MessagingAPIKey,
				RetryPolicy: notify.DefaultRetryPolicy(),
			})
			if err != nil {
				return err
			}
			if batchSize > 0 {
				cfg.BatchSize = batchSize
			}
			sch := scheduler.New(s, sender, scheduler.Options{
				BatchSize:       cfg.BatchSize,
				SendDelay:       cfg.SendDelay,
				MaxPerTenant:    cfg.MaxPerTenant,
				DefaultSendHour: cfg.DefaultSendHour,
				CountryCode:     cfg.CountryCode,
				Location:        cfg.Location,
			})

			var resp scheduler.Response
			switch {
			case all && cmd.Flags().Changed("hour"):
				resp = sch.RunHour(cmd.Context(), hour)
			case all:
				return fmt.Errorf("--all needs --hour")
			default:
				req := scheduler.Request{Batch: batch, BatchSize: cfg.BatchSize, TestRecipient: testRecipient}
				if cmd.Flags().Changed("hour") {
					req.TargetHour = &hour
				}
				resp = sch.Run(cmd.Context(), req)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if !resp.Success {
				return errors.New(resp.Error)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&hour, "hour", 0, "Send hour to match against tenant settings (0-23)")
	cmd.Flags().IntVar(&batch, "batch", 0, "Zero-based page of tenants")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Tenants per page (default BATCH_SIZE)")
	cmd.Flags().StringVar(&testRecipient, "test-recipient", "", "Redirect every message to this phone")
	cmd.Flags().BoolVar(&all, "all", false, "Walk every page for --hour")

	return cmd
}
