/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package main

import (
	"time"

	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func reconcileCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "reconcile bank statements against the ledger",
	}

	cmd.AddCommand(reconcileStartCommand(r))
	cmd.AddCommand(reconcileCalculateCommand(r))
	cmd.AddCommand(reconcileToggleCommand(r))
	cmd.AddCommand(reconcileFinalizeCommand(r))
	cmd.AddCommand(reconcileTransitionCommand("cancel", "cancel a reconciliation", r.cancel))
	cmd.AddCommand(reconcileTransitionCommand("reopen", "reopen a reconciliation with a discrepancy", r.reopen))
	return cmd
}

func reconcileStartCommand(r *reconInstance) *cobra.Command {
	var (
		accountID     string
		statementDate string
		beginning     string
		ending        string
		charge        string
		interest      string
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a reconciliation for a statement",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := time.Parse("2006-01-02", statementDate)
			if err != nil {
				return err
			}
			rec := model.BankReconciliation{AccountID: accountID, StatementDate: date}
			for _, f := range []struct {
				raw string
				dst *decimal.Decimal
			}{
				{beginning, &rec.BeginningBalance},
				{ending, &rec.EndingBalance},
				{charge, &rec.ServiceCharge},
				{interest, &rec.InterestEarned},
			} {
				if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
					return err
				}
			}

			created, err := r.recon.CreateReconciliation(cmd.Context(), rec)
			if err != nil {
				return err
			}
			return printJSON(created)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "ledger account id")
	cmd.Flags().StringVar(&statementDate, "date", "", "statement date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&beginning, "beginning", "0", "statement beginning balance")
	cmd.Flags().StringVar(&ending, "ending", "0", "statement ending balance")
	cmd.Flags().StringVar(&charge, "service-charge", "0", "bank service charge")
	cmd.Flags().StringVar(&interest, "interest", "0", "interest earned")
	return cmd
}

func reconcileCalculateCommand(r *reconInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "calculate <reconciliation_id>",
		Short: "compute the statement difference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := r.recon.CalculateDifference(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func reconcileToggleCommand(r *reconInstance) *cobra.Command {
	var uncleared bool
	cmd := &cobra.Command{
		Use:   "toggle <reconciliation_id> <ledger_transaction_id>",
		Short: "mark a ledger transaction cleared",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := r.recon.ToggleCleared(cmd.Context(), args[0], args[1], !uncleared)
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
	cmd.Flags().BoolVar(&uncleared, "uncleared", false, "mark the item uncleared instead")
	return cmd
}

func reconcileFinalizeCommand(r *reconInstance) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "finalize <reconciliation_id>",
		Short: "complete a reconciliation or record its discrepancy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := r.recon.FinalizeReconciliation(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user signing off the reconciliation")
	return cmd
}

func reconcileTransitionCommand(use, short string, run func(cmd *cobra.Command, id string) (*model.BankReconciliation, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <reconciliation_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := run(cmd, args[0])
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
}

func (r *reconInstance) cancel(cmd *cobra.Command, id string) (*model.BankReconciliation, error) {
	return r.recon.CancelReconciliation(cmd.Context(), id)
}

func (r *reconInstance) reopen(cmd *cobra.Command, id string) (*model.BankReconciliation, error) {
	return r.recon.ReopenReconciliation(cmd.Context(), id)
}
