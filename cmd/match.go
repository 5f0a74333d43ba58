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
	"github.com/blnkfinance/recon/model"
	"github.com/spf13/cobra"
)

func matchCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "match bank transactions to ledger transactions",
	}

	var limit int
	candidates := &cobra.Command{
		Use:   "candidates <bank_transaction_id>",
		Short: "list ranked ledger candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := r.recon.FindCandidates(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(found)
		},
	}
	candidates.Flags().IntVar(&limit, "limit", 0, "maximum candidates returned")

	link := &cobra.Command{
		Use:   "link <bank_transaction_id> <ledger_transaction_id>",
		Short: "manually match a bank transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResult(r.recon.Match(cmd.Context(), args[0], args[1], model.MatchTypeManual))
		},
	}

	unlink := &cobra.Command{
		Use:   "unlink <bank_transaction_id>",
		Short: "remove a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResult(r.recon.Unmatch(cmd.Context(), args[0]))
		},
	}

	var reason string
	ignore := &cobra.Command{
		Use:   "ignore <bank_transaction_id>",
		Short: "exclude a bank transaction from matching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printResult(r.recon.Ignore(cmd.Context(), args[0], reason))
		},
	}
	ignore.Flags().StringVar(&reason, "reason", "", "reason recorded on the transaction")

	cmd.AddCommand(candidates, link, unlink, ignore)
	return cmd
}

func printResult(result *model.MatchResult, err error) error {
	if err != nil {
		return err
	}
	return printJSON(result)
}
