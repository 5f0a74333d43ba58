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
	"encoding/json"
	"os"

	"github.com/blnkfinance/recon/model"
	"github.com/spf13/cobra"
)

func ruleCommands(r *reconInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "manage bank rules",
	}

	cmd.AddCommand(ruleListCommand(r))
	cmd.AddCommand(ruleCreateCommand(r))
	cmd.AddCommand(ruleDeleteCommand(r))
	cmd.AddCommand(ruleApplyCommand(r))
	return cmd
}

func ruleListCommand(r *reconInstance) *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := r.recon.ListBankRules(cmd.Context(), active)
			if err != nil {
				return err
			}
			return printJSON(rules)
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "only list active rules")
	return cmd
}

// ruleCreateCommand reads a rule as JSON from a file.
func ruleCreateCommand(r *reconInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "create <file>",
		Short: "create a rule from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var rule model.BankRule
			if err := json.Unmarshal(data, &rule); err != nil {
				return err
			}
			created, err := r.recon.CreateBankRule(cmd.Context(), rule)
			if err != nil {
				return err
			}
			return printJSON(created)
		},
	}
}

func ruleDeleteCommand(r *reconInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule_id>",
		Short: "delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.recon.DeleteBankRule(cmd.Context(), args[0])
		},
	}
}

func ruleApplyCommand(r *reconInstance) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "apply [bank_transaction_id]",
		Short: "evaluate active rules against a stored bank transaction, or every transaction in --status",
		Args: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" {
				result, err := r.recon.ApplyRulesByStatus(cmd.Context(), model.BankTransactionStatus(status))
				if err != nil {
					return err
				}
				return printJSON(result)
			}

			applied, err := r.recon.ApplyRules(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(applied)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "apply rules to every bank transaction in this status")
	return cmd
}
