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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// importCommands uploads a CSV or JSON bank feed. With --async every row is queued for the workers.
func importCommands(r *reconInstance) *cobra.Command {
	var (
		connectionID string
		accountID    string
		async        bool
	)

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "import a bank feed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			filename := filepath.Base(args[0])
			if async {
				n, err := r.recon.EnqueueBankFeed(cmd.Context(), connectionID, accountID, f, filename)
				if err != nil {
					return err
				}
				fmt.Printf("Queued %d bank transactions\n", n)
				return nil
			}

			result, err := r.recon.UploadBankFeed(cmd.Context(), connectionID, accountID, f, filename)
			if result != nil {
				if perr := printJSON(result); perr != nil {
					return perr
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&connectionID, "connection", "", "bank connection id for rows that omit one")
	cmd.Flags().StringVar(&accountID, "account", "", "account id for rows that omit one")
	cmd.Flags().BoolVar(&async, "async", false, "enqueue rows for the import workers")
	cmd.AddCommand(importStatusCommand(r))
	return cmd
}

func importStatusCommand(r *reconInstance) *cobra.Command {
	return &cobra.Command{
		Use:   "status <transaction_id>",
		Short: "report whether a bank transaction is imported or still queued",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := r.recon.ImportStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", args[0], state)
			return nil
		},
	}
}
