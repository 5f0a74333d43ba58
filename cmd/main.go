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
	"context"
	"fmt"
	"os"

	"github.com/blnkfinance/recon"
	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/database"
	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/internal/traces"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Recon wraps the root cobra command.
type Recon struct {
	cmd *cobra.Command
}

// reconInstance holds the service and configuration shared by every subcommand.
type reconInstance struct {
	recon    *recon.Recon
	cnf      *config.Configuration
	shutdown traces.ShutdownFunc
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and builds the service before any command runs.
func preRun(app *reconInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := config.InitConfig(*configFile); err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		if cnf.EnableTelemetry {
			shutdown, err := traces.SetupOTelSDK(cmd.Context(), cnf.ProjectName)
			if err != nil {
				logrus.Warnf("tracing disabled: %v", err)
			}
			app.shutdown = shutdown
		}

		newRecon, err := setupRecon(cnf)
		if err != nil {
			return err
		}

		app.recon = newRecon
		app.cnf = cnf
		return nil
	}
}

func postRun(app *reconInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if app.shutdown != nil {
			if err := app.shutdown(context.Background()); err != nil {
				logrus.Errorf("error flushing traces: %v", err)
			}
		}
		if app.recon != nil {
			return app.recon.Close()
		}
		return nil
	}
}

func setupRecon(cfg *config.Configuration) (*recon.Recon, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newRecon, err := recon.NewRecon(db, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating recon: %v", err)
	}
	return newRecon, nil
}

// NewCLI builds the root command and registers every subcommand.
func NewCLI() *Recon {
	var configFile string
	r := &reconInstance{}

	rootCmd := &cobra.Command{
		Use:           "recon",
		Short:         "Bank transaction reconciliation and rule-based matching",
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./recon.json", "Configuration file for recon")
	rootCmd.PersistentPreRunE = preRun(r, &configFile)
	rootCmd.PersistentPostRunE = postRun(r)

	rootCmd.AddCommand(workerCommands(r))
	rootCmd.AddCommand(migrateCommands(r))
	rootCmd.AddCommand(importCommands(r))
	rootCmd.AddCommand(ruleCommands(r))
	rootCmd.AddCommand(matchCommands(r))
	rootCmd.AddCommand(reconcileCommands(r))
	rootCmd.AddCommand(configCommands(r))

	return &Recon{cmd: rootCmd}
}

func (w Recon) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(apierror.MapErrorToExitCode(err))
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
