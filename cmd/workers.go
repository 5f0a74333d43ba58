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
	"github.com/blnkfinance/recon"
	"github.com/blnkfinance/recon/config"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func initializeQueues(conf *config.Configuration) map[string]int {
	queues := make(map[string]int)
	for _, name := range recon.QueueNames(conf) {
		queues[name] = 1
	}
	return queues
}

func initializeWorkerServer(conf *config.Configuration, concurrency int) *asynq.Server {
	return asynq.NewServer(
		recon.RedisClientOpt(conf),
		asynq.Config{
			Concurrency: concurrency,
			Queues:      initializeQueues(conf),
			Logger:      logrus.StandardLogger(),
		},
	)
}

// workerCommands starts the import workers. Every import queue shares one task type.
func workerCommands(r *reconInstance) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start recon import workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := initializeWorkerServer(r.cnf, concurrency)

			mux := asynq.NewServeMux()
			mux.HandleFunc(r.cnf.Queue.ImportQueue, r.recon.ProcessImportTask)

			logrus.Infof("import workers listening on %d queues", r.cnf.Queue.NumberOfQueues)
			return srv.Run(mux)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of tasks processed concurrently")
	return cmd
}
