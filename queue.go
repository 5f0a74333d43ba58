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
package recon

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"

	"github.com/blnkfinance/recon/config"
	"github.com/blnkfinance/recon/internal/apierror"
	redis_db "github.com/blnkfinance/recon/internal/redis-db"
	"github.com/blnkfinance/recon/model"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Queue dispatches bank transaction imports to asynq workers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
	config    *config.Configuration
}

// RedisClientOpt builds asynq connection options from the configured Redis DSN.
func RedisClientOpt(conf *config.Configuration) asynq.RedisClientOpt {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}
	return asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
}

func NewQueue(conf *config.Configuration) *Queue {
	queueOptions := RedisClientOpt(conf)
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
		config:    conf,
	}
}

// hashTransactionID returns a stable hash of a bank transaction id.
func hashTransactionID(transactionID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(transactionID))
	return int(hasher.Sum32())
}

// queueName picks the import queue for a transaction. The same id always lands on
// the same queue so redeliveries of one transaction are processed serially.
func (q *Queue) queueName(transactionID string) string {
	index := hashTransactionID(transactionID) % q.config.Queue.NumberOfQueues
	return fmt.Sprintf("%s_%d", q.config.Queue.ImportQueue, index+1)
}

// QueueNames lists every import queue for the worker server.
func QueueNames(conf *config.Configuration) []string {
	names := make([]string, conf.Queue.NumberOfQueues)
	for i := range names {
		names[i] = fmt.Sprintf("%s_%d", conf.Queue.ImportQueue, i+1)
	}
	return names
}

// EnqueueBankTransaction schedules a bank transaction for import. The transaction id
// doubles as the task id so a feed delivered twice is only queued once.
func (q *Queue) EnqueueBankTransaction(ctx context.Context, txn *model.BankTransaction) error {
	ctx, span := tracer.Start(ctx, "Adding Bank Transaction To Import Queue")
	defer span.End()

	payload, err := txn.ToJSON()
	if err != nil {
		return err
	}

	queueName := q.queueName(txn.TransactionID)
	task := asynq.NewTask(q.config.Queue.ImportQueue, payload,
		asynq.TaskID(txn.TransactionID),
		asynq.Queue(queueName),
		asynq.MaxRetry(q.config.Queue.MaxRetryAttempts),
	)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		span.RecordError(err)
		logrus.WithField("transaction_id", txn.TransactionID).Errorf("failed to enqueue bank transaction: %v %v", err, info)
		return err
	}
	logrus.Infof(" [*] Successfully enqueued bank transaction: %s on %s", txn.TransactionID, queueName)
	return nil
}

// GetTransactionFromQueue looks a pending import up by transaction id. It returns nil when
// the transaction is in none of the import queues.
func (q *Queue) GetTransactionFromQueue(transactionID string) (*model.BankTransaction, error) {
	task, err := q.Inspector.GetTaskInfo(q.queueName(transactionID), transactionID)
	if err != nil || task == nil {
		return nil, nil
	}
	var txn model.BankTransaction
	if err := json.Unmarshal(task.Payload, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}

// EnqueueBankFeed parses a feed file and queues each of its transactions for import.
func (r *Recon) EnqueueBankFeed(ctx context.Context, connectionID, accountID string, reader io.Reader, filename string) (int, error) {
	txns, err := ParseBankFeed(connectionID, accountID, reader, filename)
	if err != nil {
		return 0, err
	}
	for i := range txns {
		if err := r.queue.EnqueueBankTransaction(ctx, &txns[i]); err != nil {
			return i, err
		}
	}
	return len(txns), nil
}

// Import states reported by ImportStatus.
const (
	ImportStateImported = "imported"
	ImportStateQueued   = "queued"
)

// ImportStatus reports whether a bank transaction has been imported or is still
// waiting in an import queue.
func (r *Recon) ImportStatus(ctx context.Context, transactionID string) (string, error) {
	_, err := r.datasource.GetBankTransaction(ctx, transactionID)
	if err == nil {
		return ImportStateImported, nil
	}
	if !apierror.IsNotFound(err) {
		return "", err
	}

	queued, err := r.queue.GetTransactionFromQueue(transactionID)
	if err != nil {
		return "", err
	}
	if queued == nil {
		return "", apierror.NewAPIError(apierror.ErrNotFound,
			fmt.Sprintf("bank transaction %s is neither imported nor queued", transactionID), nil)
	}
	return ImportStateQueued, nil
}

// ProcessImportTask is the asynq handler for queued bank transactions. Invalid
// transactions and transactions that already exist are not retried.
func (r *Recon) ProcessImportTask(ctx context.Context, task *asynq.Task) error {
	var txn model.BankTransaction
	if err := json.Unmarshal(task.Payload(), &txn); err != nil {
		return fmt.Errorf("failed to decode bank transaction: %v: %w", err, asynq.SkipRetry)
	}

	_, applied, err := r.ImportBankTransaction(ctx, txn)
	switch {
	case err == nil:
		logrus.WithFields(logrus.Fields{
			"transaction_id": txn.TransactionID,
			"rules_applied":  len(applied.Entries),
			"status":         applied.TransactionStatus,
		}).Info("imported bank transaction")
		return nil
	case apierror.IsConflict(err):
		if _, getErr := r.datasource.GetBankTransaction(ctx, txn.TransactionID); getErr == nil {
			logrus.WithField("transaction_id", txn.TransactionID).Warn("bank transaction already imported")
			return nil
		}
		return err
	case apierror.IsInvalidInput(err):
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}
