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
	"fmt"
	"sync"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const defaultImportWorkers = 4

// ImportError records why a bank transaction was not imported.
type ImportError struct {
	TransactionID string `json:"transaction_id"`
	Error         string `json:"error"`
}

// ImportResult summarises a batch import.
type ImportResult struct {
	Imported int                   `json:"imported"`
	Failed   int                   `json:"failed"`
	Errors   []ImportError         `json:"errors,omitempty"`
	Applied  []*model.AppliedRules `json:"applied,omitempty"`
}

type importOutcome struct {
	transactionID string
	applied       *model.AppliedRules
	err           error
}

// prepareImport validates a feed transaction and resets the fields only the engines may set.
func prepareImport(txn *model.BankTransaction) error {
	if err := txn.ValidateBankTransaction(); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}

	switch txn.Status {
	case "":
		txn.Status = model.StatusUnreviewed
		if txn.Pending {
			txn.Status = model.StatusPending
		}
	case model.StatusUnreviewed, model.StatusPending:
	default:
		return apierror.NewAPIError(apierror.ErrInvalidInput,
			fmt.Sprintf("bank transaction %s cannot be imported as %s", txn.TransactionID, txn.Status), nil)
	}

	txn.MatchedLedgerTransactionID = nil
	txn.MatchType = ""
	txn.MatchedAt = nil
	txn.IgnoreReason = ""
	now := time.Now()
	txn.CreatedAt = now
	txn.UpdatedAt = now
	return nil
}

// ImportBankTransaction runs the active rules on a new bank transaction in memory and
// stores the result with a single insert.
func (r *Recon) ImportBankTransaction(ctx context.Context, txn model.BankTransaction) (*model.BankTransaction, *model.AppliedRules, error) {
	rules, err := r.activeRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	return r.importBankTransaction(ctx, &txn, rules)
}

func (r *Recon) importBankTransaction(ctx context.Context, txn *model.BankTransaction, rules []*model.BankRule) (*model.BankTransaction, *model.AppliedRules, error) {
	ctx, span := tracer.Start(ctx, "ImportBankTransaction")
	defer span.End()

	if err := prepareImport(txn); err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("transaction.id", txn.TransactionID))

	var (
		stored  *model.BankTransaction
		applied *model.AppliedRules
	)
	err := r.withLock(ctx, bankTransactionLockKey(txn.TransactionID), func() error {
		updated, result, _ := r.evaluateRules(ctx, txn, rules)
		if err := r.datasource.RecordBankTransaction(ctx, updated); err != nil {
			return err
		}
		stored, applied = updated, result
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	return stored, applied, nil
}

// ImportBankTransactions imports a batch over a bounded pool of workers. Each
// transaction is committed whole or not at all. When ctx ends no further
// transactions are started and the partial result is returned with ctx's error.
func (r *Recon) ImportBankTransactions(ctx context.Context, txns []model.BankTransaction, workers int) (*ImportResult, error) {
	ctx, span := tracer.Start(ctx, "ImportBankTransactions")
	defer span.End()

	if workers <= 0 {
		workers = defaultImportWorkers
	}

	rules, err := r.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make(chan model.BankTransaction)
	outcomes := make(chan importOutcome, len(txns))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for txn := range jobs {
				_, applied, err := r.importBankTransaction(ctx, &txn, rules)
				outcomes <- importOutcome{transactionID: txn.TransactionID, applied: applied, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, txn := range txns {
			select {
			case <-ctx.Done():
				return
			case jobs <- txn:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &ImportResult{}
	for outcome := range outcomes {
		if outcome.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportError{TransactionID: outcome.transactionID, Error: outcome.err.Error()})
			logrus.WithField("transaction_id", outcome.transactionID).Errorf("failed to import bank transaction: %v", outcome.err)
			continue
		}
		result.Imported++
		result.Applied = append(result.Applied, outcome.applied)
	}

	span.SetAttributes(attribute.Int("import.imported", result.Imported), attribute.Int("import.failed", result.Failed))
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
