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
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
	"github.com/wacul/ptr"
)

// statementCutoff is the last instant of the statement day.
func statementCutoff(statementDate time.Time) time.Time {
	return civilDay(statementDate).Add(24*time.Hour - time.Nanosecond)
}

// outstandingItems lists the ledger transactions not cleared by a completed reconciliation
// as of the statement date. Every outstanding item starts counted on the statement.
func (r *Recon) outstandingItems(ctx context.Context, accountID string, statementDate time.Time) ([]model.ReconciledItem, error) {
	ledgerTxns, err := r.ledger.FindUnclearedTransactions(ctx, accountID, statementCutoff(statementDate))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	items := make([]model.ReconciledItem, len(ledgerTxns))
	for i, txn := range ledgerTxns {
		items[i] = model.ReconciledItem{
			TransactionID: txn.TransactionID,
			Amount:        txn.Amount,
			Cleared:       true,
			ReconciledAt:  ptr.Time(now),
		}
	}
	return items, nil
}

// computeDifference balances the statement against its outstanding items.
//
//	computed   = beginning + outstanding deposits + outstanding checks + interest - service charge
//	difference = ending - computed
//
// Items marked uncleared are deferred to a later statement and left out of computed.
func computeDifference(rec *model.BankReconciliation) model.DifferenceResult {
	result := model.DifferenceResult{
		ReconciliationID:    rec.ReconciliationID,
		OutstandingDeposits: decimal.Zero,
		OutstandingChecks:   decimal.Zero,
		DeferredDeposits:    decimal.Zero,
		DeferredChecks:      decimal.Zero,
	}

	for _, item := range rec.Items {
		deposit := item.Amount.IsPositive()
		switch {
		case item.Cleared && deposit:
			result.OutstandingDeposits = result.OutstandingDeposits.Add(item.Amount)
		case item.Cleared:
			result.OutstandingChecks = result.OutstandingChecks.Add(item.Amount)
		case deposit:
			result.DeferredDeposits = result.DeferredDeposits.Add(item.Amount)
		default:
			result.DeferredChecks = result.DeferredChecks.Add(item.Amount)
		}
		if item.Cleared {
			result.OutstandingCount++
		} else {
			result.DeferredCount++
		}
	}

	result.ComputedBalance = rec.BeginningBalance.
		Add(result.OutstandingDeposits).
		Add(result.OutstandingChecks).
		Add(rec.InterestEarned).
		Sub(rec.ServiceCharge)
	result.Difference = rec.EndingBalance.Sub(result.ComputedBalance)
	result.IsBalanced = model.IsBalanced(result.Difference)

	if !result.IsBalanced {
		result.Explanations = explainDifference(rec, result)
	}
	return result
}

func explainDifference(rec *model.BankReconciliation, result model.DifferenceResult) []string {
	explanations := []string{
		fmt.Sprintf("statement is off by %s", result.Difference.StringFixed(2)),
	}
	if !result.DeferredDeposits.IsZero() {
		explanations = append(explanations, fmt.Sprintf("deferred deposits total %s", result.DeferredDeposits.StringFixed(2)))
	}
	if !result.DeferredChecks.IsZero() {
		explanations = append(explanations, fmt.Sprintf("deferred checks total %s", result.DeferredChecks.StringFixed(2)))
	}
	for _, item := range rec.Items {
		switch {
		case !item.Cleared && item.Amount.Equal(result.Difference):
			explanations = append(explanations,
				fmt.Sprintf("clearing %s (%s) would balance the statement", item.TransactionID, item.Amount.StringFixed(2)))
		case item.Cleared && item.Amount.Neg().Equal(result.Difference):
			explanations = append(explanations,
				fmt.Sprintf("deferring %s (%s) would balance the statement", item.TransactionID, item.Amount.StringFixed(2)))
		}
	}
	return explanations
}

// explainUnmatched names the counted items no bank transaction is matched to. Those are
// the ledger entries the bank has not confirmed and the likeliest source of a discrepancy.
func (r *Recon) explainUnmatched(ctx context.Context, rec *model.BankReconciliation) ([]string, error) {
	var ids []string
	for _, item := range rec.Items {
		if item.Cleared {
			ids = append(ids, item.TransactionID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	matched, err := r.datasource.MatchedLedgerTransactionIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var explanations []string
	for _, item := range rec.Items {
		if item.Cleared && !matched[item.TransactionID] {
			explanations = append(explanations,
				fmt.Sprintf("%s (%s) has no matched bank transaction", item.TransactionID, item.Amount.StringFixed(2)))
		}
	}
	return explanations, nil
}

// CreateReconciliation starts a reconciliation for an account's statement, seeded with
// the ledger transactions still outstanding on the statement date.
func (r *Recon) CreateReconciliation(ctx context.Context, rec model.BankReconciliation) (*model.BankReconciliation, error) {
	ctx, span := tracer.Start(ctx, "CreateReconciliation")
	defer span.End()

	if err := rec.ValidateBankReconciliation(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}

	items, err := r.outstandingItems(ctx, rec.AccountID, rec.StatementDate)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	rec.ReconciliationID = model.GenerateUUIDWithSuffix("recon")
	rec.Items = items
	rec.Status = model.ReconciliationInProgress
	rec.ReconciledBy = ""
	rec.ReconciledAt = nil
	rec.Difference = computeDifference(&rec).Difference
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt

	if err := r.datasource.RecordBankReconciliation(ctx, &rec); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &rec, nil
}

func (r *Recon) GetReconciliation(ctx context.Context, id string) (*model.BankReconciliation, error) {
	return r.datasource.GetBankReconciliation(ctx, id)
}

// mutateReconciliation applies fn to a copy of the reconciliation under its lock and
// persists the copy with a compare-and-swap on the loaded status when fn reports a change.
func (r *Recon) mutateReconciliation(ctx context.Context, id string, fn func(rec *model.BankReconciliation) (bool, error)) (*model.BankReconciliation, error) {
	var result *model.BankReconciliation
	err := r.withLock(ctx, reconciliationLockKey(id), func() error {
		stored, err := r.datasource.GetBankReconciliation(ctx, id)
		if err != nil {
			return err
		}

		staged := stored.Clone()
		changed, err := fn(staged)
		if err != nil {
			return err
		}
		if changed {
			staged.UpdatedAt = time.Now()
			if err := r.datasource.UpdateBankReconciliation(ctx, staged, stored.Status); err != nil {
				return err
			}
		}
		result = staged
		return nil
	})
	return result, err
}

func requireStatus(rec *model.BankReconciliation, action string, allowed ...model.ReconciliationStatus) error {
	for _, s := range allowed {
		if rec.Status == s {
			return nil
		}
	}
	return apierror.NewAPIError(apierror.ErrConflict,
		fmt.Sprintf("cannot %s reconciliation %s in status %s", action, rec.ReconciliationID, rec.Status), nil)
}

// CalculateDifference recomputes the difference. While the reconciliation is in
// progress, ledger transactions that became outstanding since it was opened are added
// to the statement and the new difference is saved.
func (r *Recon) CalculateDifference(ctx context.Context, id string) (*model.DifferenceResult, error) {
	ctx, span := tracer.Start(ctx, "CalculateDifference")
	defer span.End()

	var result model.DifferenceResult
	_, err := r.mutateReconciliation(ctx, id, func(rec *model.BankReconciliation) (bool, error) {
		changed := false
		if rec.Status == model.ReconciliationInProgress {
			outstanding, err := r.outstandingItems(ctx, rec.AccountID, rec.StatementDate)
			if err != nil {
				return false, err
			}
			for _, item := range outstanding {
				if rec.Item(item.TransactionID) < 0 {
					rec.Items = append(rec.Items, item)
					changed = true
				}
			}
		}

		result = computeDifference(rec)
		if !result.IsBalanced {
			unmatched, err := r.explainUnmatched(ctx, rec)
			if err != nil {
				return false, err
			}
			result.Explanations = append(result.Explanations, unmatched...)
		}
		if !rec.Difference.Equal(result.Difference) {
			rec.Difference = result.Difference
			changed = true
		}
		return changed && rec.Status == model.ReconciliationInProgress, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &result, nil
}

// ToggleCleared marks a ledger transaction cleared or uncleared on the statement.
func (r *Recon) ToggleCleared(ctx context.Context, id, transactionID string, cleared bool) (*model.BankReconciliation, error) {
	ctx, span := tracer.Start(ctx, "ToggleCleared")
	defer span.End()

	rec, err := r.mutateReconciliation(ctx, id, func(rec *model.BankReconciliation) (bool, error) {
		if err := requireStatus(rec, "update", model.ReconciliationInProgress); err != nil {
			return false, err
		}

		idx := rec.Item(transactionID)
		if idx < 0 {
			ledgerTxn, err := r.ledger.GetTransaction(ctx, transactionID)
			if err != nil {
				return false, err
			}
			if ledgerTxn.AccountID != rec.AccountID {
				return false, apierror.NewAPIError(apierror.ErrInvalidInput,
					fmt.Sprintf("ledger transaction %s does not belong to account %s", transactionID, rec.AccountID), nil)
			}
			rec.Items = append(rec.Items, model.ReconciledItem{TransactionID: ledgerTxn.TransactionID, Amount: ledgerTxn.Amount})
			idx = len(rec.Items) - 1
		} else if rec.Items[idx].Cleared == cleared {
			return false, nil
		}

		rec.Items[idx].Cleared = cleared
		rec.Items[idx].ReconciledAt = nil
		if cleared {
			rec.Items[idx].ReconciledAt = ptr.Time(time.Now())
		}
		rec.Difference = computeDifference(rec).Difference
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rec, nil
}

// FinalizeReconciliation closes an in-progress reconciliation: completed when the
// statement balances, discrepancy otherwise.
func (r *Recon) FinalizeReconciliation(ctx context.Context, id, user string) (*model.BankReconciliation, error) {
	ctx, span := tracer.Start(ctx, "FinalizeReconciliation")
	defer span.End()

	if user == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "reconciled_by is required", nil)
	}

	rec, err := r.mutateReconciliation(ctx, id, func(rec *model.BankReconciliation) (bool, error) {
		if err := requireStatus(rec, "finalize", model.ReconciliationInProgress); err != nil {
			return false, err
		}

		result := computeDifference(rec)
		rec.Difference = result.Difference
		if !result.IsBalanced {
			rec.Status = model.ReconciliationDiscrepancy
			return true, nil
		}
		rec.Status = model.ReconciliationCompleted
		rec.ReconciledBy = user
		rec.ReconciledAt = ptr.Time(time.Now())
		return true, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rec, nil
}

// transitionReconciliation moves a reconciliation to status to. A reconciliation already
// in that status is left as is, so a retried cancel or reopen succeeds.
func (r *Recon) transitionReconciliation(ctx context.Context, id, action string, to model.ReconciliationStatus) (*model.BankReconciliation, error) {
	return r.mutateReconciliation(ctx, id, func(rec *model.BankReconciliation) (bool, error) {
		if rec.Status == to {
			return false, nil
		}
		if rec.Status.IsTerminal() {
			return false, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("reconciliation %s is %s and can no longer change", rec.ReconciliationID, rec.Status), nil)
		}
		if !rec.Status.CanTransition(to) {
			return false, apierror.NewAPIError(apierror.ErrConflict,
				fmt.Sprintf("cannot %s reconciliation %s in status %s", action, rec.ReconciliationID, rec.Status), nil)
		}
		rec.Status = to
		return true, nil
	})
}

// CancelReconciliation abandons an in-progress or discrepant reconciliation.
func (r *Recon) CancelReconciliation(ctx context.Context, id string) (*model.BankReconciliation, error) {
	ctx, span := tracer.Start(ctx, "CancelReconciliation")
	defer span.End()
	return r.transitionReconciliation(ctx, id, "cancel", model.ReconciliationCancelled)
}

// ReopenReconciliation returns a discrepant reconciliation to in progress.
func (r *Recon) ReopenReconciliation(ctx context.Context, id string) (*model.BankReconciliation, error) {
	ctx, span := tracer.Start(ctx, "ReopenReconciliation")
	defer span.End()

	return r.transitionReconciliation(ctx, id, "reopen", model.ReconciliationInProgress)
}
