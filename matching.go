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
	"sort"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel/attribute"
)

// candidateCriteria bounds the ledger search for one bank transaction.
type candidateCriteria struct {
	windowDays int
	tolerance  float64
	limit      int
}

type rankedCandidate struct {
	model.Candidate
	ledger model.LedgerTransaction
	edit   float64
}

func (r *Recon) defaultCriteria(limit int) candidateCriteria {
	if limit <= 0 {
		limit = r.config.Matching.CandidateLimit
	}
	return candidateCriteria{
		windowDays: r.config.Matching.WindowDays,
		tolerance:  r.config.Matching.AmountTolerance,
		limit:      limit,
	}
}

// findCandidates searches the ledger around the transaction's date and amount and
// returns the ranked ledger transactions scoring above CandidateThreshold.
func (r *Recon) findCandidates(ctx context.Context, txn *model.BankTransaction, criteria candidateCriteria) ([]rankedCandidate, error) {
	ctx, span := tracer.Start(ctx, "FindCandidates")
	defer span.End()

	day := civilDay(txn.TransactionDate)
	window := time.Duration(criteria.windowDays) * 24 * time.Hour
	dates := model.DateRange{
		From: day.Add(-window),
		To:   day.Add(window + 24*time.Hour - time.Nanosecond),
	}

	ledgerTxns, err := r.ledger.FindTransactions(ctx, txn.AccountID, dates, model.ToleranceRange(txn.Amount, criteria.tolerance))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	ranked := rankCandidates(txn, ledgerTxns, criteria.limit)
	span.SetAttributes(attribute.Int("candidates.searched", len(ledgerTxns)), attribute.Int("candidates.ranked", len(ranked)))
	return ranked, nil
}

// rankCandidates keeps ledger transactions scoring above the threshold, best first.
// Equal scores are ordered by edit similarity of the descriptions, then by id.
func rankCandidates(txn *model.BankTransaction, ledgerTxns []model.LedgerTransaction, limit int) []rankedCandidate {
	ranked := make([]rankedCandidate, 0, len(ledgerTxns))
	for _, ledgerTxn := range ledgerTxns {
		score, reasons := Score(txn, ledgerTxn)
		if score <= CandidateThreshold {
			continue
		}
		ranked = append(ranked, rankedCandidate{
			Candidate: model.Candidate{TransactionID: ledgerTxn.TransactionID, Score: score, Reasons: reasons},
			ledger:    ledgerTxn,
			edit:      editSimilarity(txn.Description, ledgerTxn.Memo),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].edit != ranked[j].edit {
			return ranked[i].edit > ranked[j].edit
		}
		return ranked[i].TransactionID < ranked[j].TransactionID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// FindCandidates proposes ledger transactions for a bank transaction.
// A non-positive limit falls back to the configured candidate limit.
func (r *Recon) FindCandidates(ctx context.Context, bankTxID string, limit int) ([]model.Candidate, error) {
	txn, err := r.datasource.GetBankTransaction(ctx, bankTxID)
	if err != nil {
		return nil, err
	}

	ranked, err := r.findCandidates(ctx, txn, r.defaultCriteria(limit))
	if err != nil {
		return nil, err
	}

	candidates := make([]model.Candidate, len(ranked))
	for i, c := range ranked {
		candidates[i] = c.Candidate
	}
	return candidates, nil
}

// applyMatch links txn to ledgerTxn in memory. changed is false when txn is
// already matched to that ledger transaction.
func applyMatch(txn *model.BankTransaction, ledgerTxn *model.LedgerTransaction, matchType model.MatchType, strictTolerance float64) (bool, error) {
	if txn.Status == model.StatusMatched {
		if txn.MatchedLedgerID() == ledgerTxn.TransactionID {
			return false, nil
		}
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("bank transaction %s is already matched to %s", txn.TransactionID, txn.MatchedLedgerID()), nil)
	}
	if !txn.Status.CanTransition(model.StatusMatched) {
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("bank transaction %s is %s and cannot be matched", txn.TransactionID, txn.Status), nil)
	}
	if txn.AccountID != "" && ledgerTxn.AccountID != "" && txn.AccountID != ledgerTxn.AccountID {
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("ledger transaction %s belongs to account %s, not %s", ledgerTxn.TransactionID, ledgerTxn.AccountID, txn.AccountID), nil)
	}
	if !model.WithinTolerance(txn.Amount, ledgerTxn.Amount, strictTolerance) {
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("amount mismatch: bank %s, ledger %s", txn.Amount.String(), ledgerTxn.Amount.String()), nil)
	}

	id := ledgerTxn.TransactionID
	txn.Status = model.StatusMatched
	txn.MatchedLedgerTransactionID = &id
	txn.MatchType = matchType
	txn.MatchedAt = ptr.Time(time.Now())
	txn.IgnoreReason = ""
	return true, nil
}

func applyUnmatch(txn *model.BankTransaction) (bool, error) {
	switch txn.Status {
	case model.StatusUnreviewed, model.StatusPending:
		return false, nil
	case model.StatusMatched:
		txn.Status = model.StatusUnreviewed
		txn.MatchedLedgerTransactionID = nil
		txn.MatchType = ""
		txn.MatchedAt = nil
		return true, nil
	default:
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("bank transaction %s is %s and cannot be unmatched", txn.TransactionID, txn.Status), nil)
	}
}

func applyIgnore(txn *model.BankTransaction, reason string) (bool, error) {
	switch txn.Status {
	case model.StatusIgnored:
		return false, nil
	case model.StatusMatched:
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("bank transaction %s is matched to %s; unmatch it before ignoring", txn.TransactionID, txn.MatchedLedgerID()), nil)
	}
	if !txn.Status.CanTransition(model.StatusIgnored) {
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("bank transaction %s is %s and cannot be ignored", txn.TransactionID, txn.Status), nil)
	}
	txn.Status = model.StatusIgnored
	txn.IgnoreReason = reason
	return true, nil
}

// mutateBankTransaction loads the transaction under its lock, applies fn and
// persists the result with a compare-and-swap on the loaded status.
func (r *Recon) mutateBankTransaction(ctx context.Context, bankTxID string, fn func(txn *model.BankTransaction) (bool, error)) (*model.BankTransaction, error) {
	var result *model.BankTransaction
	err := r.withLock(ctx, bankTransactionLockKey(bankTxID), func() error {
		txn, err := r.datasource.GetBankTransaction(ctx, bankTxID)
		if err != nil {
			return err
		}
		previous := txn.Status

		changed, err := fn(txn)
		if err != nil {
			return err
		}
		if changed {
			txn.UpdatedAt = time.Now()
			if err := r.datasource.UpdateBankTransaction(ctx, txn, previous); err != nil {
				return err
			}
		}
		result = txn
		return nil
	})
	return result, err
}

// Match links a bank transaction to a ledger transaction. The amounts must agree
// within the strict tolerance. Matching the same pair twice succeeds without a write.
func (r *Recon) Match(ctx context.Context, bankTxID, ledgerTxID string, matchType model.MatchType) (*model.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "Match")
	defer span.End()

	switch matchType {
	case "":
		matchType = model.MatchTypeManual
	case model.MatchTypeManual, model.MatchTypeAuto:
	default:
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown match type %q", matchType), nil)
	}

	var alreadyMatched bool
	_, err := r.mutateBankTransaction(ctx, bankTxID, func(txn *model.BankTransaction) (bool, error) {
		ledgerTxn, err := r.ledger.GetTransaction(ctx, ledgerTxID)
		if err != nil {
			return false, err
		}
		changed, err := applyMatch(txn, ledgerTxn, matchType, r.config.Matching.StrictAmountTolerance)
		alreadyMatched = err == nil && !changed
		return changed, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	message := "Transaction matched successfully"
	if alreadyMatched {
		message = "Transaction already matched"
	}
	return &model.MatchResult{Success: true, Message: message, MatchedTransactionID: ledgerTxID}, nil
}

// Unmatch returns a matched bank transaction to unreviewed.
func (r *Recon) Unmatch(ctx context.Context, bankTxID string) (*model.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "Unmatch")
	defer span.End()

	var changed bool
	_, err := r.mutateBankTransaction(ctx, bankTxID, func(txn *model.BankTransaction) (bool, error) {
		var err error
		changed, err = applyUnmatch(txn)
		return changed, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	message := "Transaction unmatched successfully"
	if !changed {
		message = "Transaction is not matched"
	}
	return &model.MatchResult{Success: true, Message: message}, nil
}

// Ignore excludes a bank transaction from matching. A matched transaction must be unmatched first.
func (r *Recon) Ignore(ctx context.Context, bankTxID, reason string) (*model.MatchResult, error) {
	ctx, span := tracer.Start(ctx, "Ignore")
	defer span.End()

	var changed bool
	_, err := r.mutateBankTransaction(ctx, bankTxID, func(txn *model.BankTransaction) (bool, error) {
		var err error
		changed, err = applyIgnore(txn, reason)
		return changed, err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	message := "Transaction ignored successfully"
	if !changed {
		message = "Transaction already ignored"
	}
	return &model.MatchResult{Success: true, Message: message}, nil
}
