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

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationStatus is the lifecycle state of a bank reconciliation.
type ReconciliationStatus string

const (
	ReconciliationInProgress  ReconciliationStatus = "in_progress"
	ReconciliationCompleted   ReconciliationStatus = "completed"
	ReconciliationDiscrepancy ReconciliationStatus = "discrepancy"
	ReconciliationCancelled   ReconciliationStatus = "cancelled"
)

var reconciliationTransitions = map[ReconciliationStatus][]ReconciliationStatus{
	ReconciliationInProgress:  {ReconciliationCompleted, ReconciliationDiscrepancy, ReconciliationCancelled},
	ReconciliationDiscrepancy: {ReconciliationInProgress, ReconciliationCancelled},
}

// CanTransition reports whether a reconciliation may move from s to the given status.
func (s ReconciliationStatus) CanTransition(to ReconciliationStatus) bool {
	for _, next := range reconciliationTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ReconciliationStatus) IsTerminal() bool {
	return len(reconciliationTransitions[s]) == 0
}

// ReconciledItem is a ledger transaction considered on a statement.
type ReconciledItem struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Cleared       bool            `json:"cleared"`
	ReconciledAt  *time.Time      `json:"reconciled_at"`
}

// BankReconciliation compares a bank statement with ledger activity for one account.
type BankReconciliation struct {
	ID               int64                `json:"-"`
	ReconciliationID string               `json:"reconciliation_id"`
	AccountID        string               `json:"account_id"`
	StatementDate    time.Time            `json:"statement_date"`
	BeginningBalance decimal.Decimal      `json:"beginning_balance"`
	EndingBalance    decimal.Decimal      `json:"ending_balance"`
	ServiceCharge    decimal.Decimal      `json:"service_charge"`
	InterestEarned   decimal.Decimal      `json:"interest_earned"`
	Items            []ReconciledItem     `json:"items"`
	Difference       decimal.Decimal      `json:"difference"`
	Status           ReconciliationStatus `json:"status"`
	ReconciledBy     string               `json:"reconciled_by,omitempty"`
	ReconciledAt     *time.Time           `json:"reconciled_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Item returns the index of the item for a ledger transaction, or -1.
func (r *BankReconciliation) Item(transactionID string) int {
	for i := range r.Items {
		if r.Items[i].TransactionID == transactionID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the reconciliation so staged edits never leak on failure.
func (r *BankReconciliation) Clone() *BankReconciliation {
	c := *r
	c.Items = make([]ReconciledItem, len(r.Items))
	copy(c.Items, r.Items)
	if r.ReconciledAt != nil {
		at := *r.ReconciledAt
		c.ReconciledAt = &at
	}
	return &c
}

// DifferenceResult explains how the computed balance was reached. Outstanding items
// are counted on the statement; deferred items were marked uncleared and wait for a later one.
type DifferenceResult struct {
	ReconciliationID    string          `json:"reconciliation_id"`
	ComputedBalance     decimal.Decimal `json:"computed_balance"`
	Difference          decimal.Decimal `json:"difference"`
	IsBalanced          bool            `json:"is_balanced"`
	OutstandingDeposits decimal.Decimal `json:"outstanding_deposits"`
	OutstandingChecks   decimal.Decimal `json:"outstanding_checks"`
	DeferredDeposits    decimal.Decimal `json:"deferred_deposits"`
	DeferredChecks      decimal.Decimal `json:"deferred_checks"`
	OutstandingCount    int             `json:"outstanding_count"`
	DeferredCount       int             `json:"deferred_count"`
	Explanations        []string        `json:"explanations,omitempty"`
}
