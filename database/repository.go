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
package database

import (
	"context"
	"time"

	"github.com/blnkfinance/recon/model"
)

// IDataSource groups every store the engines persist through.
type IDataSource interface {
	bankTransaction
	bankRule
	reconciliation
	LedgerRepository
}

type bankTransaction interface {
	RecordBankTransaction(ctx context.Context, txn *model.BankTransaction) error
	GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error)
	// UpdateBankTransaction writes txn only if its stored status is still expected.
	UpdateBankTransaction(ctx context.Context, txn *model.BankTransaction, expected model.BankTransactionStatus) error
	GetBankTransactionsByStatus(ctx context.Context, status model.BankTransactionStatus, limit, offset int) ([]*model.BankTransaction, error)
	// MatchedLedgerTransactionIDs returns which of the given ledger ids a bank transaction is matched to.
	MatchedLedgerTransactionIDs(ctx context.Context, ledgerIDs []string) (map[string]bool, error)
}

type bankRule interface {
	CreateBankRule(ctx context.Context, rule *model.BankRule) error
	GetBankRule(ctx context.Context, id string) (*model.BankRule, error)
	GetBankRules(ctx context.Context, activeOnly bool) ([]*model.BankRule, error)
	UpdateBankRule(ctx context.Context, rule *model.BankRule) error
	DeleteBankRule(ctx context.Context, id string) error
}

type reconciliation interface {
	RecordBankReconciliation(ctx context.Context, rec *model.BankReconciliation) error
	GetBankReconciliation(ctx context.Context, id string) (*model.BankReconciliation, error)
	// UpdateBankReconciliation replaces the reconciliation and its items only if the stored status is still expected.
	UpdateBankReconciliation(ctx context.Context, rec *model.BankReconciliation, expected model.ReconciliationStatus) error
}

// LedgerRepository is the read-only view of internal ledger transactions.
type LedgerRepository interface {
	FindTransactions(ctx context.Context, accountID string, dates model.DateRange, amounts model.AmountRange) ([]model.LedgerTransaction, error)
	GetTransaction(ctx context.Context, id string) (*model.LedgerTransaction, error)
	// FindUnclearedTransactions lists transactions dated on or before asOf that no completed reconciliation cleared.
	FindUnclearedTransactions(ctx context.Context, accountID string, asOf time.Time) ([]model.LedgerTransaction, error)
}
