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
package mocks

import (
	"context"
	"time"

	"github.com/blnkfinance/recon/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Bank transaction methods

func (m *MockDataSource) RecordBankTransaction(ctx context.Context, txn *model.BankTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockDataSource) GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// hand out a copy so callers cannot mutate the fixture between calls
	return args.Get(0).(*model.BankTransaction).Clone(), args.Error(1)
}

func (m *MockDataSource) UpdateBankTransaction(ctx context.Context, txn *model.BankTransaction, expected model.BankTransactionStatus) error {
	args := m.Called(ctx, txn, expected)
	return args.Error(0)
}

func (m *MockDataSource) GetBankTransactionsByStatus(ctx context.Context, status model.BankTransactionStatus, limit, offset int) ([]*model.BankTransaction, error) {
	args := m.Called(ctx, status, limit, offset)
	return args.Get(0).([]*model.BankTransaction), args.Error(1)
}

func (m *MockDataSource) MatchedLedgerTransactionIDs(ctx context.Context, ledgerIDs []string) (map[string]bool, error) {
	args := m.Called(ctx, ledgerIDs)
	return args.Get(0).(map[string]bool), args.Error(1)
}

// Bank rule methods

func (m *MockDataSource) CreateBankRule(ctx context.Context, rule *model.BankRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockDataSource) GetBankRule(ctx context.Context, id string) (*model.BankRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankRule), args.Error(1)
}

func (m *MockDataSource) GetBankRules(ctx context.Context, activeOnly bool) ([]*model.BankRule, error) {
	args := m.Called(ctx, activeOnly)
	return args.Get(0).([]*model.BankRule), args.Error(1)
}

func (m *MockDataSource) UpdateBankRule(ctx context.Context, rule *model.BankRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockDataSource) DeleteBankRule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// Reconciliation methods

func (m *MockDataSource) RecordBankReconciliation(ctx context.Context, rec *model.BankReconciliation) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *MockDataSource) GetBankReconciliation(ctx context.Context, id string) (*model.BankReconciliation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.BankReconciliation).Clone(), args.Error(1)
}

func (m *MockDataSource) UpdateBankReconciliation(ctx context.Context, rec *model.BankReconciliation, expected model.ReconciliationStatus) error {
	args := m.Called(ctx, rec, expected)
	return args.Error(0)
}

// Ledger methods

func (m *MockDataSource) FindTransactions(ctx context.Context, accountID string, dates model.DateRange, amounts model.AmountRange) ([]model.LedgerTransaction, error) {
	args := m.Called(ctx, accountID, dates, amounts)
	return args.Get(0).([]model.LedgerTransaction), args.Error(1)
}

func (m *MockDataSource) GetTransaction(ctx context.Context, id string) (*model.LedgerTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LedgerTransaction), args.Error(1)
}

func (m *MockDataSource) FindUnclearedTransactions(ctx context.Context, accountID string, asOf time.Time) ([]model.LedgerTransaction, error) {
	args := m.Called(ctx, accountID, asOf)
	return args.Get(0).([]model.LedgerTransaction), args.Error(1)
}
