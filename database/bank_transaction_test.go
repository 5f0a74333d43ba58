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
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

var bankTransactionRowColumns = []string{
	"id", "transaction_id", "connection_id", "account_id", "transaction_date", "posted_date", "amount",
	"transaction_type", "description", "merchant_name", "category", "pending", "status",
	"matched_ledger_transaction_id", "match_type", "matched_at", "ignore_reason", "created_at", "updated_at",
}

func TestRecordBankTransaction_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	txn := &model.BankTransaction{
		TransactionID:   "btx_1",
		ConnectionID:    "conn_1",
		AccountID:       "acc_1",
		TransactionDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Amount:          decimal.RequireFromString("-45.99"),
		Description:     "AMAZON MKTPLACE",
		Category:        "Office Supplies",
		Status:          model.StatusUnreviewed,
	}

	mock.ExpectExec("INSERT INTO recon.bank_transactions").
		WithArgs(anyArgs(18)...).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = ds.RecordBankTransaction(context.Background(), txn)
	assert.NoError(t, err)
	assert.False(t, txn.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordBankTransaction_Fail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectExec("INSERT INTO recon.bank_transactions").
		WithArgs(anyArgs(18)...).
		WillReturnError(errors.New("failed to insert"))

	err = ds.RecordBankTransaction(context.Background(), &model.BankTransaction{TransactionID: "btx_1"})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))
}

func TestBankTransactionWritesRejectBrokenMatchState(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ledgerID := "ltx_1"
	tests := []struct {
		name string
		txn  *model.BankTransaction
	}{
		{"matched without ledger id", &model.BankTransaction{TransactionID: "btx_1", Status: model.StatusMatched}},
		{"ledger id while ignored", &model.BankTransaction{TransactionID: "btx_2", Status: model.StatusIgnored, MatchedLedgerTransactionID: &ledgerID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ds.RecordBankTransaction(context.Background(), tt.txn)
			assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))

			err = ds.UpdateBankTransaction(context.Background(), tt.txn, model.StatusUnreviewed)
			assert.Equal(t, apierror.ErrInternalServer, apierror.CodeOf(err))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBankTransaction_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()
	matchedAt := now.Add(-time.Hour)

	mock.ExpectQuery("SELECT (.+) FROM recon.bank_transactions WHERE transaction_id = \\$1").
		WithArgs("btx_1").
		WillReturnRows(sqlmock.NewRows(bankTransactionRowColumns).AddRow(
			1, "btx_1", "conn_1", "acc_1", now, nil, "-100.00",
			"debit", "ACME SUPPLIES", "Acme", "", false, "matched",
			"ltx_9", "manual", matchedAt, "", now, now,
		))

	txn, err := ds.GetBankTransaction(context.Background(), "btx_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusMatched, txn.Status)
	assert.Equal(t, "ltx_9", txn.MatchedLedgerID())
	assert.Equal(t, model.MatchTypeManual, txn.MatchType)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(-100)))
	assert.Nil(t, txn.PostedDate)
	require.NotNil(t, txn.MatchedAt)
	assert.True(t, txn.IsConsistent())
}

func TestGetBankTransaction_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	mock.ExpectQuery("SELECT (.+) FROM recon.bank_transactions").
		WithArgs("btx_missing").
		WillReturnError(sql.ErrNoRows)

	_, err = ds.GetBankTransaction(context.Background(), "btx_missing")
	assert.True(t, apierror.IsNotFound(err))
}

func TestUpdateBankTransaction_CompareAndSwap(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	ledgerID := "ltx_1"
	txn := &model.BankTransaction{
		TransactionID:              "btx_1",
		Status:                     model.StatusMatched,
		MatchedLedgerTransactionID: &ledgerID,
		MatchType:                  model.MatchTypeAuto,
	}

	args := anyArgs(10)
	args[0] = "btx_1"
	args[3] = "matched"
	args[9] = "unreviewed"

	mock.ExpectExec("UPDATE recon.bank_transactions").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, ds.UpdateBankTransaction(context.Background(), txn, model.StatusUnreviewed))

	mock.ExpectExec("UPDATE recon.bank_transactions").
		WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = ds.UpdateBankTransaction(context.Background(), txn, model.StatusUnreviewed)
	assert.True(t, apierror.IsConflict(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBankTransactionsByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}
	now := time.Now()
	rows := sqlmock.NewRows(bankTransactionRowColumns).
		AddRow(1, "btx_1", "conn_1", "acc_1", now, now, "12.50", "credit", "REFUND", "", "", false, "unreviewed", nil, "", nil, "", now, now).
		AddRow(2, "btx_2", "conn_1", "acc_1", now, nil, "-9.00", "debit", "UBER TRIP", "", "", true, "unreviewed", nil, "", nil, "", now, now)

	mock.ExpectQuery("SELECT (.+) FROM recon.bank_transactions").
		WithArgs("unreviewed", 50, 0).
		WillReturnRows(rows)

	txns, err := ds.GetBankTransactionsByStatus(context.Background(), model.StatusUnreviewed, 50, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.NotNil(t, txns[0].PostedDate)
	assert.True(t, txns[1].Pending)
}

func TestMatchedLedgerTransactionIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	empty, err := ds.MatchedLedgerTransactionIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	mock.ExpectQuery("SELECT DISTINCT matched_ledger_transaction_id").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"matched_ledger_transaction_id"}).AddRow("ltx_1"))

	matched, err := ds.MatchedLedgerTransactionIDs(context.Background(), []string{"ltx_1", "ltx_2"})
	require.NoError(t, err)
	assert.True(t, matched["ltx_1"])
	assert.False(t, matched["ltx_2"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
