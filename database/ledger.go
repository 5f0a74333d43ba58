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
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"go.opentelemetry.io/otel"
)

func scanLedgerTransactions(rows *sql.Rows) ([]model.LedgerTransaction, error) {
	defer rows.Close()

	txns := []model.LedgerTransaction{}
	for rows.Next() {
		var txn model.LedgerTransaction
		if err := rows.Scan(&txn.TransactionID, &txn.AccountID, &txn.Date, &txn.Amount, &txn.Memo); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger transaction", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over ledger transactions", err)
	}
	return txns, nil
}

// FindTransactions returns the account's ledger transactions inside both inclusive ranges.
func (d Datasource) FindTransactions(ctx context.Context, accountID string, dates model.DateRange, amounts model.AmountRange) ([]model.LedgerTransaction, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Finding ledger transactions")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transaction_id, account_id, date, amount, memo
		FROM recon.ledger_transactions
		WHERE account_id = $1 AND date BETWEEN $2 AND $3 AND amount BETWEEN $4 AND $5
		ORDER BY date, transaction_id`,
		accountID, dates.From, dates.To, amounts.Min, amounts.Max,
	)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger transactions", err)
	}
	return scanLedgerTransactions(rows)
}

func (d Datasource) GetTransaction(ctx context.Context, id string) (*model.LedgerTransaction, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Fetching ledger transaction")
	defer span.End()

	txn := &model.LedgerTransaction{}
	err := d.Conn.QueryRowContext(ctx, `
		SELECT transaction_id, account_id, date, amount, memo
		FROM recon.ledger_transactions
		WHERE transaction_id = $1`, id).Scan(&txn.TransactionID, &txn.AccountID, &txn.Date, &txn.Amount, &txn.Memo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Ledger transaction with ID '%s' not found", id), nil)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve ledger transaction", err)
	}
	return txn, nil
}

func (d Datasource) FindUnclearedTransactions(ctx context.Context, accountID string, asOf time.Time) ([]model.LedgerTransaction, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Finding uncleared ledger transactions")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT lt.transaction_id, lt.account_id, lt.date, lt.amount, lt.memo
		FROM recon.ledger_transactions lt
		WHERE lt.account_id = $1 AND lt.date <= $2
			AND NOT EXISTS (
				SELECT 1
				FROM recon.reconciled_items ri
				JOIN recon.bank_reconciliations br ON br.reconciliation_id = ri.reconciliation_id
				WHERE ri.transaction_id = lt.transaction_id AND ri.cleared AND br.status = 'completed'
			)
		ORDER BY lt.date, lt.transaction_id`,
		accountID, asOf,
	)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve uncleared ledger transactions", err)
	}
	return scanLedgerTransactions(rows)
}
