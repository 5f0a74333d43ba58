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
	"github.com/lib/pq"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const bankTransactionColumns = `id, transaction_id, connection_id, account_id, transaction_date, posted_date, amount,
	transaction_type, description, merchant_name, category, pending, status,
	matched_ledger_transaction_id, match_type, matched_at, ignore_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBankTransaction(row rowScanner) (*model.BankTransaction, error) {
	txn := &model.BankTransaction{}
	var postedDate, matchedAt sql.NullTime
	var matchedID sql.NullString
	var status, matchType string

	err := row.Scan(
		&txn.ID, &txn.TransactionID, &txn.ConnectionID, &txn.AccountID, &txn.TransactionDate, &postedDate, &txn.Amount,
		&txn.TransactionType, &txn.Description, &txn.MerchantName, &txn.Category, &txn.Pending, &status,
		&matchedID, &matchType, &matchedAt, &txn.IgnoreReason, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	txn.Status = model.BankTransactionStatus(status)
	txn.MatchType = model.MatchType(matchType)
	if postedDate.Valid {
		txn.PostedDate = ptr.Time(postedDate.Time)
	}
	if matchedAt.Valid {
		txn.MatchedAt = ptr.Time(matchedAt.Time)
	}
	if matchedID.Valid {
		txn.MatchedLedgerTransactionID = ptr.String(matchedID.String)
	}
	return txn, nil
}

// checkMatchState rejects a write that would break the matched-id/status pairing.
func checkMatchState(txn *model.BankTransaction) error {
	if txn.IsConsistent() {
		return nil
	}
	return apierror.NewAPIError(apierror.ErrInternalServer,
		fmt.Sprintf("Bank transaction '%s' has status %s with matched ledger transaction '%s'", txn.TransactionID, txn.Status, txn.MatchedLedgerID()), nil)
}

// RecordBankTransaction inserts a bank transaction exactly as staged, including any rule outcome.
func (d Datasource) RecordBankTransaction(ctx context.Context, txn *model.BankTransaction) error {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Saving bank transaction to db")
	defer span.End()

	if err := checkMatchState(txn); err != nil {
		span.RecordError(err)
		return err
	}

	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	txn.UpdatedAt = txn.CreatedAt

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO recon.bank_transactions (
			transaction_id, connection_id, account_id, transaction_date, posted_date, amount,
			transaction_type, description, merchant_name, category, pending, status,
			matched_ledger_transaction_id, match_type, matched_at, ignore_reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		txn.TransactionID, txn.ConnectionID, txn.AccountID, txn.TransactionDate, txn.PostedDate, txn.Amount,
		txn.TransactionType, txn.Description, txn.MerchantName, txn.Category, txn.Pending, string(txn.Status),
		txn.MatchedLedgerTransactionID, string(txn.MatchType), txn.MatchedAt, txn.IgnoreReason, txn.CreatedAt, txn.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "Bank transaction")
	}

	span.AddEvent("Bank transaction saved", trace.WithAttributes(attribute.String("bank_transaction.id", txn.TransactionID)))
	return nil
}

func (d Datasource) GetBankTransaction(ctx context.Context, id string) (*model.BankTransaction, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Fetching bank transaction from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+bankTransactionColumns+`
		FROM recon.bank_transactions WHERE transaction_id = $1`, id)
	txn, err := scanBankTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Bank transaction with ID '%s' not found", id), nil)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bank transaction", err)
	}
	return txn, nil
}

func (d Datasource) UpdateBankTransaction(ctx context.Context, txn *model.BankTransaction, expected model.BankTransactionStatus) error {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Updating bank transaction")
	defer span.End()

	if err := checkMatchState(txn); err != nil {
		span.RecordError(err)
		return err
	}

	txn.UpdatedAt = time.Now()
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.bank_transactions
		SET category = $2, merchant_name = $3, status = $4, matched_ledger_transaction_id = $5,
			match_type = $6, matched_at = $7, ignore_reason = $8, updated_at = $9
		WHERE transaction_id = $1 AND status = $10`,
		txn.TransactionID, txn.Category, txn.MerchantName, string(txn.Status), txn.MatchedLedgerTransactionID,
		string(txn.MatchType), txn.MatchedAt, txn.IgnoreReason, txn.UpdatedAt, string(expected),
	)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "Bank transaction")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Bank transaction '%s' is no longer %s", txn.TransactionID, expected), nil)
	}
	return nil
}

func (d Datasource) GetBankTransactionsByStatus(ctx context.Context, status model.BankTransactionStatus, limit, offset int) ([]*model.BankTransaction, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Fetching bank transactions by status")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `SELECT `+bankTransactionColumns+`
		FROM recon.bank_transactions
		WHERE status = $1
		ORDER BY transaction_date, id
		LIMIT $2 OFFSET $3`, string(status), limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bank transactions", err)
	}
	defer rows.Close()

	var txns []*model.BankTransaction
	for rows.Next() {
		txn, err := scanBankTransaction(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan bank transaction", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over bank transactions", err)
	}
	return txns, nil
}

func (d Datasource) MatchedLedgerTransactionIDs(ctx context.Context, ledgerIDs []string) (map[string]bool, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Fetching matched ledger transaction ids")
	defer span.End()

	matched := make(map[string]bool)
	if len(ledgerIDs) == 0 {
		return matched, nil
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT matched_ledger_transaction_id
		FROM recon.bank_transactions
		WHERE status = 'matched' AND matched_ledger_transaction_id = ANY($1)`, pq.Array(ledgerIDs))
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve matched ledger transactions", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan ledger transaction id", err)
		}
		matched[id] = true
	}
	return matched, rows.Err()
}
