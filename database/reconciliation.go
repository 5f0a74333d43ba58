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
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func insertReconciledItems(ctx context.Context, tx *sql.Tx, rec *model.BankReconciliation) error {
	for _, item := range rec.Items {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recon.reconciled_items (reconciliation_id, transaction_id, amount, cleared, reconciled_at)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.ReconciliationID, item.TransactionID, item.Amount, item.Cleared, item.ReconciledAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RecordBankReconciliation inserts a reconciliation together with its seeded items in one transaction.
func (d Datasource) RecordBankReconciliation(ctx context.Context, rec *model.BankReconciliation) error {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Saving bank reconciliation to db")
	defer span.End()

	now := time.Now()
	rec.CreatedAt, rec.UpdatedAt = now, now

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recon.bank_reconciliations (
			reconciliation_id, account_id, statement_date, beginning_balance, ending_balance, service_charge,
			interest_earned, difference, status, reconciled_by, reconciled_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ReconciliationID, rec.AccountID, rec.StatementDate, rec.BeginningBalance, rec.EndingBalance, rec.ServiceCharge,
		rec.InterestEarned, rec.Difference, string(rec.Status), rec.ReconciledBy, rec.ReconciledAt, rec.CreatedAt, rec.UpdatedAt,
	)
	if err == nil {
		err = insertReconciledItems(ctx, tx, rec)
	}
	if err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		return mapWriteError(err, "Bank reconciliation")
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	span.AddEvent("Bank reconciliation saved", trace.WithAttributes(
		attribute.String("reconciliation.id", rec.ReconciliationID),
		attribute.Int("reconciliation.items", len(rec.Items)),
	))
	return nil
}

func (d Datasource) GetBankReconciliation(ctx context.Context, id string) (*model.BankReconciliation, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Fetching bank reconciliation from db")
	defer span.End()

	rec := &model.BankReconciliation{}
	var status string
	var reconciledAt sql.NullTime
	err := d.Conn.QueryRowContext(ctx, `
		SELECT id, reconciliation_id, account_id, statement_date, beginning_balance, ending_balance, service_charge,
			interest_earned, difference, status, reconciled_by, reconciled_at, created_at, updated_at
		FROM recon.bank_reconciliations
		WHERE reconciliation_id = $1`, id).Scan(
		&rec.ID, &rec.ReconciliationID, &rec.AccountID, &rec.StatementDate, &rec.BeginningBalance, &rec.EndingBalance,
		&rec.ServiceCharge, &rec.InterestEarned, &rec.Difference, &status, &rec.ReconciledBy, &reconciledAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Bank reconciliation with ID '%s' not found", id), nil)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bank reconciliation", err)
	}
	rec.Status = model.ReconciliationStatus(status)
	if reconciledAt.Valid {
		rec.ReconciledAt = ptr.Time(reconciledAt.Time)
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transaction_id, amount, cleared, reconciled_at
		FROM recon.reconciled_items
		WHERE reconciliation_id = $1
		ORDER BY transaction_id`, id)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve reconciled items", err)
	}
	defer rows.Close()

	rec.Items = []model.ReconciledItem{}
	for rows.Next() {
		var item model.ReconciledItem
		var at sql.NullTime
		if err := rows.Scan(&item.TransactionID, &item.Amount, &item.Cleared, &at); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan reconciled item", err)
		}
		if at.Valid {
			item.ReconciledAt = ptr.Time(at.Time)
		}
		rec.Items = append(rec.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over reconciled items", err)
	}
	return rec, nil
}

func (d Datasource) UpdateBankReconciliation(ctx context.Context, rec *model.BankReconciliation, expected model.ReconciliationStatus) error {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Updating bank reconciliation")
	defer span.End()

	rec.UpdatedAt = time.Now()
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE recon.bank_reconciliations
		SET difference = $2, status = $3, reconciled_by = $4, reconciled_at = $5, updated_at = $6
		WHERE reconciliation_id = $1 AND status = $7`,
		rec.ReconciliationID, rec.Difference, string(rec.Status), rec.ReconciledBy, rec.ReconciledAt, rec.UpdatedAt, string(expected),
	)
	if err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		return mapWriteError(err, "Bank reconciliation")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Bank reconciliation '%s' is no longer %s", rec.ReconciliationID, expected), nil)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM recon.reconciled_items WHERE reconciliation_id = $1`, rec.ReconciliationID)
	if err == nil {
		err = insertReconciledItems(ctx, tx, rec)
	}
	if err != nil {
		_ = tx.Rollback()
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save reconciled items", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return nil
}
