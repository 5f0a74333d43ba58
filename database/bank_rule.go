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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"go.opentelemetry.io/otel"
)

const bankRuleColumns = `id, rule_id, name, description, priority, is_active, conditions, actions,
	continue_processing, created_at, updated_at`

func scanBankRule(row rowScanner) (*model.BankRule, error) {
	rule := &model.BankRule{}
	var conditions, actions []byte
	err := row.Scan(
		&rule.ID, &rule.RuleID, &rule.Name, &rule.Description, &rule.Priority, &rule.IsActive,
		&conditions, &actions, &rule.ContinueProcessing, &rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("decoding conditions of rule %s: %w", rule.RuleID, err)
	}
	if err := json.Unmarshal(actions, &rule.Actions); err != nil {
		return nil, fmt.Errorf("decoding actions of rule %s: %w", rule.RuleID, err)
	}
	return rule, nil
}

func marshalRuleBody(rule *model.BankRule) ([]byte, []byte, error) {
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal rule conditions", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal rule actions", err)
	}
	return conditions, actions, nil
}

func (d Datasource) CreateBankRule(ctx context.Context, rule *model.BankRule) error {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Saving bank rule to db")
	defer span.End()

	conditions, actions, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt, rule.UpdatedAt = now, now
	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO recon.bank_rules (
			rule_id, name, description, priority, is_active, conditions, actions, continue_processing, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rule.RuleID, rule.Name, rule.Description, rule.Priority, rule.IsActive, conditions, actions,
		rule.ContinueProcessing, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "Bank rule")
	}
	return nil
}

func (d Datasource) GetBankRule(ctx context.Context, id string) (*model.BankRule, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Fetching bank rule from db")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `SELECT `+bankRuleColumns+` FROM recon.bank_rules WHERE rule_id = $1`, id)
	rule, err := scanBankRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Bank rule with ID '%s' not found", id), nil)
		}
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bank rule", err)
	}
	return rule, nil
}

// GetBankRules returns rules ordered by descending priority, then rule id.
func (d Datasource) GetBankRules(ctx context.Context, activeOnly bool) ([]*model.BankRule, error) {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Fetching bank rules from db")
	defer span.End()

	query := `SELECT ` + bankRuleColumns + ` FROM recon.bank_rules`
	if activeOnly {
		query += ` WHERE is_active`
	}
	query += ` ORDER BY priority DESC, rule_id`

	rows, err := d.Conn.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve bank rules", err)
	}
	defer rows.Close()

	rules := []*model.BankRule{}
	for rows.Next() {
		rule, err := scanBankRule(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan bank rule", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over bank rules", err)
	}
	return rules, nil
}

func (d Datasource) UpdateBankRule(ctx context.Context, rule *model.BankRule) error {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Updating bank rule")
	defer span.End()

	conditions, actions, err := marshalRuleBody(rule)
	if err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE recon.bank_rules
		SET name = $2, description = $3, priority = $4, is_active = $5, conditions = $6, actions = $7,
			continue_processing = $8, updated_at = $9
		WHERE rule_id = $1`,
		rule.RuleID, rule.Name, rule.Description, rule.Priority, rule.IsActive, conditions, actions,
		rule.ContinueProcessing, rule.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		return mapWriteError(err, "Bank rule")
	}
	return requireAffected(result, fmt.Sprintf("Bank rule with ID '%s' not found", rule.RuleID))
}

func (d Datasource) DeleteBankRule(ctx context.Context, id string) error {
	ctx, span := otel.Tracer("recon.datasource").Start(ctx, "Deleting bank rule")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `DELETE FROM recon.bank_rules WHERE rule_id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete bank rule", err)
	}
	return requireAffected(result, fmt.Sprintf("Bank rule with ID '%s' not found", id))
}

func requireAffected(result sql.Result, notFound string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, notFound, nil)
	}
	return nil
}
