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
	"errors"
	"fmt"
	"time"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/internal/cache"
	"github.com/blnkfinance/recon/model"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const activeRulesCacheKey = "bank-rules:active"

// activeRules returns the active rules highest priority first, reading through the rule cache.
func (r *Recon) activeRules(ctx context.Context) ([]*model.BankRule, error) {
	var rules []*model.BankRule
	err := r.rules.Get(ctx, activeRulesCacheKey, &rules)
	if err == nil {
		model.SortRulesByPriority(rules)
		return rules, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		logrus.Errorf("failed to read active rules from cache: %v", err)
	}

	rules, err = r.datasource.GetBankRules(ctx, true)
	if err != nil {
		return nil, err
	}
	if err := r.rules.Set(ctx, activeRulesCacheKey, rules, r.config.Rules.CacheTTL); err != nil {
		logrus.Errorf("failed to cache active rules: %v", err)
	}
	model.SortRulesByPriority(rules)
	return rules, nil
}

func (r *Recon) invalidateRules(ctx context.Context) {
	if err := r.rules.Delete(ctx, activeRulesCacheKey); err != nil {
		logrus.Errorf("failed to invalidate active rules cache: %v", err)
	}
}

// evaluateRules runs the rule chain against a copy of txn. Each matching rule is
// staged on its own copy; a rule whose action fails leaves no trace on the
// result other than its error entry. matched reports whether any rule matched.
func (r *Recon) evaluateRules(ctx context.Context, txn *model.BankTransaction, rules []*model.BankRule) (*model.BankTransaction, *model.AppliedRules, bool) {
	ctx, span := tracer.Start(ctx, "EvaluateRules")
	defer span.End()

	current := txn.Clone()
	applied := &model.AppliedRules{TransactionID: txn.TransactionID, Entries: []model.AppliedRule{}}
	matched := false

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		compiled := compileRule(rule)
		if !compiled.matches(current) {
			continue
		}
		matched = true

		staged := current.Clone()
		entry := model.AppliedRule{RuleID: rule.RuleID, ActionsApplied: []string{}}
		var actionErr error
		for _, act := range compiled.actions {
			changed, err := act.apply(ctx, r, staged)
			if err != nil {
				actionErr = err
				break
			}
			if changed {
				entry.ActionsApplied = append(entry.ActionsApplied, act.name())
			}
		}

		if actionErr != nil {
			logrus.WithFields(logrus.Fields{"rule_id": rule.RuleID, "transaction_id": txn.TransactionID}).
				Warnf("rule actions failed: %v", actionErr)
			entry.ActionsApplied = []string{}
			entry.Error = actionErr.Error()
			applied.Entries = append(applied.Entries, entry)
			continue
		}

		current = staged
		applied.Entries = append(applied.Entries, entry)
		if !rule.ContinueProcessing {
			break
		}
	}

	applied.TransactionStatus = current.Status
	span.SetAttributes(attribute.Int("rules.evaluated", len(rules)), attribute.Int("rules.applied", len(applied.Entries)))
	return current, applied, matched
}

// changedByRules reports whether rule actions modified any persisted field.
func changedByRules(before, after *model.BankTransaction) bool {
	return before.Status != after.Status ||
		before.Category != after.Category ||
		before.MerchantName != after.MerchantName ||
		before.IgnoreReason != after.IgnoreReason ||
		before.MatchedLedgerID() != after.MatchedLedgerID()
}

// ApplyRules runs the active rules against a stored bank transaction and commits
// the outcome. When no rule matches nothing is written.
func (r *Recon) ApplyRules(ctx context.Context, bankTxID string) (*model.AppliedRules, error) {
	ctx, span := tracer.Start(ctx, "ApplyRules")
	defer span.End()

	var applied *model.AppliedRules
	err := r.withLock(ctx, bankTransactionLockKey(bankTxID), func() error {
		txn, err := r.datasource.GetBankTransaction(ctx, bankTxID)
		if err != nil {
			return err
		}
		rules, err := r.activeRules(ctx)
		if err != nil {
			return err
		}

		updated, result, matched := r.evaluateRules(ctx, txn, rules)
		applied = result
		if !matched || !changedByRules(txn, updated) {
			return nil
		}

		updated.UpdatedAt = time.Now()
		return r.datasource.UpdateBankTransaction(ctx, updated, txn.Status)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return applied, nil
}

const rulesBatchPageSize = 100

// RulesRunResult summarises a rule run over stored bank transactions.
type RulesRunResult struct {
	Processed int                   `json:"processed"`
	Failed    int                   `json:"failed"`
	Errors    []ImportError         `json:"errors,omitempty"`
	Applied   []*model.AppliedRules `json:"applied,omitempty"`
}

// ApplyRulesByStatus runs the active rules against every stored bank transaction in
// status. Ids are collected before any rule runs so that transactions moved out of
// status do not shift the pages.
func (r *Recon) ApplyRulesByStatus(ctx context.Context, status model.BankTransactionStatus) (*RulesRunResult, error) {
	ctx, span := tracer.Start(ctx, "ApplyRulesByStatus")
	defer span.End()

	if !status.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown bank transaction status %q", status), nil)
	}

	var ids []string
	for offset := 0; ; offset += rulesBatchPageSize {
		page, err := r.datasource.GetBankTransactionsByStatus(ctx, status, rulesBatchPageSize, offset)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		for _, txn := range page {
			ids = append(ids, txn.TransactionID)
		}
		if len(page) < rulesBatchPageSize {
			break
		}
	}

	result := &RulesRunResult{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		applied, err := r.ApplyRules(ctx, id)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ImportError{TransactionID: id, Error: err.Error()})
			logrus.WithField("transaction_id", id).Errorf("failed to apply rules: %v", err)
			continue
		}
		result.Processed++
		if len(applied.Entries) > 0 {
			result.Applied = append(result.Applied, applied)
		}
	}

	span.SetAttributes(attribute.Int("rules.processed", result.Processed), attribute.Int("rules.failed", result.Failed))
	return result, nil
}

func invalidRule(err error) error {
	return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
}

// CreateBankRule validates and stores a new rule.
func (r *Recon) CreateBankRule(ctx context.Context, rule model.BankRule) (*model.BankRule, error) {
	if err := rule.ValidateBankRule(); err != nil {
		return nil, invalidRule(err)
	}

	rule.RuleID = model.GenerateUUIDWithSuffix("rule")
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt

	if err := r.datasource.CreateBankRule(ctx, &rule); err != nil {
		return nil, err
	}
	r.invalidateRules(ctx)
	return &rule, nil
}

func (r *Recon) GetBankRule(ctx context.Context, id string) (*model.BankRule, error) {
	return r.datasource.GetBankRule(ctx, id)
}

// UpdateBankRule replaces an existing rule, keeping its creation time.
func (r *Recon) UpdateBankRule(ctx context.Context, rule model.BankRule) (*model.BankRule, error) {
	existing, err := r.datasource.GetBankRule(ctx, rule.RuleID)
	if err != nil {
		return nil, err
	}
	if err := rule.ValidateBankRule(); err != nil {
		return nil, invalidRule(err)
	}

	rule.ID = existing.ID
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := r.datasource.UpdateBankRule(ctx, &rule); err != nil {
		return nil, err
	}
	r.invalidateRules(ctx)
	return &rule, nil
}

func (r *Recon) ListBankRules(ctx context.Context, activeOnly bool) ([]*model.BankRule, error) {
	rules, err := r.datasource.GetBankRules(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	model.SortRulesByPriority(rules)
	return rules, nil
}

func (r *Recon) DeleteBankRule(ctx context.Context, id string) error {
	if err := r.datasource.DeleteBankRule(ctx, id); err != nil {
		return err
	}
	r.invalidateRules(ctx)
	return nil
}
