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
	"testing"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func amazonRule() *model.BankRule {
	return &model.BankRule{
		RuleID:   "rule_amazon",
		Name:     "Amazon purchases",
		Priority: 10,
		IsActive: true,
		Conditions: []model.Condition{
			{Field: model.FieldDescription, Operator: model.OperatorContains, Value: "AMAZON"},
		},
		Actions: []model.Action{
			{Type: model.ActionCategorize, Parameters: model.ActionParameters{Category: "Office Supplies"}},
		},
	}
}

func TestEvaluateRulesAmazonExample(t *testing.T) {
	r, _, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-23.99", "2025-02-02", model.StatusUnreviewed)
	txn.Description = "amazon purchase"

	updated, applied, matched := r.evaluateRules(context.Background(), txn, []*model.BankRule{amazonRule()})

	assert.True(t, matched)
	assert.Equal(t, "Office Supplies", updated.Category)
	assert.Empty(t, txn.Category, "the input transaction is not modified")
	require.Len(t, applied.Entries, 1)
	assert.Equal(t, "rule_amazon", applied.Entries[0].RuleID)
	assert.Equal(t, []string{"categorize"}, applied.Entries[0].ActionsApplied)
	assert.Equal(t, model.StatusUnreviewed, applied.TransactionStatus)
}

func TestApplyRules(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-23.99", "2025-02-02", model.StatusUnreviewed)
	txn.Description = "AMAZON MKTPLACE PMTS"

	mockDS.On("GetBankTransaction", mock.Anything, "btx_1").Return(txn, nil)
	mockDS.On("GetBankRules", mock.Anything, true).Return([]*model.BankRule{amazonRule()}, nil)
	mockDS.On("UpdateBankTransaction", mock.Anything, mock.MatchedBy(func(updated *model.BankTransaction) bool {
		return updated.Category == "Office Supplies" && updated.Status == model.StatusUnreviewed
	}), model.StatusUnreviewed).Return(nil)

	applied, err := r.ApplyRules(context.Background(), "btx_1")
	require.NoError(t, err)
	require.Len(t, applied.Entries, 1)
	assert.Equal(t, "btx_1", applied.TransactionID)
	mockDS.AssertExpectations(t)
}

func TestApplyRulesNoMatchCommitsNothing(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-1200.00", "2025-02-01", model.StatusUnreviewed)
	txn.Description = "Rent February"

	mockDS.On("GetBankTransaction", mock.Anything, "btx_1").Return(txn, nil)
	mockDS.On("GetBankRules", mock.Anything, true).Return([]*model.BankRule{amazonRule()}, nil)

	applied, err := r.ApplyRules(context.Background(), "btx_1")
	require.NoError(t, err)

	assert.Empty(t, applied.Entries)
	assert.Equal(t, model.StatusUnreviewed, applied.TransactionStatus)
	mockDS.AssertNotCalled(t, "UpdateBankTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestActiveRulesAreCached(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	mockDS.On("GetBankRules", mock.Anything, true).Return([]*model.BankRule{amazonRule()}, nil).Once()

	for i := 0; i < 3; i++ {
		rules, err := r.activeRules(context.Background())
		require.NoError(t, err)
		require.Len(t, rules, 1)
		assert.Equal(t, "rule_amazon", rules[0].RuleID)
	}
	mockDS.AssertNumberOfCalls(t, "GetBankRules", 1)
}

func TestEvaluateRulesPriorityAndStop(t *testing.T) {
	r, _, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-15.00", "2025-02-02", model.StatusUnreviewed)
	txn.Description = "UBER *TRIP"

	low := &model.BankRule{RuleID: "rule_low", Priority: 1, IsActive: true,
		Conditions: []model.Condition{{Field: model.FieldDescription, Operator: model.OperatorStartsWith, Value: "uber"}},
		Actions:    []model.Action{{Type: model.ActionCategorize, Parameters: model.ActionParameters{Category: "Rideshare"}}},
	}
	high := &model.BankRule{RuleID: "rule_high", Priority: 50, IsActive: true,
		Conditions: []model.Condition{{Field: model.FieldDescription, Operator: model.OperatorContains, Value: "trip"}},
		Actions:    []model.Action{{Type: model.ActionCategorize, Parameters: model.ActionParameters{Category: "Travel"}}},
	}
	rules := []*model.BankRule{high, low}

	updated, applied, _ := r.evaluateRules(context.Background(), txn, rules)
	assert.Equal(t, "Travel", updated.Category)
	require.Len(t, applied.Entries, 1)

	high.ContinueProcessing = true
	updated, applied, _ = r.evaluateRules(context.Background(), txn, rules)
	assert.Equal(t, "Rideshare", updated.Category)
	require.Len(t, applied.Entries, 2)
	assert.Equal(t, "rule_high", applied.Entries[0].RuleID)
	assert.Equal(t, "rule_low", applied.Entries[1].RuleID)
}

func TestEvaluateRulesSkipsInactive(t *testing.T) {
	r, _, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-15.00", "2025-02-02", model.StatusUnreviewed)
	txn.Description = "amazon"
	rule := amazonRule()
	rule.IsActive = false

	updated, applied, matched := r.evaluateRules(context.Background(), txn, []*model.BankRule{rule})
	assert.False(t, matched)
	assert.Empty(t, applied.Entries)
	assert.Equal(t, txn, updated)
}

func TestEvaluateRulesDiscardsFailedRule(t *testing.T) {
	r, _, _ := setupRecon(t)
	txn := matchedTo("ltx_1")
	txn.Description = "Monthly SaaS subscription"

	failing := &model.BankRule{RuleID: "rule_failing", Priority: 20, IsActive: true,
		Conditions: []model.Condition{{Field: model.FieldDescription, Operator: model.OperatorContains, Value: "saas"}},
		Actions: []model.Action{
			{Type: model.ActionCategorize, Parameters: model.ActionParameters{Category: "Software"}},
			{Type: model.ActionIgnore, Parameters: model.ActionParameters{Reason: "internal"}},
		},
	}
	merchant := &model.BankRule{RuleID: "rule_merchant", Priority: 10, IsActive: true,
		Conditions: []model.Condition{{Field: model.FieldDescription, Operator: model.OperatorContains, Value: "subscription"}},
		Actions:    []model.Action{{Type: model.ActionSetMerchant, Parameters: model.ActionParameters{MerchantName: "Acme SaaS"}}},
	}

	updated, applied, matched := r.evaluateRules(context.Background(), txn, []*model.BankRule{failing, merchant})

	assert.True(t, matched)
	assert.Empty(t, updated.Category, "partial changes of the failing rule are discarded")
	assert.Equal(t, "Acme SaaS", updated.MerchantName)
	assert.Equal(t, model.StatusMatched, updated.Status)
	require.Len(t, applied.Entries, 2)
	assert.NotEmpty(t, applied.Entries[0].Error)
	assert.Empty(t, applied.Entries[0].ActionsApplied)
	assert.Equal(t, []string{"set_merchant"}, applied.Entries[1].ActionsApplied)
}

func TestEvaluateRulesIgnoreAction(t *testing.T) {
	r, _, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-2.00", "2025-02-02", model.StatusUnreviewed)
	txn.Description = "ATM FEE"
	rule := &model.BankRule{RuleID: "rule_fees", IsActive: true,
		Conditions: []model.Condition{{Field: model.FieldDescription, Operator: model.OperatorEndsWith, Value: "fee"}},
		Actions:    []model.Action{{Type: model.ActionIgnore, Parameters: model.ActionParameters{Reason: "bank fee"}}},
	}

	updated, applied, _ := r.evaluateRules(context.Background(), txn, []*model.BankRule{rule})
	assert.Equal(t, model.StatusIgnored, updated.Status)
	assert.Equal(t, "bank fee", updated.IgnoreReason)
	assert.Equal(t, model.StatusIgnored, applied.TransactionStatus)
}

func TestEvaluateRulesAutoMatch(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-450.00", "2025-01-04", model.StatusUnreviewed)
	txn.Description = "Office Supplies"

	mockDS.On("FindTransactions", mock.Anything, "acc_checking", mock.Anything, mock.Anything).Return([]model.LedgerTransaction{
		ledgerTransaction("ltx_off", "-440.00", "2025-01-04", "Office Supplies"),
		ledgerTransaction("ltx_1", "-450.00", "2025-01-04", "Office Supplies Payment"),
	}, nil)

	rule := &model.BankRule{RuleID: "rule_auto", IsActive: true,
		Conditions: []model.Condition{{Field: model.FieldAmount, Operator: model.OperatorLessThan, Value: "0"}},
		Actions:    []model.Action{{Type: model.ActionAutoMatch, Parameters: model.ActionParameters{MinScore: 0.8}}},
	}

	updated, applied, _ := r.evaluateRules(context.Background(), txn, []*model.BankRule{rule})

	assert.Equal(t, model.StatusMatched, updated.Status)
	assert.Equal(t, "ltx_1", updated.MatchedLedgerID(), "the higher scoring candidate outside strict tolerance is skipped")
	assert.Equal(t, model.MatchTypeAuto, updated.MatchType)
	assert.Equal(t, []string{"auto_match"}, applied.Entries[0].ActionsApplied)
}

func TestEvaluateRulesAutoMatchWithoutCandidate(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	txn := bankTransaction("btx_1", "-450.00", "2025-01-04", model.StatusUnreviewed)
	mockDS.On("FindTransactions", mock.Anything, "acc_checking", mock.Anything, mock.Anything).Return([]model.LedgerTransaction{}, nil)

	rule := &model.BankRule{RuleID: "rule_auto", IsActive: true,
		Conditions: []model.Condition{{Field: model.FieldAccountID, Operator: model.OperatorEquals, Value: "acc_checking"}},
		Actions:    []model.Action{{Type: model.ActionAutoMatch}},
	}

	updated, applied, matched := r.evaluateRules(context.Background(), txn, []*model.BankRule{rule})
	assert.True(t, matched)
	assert.Equal(t, model.StatusUnreviewed, updated.Status)
	assert.Empty(t, applied.Entries[0].ActionsApplied)
	assert.Empty(t, applied.Entries[0].Error)
}

func TestConditionOperators(t *testing.T) {
	txn := &model.BankTransaction{
		Description:     "AMAZON Marketplace",
		MerchantName:    "Amazon",
		TransactionType: "debit",
		Amount:          decimal.RequireFromString("-45.10"),
	}

	tests := []struct {
		name      string
		condition model.Condition
		want      bool
	}{
		{"contains ignores case", model.Condition{Field: "description", Operator: "contains", Value: "marketplace"}, true},
		{"contains case sensitive", model.Condition{Field: "description", Operator: "contains", Value: "marketplace", CaseSensitive: true}, false},
		{"equals", model.Condition{Field: "merchant_name", Operator: "equals", Value: "amazon"}, true},
		{"starts with", model.Condition{Field: "description", Operator: "starts_with", Value: "amazon"}, true},
		{"ends with", model.Condition{Field: "transaction_type", Operator: "ends_with", Value: "bit"}, true},
		{"greater than", model.Condition{Field: "amount", Operator: "greater_than", Value: "-50"}, true},
		{"less than", model.Condition{Field: "amount", Operator: "less_than", Value: "-50"}, false},
		{"greater equal", model.Condition{Field: "amount", Operator: "greater_equal", Value: "-45.1"}, true},
		{"less equal", model.Condition{Field: "amount", Operator: "less_equal", Value: "-45.10"}, true},
		{"amount equals numerically", model.Condition{Field: "amount", Operator: "equals", Value: "-45.1"}, true},
		{"regex", model.Condition{Field: "description", Operator: "regex", Value: "^amazon\\s+mark"}, true},
		{"regex case sensitive", model.Condition{Field: "description", Operator: "regex", Value: "^amazon", CaseSensitive: true}, false},
		{"unknown field", model.Condition{Field: "memo", Operator: "contains", Value: "a"}, false},
		{"numeric operator on text", model.Condition{Field: "description", Operator: "greater_than", Value: "10"}, false},
		{"empty field", model.Condition{Field: "category", Operator: "contains", Value: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := compileCondition("rule_test", tt.condition)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.eval(txn))
		})
	}
}

func TestCompileRuleWithBadConditionNeverMatches(t *testing.T) {
	rule := &model.BankRule{RuleID: "rule_bad", IsActive: true,
		Conditions: []model.Condition{{Field: "description", Operator: "regex", Value: "(unclosed"}},
		Actions:    []model.Action{{Type: model.ActionCategorize, Parameters: model.ActionParameters{Category: "x"}}},
	}
	compiled := compileRule(rule)
	assert.False(t, compiled.matches(&model.BankTransaction{Description: "(unclosed"}))

	rule.Conditions[0].Operator = "greater_than"
	rule.Conditions[0].Value = "ten"
	assert.False(t, compileRule(rule).matches(&model.BankTransaction{Description: "x"}))
}

func TestCreateBankRule(t *testing.T) {
	r, mockDS, mr := setupRecon(t)
	ctx := context.Background()
	require.NoError(t, r.rules.Set(ctx, activeRulesCacheKey, []*model.BankRule{}, 0))
	require.True(t, mr.Exists(activeRulesCacheKey))

	mockDS.On("CreateBankRule", mock.Anything, mock.AnythingOfType("*model.BankRule")).Return(nil)

	rule := *amazonRule()
	rule.RuleID = ""
	rule.Description = gofakeit.Sentence(6)
	created, err := r.CreateBankRule(ctx, rule)
	require.NoError(t, err)

	assert.Contains(t, created.RuleID, "rule_")
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, mr.Exists(activeRulesCacheKey), "active rules cache is invalidated")
	mockDS.AssertExpectations(t)
}

func TestCreateBankRuleValidation(t *testing.T) {
	r, mockDS, _ := setupRecon(t)

	rule := *amazonRule()
	rule.Conditions[0].Operator = "sounds_like"
	_, err := r.CreateBankRule(context.Background(), rule)
	assert.True(t, apierror.IsInvalidInput(err))

	rule = *amazonRule()
	rule.Actions = nil
	_, err = r.CreateBankRule(context.Background(), rule)
	assert.True(t, apierror.IsInvalidInput(err))

	mockDS.AssertNotCalled(t, "CreateBankRule", mock.Anything, mock.Anything)
}

func TestUpdateBankRule(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	existing := amazonRule()
	existing.ID = 7
	existing.CreatedAt = date("2025-01-01")

	mockDS.On("GetBankRule", mock.Anything, "rule_amazon").Return(existing, nil)
	mockDS.On("UpdateBankRule", mock.Anything, mock.MatchedBy(func(rule *model.BankRule) bool {
		return rule.Priority == 99 && rule.CreatedAt.Equal(date("2025-01-01")) && rule.ID == 7
	})).Return(nil)

	update := *amazonRule()
	update.Priority = 99
	updated, err := r.UpdateBankRule(context.Background(), update)
	require.NoError(t, err)
	assert.Equal(t, 99, updated.Priority)
	mockDS.AssertExpectations(t)
}

func TestUpdateBankRuleNotFound(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	mockDS.On("GetBankRule", mock.Anything, "rule_amazon").Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "not found", nil))

	_, err := r.UpdateBankRule(context.Background(), *amazonRule())
	assert.True(t, apierror.IsNotFound(err))
}

func TestListAndDeleteBankRules(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	first := amazonRule()
	second := amazonRule()
	second.RuleID = "rule_urgent"
	second.Priority = 100

	mockDS.On("GetBankRules", mock.Anything, false).Return([]*model.BankRule{first, second}, nil)
	mockDS.On("DeleteBankRule", mock.Anything, "rule_amazon").Return(nil)

	rules, err := r.ListBankRules(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "rule_urgent", rules[0].RuleID)

	assert.NoError(t, r.DeleteBankRule(context.Background(), "rule_amazon"))
	mockDS.AssertExpectations(t)
}

func TestApplyRulesByStatus(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	amazon := bankTransaction("btx_amazon", "-23.99", "2025-02-02", model.StatusUnreviewed)
	amazon.Description = "AMAZON MKTPLACE PMTS"
	other := bankTransaction("btx_other", "-5.00", "2025-02-03", model.StatusUnreviewed)
	other.Description = "CORNER DELI 0042"
	gone := bankTransaction("btx_gone", "-9.00", "2025-02-04", model.StatusUnreviewed)

	mockDS.On("GetBankTransactionsByStatus", mock.Anything, model.StatusUnreviewed, rulesBatchPageSize, 0).
		Return([]*model.BankTransaction{amazon, other, gone}, nil).Once()
	mockDS.On("GetBankRules", mock.Anything, true).Return([]*model.BankRule{amazonRule()}, nil)
	mockDS.On("GetBankTransaction", mock.Anything, "btx_amazon").Return(amazon, nil)
	mockDS.On("GetBankTransaction", mock.Anything, "btx_other").Return(other, nil)
	mockDS.On("GetBankTransaction", mock.Anything, "btx_gone").
		Return(nil, apierror.NewAPIError(apierror.ErrNotFound, "Bank transaction not found", nil))
	mockDS.On("UpdateBankTransaction", mock.Anything, mock.MatchedBy(func(updated *model.BankTransaction) bool {
		return updated.TransactionID == "btx_amazon" && updated.Category == "Office Supplies"
	}), model.StatusUnreviewed).Return(nil).Once()

	result, err := r.ApplyRulesByStatus(context.Background(), model.StatusUnreviewed)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "btx_gone", result.Errors[0].TransactionID)
	require.Len(t, result.Applied, 1)
	assert.Equal(t, "btx_amazon", result.Applied[0].TransactionID)
	mockDS.AssertExpectations(t)
}

func TestApplyRulesByStatusPages(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	full := make([]*model.BankTransaction, rulesBatchPageSize)
	for i := range full {
		full[i] = bankTransaction(gofakeit.UUID(), "-1.00", "2025-02-02", model.StatusUnreviewed)
	}

	mockDS.On("GetBankTransactionsByStatus", mock.Anything, model.StatusUnreviewed, rulesBatchPageSize, 0).Return(full, nil).Once()
	mockDS.On("GetBankTransactionsByStatus", mock.Anything, model.StatusUnreviewed, rulesBatchPageSize, rulesBatchPageSize).
		Return([]*model.BankTransaction{}, nil).Once()
	mockDS.On("GetBankRules", mock.Anything, true).Return([]*model.BankRule{}, nil)
	for _, txn := range full {
		mockDS.On("GetBankTransaction", mock.Anything, txn.TransactionID).Return(txn, nil)
	}

	result, err := r.ApplyRulesByStatus(context.Background(), model.StatusUnreviewed)
	require.NoError(t, err)
	assert.Equal(t, rulesBatchPageSize, result.Processed)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Applied)
	mockDS.AssertNotCalled(t, "UpdateBankTransaction", mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyRulesByStatusRejectsUnknownStatus(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	_, err := r.ApplyRulesByStatus(context.Background(), model.BankTransactionStatus("archived"))
	assert.True(t, apierror.IsInvalidInput(err))
	mockDS.AssertNotCalled(t, "GetBankTransactionsByStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
