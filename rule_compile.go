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
	"fmt"
	"regexp"
	"strings"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// predicate is a compiled rule condition.
type predicate interface {
	eval(txn *model.BankTransaction) bool
}

// action is a compiled rule action. It mutates the staged transaction and
// reports whether it changed anything.
type action interface {
	name() string
	apply(ctx context.Context, r *Recon, txn *model.BankTransaction) (bool, error)
}

// compiledRule is a rule whose conditions and actions have been turned into variants.
type compiledRule struct {
	rule       *model.BankRule
	predicates []predicate
	actions    []action
}

func (c *compiledRule) matches(txn *model.BankTransaction) bool {
	for _, p := range c.predicates {
		if !p.eval(txn) {
			return false
		}
	}
	return true
}

// fieldValue reads a condition field from the transaction.
func fieldValue(txn *model.BankTransaction, field string) (string, bool) {
	switch field {
	case model.FieldDescription:
		return txn.Description, true
	case model.FieldMerchantName:
		return txn.MerchantName, true
	case model.FieldCategory:
		return txn.Category, true
	case model.FieldTransactionType:
		return txn.TransactionType, true
	case model.FieldAmount:
		return txn.Amount.String(), true
	case model.FieldConnectionID:
		return txn.ConnectionID, true
	case model.FieldAccountID:
		return txn.AccountID, true
	}
	return "", false
}

func warnCondition(ruleID, field string, format string, args ...interface{}) {
	logrus.WithFields(logrus.Fields{"rule_id": ruleID, "field": field}).Warnf(format, args...)
}

type stringPredicate struct {
	ruleID        string
	field         string
	op            model.Operator
	value         string
	caseSensitive bool
}

func (p stringPredicate) eval(txn *model.BankTransaction) bool {
	actual, ok := fieldValue(txn, p.field)
	if !ok {
		warnCondition(p.ruleID, p.field, "unknown condition field")
		return false
	}
	expected := p.value
	if !p.caseSensitive {
		actual = strings.ToLower(actual)
		expected = strings.ToLower(expected)
	}

	switch p.op {
	case model.OperatorContains:
		return strings.Contains(actual, expected)
	case model.OperatorEquals:
		return actual == expected
	case model.OperatorStartsWith:
		return strings.HasPrefix(actual, expected)
	case model.OperatorEndsWith:
		return strings.HasSuffix(actual, expected)
	}
	warnCondition(p.ruleID, p.field, "operator %s is not a string operator", p.op)
	return false
}

type numericPredicate struct {
	ruleID string
	field  string
	op     model.Operator
	value  decimal.Decimal
}

func (p numericPredicate) eval(txn *model.BankTransaction) bool {
	raw, ok := fieldValue(txn, p.field)
	if !ok {
		warnCondition(p.ruleID, p.field, "unknown condition field")
		return false
	}
	actual, err := decimal.NewFromString(raw)
	if err != nil {
		warnCondition(p.ruleID, p.field, "value %q is not numeric", raw)
		return false
	}

	switch p.op {
	case model.OperatorEquals:
		return actual.Equal(p.value)
	case model.OperatorGreaterThan:
		return actual.GreaterThan(p.value)
	case model.OperatorLessThan:
		return actual.LessThan(p.value)
	case model.OperatorGreaterEqual:
		return actual.GreaterThanOrEqual(p.value)
	case model.OperatorLessEqual:
		return actual.LessThanOrEqual(p.value)
	}
	warnCondition(p.ruleID, p.field, "operator %s is not a numeric operator", p.op)
	return false
}

type regexPredicate struct {
	ruleID string
	field  string
	re     *regexp.Regexp
}

func (p regexPredicate) eval(txn *model.BankTransaction) bool {
	actual, ok := fieldValue(txn, p.field)
	if !ok {
		warnCondition(p.ruleID, p.field, "unknown condition field")
		return false
	}
	return p.re.MatchString(actual)
}

// failedPredicate stands in for a condition that could not be compiled.
type failedPredicate struct{}

func (failedPredicate) eval(*model.BankTransaction) bool { return false }

func compileCondition(ruleID string, c model.Condition) (predicate, error) {
	switch {
	case c.Operator == model.OperatorRegex:
		pattern := c.Value
		if !c.CaseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", c.Value, err)
		}
		return regexPredicate{ruleID: ruleID, field: c.Field, re: re}, nil
	case c.Operator.IsNumeric(), c.Operator == model.OperatorEquals && c.Field == model.FieldAmount:
		value, err := decimal.NewFromString(c.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value %q: %w", c.Value, err)
		}
		return numericPredicate{ruleID: ruleID, field: c.Field, op: c.Operator, value: value}, nil
	default:
		return stringPredicate{ruleID: ruleID, field: c.Field, op: c.Operator, value: c.Value, caseSensitive: c.CaseSensitive}, nil
	}
}

type categorizeAction struct {
	category string
}

func (a categorizeAction) name() string { return string(model.ActionCategorize) }

func (a categorizeAction) apply(_ context.Context, _ *Recon, txn *model.BankTransaction) (bool, error) {
	txn.Category = a.category
	return true, nil
}

type setMerchantAction struct {
	merchantName string
}

func (a setMerchantAction) name() string { return string(model.ActionSetMerchant) }

func (a setMerchantAction) apply(_ context.Context, _ *Recon, txn *model.BankTransaction) (bool, error) {
	txn.MerchantName = a.merchantName
	return true, nil
}

type ignoreAction struct {
	reason string
}

func (a ignoreAction) name() string { return string(model.ActionIgnore) }

func (a ignoreAction) apply(_ context.Context, _ *Recon, txn *model.BankTransaction) (bool, error) {
	if _, err := applyIgnore(txn, a.reason); err != nil {
		return false, err
	}
	return true, nil
}

// autoMatchAction matches the transaction to the best candidate scoring at least minScore.
// Zero parameters fall back to the configured matching defaults.
type autoMatchAction struct {
	windowDays int
	tolerance  float64
	minScore   float64
}

func (a autoMatchAction) name() string { return string(model.ActionAutoMatch) }

func (a autoMatchAction) apply(ctx context.Context, r *Recon, txn *model.BankTransaction) (bool, error) {
	if txn.Status == model.StatusMatched {
		return false, nil
	}
	if !txn.Status.CanTransition(model.StatusMatched) {
		return false, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("bank transaction %s is %s and cannot be matched", txn.TransactionID, txn.Status), nil)
	}

	criteria := r.defaultCriteria(0)
	if a.windowDays > 0 {
		criteria.windowDays = a.windowDays
	}
	if a.tolerance > 0 {
		criteria.tolerance = a.tolerance
	}
	minScore := r.config.Matching.AutoMatchMinScore
	if a.minScore > 0 {
		minScore = a.minScore
	}

	candidates, err := r.findCandidates(ctx, txn, criteria)
	if err != nil {
		return false, err
	}
	for _, c := range candidates {
		if c.Score < minScore {
			break
		}
		ledgerTxn := c.ledger
		if _, err := applyMatch(txn, &ledgerTxn, model.MatchTypeAuto, r.config.Matching.StrictAmountTolerance); err != nil {
			logrus.WithFields(logrus.Fields{
				"transaction_id": txn.TransactionID,
				"candidate":      c.TransactionID,
			}).Debugf("skipping auto match candidate: %v", err)
			continue
		}
		return true, nil
	}
	return false, nil
}

func compileAction(a model.Action) (action, error) {
	switch a.Type {
	case model.ActionCategorize:
		return categorizeAction{category: a.Parameters.Category}, nil
	case model.ActionSetMerchant:
		return setMerchantAction{merchantName: a.Parameters.MerchantName}, nil
	case model.ActionIgnore:
		return ignoreAction{reason: a.Parameters.Reason}, nil
	case model.ActionAutoMatch:
		return autoMatchAction{
			windowDays: a.Parameters.WindowDays,
			tolerance:  a.Parameters.AmountTolerance,
			minScore:   a.Parameters.MinScore,
		}, nil
	}
	return nil, fmt.Errorf("unknown action type %q", a.Type)
}

// compileRule turns a stored rule into predicates and actions. A rule that does
// not compile never matches.
func compileRule(rule *model.BankRule) *compiledRule {
	compiled := &compiledRule{rule: rule}
	for _, c := range rule.Conditions {
		p, err := compileCondition(rule.RuleID, c)
		if err != nil {
			warnCondition(rule.RuleID, c.Field, "condition does not compile: %v", err)
			return &compiledRule{rule: rule, predicates: []predicate{failedPredicate{}}}
		}
		compiled.predicates = append(compiled.predicates, p)
	}
	for _, a := range rule.Actions {
		act, err := compileAction(a)
		if err != nil {
			logrus.WithField("rule_id", rule.RuleID).Warnf("action does not compile: %v", err)
			return &compiledRule{rule: rule, predicates: []predicate{failedPredicate{}}}
		}
		compiled.actions = append(compiled.actions, act)
	}
	return compiled
}
