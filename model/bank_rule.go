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

package model

import (
	"sort"
	"time"
)

// Operator is a comparison applied by a rule condition.
type Operator string

const (
	OperatorContains     Operator = "contains"
	OperatorEquals       Operator = "equals"
	OperatorStartsWith   Operator = "starts_with"
	OperatorEndsWith     Operator = "ends_with"
	OperatorGreaterThan  Operator = "greater_than"
	OperatorLessThan     Operator = "less_than"
	OperatorGreaterEqual Operator = "greater_equal"
	OperatorLessEqual    Operator = "less_equal"
	OperatorRegex        Operator = "regex"
)

// Operators lists every supported condition operator.
var Operators = []Operator{
	OperatorContains, OperatorEquals, OperatorStartsWith, OperatorEndsWith,
	OperatorGreaterThan, OperatorLessThan, OperatorGreaterEqual, OperatorLessEqual,
	OperatorRegex,
}

// IsNumeric reports whether the operator compares values as numbers.
func (o Operator) IsNumeric() bool {
	switch o {
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterEqual, OperatorLessEqual:
		return true
	}
	return false
}

// Condition fields a rule may reference.
const (
	FieldDescription     = "description"
	FieldMerchantName    = "merchant_name"
	FieldCategory        = "category"
	FieldTransactionType = "transaction_type"
	FieldAmount          = "amount"
	FieldConnectionID    = "connection_id"
	FieldAccountID       = "account_id"
)

// ConditionFields lists every field a condition can reference.
var ConditionFields = []string{
	FieldDescription, FieldMerchantName, FieldCategory, FieldTransactionType,
	FieldAmount, FieldConnectionID, FieldAccountID,
}

// ActionType is the kind of change a rule applies.
type ActionType string

const (
	ActionCategorize  ActionType = "categorize"
	ActionSetMerchant ActionType = "set_merchant"
	ActionIgnore      ActionType = "ignore"
	ActionAutoMatch   ActionType = "auto_match"
)

// ActionTypes lists every supported action.
var ActionTypes = []ActionType{ActionCategorize, ActionSetMerchant, ActionIgnore, ActionAutoMatch}

// Condition is a single field/operator/value test. All conditions of a rule must hold.
type Condition struct {
	Field         string   `json:"field"`
	Operator      Operator `json:"operator"`
	Value         string   `json:"value"`
	CaseSensitive bool     `json:"case_sensitive"`
}

// ActionParameters carries the typed parameters of every action kind.
// Only the fields belonging to the action's type are read.
type ActionParameters struct {
	Category        string  `json:"category,omitempty"`
	MerchantName    string  `json:"merchant_name,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	WindowDays      int     `json:"window_days,omitempty"`
	AmountTolerance float64 `json:"amount_tolerance,omitempty"`
	MinScore        float64 `json:"min_score,omitempty"`
}

type Action struct {
	Type       ActionType       `json:"action_type"`
	Parameters ActionParameters `json:"parameters"`
}

// BankRule is a user-authored condition/action rule evaluated against bank transactions.
type BankRule struct {
	ID                 int64       `json:"-"`
	RuleID             string      `json:"rule_id"`
	Name               string      `json:"name"`
	Description        string      `json:"description"`
	Priority           int         `json:"priority"`
	IsActive           bool        `json:"is_active"`
	Conditions         []Condition `json:"conditions"`
	Actions            []Action    `json:"actions"`
	ContinueProcessing bool        `json:"continue_processing"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// SortRulesByPriority orders rules highest priority first; equal priorities keep rule id order.
func SortRulesByPriority(rules []*BankRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].RuleID < rules[j].RuleID
	})
}

// AppliedRule records what a matching rule did to a transaction.
type AppliedRule struct {
	RuleID         string   `json:"rule_id"`
	ActionsApplied []string `json:"actions_applied"`
	Error          string   `json:"error,omitempty"`
}

// AppliedRules is the outcome of running the rule chain on one transaction.
type AppliedRules struct {
	TransactionID     string                `json:"transaction_id"`
	Entries           []AppliedRule         `json:"applied_rules"`
	TransactionStatus BankTransactionStatus `json:"transaction_status"`
}
