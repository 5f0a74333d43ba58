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
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

func fieldValues() []interface{} {
	values := make([]interface{}, len(ConditionFields))
	for i, f := range ConditionFields {
		values[i] = f
	}
	return values
}

func operatorValues() []interface{} {
	values := make([]interface{}, len(Operators))
	for i, o := range Operators {
		values[i] = o
	}
	return values
}

func actionValues() []interface{} {
	values := make([]interface{}, len(ActionTypes))
	for i, a := range ActionTypes {
		values[i] = a
	}
	return values
}

func nonNegative(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return errors.New("invalid amount type")
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

// ValidateBankRule checks a rule at authoring time so evaluation never sees a malformed rule.
func (r *BankRule) ValidateBankRule() error {
	err := validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Conditions, validation.Required),
		validation.Field(&r.Actions, validation.Required),
	)
	if err != nil {
		return err
	}

	for i := range r.Conditions {
		if err := r.Conditions[i].ValidateCondition(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	for i := range r.Actions {
		if err := r.Actions[i].ValidateAction(); err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
	}
	return nil
}

func (c *Condition) ValidateCondition() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Field, validation.Required, validation.In(fieldValues()...)),
		validation.Field(&c.Operator, validation.Required, validation.In(operatorValues()...)),
		validation.Field(&c.Value, validation.Required,
			validation.When(c.Operator.IsNumeric(), validation.By(func(value interface{}) error {
				if _, err := decimal.NewFromString(c.Value); err != nil {
					return errors.New("numeric operators need a numeric value")
				}
				return nil
			})),
			validation.When(c.Operator == OperatorRegex, validation.By(func(value interface{}) error {
				if _, err := regexp.Compile(c.Value); err != nil {
					return fmt.Errorf("invalid pattern: %v", err)
				}
				return nil
			})),
		),
	)
}

func (a *Action) ValidateAction() error {
	p := &a.Parameters
	err := validation.ValidateStruct(a,
		validation.Field(&a.Type, validation.Required, validation.In(actionValues()...)),
	)
	if err != nil {
		return err
	}
	return validation.ValidateStruct(p,
		validation.Field(&p.Category, validation.When(a.Type == ActionCategorize, validation.Required)),
		validation.Field(&p.MerchantName, validation.When(a.Type == ActionSetMerchant, validation.Required)),
		validation.Field(&p.WindowDays, validation.Min(0), validation.Max(90)),
		validation.Field(&p.AmountTolerance, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&p.MinScore, validation.Min(0.0), validation.Max(1.0)),
	)
}

// ValidateBankReconciliation checks the statement figures supplied when a reconciliation starts.
func (r *BankReconciliation) ValidateBankReconciliation() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.AccountID, validation.Required),
		validation.Field(&r.StatementDate, validation.Required),
		validation.Field(&r.ServiceCharge, validation.By(nonNegative)),
		validation.Field(&r.InterestEarned, validation.By(nonNegative)),
	)
}

// ValidateBankTransaction checks a transaction read from a bank feed.
func (t *BankTransaction) ValidateBankTransaction() error {
	return validation.ValidateStruct(t,
		validation.Field(&t.TransactionID, validation.Required),
		validation.Field(&t.ConnectionID, validation.Required),
		validation.Field(&t.AccountID, validation.Required),
		validation.Field(&t.TransactionDate, validation.Required),
		validation.Field(&t.Status, validation.By(func(value interface{}) error {
			if t.Status != "" && !t.Status.Valid() {
				return fmt.Errorf("unknown status %q", t.Status)
			}
			return nil
		})),
	)
}
