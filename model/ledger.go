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
	"time"

	"github.com/shopspring/decimal"
)

// LedgerTransaction is an internal accounting transaction (invoice, bill, payment).
// It is owned by the ledger and read-only to this engine.
type LedgerTransaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Memo          string          `json:"memo"`
}

// DateRange is an inclusive range of dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// AmountRange is an inclusive range of signed amounts.
type AmountRange struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Contains reports whether amount falls inside the range.
func (r AmountRange) Contains(amount decimal.Decimal) bool {
	return compare(amount, ">=", r.Min) && compare(amount, "<=", r.Max)
}

// Candidate is a scored ledger transaction proposed for a bank transaction.
type Candidate struct {
	TransactionID string   `json:"transaction_id"`
	Score         float64  `json:"score"`
	Reasons       []string `json:"reasons"`
}

// MatchResult is returned by the match, unmatch and ignore operations.
type MatchResult struct {
	Success              bool   `json:"success"`
	Message              string `json:"message"`
	MatchedTransactionID string `json:"matched_transaction_id,omitempty"`
}
