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
	"math"
	"time"

	"github.com/blnkfinance/recon/model"
	"github.com/shopspring/decimal"
)

const (
	amountWeight = 0.4
	dateWeight   = 0.3
	textWeight   = 0.3

	// CandidateThreshold is the score a ledger transaction must exceed to be proposed.
	CandidateThreshold = 0.5

	dateHorizonDays       = 10
	closeDateDays         = 2
	similarAmountFraction = 0.05
	similarTextThreshold  = 0.7
)

const (
	ReasonExactAmount        = "exact amount match"
	ReasonSimilarAmount      = "similar amount"
	ReasonSameDate           = "same date"
	ReasonCloseDate          = "close date"
	ReasonSimilarDescription = "similar description"
)

// amountScore is 1 - |b-l| / max(|b|,|l|), clamped at 0. Differences within a cent score 1.
func amountScore(bank, ledger decimal.Decimal) float64 {
	delta := bank.Sub(ledger).Abs()
	if delta.LessThanOrEqual(model.Cent) {
		return 1
	}
	denominator := decimal.Max(bank.Abs(), ledger.Abs())
	ratio, _ := delta.Div(denominator).Float64()
	return math.Max(0, 1-ratio)
}

// civilDay strips the clock so two timestamps on the same calendar day compare equal.
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween is the absolute number of whole calendar days between a and b.
func daysBetween(a, b time.Time) int {
	days := int(civilDay(a).Sub(civilDay(b)).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func dateScore(days int) float64 {
	return math.Max(0, 1-float64(days)/dateHorizonDays)
}

// Score rates how likely a ledger transaction is the counterpart of a bank transaction.
// The result is in [0,1] with human readable reasons for the strongest signals.
func Score(bank *model.BankTransaction, ledger model.LedgerTransaction) (float64, []string) {
	reasons := []string{}

	aScore := amountScore(bank.Amount, ledger.Amount)
	delta := bank.Amount.Sub(ledger.Amount).Abs()
	if delta.LessThan(model.Cent) {
		reasons = append(reasons, ReasonExactAmount)
	} else if delta.LessThan(bank.Amount.Abs().Mul(decimal.NewFromFloat(similarAmountFraction))) {
		reasons = append(reasons, ReasonSimilarAmount)
	}

	days := daysBetween(bank.TransactionDate, ledger.Date)
	dScore := dateScore(days)
	if days == 0 {
		reasons = append(reasons, ReasonSameDate)
	} else if days <= closeDateDays {
		reasons = append(reasons, ReasonCloseDate)
	}

	tScore := TextSimilarity(bank.Description, ledger.Memo)
	if tScore > similarTextThreshold {
		reasons = append(reasons, ReasonSimilarDescription)
	}

	total := amountWeight*aScore + dateWeight*dScore + textWeight*tScore
	return math.Min(1, total), reasons
}
