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
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cent is the smallest meaningful difference between two amounts.
var Cent = decimal.RequireFromString("0.01")

// GenerateUUIDWithSuffix generates a UUID with a given module name as a suffix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// compare compares two decimal values based on the provided condition (e.g., >, <, ==).
// Returns true if the condition holds, otherwise false.
func compare(value decimal.Decimal, condition string, compareTo decimal.Decimal) bool {
	cmp := value.Cmp(compareTo)
	switch condition {
	case ">":
		return cmp > 0
	case "<":
		return cmp < 0
	case ">=":
		return cmp >= 0
	case "<=":
		return cmp <= 0
	case "!=":
		return cmp != 0
	case "==":
		return cmp == 0
	}
	return false
}

// WithinTolerance reports whether other lies within a relative tolerance of base.
// The tolerance is a fraction (0.01 == 1%) of |base|; a zero base only accepts an equal amount.
func WithinTolerance(base, other decimal.Decimal, tolerance float64) bool {
	return ToleranceRange(base, tolerance).Contains(other)
}

// ToleranceRange returns the inclusive [min, max] amount range around base for a relative tolerance.
func ToleranceRange(base decimal.Decimal, tolerance float64) AmountRange {
	delta := base.Abs().Mul(decimal.NewFromFloat(tolerance))
	return AmountRange{Min: base.Sub(delta), Max: base.Add(delta)}
}

// IsBalanced reports whether a difference is below one cent in magnitude.
func IsBalanced(difference decimal.Decimal) bool {
	return compare(difference.Abs(), "<", Cent)
}
