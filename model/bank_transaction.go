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
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// BankTransactionStatus is the review state of an imported bank transaction.
type BankTransactionStatus string

const (
	StatusUnreviewed BankTransactionStatus = "unreviewed"
	StatusMatched    BankTransactionStatus = "matched"
	StatusIgnored    BankTransactionStatus = "ignored"
	StatusPending    BankTransactionStatus = "pending"
	StatusCleared    BankTransactionStatus = "cleared"
)

// MatchType records how a bank transaction was matched.
type MatchType string

const (
	MatchTypeManual MatchType = "manual"
	MatchTypeAuto   MatchType = "auto"
)

// BankTransaction is a record imported from an external bank feed.
type BankTransaction struct {
	ID                         int64                 `json:"-"`
	TransactionID              string                `json:"transaction_id"`
	ConnectionID               string                `json:"connection_id"`
	AccountID                  string                `json:"account_id"`
	TransactionDate            time.Time             `json:"transaction_date"`
	PostedDate                 *time.Time            `json:"posted_date,omitempty"`
	Amount                     decimal.Decimal       `json:"amount"`
	TransactionType            string                `json:"transaction_type"`
	Description                string                `json:"description"`
	MerchantName               string                `json:"merchant_name"`
	Category                   string                `json:"category"`
	Pending                    bool                  `json:"pending"`
	Status                     BankTransactionStatus `json:"status"`
	MatchedLedgerTransactionID *string               `json:"matched_ledger_transaction_id"`
	MatchType                  MatchType             `json:"match_type,omitempty"`
	MatchedAt                  *time.Time            `json:"matched_at,omitempty"`
	IgnoreReason               string                `json:"ignore_reason,omitempty"`
	CreatedAt                  time.Time             `json:"created_at"`
	UpdatedAt                  time.Time             `json:"updated_at"`
}

// ToJSON serializes the bank transaction.
func (txn *BankTransaction) ToJSON() ([]byte, error) {
	return json.Marshal(txn)
}

// Clone returns a deep copy so rule actions can be staged without touching the original.
func (txn *BankTransaction) Clone() *BankTransaction {
	c := *txn
	if txn.MatchedLedgerTransactionID != nil {
		id := *txn.MatchedLedgerTransactionID
		c.MatchedLedgerTransactionID = &id
	}
	if txn.MatchedAt != nil {
		at := *txn.MatchedAt
		c.MatchedAt = &at
	}
	if txn.PostedDate != nil {
		pd := *txn.PostedDate
		c.PostedDate = &pd
	}
	return &c
}

// MatchedLedgerID returns the matched ledger transaction id or an empty string.
func (txn *BankTransaction) MatchedLedgerID() string {
	if txn.MatchedLedgerTransactionID == nil {
		return ""
	}
	return *txn.MatchedLedgerTransactionID
}

// IsConsistent checks that a matched ledger id is present if and only if the status is matched.
func (txn *BankTransaction) IsConsistent() bool {
	return (txn.MatchedLedgerTransactionID != nil) == (txn.Status == StatusMatched)
}

// bankTransactionTransitions lists the allowed status moves.
// ignored and cleared have no outgoing edges here; reopening them is handled outside this engine.
var bankTransactionTransitions = map[BankTransactionStatus][]BankTransactionStatus{
	StatusUnreviewed: {StatusMatched, StatusIgnored, StatusPending, StatusCleared},
	StatusPending:    {StatusMatched, StatusIgnored, StatusUnreviewed, StatusCleared},
	StatusMatched:    {StatusUnreviewed},
}

// CanTransition reports whether a bank transaction may move from one status to another.
func (s BankTransactionStatus) CanTransition(to BankTransactionStatus) bool {
	for _, next := range bankTransactionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Valid reports whether s is one of the known statuses.
func (s BankTransactionStatus) Valid() bool {
	switch s {
	case StatusUnreviewed, StatusMatched, StatusIgnored, StatusPending, StatusCleared:
		return true
	}
	return false
}
