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
	"strings"
	"testing"

	"github.com/blnkfinance/recon/internal/apierror"
	"github.com/blnkfinance/recon/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const feedCSV = `transaction_id,date,posted_date,amount,type,description,merchant_name,category,pending
btx_100,2025-01-04,2025-01-05,-450.00,debit,Office Supplies,Staples,,false
btx_101,2025-01-06,,1250.00,credit,Customer payment INV-1042,,,
btx_102,2025-01-07T10:15:00Z,,-12.50,debit,Card fee,,Fees,true
`

const feedJSON = `[
  {"transaction_id": "btx_200", "transaction_date": "2025-01-04T00:00:00Z", "amount": "-450.00", "description": "Office Supplies"},
  {"transaction_id": "btx_201", "account_id": "acc_savings", "transaction_date": "2025-01-06T00:00:00Z", "amount": "20", "pending": true}
]`

func TestDetectFileType(t *testing.T) {
	assert.Equal(t, mimeCSV, detectFileType([]byte(feedCSV), "january.csv"))
	assert.Equal(t, mimeJSON, detectFileType([]byte(feedJSON), "january.json"))
	assert.Equal(t, mimeCSV, detectFileType([]byte(feedCSV), "export"))
	assert.Equal(t, mimeJSON, detectFileType([]byte(feedJSON), "export.txt"))
	assert.True(t, looksLikeCSV([]byte("a,b\n1,2\n")))
	assert.False(t, looksLikeCSV([]byte("a,b\n1,2,3\n")))
	assert.False(t, looksLikeCSV([]byte("single line")))
}

func TestParseBankFeedCSV(t *testing.T) {
	txns, err := ParseBankFeed("conn_plaid", "acc_checking", strings.NewReader(feedCSV), "january.csv")
	require.NoError(t, err)
	require.Len(t, txns, 3)

	first := txns[0]
	assert.Equal(t, "btx_100", first.TransactionID)
	assert.Equal(t, "conn_plaid", first.ConnectionID)
	assert.Equal(t, "acc_checking", first.AccountID)
	assert.Equal(t, "-450", first.Amount.String())
	assert.Equal(t, date("2025-01-04"), first.TransactionDate)
	require.NotNil(t, first.PostedDate)
	assert.Equal(t, date("2025-01-05"), *first.PostedDate)
	assert.Equal(t, "Staples", first.MerchantName)
	assert.False(t, first.Pending)

	assert.Nil(t, txns[1].PostedDate)
	assert.Equal(t, "credit", txns[1].TransactionType)
	assert.True(t, txns[2].Pending)
	assert.Equal(t, "Fees", txns[2].Category)
}

func TestParseBankFeedJSON(t *testing.T) {
	txns, err := ParseBankFeed("conn_plaid", "acc_checking", strings.NewReader(feedJSON), "january.json")
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "acc_checking", txns[0].AccountID)
	assert.Equal(t, "acc_savings", txns[1].AccountID, "feed values win over defaults")
	assert.Equal(t, "conn_plaid", txns[1].ConnectionID)
	assert.True(t, txns[1].Pending)
}

func TestParseBankFeedMalformed(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		filename string
		contains string
	}{
		{"bad amount", "transaction_id,date,amount\nbtx_1,2025-01-04,twelve\n", "feed.csv", "row 2"},
		{"bad date", "transaction_id,date,amount\nbtx_1,04 Jan,1.00\n", "feed.csv", "invalid date"},
		{"missing column", "transaction_id,amount\nbtx_1,1.00\n", "feed.csv", "required column 'date'"},
		{"empty id", "transaction_id,date,amount\n,2025-01-04,1.00\n", "feed.csv", "transaction_id is empty"},
		{"bad json", `[{"transaction_id": "btx_1", "amount": "abc"}]`, "feed.json", "error decoding JSON feed"},
		{"unsupported", "\x89PNG\r\n\x1a\n", "logo.png", "unsupported bank feed type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBankFeed("conn", "acc", strings.NewReader(tt.content), tt.filename)
			require.Error(t, err)
			assert.True(t, apierror.IsInvalidInput(err))
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestUploadBankFeed(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	mockDS.On("GetBankRules", mock.Anything, true).Return([]*model.BankRule{}, nil)
	mockDS.On("RecordBankTransaction", mock.Anything, mock.MatchedBy(func(txn *model.BankTransaction) bool {
		return txn.ConnectionID == "conn_plaid" && txn.AccountID == "acc_checking"
	})).Return(nil)

	result, err := r.UploadBankFeed(context.Background(), "conn_plaid", "acc_checking", strings.NewReader(feedCSV), "january.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Zero(t, result.Failed)
}

func TestUploadBankFeedRejectsWholeFile(t *testing.T) {
	r, mockDS, _ := setupRecon(t)
	content := feedCSV + "btx_103,not-a-date,1.00,debit,x,,,false\n"

	_, err := r.UploadBankFeed(context.Background(), "conn_plaid", "acc_checking", strings.NewReader(content), "january.csv")
	assert.True(t, apierror.IsInvalidInput(err))
	mockDS.AssertNotCalled(t, "RecordBankTransaction", mock.Anything, mock.Anything)
}
