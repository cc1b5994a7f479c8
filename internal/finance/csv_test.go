package finance

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

func TestWriteCSV(t *testing.T) {
	at := time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC)
	payments := []model.Payment{
		{
			Amount:    decimal.NewNullDecimal(decimal.RequireFromString("150.50")),
			Method:    `He said "hi"`,
			Status:    model.PaymentConfirmed,
			Reference: "Acme, Inc.",
			CreatedAt: at,
		},
		{
			Method:    "",
			Status:    model.PaymentConfirmed,
			CreatedAt: at,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, payments))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `"Date","Amount","Method","Status","Reference"`, lines[0])
	assert.Equal(t, `"2024-03-05","150.5","He said ""hi""","confirmed","Acme, Inc."`, lines[1])
	assert.Equal(t, `"2024-03-05","0","","confirmed",""`, lines[2])

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, `He said "hi"`, records[1][2])
	assert.Equal(t, "Acme, Inc.", records[1][4])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "\"Date\",\"Amount\",\"Method\",\"Status\",\"Reference\"\n", buf.String())
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, time.July, 4, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "financial-report-2024-07-04.csv", ExportFilename("financial-report", now))
}
