package finance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

func payment(id string, amount int64, method string, at time.Time) model.Payment {
	return model.Payment{
		ID:        id,
		Amount:    decimal.NewNullDecimal(decimal.NewFromInt(amount)),
		Method:    method,
		Status:    model.PaymentConfirmed,
		CreatedAt: at,
	}
}

func TestComputeSummaryEmpty(t *testing.T) {
	s := ComputeSummary(nil, nil)

	assert.True(t, s.TotalRevenue.IsZero())
	assert.True(t, s.AverageBookingValue.IsZero())
	assert.Zero(t, s.TotalBookings)
	assert.NotNil(t, s.MonthlyRevenue)
	assert.Empty(t, s.MonthlyRevenue)
	assert.NotNil(t, s.PaymentMethods)
	assert.Empty(t, s.PaymentMethods)
	assert.NotNil(t, s.RecentTransactions)
	assert.Empty(t, s.RecentTransactions)
}

func TestComputeSummaryScenario(t *testing.T) {
	base := time.Date(2024, time.March, 20, 10, 0, 0, 0, time.UTC)
	payments := []model.Payment{
		payment("p3", 300, "cash", base),
		payment("p2", 200, "card", base.Add(-24*time.Hour)),
		payment("p1", 100, "card", base.Add(-48*time.Hour)),
	}

	s := ComputeSummary(payments, nil)

	assert.True(t, decimal.NewFromInt(600).Equal(s.TotalRevenue))
	require.Len(t, s.MonthlyRevenue, 1)
	assert.Equal(t, "Mar 24", s.MonthlyRevenue[0].Name)
	assert.True(t, decimal.NewFromInt(600).Equal(s.MonthlyRevenue[0].Revenue))

	require.Len(t, s.PaymentMethods, 2)
	byName := map[string]MethodShare{}
	for _, m := range s.PaymentMethods {
		byName[m.Name] = m
	}
	assert.Equal(t, 2, byName["card"].Value)
	assert.InDelta(t, 2.0/3.0, byName["card"].Percent, 1e-9)
	assert.Equal(t, 1, byName["cash"].Value)
	assert.InDelta(t, 1.0/3.0, byName["cash"].Percent, 1e-9)

	assert.True(t, s.AverageBookingValue.IsZero())
}

func TestComputeSummaryBuckets(t *testing.T) {
	jan := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC)

	noAmount := payment("p0", 0, "", mar)
	noAmount.Amount = decimal.NullDecimal{}
	cancelled := payment("px", 999, "card", mar)
	cancelled.Status = model.PaymentCancelled

	payments := []model.Payment{
		payment("p4", 50, "mobile_money", mar),
		noAmount,
		cancelled,
		payment("p3", 25, "card", jan),
		payment("p2", 25, "card", jan),
	}

	s := ComputeSummary(payments, nil)

	assert.True(t, decimal.NewFromInt(100).Equal(s.TotalRevenue))
	require.Len(t, s.MonthlyRevenue, 2)
	assert.Equal(t, "Mar 24", s.MonthlyRevenue[0].Name)
	assert.True(t, decimal.NewFromInt(50).Equal(s.MonthlyRevenue[0].Revenue))
	assert.Equal(t, "Jan 24", s.MonthlyRevenue[1].Name)
	assert.True(t, decimal.NewFromInt(50).Equal(s.MonthlyRevenue[1].Revenue))

	names := make([]string, 0, len(s.PaymentMethods))
	total := 0
	percent := 0.0
	for _, m := range s.PaymentMethods {
		names = append(names, m.Name)
		total += m.Value
		percent += m.Percent
	}
	assert.Equal(t, []string{"mobile_money", UnknownMethod, "card"}, names)
	assert.Equal(t, 4, total)
	assert.InDelta(t, 1.0, percent, 1e-9)
	assert.Len(t, s.RecentTransactions, 4)
}

func TestComputeSummaryRecentLimit(t *testing.T) {
	base := time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC)
	var payments []model.Payment
	for i := 0; i < 15; i++ {
		payments = append(payments, payment(string(rune('a'+i)), 10, "card", base.Add(-time.Duration(i)*time.Hour)))
	}

	s := ComputeSummary(payments, nil)
	require.Len(t, s.RecentTransactions, RecentLimit)
	assert.Equal(t, "a", s.RecentTransactions[0].ID)
	for i := 1; i < len(s.RecentTransactions); i++ {
		assert.True(t, s.RecentTransactions[i-1].CreatedAt.After(s.RecentTransactions[i].CreatedAt))
	}

	s = ComputeSummary(payments[:3], nil)
	assert.Len(t, s.RecentTransactions, 3)
}

func TestComputeSummaryBookings(t *testing.T) {
	bookings := []model.Booking{
		{ID: "b1", Status: model.BookingCompleted},
		{ID: "b2", Status: model.BookingCompleted},
		{ID: "b3", Status: model.BookingCancelled},
		{ID: "b4", Status: model.BookingPending},
		{ID: "b5", Status: model.BookingConfirmed},
		{ID: "b6", Status: model.BookingConfirmed},
	}
	at := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	payments := []model.Payment{payment("p1", 500, "card", at), payment("p2", 500, "card", at)}

	s := ComputeSummary(payments, bookings)

	assert.Equal(t, 6, s.TotalBookings)
	assert.Equal(t, 2, s.CompletedBookings)
	assert.Equal(t, 1, s.CancelledBookings)
	assert.Equal(t, 1, s.PendingBookings)
	assert.Equal(t, 2, s.ConfirmedBookings)
	assert.Equal(t, "166.67", s.AverageBookingValue.String())
}

func TestAddPending(t *testing.T) {
	at := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	p1 := payment("p1", 40, "card", at)
	p1.Status = model.PaymentPending
	p2 := payment("p2", 60, "cash", at)
	p2.Status = model.PaymentPending

	s := ComputeSummary(nil, nil)
	s.AddPending([]model.Payment{p1, p2, payment("p3", 1000, "card", at)})

	assert.Equal(t, 2, s.PendingPayments)
	assert.True(t, decimal.NewFromInt(100).Equal(s.PendingAmount))
}

func TestParseRange(t *testing.T) {
	now := time.Date(2024, time.May, 31, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want Range
		days int
	}{
		{"7d", Range7Days, 7},
		{"30d", Range30Days, 30},
		{"", Range30Days, 30},
		{"90d", Range90Days, 90},
		{"1y", Range1Year, 366},
	}
	for _, tt := range tests {
		r, err := ParseRange(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, r)
		assert.Equal(t, time.Duration(tt.days)*24*time.Hour, now.Sub(r.Since(now)), tt.in)
	}

	_, err := ParseRange("2w")
	assert.ErrorIs(t, err, ErrUnknownRange)
}
