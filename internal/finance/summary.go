// Package finance сводит платежи и бронирования за период в показатели
// финансовой панели и выгружает транзакции в CSV.
package finance

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

// ErrUnknownRange возвращается для неизвестного периода отчёта.
var ErrUnknownRange = errors.New("unknown date range")

// Range описывает скользящий период отчёта.
type Range string

const (
	Range7Days   Range = "7d"
	Range30Days  Range = "30d"
	Range90Days  Range = "90d"
	Range1Year   Range = "1y"
	DefaultRange       = Range30Days
)

// ParseRange разбирает период отчёта. Пустая строка означает период по умолчанию.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case "":
		return DefaultRange, nil
	case Range7Days, Range30Days, Range90Days, Range1Year:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRange, s)
}

// Since возвращает начало периода, отсчитанное от now.
func (r Range) Since(now time.Time) time.Time {
	switch r {
	case Range7Days:
		return now.AddDate(0, 0, -7)
	case Range90Days:
		return now.AddDate(0, 0, -90)
	case Range1Year:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, 0, -30)
	}
}

// RecentLimit ограничивает список последних транзакций.
const RecentLimit = 10

// UnknownMethod подставляется для платежа без способа оплаты.
const UnknownMethod = "Unknown"

// MonthlyRevenue описывает выручку за календарный месяц.
type MonthlyRevenue struct {
	Name    string          `json:"name"`
	Revenue decimal.Decimal `json:"revenue"`
}

// MethodShare описывает долю платежей одним способом оплаты.
type MethodShare struct {
	Name    string  `json:"name"`
	Value   int     `json:"value"`
	Percent float64 `json:"percent"`
}

// Summary содержит показатели финансовой панели за период.
type Summary struct {
	TotalRevenue        decimal.Decimal  `json:"totalRevenue"`
	TotalBookings       int              `json:"totalBookings"`
	AverageBookingValue decimal.Decimal  `json:"averageBookingValue"`
	CompletedBookings   int              `json:"completedBookings"`
	CancelledBookings   int              `json:"cancelledBookings"`
	ConfirmedBookings   int              `json:"confirmedBookings"`
	PendingBookings     int              `json:"pendingBookings"`
	PendingPayments     int              `json:"pendingPayments"`
	PendingAmount       decimal.Decimal  `json:"pendingAmount"`
	MonthlyRevenue      []MonthlyRevenue `json:"monthlyRevenue"`
	PaymentMethods      []MethodShare    `json:"paymentMethods"`
	RecentTransactions  []model.Payment  `json:"recentTransactions"`
}

// ComputeSummary сводит подтверждённые платежи и бронирования периода.
// Платежи ожидаются упорядоченными от новых к старым. Платежи в другом
// статусе не учитываются, пустая сумма считается нулём.
func ComputeSummary(payments []model.Payment, bookings []model.Booking) Summary {
	s := Summary{
		TotalRevenue:        decimal.Zero,
		AverageBookingValue: decimal.Zero,
		PendingAmount:       decimal.Zero,
		MonthlyRevenue:      []MonthlyRevenue{},
		PaymentMethods:      []MethodShare{},
		RecentTransactions:  []model.Payment{},
	}

	monthIdx := make(map[string]int)
	methodIdx := make(map[string]int)
	confirmed := 0

	for _, p := range payments {
		if p.Status != model.PaymentConfirmed {
			continue
		}
		confirmed++
		amount := p.Value()
		s.TotalRevenue = s.TotalRevenue.Add(amount)

		label := p.CreatedAt.UTC().Format("Jan 06")
		if i, ok := monthIdx[label]; ok {
			s.MonthlyRevenue[i].Revenue = s.MonthlyRevenue[i].Revenue.Add(amount)
		} else {
			monthIdx[label] = len(s.MonthlyRevenue)
			s.MonthlyRevenue = append(s.MonthlyRevenue, MonthlyRevenue{Name: label, Revenue: amount})
		}

		method := p.Method
		if method == "" {
			method = UnknownMethod
		}
		if i, ok := methodIdx[method]; ok {
			s.PaymentMethods[i].Value++
		} else {
			methodIdx[method] = len(s.PaymentMethods)
			s.PaymentMethods = append(s.PaymentMethods, MethodShare{Name: method, Value: 1})
		}

		if len(s.RecentTransactions) < RecentLimit {
			s.RecentTransactions = append(s.RecentTransactions, p)
		}
	}

	for i := range s.PaymentMethods {
		if confirmed > 0 {
			s.PaymentMethods[i].Percent = float64(s.PaymentMethods[i].Value) / float64(confirmed)
		}
	}

	s.TotalBookings = len(bookings)
	for _, b := range bookings {
		switch b.Status {
		case model.BookingCompleted:
			s.CompletedBookings++
		case model.BookingCancelled:
			s.CancelledBookings++
		case model.BookingConfirmed:
			s.ConfirmedBookings++
		case model.BookingPending:
			s.PendingBookings++
		}
	}

	if s.TotalBookings > 0 {
		s.AverageBookingValue = s.TotalRevenue.Div(decimal.NewFromInt(int64(s.TotalBookings))).Round(2)
	}

	return s
}

// AddPending учитывает платежи, ожидающие подтверждения.
func (s *Summary) AddPending(pending []model.Payment) {
	for _, p := range pending {
		if p.Status != model.PaymentPending {
			continue
		}
		s.PendingPayments++
		s.PendingAmount = s.PendingAmount.Add(p.Value())
	}
}
