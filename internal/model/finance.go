package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus описывает статус платежа.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Payment описывает платёж клиента. Подтверждённый платёж не изменяется.
type Payment struct {
	ID        string              `json:"id"`
	Amount    decimal.NullDecimal `json:"amount"`
	Method    string              `json:"method"`
	Status    PaymentStatus       `json:"status" validate:"required,payment_status"`
	Reference string              `json:"transaction_reference"`
	BookingID *string             `json:"booking_id,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// Value возвращает сумму платежа, отсутствующая сумма считается нулём.
func (p Payment) Value() decimal.Decimal {
	if !p.Amount.Valid {
		return decimal.Zero
	}
	return p.Amount.Decimal
}

// BookingStatus описывает статус бронирования.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

// Booking описывает бронирование туристического пакета.
type Booking struct {
	ID          string              `json:"id"`
	PackageID   *string             `json:"package_id,omitempty"`
	UserID      *string             `json:"user_id,omitempty"`
	Status      BookingStatus       `json:"status" validate:"required,booking_status"`
	TotalAmount decimal.NullDecimal `json:"total_amount"`
	CreatedAt   time.Time           `json:"created_at"`
}
