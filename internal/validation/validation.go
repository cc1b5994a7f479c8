// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"net/mail"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
)

// MinPasswordLength совпадает с требованием бэкенда аутентификации.
const MinPasswordLength = 6

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.Role(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("payment_status", func(fl validator.FieldLevel) bool {
		switch model.PaymentStatus(fl.Field().String()) {
		case model.PaymentPending, model.PaymentConfirmed, model.PaymentCancelled:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("booking_status", func(fl validator.FieldLevel) bool {
		switch model.BookingStatus(fl.Field().String()) {
		case model.BookingPending, model.BookingConfirmed, model.BookingCompleted, model.BookingCancelled:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("internship_status", func(fl validator.FieldLevel) bool {
		switch model.InternshipStatus(fl.Field().String()) {
		case model.InternshipPending, model.InternshipUnderReview, model.InternshipAccepted, model.InternshipRejected:
			return true
		}
		return false
	})

	// Ссылки отдаются браузеру как есть, поэтому допускаются только http и https.
	v.RegisterAlias("httpurl", "http_url")

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Error перечисляет поля, не прошедшие проверку.
type Error struct {
	Fields map[string]string
}

func (e *Error) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, field+": "+rule)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// Struct проверяет запись по тегам validate.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}

	res := &Error{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		res.Fields[fe.Field()] = rule
	}
	return res
}

// ValidateEmail возвращает ошибку для некорректного адреса электронной почты.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("email is invalid")
	}
	return nil
}

// ValidatePassword проверяет минимальные требования к паролю.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// RequireString проверяет, что строка не пустая.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " is required")
	}
	return nil
}
