package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Package описывает туристический пакет.
type Package struct {
	ID           string          `json:"id,omitempty" sanitize:"-"`
	Title        string          `json:"title" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=10000"`
	Location     string          `json:"location" validate:"max=200"`
	DurationDays int             `json:"duration_days" validate:"gte=0,lte=365"`
	Price        decimal.Decimal `json:"price"`
	ImageURL     string          `json:"image_url,omitempty" validate:"omitempty,httpurl" sanitize:"-"`
	Featured     bool            `json:"featured"`
	CreatedAt    *time.Time      `json:"created_at,omitempty"`
}

// PackageItinerary описывает один день программы пакета.
type PackageItinerary struct {
	ID          string `json:"id,omitempty" sanitize:"-"`
	PackageID   string `json:"package_id" validate:"required" sanitize:"-"`
	DayNumber   int    `json:"day_number" validate:"gte=1,lte=365"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

// PackageDetails объединяет пакет и его программу.
type PackageDetails struct {
	Package
	Itineraries []PackageItinerary `json:"itineraries"`
}

// BlogPost описывает запись блога.
type BlogPost struct {
	ID        string     `json:"id,omitempty" sanitize:"-"`
	Title     string     `json:"title" validate:"required,max=300"`
	Slug      string     `json:"slug" validate:"omitempty,max=300"`
	Excerpt   string     `json:"excerpt" validate:"max=1000"`
	Content   string     `json:"content" validate:"required"`
	Author    string     `json:"author" validate:"max=200"`
	ImageURL  string     `json:"image_url,omitempty" validate:"omitempty,httpurl" sanitize:"-"`
	Published bool       `json:"published"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// GalleryItem описывает изображение галереи.
type GalleryItem struct {
	ID          string     `json:"id,omitempty" sanitize:"-"`
	Title       string     `json:"title" validate:"max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Category    string     `json:"category" validate:"max=100"`
	ImageURL    string     `json:"image_url" validate:"required,httpurl" sanitize:"-"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Advertisement описывает рекламный блок сайта.
type Advertisement struct {
	ID          string     `json:"id,omitempty" sanitize:"-"`
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	MediaURL    string     `json:"media_url" validate:"omitempty,httpurl" sanitize:"-"`
	MediaType   string     `json:"media_type" validate:"omitempty,oneof=image video"`
	LinkURL     string     `json:"link_url,omitempty" validate:"omitempty,httpurl" sanitize:"-"`
	Active      bool       `json:"active"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

// Running сообщает, показывается ли реклама в указанный момент.
func (a Advertisement) Running(now time.Time) bool {
	if !a.Active {
		return false
	}
	if a.StartDate != nil && now.Before(*a.StartDate) {
		return false
	}
	if a.EndDate != nil && now.After(*a.EndDate) {
		return false
	}
	return true
}

// Testimonial описывает отзыв клиента.
type Testimonial struct {
	ID        string     `json:"id,omitempty" sanitize:"-"`
	Name      string     `json:"name" validate:"required,max=200"`
	Country   string     `json:"country" validate:"max=100"`
	Content   string     `json:"content" validate:"required,max=5000"`
	Rating    int        `json:"rating" validate:"gte=1,lte=5"`
	Approved  bool       `json:"approved"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// InternshipStatus описывает стадию рассмотрения заявки на стажировку.
type InternshipStatus string

const (
	InternshipPending     InternshipStatus = "pending"
	InternshipUnderReview InternshipStatus = "under_review"
	InternshipAccepted    InternshipStatus = "accepted"
	InternshipRejected    InternshipStatus = "rejected"
)

// InternshipApplication описывает заявку на стажировку.
type InternshipApplication struct {
	ID             string           `json:"id,omitempty" sanitize:"-"`
	FirstName      string           `json:"first_name" validate:"required,max=100"`
	LastName       string           `json:"last_name" validate:"required,max=100"`
	Email          string           `json:"email" validate:"required,email" sanitize:"-"`
	Phone          string           `json:"phone" validate:"max=50"`
	Country        string           `json:"country" validate:"max=100"`
	FieldOfStudy   string           `json:"field_of_study" validate:"max=200"`
	EducationLevel string           `json:"education_level" validate:"max=100"`
	Experience     string           `json:"experience" validate:"max=5000"`
	Motivation     string           `json:"motivation" validate:"required,max=5000"`
	Availability   string           `json:"availability" validate:"max=200"`
	ResumeURL      string           `json:"resume_url,omitempty" validate:"omitempty,httpurl" sanitize:"-"`
	Status         InternshipStatus `json:"status" validate:"omitempty,internship_status"`
	CreatedAt      *time.Time       `json:"created_at,omitempty"`
}

// KidsCenterPost описывает публикацию детского центра Umurage.
type KidsCenterPost struct {
	ID        string     `json:"id,omitempty" sanitize:"-"`
	Title     string     `json:"title" validate:"required,max=300"`
	Content   string     `json:"content" validate:"required"`
	Category  string     `json:"category" validate:"max=100"`
	ImageURL  string     `json:"image_url,omitempty" validate:"omitempty,httpurl" sanitize:"-"`
	Published bool       `json:"published"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// LogLevel описывает уровень записи системного журнала.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// SystemLog описывает запись системного журнала.
type SystemLog struct {
	ID        string         `json:"id,omitempty" sanitize:"-"`
	Level     LogLevel       `json:"level" validate:"required,oneof=info warning error"`
	Action    string         `json:"action" validate:"required,max=200"`
	Message   string         `json:"message" validate:"max=2000"`
	UserID    *string        `json:"user_id,omitempty" sanitize:"-"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt *time.Time     `json:"created_at,omitempty"`
}

// SystemSetting хранит одну настройку системы.
type SystemSetting struct {
	Key       string     `json:"key" validate:"required,max=100" sanitize:"-"`
	Value     any        `json:"value"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
