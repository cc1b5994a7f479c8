package catalog

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// NewSettings создаёт сервис настроек с ключевой колонкой key.
func NewSettings(src repository.Source, audit *Audit, logger *zap.Logger) *Service[model.SystemSetting] {
	table := repository.NewTable[model.SystemSetting](src, repository.TableSystemSettings, logger).
		WithKey(repository.SystemSettingKeyColumn)
	return NewService(table, "setting", audit, logger).
		Ordered(repository.Query{}.OrderBy(repository.SystemSettingKeyColumn, false))
}

// RoleAssignment описывает роль пользователя вместе с данными профиля.
type RoleAssignment struct {
	model.UserRole
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
}

// Roles управляет ролями пользователей.
type Roles struct {
	roles    *repository.Table[model.UserRole]
	profiles *repository.Table[model.Profile]
	audit    *Audit
}

// NewRoles создаёт сервис ролей.
func NewRoles(src repository.Source, audit *Audit, logger *zap.Logger) *Roles {
	return &Roles{
		roles:    repository.NewTable[model.UserRole](src, repository.TableUserRoles, logger).WithKey("user_id"),
		profiles: repository.NewTable[model.Profile](src, repository.TableProfiles, logger),
		audit:    audit,
	}
}

// List возвращает назначенные роли с адресом и именем пользователя.
func (r *Roles) List(ctx context.Context) ([]RoleAssignment, error) {
	roles, err := r.roles.List(ctx, repository.Query{}.OrderBy("created_at", true))
	if err != nil {
		return nil, err
	}
	profiles, err := r.profiles.List(ctx, repository.Query{})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	res := make([]RoleAssignment, 0, len(roles))
	for _, role := range roles {
		a := RoleAssignment{UserRole: role}
		if p, ok := byID[role.UserID]; ok {
			a.Email = p.Email
			a.FullName = p.FullName
		}
		res = append(res, a)
	}
	return res, nil
}

// Assign назначает пользователю роль, заменяя прежнюю.
func (r *Roles) Assign(ctx context.Context, userID, role string) ([]RoleAssignment, error) {
	parsed, err := model.ParseRole(role)
	if err != nil {
		return nil, invalid(err)
	}
	row := &model.UserRole{UserID: userID, Role: parsed}
	if err := prepare(row); err != nil {
		return nil, err
	}

	if _, err := r.roles.Upsert(ctx, row); err != nil {
		return nil, err
	}
	r.audit.Warning(ctx, "user_role.assign", "role assigned", map[string]any{"user_id": userID, "role": string(parsed)})

	return r.List(ctx)
}

// DefaultLogLimit ограничивает выборку журнала, если предел не задан.
const DefaultLogLimit = 100

const maxLogLimit = 1000

// Logs читает системный журнал.
type Logs struct {
	table *repository.Table[model.SystemLog]
}

// NewLogs создаёт сервис чтения журнала.
func NewLogs(src repository.Source, logger *zap.Logger) *Logs {
	return &Logs{table: repository.NewTable[model.SystemLog](src, repository.TableSystemLogs, logger)}
}

// Recent возвращает последние записи журнала, при необходимости только указанного уровня.
func (l *Logs) Recent(ctx context.Context, level string, limit int) ([]model.SystemLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	limit = min(limit, maxLogLimit)

	q := repository.Query{}.OrderBy("created_at", true).Take(limit)
	if level != "" {
		switch model.LogLevel(level) {
		case model.LogInfo, model.LogWarning, model.LogError:
		default:
			return nil, invalid(fmt.Errorf("unknown log level %q", level))
		}
		q = q.Where(repository.Eq("level", level))
	}
	return l.table.List(ctx, q)
}

// Catalog объединяет сервисы содержимого сайта.
type Catalog struct {
	Audit          *Audit
	Packages       *Packages
	Blog           *Blog
	Gallery        *Service[model.GalleryItem]
	Testimonials   *Testimonials
	Advertisements *Advertisements
	KidsCenter     *KidsCenter
	Internships    *Internships
	Settings       *Service[model.SystemSetting]
	Roles          *Roles
	Logs           *Logs
}

// New создаёт сервисы поверх источника данных.
func New(src repository.Source, uploader FileUploader, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	audit := NewAudit(src, logger)
	return &Catalog{
		Audit:          audit,
		Packages:       NewPackages(src, audit, logger),
		Blog:           NewBlog(src, audit, logger),
		Gallery:        NewGallery(src, audit, logger),
		Testimonials:   NewTestimonials(src, audit, logger),
		Advertisements: NewAdvertisements(src, audit, logger),
		KidsCenter:     NewKidsCenter(src, audit, logger),
		Internships:    NewInternships(src, uploader, audit, logger),
		Settings:       NewSettings(src, audit, logger),
		Roles:          NewRoles(src, audit, logger),
		Logs:           NewLogs(src, logger),
	}
}
