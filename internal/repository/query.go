package repository

import (
	"context"
	"encoding/json"
)

// Имена таблиц бэкенда.
const (
	TableProfiles          = "profiles"
	TableUserRoles         = "user_roles"
	TablePackages          = "packages"
	TablePackageItinerary  = "package_itineraries"
	TableBlogPosts         = "blog_posts"
	TableGallery           = "gallery"
	TableAdvertisements    = "advertisements"
	TableTestimonials      = "testimonials"
	TableInternships       = "internships"
	TableSystemLogs        = "system_logs"
	TableSystemSettings    = "system_settings"
	TablePayments          = "payments"
	TableBookings          = "bookings"
	TableKidsCenter        = "umurage_kids_center"
	FunctionGetUserRole    = "get_user_role"
	ArgGetUserRoleUserID   = "_user_id"
	DefaultKeyColumn       = "id"
	SystemSettingKeyColumn = "key"
)

// Op описывает оператор сравнения фильтра.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
	OpIn  Op = "in"
	OpIs  Op = "is"
)

// Filter описывает условие отбора строк.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq возвращает фильтр равенства.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Gte возвращает фильтр «больше или равно».
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }

// Lte возвращает фильтр «меньше или равно».
func Lte(column string, value any) Filter { return Filter{Column: column, Op: OpLte, Value: value} }

// In возвращает фильтр принадлежности списку.
func In(column string, values ...any) Filter { return Filter{Column: column, Op: OpIn, Value: values} }

// IsNull возвращает фильтр на отсутствие значения.
func IsNull(column string) Filter { return Filter{Column: column, Op: OpIs, Value: nil} }

// Order описывает сортировку по колонке.
type Order struct {
	Column string
	Desc   bool
}

// Query описывает выборку строк таблицы.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
}

// Where возвращает копию запроса с добавленными фильтрами.
func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}

// OrderBy возвращает копию запроса с добавленной сортировкой.
func (q Query) OrderBy(column string, desc bool) Query {
	q.Order = append(append([]Order(nil), q.Order...), Order{Column: column, Desc: desc})
	return q
}

// Take возвращает копию запроса с ограничением числа строк.
func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Source описывает низкоуровневый доступ к таблицам бэкенда.
// Строки передаются как JSON-объекты с именами колонок в качестве ключей.
type Source interface {
	Select(ctx context.Context, table string, q Query) ([]json.RawMessage, error)
	Insert(ctx context.Context, table string, row any) (json.RawMessage, error)
	Upsert(ctx context.Context, table string, row any, conflictColumn string) (json.RawMessage, error)
	Update(ctx context.Context, table string, key Filter, patch any) (json.RawMessage, error)
	Delete(ctx context.Context, table string, key Filter) error
	Call(ctx context.Context, function string, args map[string]any) (json.RawMessage, error)
}

type accessTokenKey struct{}

// WithAccessToken сохраняет токен доступа пользователя в контексте запроса,
// чтобы источник данных действовал от его имени.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFrom извлекает токен доступа из контекста.
func AccessTokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey{}).(string)
	return token, ok && token != ""
}
