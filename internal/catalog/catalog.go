// Package catalog реализует операции над содержимым сайта: пакеты, блог,
// галерею, рекламу, отзывы, стажировки, настройки и роли пользователей.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/sanitize"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/validation"
)

// ErrValidation возвращается, если запись не прошла проверку перед записью.
var ErrValidation = errors.New("validation failed")

// Service предоставляет операции над одной сущностью. Каждая изменяющая
// операция после записи перечитывает список и возвращает его.
type Service[T any] struct {
	table   *repository.Table[T]
	entity  string
	listing repository.Query
	audit   *Audit
	logger  *zap.Logger
}

// NewService создаёт сервис сущности поверх репозитория таблицы.
// По умолчанию списки упорядочены по created_at от новых к старым.
func NewService[T any](table *repository.Table[T], entity string, audit *Audit, logger *zap.Logger) *Service[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service[T]{
		table:   table,
		entity:  entity,
		listing: repository.Query{}.OrderBy("created_at", true),
		audit:   audit,
		logger:  logger,
	}
}

// Ordered возвращает копию сервиса, перечитывающую список указанным запросом.
func (s *Service[T]) Ordered(q repository.Query) *Service[T] {
	c := *s
	c.listing = q
	return &c
}

// Scoped возвращает копию сервиса, ограничивающую перечитываемый список фильтрами.
func (s *Service[T]) Scoped(filters ...repository.Filter) *Service[T] {
	c := *s
	c.listing = s.listing.Where(filters...)
	return &c
}

// All возвращает список в порядке сервиса.
func (s *Service[T]) All(ctx context.Context) ([]T, error) {
	return s.table.List(ctx, s.listing)
}

// List возвращает строки, удовлетворяющие запросу.
func (s *Service[T]) List(ctx context.Context, q repository.Query) ([]T, error) {
	return s.table.List(ctx, q)
}

// Get возвращает запись по ключу.
func (s *Service[T]) Get(ctx context.Context, key string) (*T, error) {
	return s.table.Get(ctx, key)
}

// Create очищает, проверяет и сохраняет запись.
func (s *Service[T]) Create(ctx context.Context, item *T) ([]T, error) {
	if err := prepare(item); err != nil {
		return nil, err
	}

	created, err := s.table.Create(ctx, item)
	if err != nil {
		return nil, err
	}
	s.audit.Info(ctx, s.entity+".create", "created "+s.entity, map[string]any{"id": keyOf(created, s.table.Key())})

	return s.refetch(ctx)
}

// Upsert сохраняет запись, заменяя существующую с тем же ключом.
func (s *Service[T]) Upsert(ctx context.Context, item *T) ([]T, error) {
	if err := prepare(item); err != nil {
		return nil, err
	}

	saved, err := s.table.Upsert(ctx, item)
	if err != nil {
		return nil, err
	}
	s.audit.Info(ctx, s.entity+".upsert", "saved "+s.entity, map[string]any{"id": keyOf(saved, s.table.Key())})

	return s.refetch(ctx)
}

// Update заменяет поля записи с указанным ключом. Ключевая колонка
// и время создания из тела записи не изменяются.
func (s *Service[T]) Update(ctx context.Context, key string, item *T) ([]T, error) {
	if err := prepare(item); err != nil {
		return nil, err
	}

	patch, err := patchOf(item, s.table.Key())
	if err != nil {
		return nil, err
	}
	return s.Patch(ctx, key, patch)
}

// Patch изменяет отдельные колонки записи без проверки.
func (s *Service[T]) Patch(ctx context.Context, key string, patch any) ([]T, error) {
	if _, err := s.table.Update(ctx, key, patch); err != nil {
		return nil, err
	}
	s.audit.Info(ctx, s.entity+".update", "updated "+s.entity, map[string]any{"id": key})

	return s.refetch(ctx)
}

// Delete удаляет запись по ключу.
func (s *Service[T]) Delete(ctx context.Context, key string) ([]T, error) {
	if err := s.table.Delete(ctx, key); err != nil {
		return nil, err
	}
	s.audit.Warning(ctx, s.entity+".delete", "deleted "+s.entity, map[string]any{"id": key})

	return s.refetch(ctx)
}

func (s *Service[T]) refetch(ctx context.Context) ([]T, error) {
	items, err := s.All(ctx)
	if err != nil {
		s.logger.Warn("refetch after write failed", zap.String("entity", s.entity), zap.Error(err))
		return nil, fmt.Errorf("refetch %s: %w", s.entity, err)
	}
	return items, nil
}

// prepare очищает строковые поля записи и проверяет её.
func prepare(item any) error {
	sanitize.Struct(item)
	if err := validation.Struct(item); err != nil {
		return invalid(err)
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func patchOf(item any, key string) (map[string]json.RawMessage, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal patch: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("patch must be an object: %w", err)
	}
	delete(fields, key)
	delete(fields, "created_at")
	return fields, nil
}

func keyOf(item any, key string) string {
	if item == nil {
		return ""
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ""
	}
	switch v := fields[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
