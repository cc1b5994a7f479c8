package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/validation"
)

// Table предоставляет типизированный доступ к одной таблице бэкенда.
// Каждая строка проверяется при получении: в списках некорректные строки
// пропускаются с записью в журнал, одиночное чтение возвращает ошибку.
type Table[T any] struct {
	src    Source
	name   string
	key    string
	logger *zap.Logger

	unchecked bool
}

// NewTable создаёт репозиторий таблицы с ключевой колонкой id.
func NewTable[T any](src Source, name string, logger *zap.Logger) *Table[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table[T]{
		src:    src,
		name:   name,
		key:    DefaultKeyColumn,
		logger: logger,
	}
}

// WithKey возвращает копию репозитория с другой ключевой колонкой.
func (t *Table[T]) WithKey(column string) *Table[T] {
	c := *t
	c.key = column
	return &c
}

// Unchecked возвращает копию репозитория, которая только разбирает JSON и
// не проверяет строки по тегам validate. Нужна там, где строка с
// неизвестным значением перечисления должна учитываться, а не пропускаться.
func (t *Table[T]) Unchecked() *Table[T] {
	c := *t
	c.unchecked = true
	return &c
}

// Name возвращает имя таблицы.
func (t *Table[T]) Name() string {
	return t.name
}

// Key возвращает имя ключевой колонки.
func (t *Table[T]) Key() string {
	return t.key
}

// List возвращает строки, удовлетворяющие запросу.
func (t *Table[T]) List(ctx context.Context, q Query) ([]T, error) {
	rows, err := t.src.Select(ctx, t.name, q)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, err)
	}

	res := make([]T, 0, len(rows))
	for _, raw := range rows {
		item, err := t.decode(raw)
		if err != nil {
			t.logger.Warn("skip invalid row", zap.String("table", t.name), zap.Error(err))
			continue
		}
		res = append(res, *item)
	}
	return res, nil
}

// Find возвращает первую строку, удовлетворяющую запросу.
func (t *Table[T]) Find(ctx context.Context, q Query) (*T, error) {
	rows, err := t.src.Select(ctx, t.name, q.Take(1))
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return t.decode(rows[0])
}

// Get возвращает строку по ключу.
func (t *Table[T]) Get(ctx context.Context, key string) (*T, error) {
	return t.Find(ctx, Query{}.Where(Eq(t.key, key)))
}

// Create вставляет строку и возвращает её сохранённое представление.
func (t *Table[T]) Create(ctx context.Context, row *T) (*T, error) {
	raw, err := t.src.Insert(ctx, t.name, row)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", t.name, err)
	}
	return t.decode(raw)
}

// Upsert вставляет строку или заменяет существующую с тем же ключом.
func (t *Table[T]) Upsert(ctx context.Context, row *T) (*T, error) {
	raw, err := t.src.Upsert(ctx, t.name, row, t.key)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", t.name, err)
	}
	return t.decode(raw)
}

// Update изменяет строку по ключу.
func (t *Table[T]) Update(ctx context.Context, key string, patch any) (*T, error) {
	raw, err := t.src.Update(ctx, t.name, Eq(t.key, key), patch)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", t.name, err)
	}
	return t.decode(raw)
}

// Delete удаляет строку по ключу.
func (t *Table[T]) Delete(ctx context.Context, key string) error {
	if err := t.src.Delete(ctx, t.name, Eq(t.key, key)); err != nil {
		return fmt.Errorf("delete %s: %w", t.name, err)
	}
	return nil
}

func (t *Table[T]) decode(raw json.RawMessage) (*T, error) {
	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRow, t.name, err)
	}
	if t.unchecked {
		return &item, nil
	}
	if err := validation.Struct(&item); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRow, t.name, verr)
		}
		return nil, err
	}
	return &item, nil
}
