// Package repository содержит доступ к таблицам бэкенда: абстракцию источника данных,
// типизированные репозитории и прямое подключение к PostgreSQL бэкенда.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresOptions задаёт режим работы PostgresSource.
type PostgresOptions struct {
	// Migrate применяет встроенные миграции схемы при подключении.
	Migrate bool
	// RowLevelSecurity выполняет запросы от имени пользователя из контекста,
	// чтобы действовали политики строк бэкенда.
	RowLevelSecurity bool
}

// PostgresSource реализует Source поверх прямого подключения к PostgreSQL бэкенда.
type PostgresSource struct {
	pool *pgxpool.Pool
	rls  bool
}

// NewPostgresSource создаёт пул соединений и при необходимости применяет миграции.
func NewPostgresSource(dsn string, opts PostgresOptions) (*PostgresSource, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresSource{pool: pool, rls: opts.RowLevelSecurity}

	if opts.Migrate {
		if err := r.runMigrations(ctx); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return r, nil
}

func (r *PostgresSource) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresSource) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresSource) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 300 * time.Millisecond, 1 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		timer := time.NewTimer(delays[i])
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// run выполняет fn от имени пользователя из контекста. Токен попадает в контекст
// только из серверного хранилища сессий, поэтому подпись здесь не проверяется:
// роль всегда понижается до authenticated, а claims нужны политикам строк.
func (r *PostgresSource) run(ctx context.Context, fn func(q querier) error) error {
	token, ok := AccessTokenFrom(ctx)
	if !r.rls || !ok {
		return fn(r.pool)
	}

	claims, err := tokenClaims(token)
	if err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, claims); err != nil {
		return fmt.Errorf("set claims: %w", err)
	}
	if _, err := tx.Exec(ctx, `SET LOCAL ROLE authenticated`); err != nil {
		return fmt.Errorf("set role: %w", err)
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func tokenClaims(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse access token: %w", err)
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	return string(raw), nil
}

// Select возвращает строки таблицы в виде JSON-объектов.
func (r *PostgresSource) Select(ctx context.Context, table string, q Query) ([]json.RawMessage, error) {
	sql, args, err := buildSelect(table, q)
	if err != nil {
		return nil, err
	}

	var res []json.RawMessage
	err = r.withRetry(ctx, func() error {
		res = res[:0]
		return r.run(ctx, func(db querier) error {
			rows, err := db.Query(ctx, sql, args...)
			if err != nil {
				return fmt.Errorf("select rows: %w", err)
			}
			defer rows.Close()

			for rows.Next() {
				var raw []byte
				if err := rows.Scan(&raw); err != nil {
					return fmt.Errorf("scan row: %w", err)
				}
				res = append(res, json.RawMessage(raw))
			}
			if err := rows.Err(); err != nil {
				return fmt.Errorf("rows error: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Insert вставляет строку и возвращает её представление.
func (r *PostgresSource) Insert(ctx context.Context, table string, row any) (json.RawMessage, error) {
	columns, payload, err := rowColumns(row)
	if err != nil {
		return nil, err
	}
	return r.returning(ctx, buildInsert(table, columns, ""), payload)
}

// Upsert вставляет строку или заменяет существующую с тем же значением conflictColumn.
func (r *PostgresSource) Upsert(ctx context.Context, table string, row any, conflictColumn string) (json.RawMessage, error) {
	columns, payload, err := rowColumns(row)
	if err != nil {
		return nil, err
	}
	return r.returning(ctx, buildInsert(table, columns, conflictColumn), payload)
}

// Update изменяет строку, выбранную ключевым фильтром.
func (r *PostgresSource) Update(ctx context.Context, table string, key Filter, patch any) (json.RawMessage, error) {
	columns, payload, err := rowColumns(patch)
	if err != nil {
		return nil, err
	}
	sql, err := buildUpdate(table, columns, key.Column)
	if err != nil {
		return nil, err
	}
	return r.returning(ctx, sql, payload, key.Value)
}

func (r *PostgresSource) returning(ctx context.Context, sql string, args ...any) (json.RawMessage, error) {
	var raw []byte
	err := r.run(ctx, func(db querier) error {
		return db.QueryRow(ctx, sql, args...).Scan(&raw)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
		}
		return nil, err
	}
	return json.RawMessage(raw), nil
}

// Delete удаляет строку, выбранную ключевым фильтром.
func (r *PostgresSource) Delete(ctx context.Context, table string, key Filter) error {
	where, args, err := buildWhere([]Filter{key}, nil)
	if err != nil {
		return err
	}
	sql := fmt.Sprintf(`DELETE FROM %s AS r%s`, quoteIdent(table), where)

	return r.run(ctx, func(db querier) error {
		tag, err := db.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("delete row: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Call вызывает функцию базы данных с именованными аргументами.
func (r *PostgresSource) Call(ctx context.Context, function string, args map[string]any) (json.RawMessage, error) {
	sql, values := buildCall(function, args)

	var raw []byte
	err := r.withRetry(ctx, func() error {
		return r.run(ctx, func(db querier) error {
			return db.QueryRow(ctx, sql, values...).Scan(&raw)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", function, err)
	}
	return json.RawMessage(raw), nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func buildSelect(table string, q Query) (string, []any, error) {
	where, args, err := buildWhere(q.Filters, nil)
	if err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT row_to_json(r) FROM %s AS r%s`, quoteIdent(table), where)

	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, "r."+quoteIdent(o.Column)+" "+dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	return sb.String(), args, nil
}

func buildWhere(filters []Filter, args []any) (string, []any, error) {
	if len(filters) == 0 {
		return "", args, nil
	}

	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		col := "r." + quoteIdent(f.Column)

		switch f.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
			args = append(args, f.Value)
			conds = append(conds, fmt.Sprintf("%s %s $%d", col, sqlOperators[f.Op], len(args)))
		case OpIn:
			values, ok := f.Value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("filter %s: in expects a list", f.Column)
			}
			texts := make([]string, 0, len(values))
			for _, v := range values {
				texts = append(texts, fmt.Sprint(v))
			}
			args = append(args, texts)
			conds = append(conds, fmt.Sprintf("%s::text = ANY($%d::text[])", col, len(args)))
		case OpIs:
			switch f.Value {
			case nil:
				conds = append(conds, col+" IS NULL")
			case true:
				conds = append(conds, col+" IS TRUE")
			case false:
				conds = append(conds, col+" IS FALSE")
			default:
				return "", nil, fmt.Errorf("filter %s: is expects null or boolean", f.Column)
			}
		default:
			return "", nil, fmt.Errorf("filter %s: unsupported operator %q", f.Column, f.Op)
		}
	}

	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

var sqlOperators = map[Op]string{
	OpEq:  "=",
	OpNeq: "<>",
	OpGt:  ">",
	OpGte: ">=",
	OpLt:  "<",
	OpLte: "<=",
}

// buildInsert строит вставку из JSON-параметра $1. Значения приводятся к типам
// колонок через json_populate_record, отсутствующие колонки получают значения по умолчанию.
func buildInsert(table string, columns []string, conflictColumn string) string {
	t := quoteIdent(table)
	cols := make([]string, 0, len(columns))
	vals := make([]string, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, quoteIdent(c))
		vals = append(vals, "p."+quoteIdent(c))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s AS r (%s) SELECT %s FROM json_populate_record(NULL::%s, $1::json) AS p`,
		t, strings.Join(cols, ", "), strings.Join(vals, ", "), t)

	if conflictColumn != "" {
		sets := make([]string, 0, len(columns))
		for _, c := range columns {
			sets = append(sets, quoteIdent(c)+" = EXCLUDED."+quoteIdent(c))
		}
		fmt.Fprintf(&sb, ` ON CONFLICT (%s) DO UPDATE SET %s`, quoteIdent(conflictColumn), strings.Join(sets, ", "))
	}

	sb.WriteString(` RETURNING row_to_json(r)`)
	return sb.String()
}

func buildUpdate(table string, columns []string, keyColumn string) (string, error) {
	sets := make([]string, 0, len(columns))
	for _, c := range columns {
		if c == keyColumn {
			continue
		}
		sets = append(sets, quoteIdent(c)+" = p."+quoteIdent(c))
	}
	if len(sets) == 0 {
		return "", fmt.Errorf("update %s: no columns to update", table)
	}

	t := quoteIdent(table)
	return fmt.Sprintf(`UPDATE %s AS r SET %s FROM json_populate_record(NULL::%s, $1::json) AS p WHERE r.%s = $2 RETURNING row_to_json(r)`,
		t, strings.Join(sets, ", "), t, quoteIdent(keyColumn)), nil
}

func buildCall(function string, args map[string]any) (string, []any) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	values := make([]any, 0, len(names))
	for i, name := range names {
		parts = append(parts, fmt.Sprintf("%s => $%d", quoteIdent(name), i+1))
		values = append(values, args[name])
	}

	return fmt.Sprintf(`SELECT to_json(%s(%s))`, quoteIdent(function), strings.Join(parts, ", ")), values
}

// rowColumns возвращает отсортированные имена колонок записи и её JSON-представление.
func rowColumns(row any) ([]string, []byte, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal row: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, nil, fmt.Errorf("row must be an object: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil, errors.New("row has no columns")
	}

	columns := make([]string, 0, len(fields))
	for name := range fields {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	return columns, payload, nil
}
