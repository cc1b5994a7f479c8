package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// REST реализует repository.Source поверх REST-интерфейса таблиц бэкенда.
// Запросы выполняются от имени пользователя, чей токен лежит в контексте.
type REST struct {
	client *Client
}

// NewREST создаёт источник данных, работающий через REST.
func (c *Client) NewREST() *REST {
	return &REST{client: c}
}

var _ repository.Source = (*REST)(nil)

func tokenFrom(ctx context.Context) string {
	token, _ := repository.AccessTokenFrom(ctx)
	return token
}

// Select возвращает строки таблицы.
func (r *REST) Select(ctx context.Context, table string, q repository.Query) ([]json.RawMessage, error) {
	query, err := encodeQuery(q)
	if err != nil {
		return nil, err
	}

	raw, err := r.client.do(ctx, request{
		method: http.MethodGet,
		path:   "/rest/v1/" + url.PathEscape(table),
		query:  query,
		token:  tokenFrom(ctx),
	})
	if err != nil {
		return nil, restError(err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// Insert вставляет строку и возвращает её представление.
func (r *REST) Insert(ctx context.Context, table string, row any) (json.RawMessage, error) {
	return r.write(ctx, http.MethodPost, table, nil, row, "return=representation")
}

// Upsert вставляет строку или объединяет её с существующей по conflictColumn.
func (r *REST) Upsert(ctx context.Context, table string, row any, conflictColumn string) (json.RawMessage, error) {
	query := url.Values{"on_conflict": {conflictColumn}}
	return r.write(ctx, http.MethodPost, table, query, row, "return=representation,resolution=merge-duplicates")
}

// Update изменяет строку, выбранную ключевым фильтром.
func (r *REST) Update(ctx context.Context, table string, key repository.Filter, patch any) (json.RawMessage, error) {
	query, err := encodeFilters([]repository.Filter{key})
	if err != nil {
		return nil, err
	}
	return r.write(ctx, http.MethodPatch, table, query, patch, "return=representation")
}

// Delete удаляет строку, выбранную ключевым фильтром.
func (r *REST) Delete(ctx context.Context, table string, key repository.Filter) error {
	query, err := encodeFilters([]repository.Filter{key})
	if err != nil {
		return err
	}
	_, err = r.write(ctx, http.MethodDelete, table, query, nil, "return=representation")
	return err
}

// Call вызывает удалённую процедуру бэкенда.
func (r *REST) Call(ctx context.Context, function string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := r.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + url.PathEscape(function),
		token:  tokenFrom(ctx),
		body:   args,
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", function, restError(err))
	}
	return json.RawMessage(raw), nil
}

// write выполняет изменяющий запрос и возвращает первую затронутую строку.
func (r *REST) write(ctx context.Context, method, table string, query url.Values, body any, prefer string) (json.RawMessage, error) {
	raw, err := r.client.do(ctx, request{
		method: method,
		path:   "/rest/v1/" + url.PathEscape(table),
		query:  query,
		header: http.Header{"Prefer": {prefer}},
		token:  tokenFrom(ctx),
		body:   body,
	})
	if err != nil {
		return nil, restError(err)
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, repository.ErrNotFound
	}
	return rows[0], nil
}

// restError переводит ошибки ограничений базы в ошибки репозитория.
func restError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, apiErr.Message)
	}
	return err
}

func encodeQuery(q repository.Query) (url.Values, error) {
	values, err := encodeFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	values.Set("select", "*")

	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		values.Set("order", strings.Join(parts, ","))
	}

	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	return values, nil
}

func encodeFilters(filters []repository.Filter) (url.Values, error) {
	values := url.Values{}
	for _, f := range filters {
		switch f.Op {
		case repository.OpEq, repository.OpNeq, repository.OpGt, repository.OpGte, repository.OpLt, repository.OpLte:
			values.Add(f.Column, string(f.Op)+"."+formatValue(f.Value))
		case repository.OpIn:
			list, ok := f.Value.([]any)
			if !ok {
				return nil, fmt.Errorf("filter %s: in expects a list", f.Column)
			}
			items := make([]string, 0, len(list))
			for _, v := range list {
				items = append(items, quoteListItem(formatValue(v)))
			}
			values.Add(f.Column, "in.("+strings.Join(items, ",")+")")
		case repository.OpIs:
			switch f.Value {
			case nil:
				values.Add(f.Column, "is.null")
			case true:
				values.Add(f.Column, "is.true")
			case false:
				values.Add(f.Column, "is.false")
			default:
				return nil, fmt.Errorf("filter %s: is expects null or boolean", f.Column)
			}
		default:
			return nil, fmt.Errorf("filter %s: unsupported operator %q", f.Column, f.Op)
		}
	}
	return values, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// quoteListItem заключает в кавычки элементы списка, содержащие служебные символы.
func quoteListItem(s string) string {
	if !strings.ContainsAny(s, `,()" `) {
		return s
	}
	return `"` + strings.ReplaceAll(strings.ReplaceAll(s, `\`, `\\`), `"`, `\"`) + `"`
}
