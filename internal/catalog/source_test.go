package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// memSource хранит строки таблиц в памяти и понимает фильтры равенства,
// сортировку и предел выборки.
type memSource struct {
	mu         sync.Mutex
	tables     map[string][]map[string]any
	seq        int
	failSelect map[string]error
	failInsert map[string]error
	lastQuery  map[string]repository.Query
}

func newMemSource() *memSource {
	return &memSource{
		tables:     map[string][]map[string]any{},
		failSelect: map[string]error{},
		failInsert: map[string]error{},
		lastQuery:  map[string]repository.Query{},
	}
}

var baseTime = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func toRaw(m map[string]any) json.RawMessage {
	raw, _ := json.Marshal(m)
	return raw
}

func matches(row map[string]any, f repository.Filter) bool {
	return fmt.Sprint(row[f.Column]) == fmt.Sprint(f.Value)
}

func less(a, b any) bool {
	fa, aok := a.(float64)
	fb, bok := b.(float64)
	if aok && bok {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func (s *memSource) seed(table string, rows ...any) {
	for _, r := range rows {
		_, _ = s.Insert(context.Background(), table, r)
	}
}

func (s *memSource) rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.tables[table]...)
}

func (s *memSource) Select(ctx context.Context, table string, q repository.Query) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastQuery[table] = q
	if err := s.failSelect[table]; err != nil {
		return nil, err
	}

	var picked []map[string]any
	for _, row := range s.tables[table] {
		ok := true
		for _, f := range q.Filters {
			if !matches(row, f) {
				ok = false
				break
			}
		}
		if ok {
			picked = append(picked, row)
		}
	}

	for i := len(q.Order) - 1; i >= 0; i-- {
		o := q.Order[i]
		sort.SliceStable(picked, func(a, b int) bool {
			if o.Desc {
				return less(picked[b][o.Column], picked[a][o.Column])
			}
			return less(picked[a][o.Column], picked[b][o.Column])
		})
	}
	if q.Limit > 0 && len(picked) > q.Limit {
		picked = picked[:q.Limit]
	}

	res := make([]json.RawMessage, 0, len(picked))
	for _, row := range picked {
		res = append(res, toRaw(row))
	}
	return res, nil
}

func (s *memSource) Insert(ctx context.Context, table string, row any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failInsert[table]; err != nil {
		return nil, err
	}

	m, err := toMap(row)
	if err != nil {
		return nil, err
	}
	s.seq++
	if id, _ := m["id"].(string); id == "" && table != repository.TableSystemSettings {
		m["id"] = fmt.Sprintf("%s-%d", table, s.seq)
	}
	if _, ok := m["created_at"]; !ok {
		m["created_at"] = baseTime.Add(time.Duration(s.seq) * time.Second).Format(time.RFC3339)
	}
	s.tables[table] = append(s.tables[table], m)
	return toRaw(m), nil
}

func (s *memSource) Upsert(ctx context.Context, table string, row any, conflictColumn string) (json.RawMessage, error) {
	m, err := toMap(row)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for i, existing := range s.tables[table] {
		if fmt.Sprint(existing[conflictColumn]) == fmt.Sprint(m[conflictColumn]) {
			for k, v := range m {
				existing[k] = v
			}
			s.tables[table][i] = existing
			s.mu.Unlock()
			return toRaw(existing), nil
		}
	}
	s.mu.Unlock()
	return s.Insert(ctx, table, m)
}

func (s *memSource) Update(ctx context.Context, table string, key repository.Filter, patch any) (json.RawMessage, error) {
	m, err := toMap(patch)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.tables[table] {
		if matches(row, key) {
			for k, v := range m {
				row[k] = v
			}
			return toRaw(row), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memSource) Delete(ctx context.Context, table string, key repository.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.tables[table][:0]
	for _, row := range s.tables[table] {
		if !matches(row, key) {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	return nil
}

func (s *memSource) Call(context.Context, string, map[string]any) (json.RawMessage, error) {
	return nil, fmt.Errorf("not implemented")
}
