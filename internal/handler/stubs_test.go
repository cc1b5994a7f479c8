package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/backend"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/finance"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/media"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/model"
	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/repository"
)

// stubSource хранит строки в памяти и понимает только фильтры равенства.
type stubSource struct {
	mu     sync.Mutex
	tables map[string][]map[string]any
	seq    int
	err    error
}

func newStubSource() *stubSource {
	return &stubSource{tables: map[string][]map[string]any{}}
}

func (s *stubSource) add(table string, rows ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, raw := range rows {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			panic(err)
		}
		s.tables[table] = append(s.tables[table], m)
	}
}

func (s *stubSource) count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[table])
}

func match(row map[string]any, filters ...repository.Filter) bool {
	for _, f := range filters {
		if f.Op == repository.OpEq && fmt.Sprint(row[f.Column]) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	return m, json.Unmarshal(raw, &m)
}

func (s *stubSource) Select(ctx context.Context, table string, q repository.Query) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var res []json.RawMessage
	for _, row := range s.tables[table] {
		if match(row, q.Filters...) {
			raw, _ := json.Marshal(row)
			res = append(res, raw)
		}
	}
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[:q.Limit]
	}
	return res, nil
}

func (s *stubSource) Insert(ctx context.Context, table string, row any) (json.RawMessage, error) {
	m, err := encode(row)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.seq++
	if id, _ := m["id"].(string); id == "" {
		m["id"] = fmt.Sprintf("%s-%d", table, s.seq)
	}
	s.tables[table] = append(s.tables[table], m)
	return json.Marshal(m)
}

func (s *stubSource) Upsert(ctx context.Context, table string, row any, conflictColumn string) (json.RawMessage, error) {
	m, err := encode(row)
	if err != nil {
		return nil, err
	}
	if raw, err := s.Update(ctx, table, repository.Eq(conflictColumn, m[conflictColumn]), m); err == nil {
		return raw, nil
	}
	return s.Insert(ctx, table, row)
}

func (s *stubSource) Update(ctx context.Context, table string, key repository.Filter, patch any) (json.RawMessage, error) {
	m, err := encode(patch)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.tables[table] {
		if match(row, key) {
			for k, v := range m {
				row[k] = v
			}
			return json.Marshal(row)
		}
	}
	return nil, repository.ErrNotFound
}

func (s *stubSource) Delete(ctx context.Context, table string, key repository.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []map[string]any
	for _, row := range s.tables[table] {
		if !match(row, key) {
			kept = append(kept, row)
		}
	}
	s.tables[table] = kept
	return nil
}

func (s *stubSource) Call(context.Context, string, map[string]any) (json.RawMessage, error) {
	return nil, errors.New("not implemented")
}

type stubAggregator struct {
	report finance.Report
	err    error
	ranges []finance.Range
}

func (s *stubAggregator) Refresh(ctx context.Context, r finance.Range) (finance.Report, error) {
	s.ranges = append(s.ranges, r)
	return s.report, s.err
}

type stubUploader struct {
	bucket media.Bucket
	files  []media.File
	err    error
}

func (s *stubUploader) UploadAll(ctx context.Context, bucket media.Bucket, files []media.File) ([]string, error) {
	s.bucket, s.files = bucket, files
	if s.err != nil {
		return nil, s.err
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		urls = append(urls, "https://cdn.example/"+string(bucket)+"/"+f.Name)
	}
	return urls, nil
}

// fakeAuth принимает пароль "secret123" для любого адреса.
type fakeAuth struct {
	mu        sync.Mutex
	sess      *model.Session
	listeners []backend.Listener
}

func (a *fakeAuth) OnAuthStateChange(fn backend.Listener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
	return func() {}
}

func (a *fakeAuth) emit(event backend.Event, s *model.Session) {
	a.mu.Lock()
	listeners := append([]backend.Listener(nil), a.listeners...)
	a.mu.Unlock()
	for _, l := range listeners {
		l(event, s)
	}
}

func (a *fakeAuth) GetSession(ctx context.Context) (*model.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess, nil
}

func (a *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	if password != "secret123" {
		return nil, fmt.Errorf("%w: Invalid login credentials", backend.ErrInvalidCredentials)
	}
	s := sessionFor(email)
	a.mu.Lock()
	a.sess = s
	a.mu.Unlock()
	a.emit(backend.EventSignedIn, s)
	return s, nil
}

func (a *fakeAuth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*model.AuthenticatedUser, error) {
	if email == "taken@example.com" {
		return nil, &backend.APIError{Status: http.StatusUnprocessableEntity, Code: "user_already_exists", Message: "User already registered"}
	}
	return &model.AuthenticatedUser{ID: email, Email: email, Metadata: metadata}, nil
}

func (a *fakeAuth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	a.sess = nil
	a.mu.Unlock()
	a.emit(backend.EventSignedOut, nil)
	return nil
}

func (a *fakeAuth) UpdateUser(ctx context.Context, metadata map[string]any) (*model.AuthenticatedUser, error) {
	a.mu.Lock()
	if a.sess == nil {
		a.mu.Unlock()
		return nil, backend.ErrNoSession
	}
	s := *a.sess
	s.User.Metadata = metadata
	a.sess = &s
	a.mu.Unlock()
	a.emit(backend.EventUserUpdated, &s)
	return &s.User, nil
}

func (a *fakeAuth) StartAutoRefresh(ctx context.Context) {}

func sessionFor(userID string) *model.Session {
	return &model.Session{
		AccessToken: "access-" + userID,
		User:        model.AuthenticatedUser{ID: userID, Email: userID},
	}
}

type roleResolver map[string]model.Role

func (r roleResolver) EnsureProfile(ctx context.Context, user model.AuthenticatedUser) error {
	return nil
}

func (r roleResolver) ResolveRole(ctx context.Context, userID string) (model.Role, error) {
	return r[userID], nil
}

func (r roleResolver) UpdateFullName(ctx context.Context, userID, fullName string) error {
	return nil
}
