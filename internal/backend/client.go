// Package backend предоставляет клиент для управляемого бэкенда (BaaS):
// аутентификацию, доступ к таблицам через REST и файловое хранилище.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotConfigured возвращается, если не заданы адрес бэкенда или публичный ключ.
	ErrNotConfigured = errors.New("backend client not configured")
	// ErrInvalidCredentials возвращается при неверной паре email/пароль или недействительном refresh-токене.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession возвращается, если операция требует сессии, а её нет.
	ErrNoSession = errors.New("no active session")
)

// APIError описывает ответ бэкенда с кодом статуса вне диапазона 2xx.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend: status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Retryable сообщает, имеет ли смысл повторить запрос позже.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Config задаёт параметры подключения к бэкенду.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client инкапсулирует HTTP-взаимодействие с бэкендом.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient создаёт HTTP-клиент для обращения к бэкенду по указанному адресу.
func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" || cfg.AnonKey == "" {
		return nil, ErrNotConfigured
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    base,
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// BaseURL возвращает адрес бэкенда.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method string
	path   string
	query  url.Values
	header http.Header
	token  string
	body   any
}

// do выполняет запрос и возвращает тело успешного ответа.
// Тело запроса кодируется в JSON, если это не io.Reader.
// Без токена пользователя запрос авторизуется публичным ключом.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	contentType := ""
	switch b := r.body.(type) {
	case nil:
	case io.Reader:
		body = b
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.anonKey)

	token := r.token
	if token == "" {
		token = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeError(resp.StatusCode, raw)
		if resp.StatusCode == http.StatusTooManyRequests {
			if v := resp.Header.Get("Retry-After"); v != "" {
				if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
					apiErr.RetryAfter = time.Duration(seconds) * time.Second
				}
			}
		}
		return nil, apiErr
	}

	return raw, nil
}

type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
}

// decodeError разбирает ошибку сервиса аутентификации, REST или хранилища.
// Поле code у REST строковое, у сервиса аутентификации числовое.
func decodeError(status int, raw []byte) *APIError {
	res := &APIError{Status: status}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		res.Message = http.StatusText(status)
		return res
	}

	var code string
	if len(body.Code) > 0 && body.Code[0] == '"' {
		_ = json.Unmarshal(body.Code, &code)
	}

	switch {
	case body.ErrorCode != "":
		res.Code = body.ErrorCode
	case code != "":
		res.Code = code
	case body.Error != "":
		res.Code = body.Error
	}

	switch {
	case body.Message != "":
		res.Message = body.Message
	case body.Msg != "":
		res.Message = body.Msg
	case body.ErrorDescription != "":
		res.Message = body.ErrorDescription
	case body.Error != "":
		res.Message = body.Error
	default:
		res.Message = http.StatusText(status)
	}

	return res
}
