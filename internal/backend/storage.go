package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Storage предоставляет доступ к файловому хранилищу бэкенда.
type Storage struct {
	client *Client
}

// NewStorage создаёт клиент файлового хранилища.
func (c *Client) NewStorage() *Storage {
	return &Storage{client: c}
}

// Upload загружает объект в бакет и возвращает его публичный адрес.
func (s *Storage) Upload(ctx context.Context, bucket, path, contentType string, body io.Reader) (string, error) {
	header := http.Header{
		"Content-Type": {contentType},
		"x-upsert":     {"false"},
	}
	_, err := s.client.do(ctx, request{
		method: http.MethodPost,
		path:   "/storage/v1/object/" + url.PathEscape(bucket) + "/" + escapePath(path),
		header: header,
		token:  tokenFrom(ctx),
		body:   body,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return s.PublicURL(bucket, path), nil
}

// Remove удаляет объекты из бакета.
func (s *Storage) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	_, err := s.client.do(ctx, request{
		method: http.MethodDelete,
		path:   "/storage/v1/object/" + url.PathEscape(bucket),
		token:  tokenFrom(ctx),
		body:   map[string][]string{"prefixes": paths},
	})
	if err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	return nil
}

// PublicURL возвращает публичный адрес объекта.
func (s *Storage) PublicURL(bucket, path string) string {
	return s.client.baseURL + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + escapePath(path)
}

func escapePath(path string) string {
	parts := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
