// Package media загружает изображения, видео и документы в бакеты хранилища.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Munezachristian/explore-kigali-hub-sub001/internal/backend"
)

// MaxFileSize ограничивает размер одного файла.
const MaxFileSize = 10 << 20

var (
	// ErrUnsupportedType возвращается для файла недопустимого для бакета типа.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrTooLarge возвращается для файла больше MaxFileSize.
	ErrTooLarge = errors.New("file too large")
	// ErrEmpty возвращается для пустого файла.
	ErrEmpty = errors.New("file is empty")
	// ErrUnknownBucket возвращается для неизвестного бакета.
	ErrUnknownBucket = errors.New("unknown bucket")
)

// Bucket описывает бакет хранилища.
type Bucket string

const (
	BucketAdvertisements Bucket = "advertisements"
	BucketGallery        Bucket = "gallery"
	BucketPackages       Bucket = "packages"
	BucketInternships    Bucket = "internships"
)

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

var videoTypes = map[string]string{
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

var documentTypes = map[string]string{
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

var bucketTypes = map[Bucket][]map[string]string{
	BucketAdvertisements: {imageTypes, videoTypes},
	BucketGallery:        {imageTypes},
	BucketPackages:       {imageTypes},
	BucketInternships:    {documentTypes},
}

// Uploader сохраняет объект в бакете и возвращает его публичный адрес.
type Uploader interface {
	Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) (string, error)
}

var _ Uploader = (*backend.Storage)(nil)

// File описывает загружаемый файл.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Service проверяет файлы и загружает их через Uploader.
type Service struct {
	uploader Uploader
	newName  func() string
}

// NewService создаёт сервис загрузки.
func NewService(uploader Uploader) *Service {
	return &Service{
		uploader: uploader,
		newName:  func() string { return uuid.NewString() },
	}
}

// ParseBucket разбирает имя бакета.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(s)
	if _, ok := bucketTypes[b]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBucket, s)
	}
	return b, nil
}

// Check проверяет размер и тип файла и возвращает расширение для имени объекта.
func Check(bucket Bucket, f File) (string, error) {
	groups, ok := bucketTypes[bucket]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}
	if len(f.Data) == 0 {
		return "", ErrEmpty
	}
	if len(f.Data) > MaxFileSize {
		return "", fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, f.Name, MaxFileSize)
	}

	ct := normalizeType(f.ContentType)
	for _, g := range groups {
		if ext, ok := g[ct]; ok {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %s for %s", ErrUnsupportedType, ct, bucket)
}

func normalizeType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(ct))
	}
	return mt
}

// Upload проверяет файл и загружает его под именем <uuid><ext>.
func (s *Service) Upload(ctx context.Context, bucket Bucket, f File) (string, error) {
	ext, err := Check(bucket, f)
	if err != nil {
		return "", err
	}

	name := s.newName() + ext
	url, err := s.uploader.Upload(ctx, string(bucket), name, normalizeType(f.ContentType), bytes.NewReader(f.Data))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", f.Name, err)
	}
	return url, nil
}

// UploadAll загружает файлы параллельно. Ошибка любого файла прерывает
// остальные загрузки, и ни один адрес не возвращается.
func (s *Service) UploadAll(ctx context.Context, bucket Bucket, files []File) ([]string, error) {
	for _, f := range files {
		if _, err := Check(bucket, f); err != nil {
			return nil, err
		}
	}

	urls := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			url, err := s.Upload(gctx, bucket, f)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

// ReadMultipart читает файл формы, ограничивая его размер MaxFileSize.
// Тип без заголовка определяется по содержимому.
func ReadMultipart(header *multipart.FileHeader) (File, error) {
	file, err := header.Open()
	if err != nil {
		return File{}, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(file, MaxFileSize+1)); err != nil {
		return File{}, fmt.Errorf("read file: %w", err)
	}
	if buf.Len() > MaxFileSize {
		return File{}, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, header.Filename, MaxFileSize)
	}

	contentType := header.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(buf.Bytes())
	}

	return File{Name: header.Filename, ContentType: contentType, Data: buf.Bytes()}, nil
}
