package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUploader struct {
	mu      sync.Mutex
	names   []string
	failFor string
}

func (s *stubUploader) Upload(ctx context.Context, bucket, name, contentType string, body io.Reader) (string, error) {
	data, _ := io.ReadAll(body)
	if string(data) == s.failFor {
		return "", errors.New("storage unavailable")
	}
	s.mu.Lock()
	s.names = append(s.names, bucket+"/"+name)
	s.mu.Unlock()
	return "https://cdn.example/" + bucket + "/" + name, nil
}

func pngFile(content string) File {
	return File{Name: content + ".png", ContentType: "image/png", Data: []byte(content)}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		bucket  Bucket
		file    File
		wantExt string
		wantErr error
	}{
		{"gallery png", BucketGallery, pngFile("a"), ".png", nil},
		{"content type params", BucketPackages, File{ContentType: "image/jpeg; charset=binary", Data: []byte("x")}, ".jpg", nil},
		{"video for ads", BucketAdvertisements, File{ContentType: "video/mp4", Data: []byte("x")}, ".mp4", nil},
		{"video for gallery", BucketGallery, File{ContentType: "video/mp4", Data: []byte("x")}, "", ErrUnsupportedType},
		{"resume docx", BucketInternships, File{ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document", Data: []byte("x")}, ".docx", nil},
		{"image resume", BucketInternships, pngFile("a"), "", ErrUnsupportedType},
		{"empty", BucketGallery, File{ContentType: "image/png"}, "", ErrEmpty},
		{"too large", BucketGallery, File{ContentType: "image/png", Data: make([]byte, MaxFileSize+1)}, "", ErrTooLarge},
		{"unknown bucket", Bucket("avatars"), pngFile("a"), "", ErrUnknownBucket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := Check(tt.bucket, tt.file)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExt, ext)
		})
	}
}

func TestParseBucket(t *testing.T) {
	b, err := ParseBucket("gallery")
	require.NoError(t, err)
	assert.Equal(t, BucketGallery, b)

	_, err = ParseBucket("private")
	assert.ErrorIs(t, err, ErrUnknownBucket)
}

func TestUploadNamesObjects(t *testing.T) {
	up := &stubUploader{}
	svc := NewService(up)
	svc.newName = func() string { return "fixed-id" }

	url, err := svc.Upload(context.Background(), BucketGallery, pngFile("a"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/gallery/fixed-id.png", url)
}

func TestUploadAll(t *testing.T) {
	up := &stubUploader{}
	svc := NewService(up)

	urls, err := svc.UploadAll(context.Background(), BucketPackages, []File{pngFile("a"), pngFile("b"), pngFile("c")})
	require.NoError(t, err)
	require.Len(t, urls, 3)
	for _, u := range urls {
		assert.True(t, strings.HasPrefix(u, "https://cdn.example/packages/"))
		assert.True(t, strings.HasSuffix(u, ".png"))
	}
	assert.Len(t, up.names, 3)
}

func TestUploadAllIsAllOrNothing(t *testing.T) {
	up := &stubUploader{failFor: "b"}
	svc := NewService(up)

	urls, err := svc.UploadAll(context.Background(), BucketPackages, []File{pngFile("a"), pngFile("b"), pngFile("c")})
	require.Error(t, err)
	assert.Nil(t, urls)

	up = &stubUploader{}
	svc = NewService(up)
	urls, err = svc.UploadAll(context.Background(), BucketPackages, []File{pngFile("a"), {Name: "x.exe", ContentType: "application/x-msdownload", Data: []byte("x")}})
	assert.ErrorIs(t, err, ErrUnsupportedType)
	assert.Nil(t, urls)
	assert.Empty(t, up.names)
}

func TestReadMultipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("images", "kivu.png")
	require.NoError(t, err)
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	_, _ = fw.Write(png)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	f, err := ReadMultipart(req.MultipartForm.File["images"][0])
	require.NoError(t, err)
	assert.Equal(t, "kivu.png", f.Name)
	assert.Equal(t, "image/png", f.ContentType)
	assert.Equal(t, png, f.Data)
}

type stubCloudinary struct {
	params uploader.UploadParams
	result *uploader.UploadResult
	err    error
}

func (s *stubCloudinary) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	s.params = params
	return s.result, s.err
}

func TestCloudinaryUploader(t *testing.T) {
	stub := &stubCloudinary{result: &uploader.UploadResult{SecureURL: "https://res.cloudinary.com/demo/image/upload/gallery/abc.png"}}
	u := &CloudinaryUploader{api: stub}

	url, err := u.Upload(context.Background(), "gallery", "abc.png", "image/png", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/gallery/abc.png", url)
	assert.Equal(t, "gallery", stub.params.Folder)
	assert.Equal(t, "abc", stub.params.PublicID)
	assert.Equal(t, "image", stub.params.ResourceType)

	_, _ = u.Upload(context.Background(), "internships", "cv.pdf", "application/pdf", strings.NewReader("x"))
	assert.Equal(t, "raw", stub.params.ResourceType)
}

func TestCloudinaryUploaderErrors(t *testing.T) {
	u := &CloudinaryUploader{api: &stubCloudinary{result: &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid image file"}}}}
	_, err := u.Upload(context.Background(), "gallery", "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorContains(t, err, "Invalid image file")

	u = &CloudinaryUploader{api: &stubCloudinary{err: errors.New("dial tcp")}}
	_, err = u.Upload(context.Background(), "gallery", "a.png", "image/png", strings.NewReader("x"))
	assert.Error(t, err)
}
