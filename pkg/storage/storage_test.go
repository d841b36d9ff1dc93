package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var imageTypes = []string{"image/jpeg", "image/png"}

func pngFile(body string) *File {
	return &File{
		Name:        "Avatar.PNG",
		ContentType: "image/png",
		Size:        int64(len(body)),
		Body:        bytes.NewReader([]byte(body)),
	}
}

func TestValidateImage(t *testing.T) {
	assert.NoError(t, ValidateImage(pngFile("abc"), 1024, imageTypes))

	f := pngFile("abc")
	f.ContentType = "image/jpeg; charset=binary"
	assert.NoError(t, ValidateImage(f, 1024, imageTypes))

	assert.ErrorIs(t, ValidateImage(nil, 1024, imageTypes), ErrInvalidFile)
	assert.ErrorIs(t, ValidateImage(pngFile(strings.Repeat("x", 2048)), 1024, imageTypes), ErrInvalidFile)

	f = pngFile("abc")
	f.ContentType = "application/pdf"
	assert.ErrorIs(t, ValidateImage(f, 1024, imageTypes), ErrInvalidFile)
}

func TestObjectKey(t *testing.T) {
	key := objectKey("/ecommerce-webapp/", "me.JPG")
	assert.True(t, strings.HasPrefix(key, "ecommerce-webapp/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.NotEqual(t, key, objectKey("ecommerce-webapp", "me.JPG"))
}

func TestNewRequiresCredentials(t *testing.T) {
	ctx := context.Background()
	for _, provider := range []string{"cloudinary", "cos", "s3"} {
		_, err := New(ctx, Options{Provider: provider})
		assert.ErrorIs(t, err, ErrNotConfigured, provider)
	}
	_, err := New(ctx, Options{Provider: "ftp"})
	assert.Error(t, err)
}

type recordedPut struct {
	mu          sync.Mutex
	path        string
	body        []byte
	contentType string
}

func (r *recordedPut) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(req.Body)
		require.NoError(t, err)

		r.mu.Lock()
		r.path = req.URL.Path
		r.body = body
		r.contentType = req.Header.Get("Content-Type")
		r.mu.Unlock()

		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}
}

func TestCOSUploader(t *testing.T) {
	rec := &recordedPut{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	up, err := NewCOSUploader(srv.URL, "sid", "skey", "avatars")
	require.NoError(t, err)

	url, err := up.Upload(context.Background(), pngFile("png-bytes"))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, strings.HasPrefix(rec.path, "/avatars/"))
	assert.Equal(t, "png-bytes", string(rec.body))
	assert.Equal(t, "image/png", rec.contentType)
	assert.Equal(t, srv.URL+rec.path, url)
}

func TestS3Uploader(t *testing.T) {
	rec := &recordedPut{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	up, err := NewS3Uploader(context.Background(), S3Options{
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Region:          "us-east-1",
		Bucket:          "shop",
		Endpoint:        srv.URL,
		Folder:          "avatars",
	})
	require.NoError(t, err)

	url, err := up.Upload(context.Background(), pngFile("png-bytes"))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.True(t, strings.HasPrefix(rec.path, "/shop/avatars/"), rec.path)
	assert.Equal(t, srv.URL+rec.path, url)
}

func TestS3PublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://cdn.shop.io", publicBaseURL(S3Options{PublicURL: "https://cdn.shop.io/"}))
	assert.Equal(t, "https://shop.s3.eu-west-1.amazonaws.com", publicBaseURL(S3Options{Bucket: "shop", Region: "eu-west-1"}))
}
