package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotConfigured 存储服务缺少凭据
	ErrNotConfigured = errors.New("storage: not configured")
	// ErrInvalidFile 文件大小或类型不符合要求
	ErrInvalidFile = errors.New("storage: invalid file")
)

// File 待上传的文件
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Uploader 文件上传接口，返回可公开访问的URL
type Uploader interface {
	Upload(ctx context.Context, file *File) (string, error)
}

// Options 存储服务配置
type Options struct {
	Provider string // cloudinary/cos/s3
	Folder   string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string

	COSSecretID  string
	COSSecretKey string
	COSBucketURL string

	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3PublicURL       string
}

// New 按提供方创建上传器
func New(ctx context.Context, opts Options) (Uploader, error) {
	switch opts.Provider {
	case "", "cloudinary":
		return NewCloudinaryUploader(opts.CloudinaryCloudName, opts.CloudinaryAPIKey, opts.CloudinaryAPISecret, opts.Folder)
	case "cos":
		return NewCOSUploader(opts.COSBucketURL, opts.COSSecretID, opts.COSSecretKey, opts.Folder)
	case "s3":
		return NewS3Uploader(ctx, S3Options{
			AccessKeyID:     opts.S3AccessKeyID,
			SecretAccessKey: opts.S3SecretAccessKey,
			Region:          opts.S3Region,
			Bucket:          opts.S3Bucket,
			Endpoint:        opts.S3Endpoint,
			PublicURL:       opts.S3PublicURL,
			Folder:          opts.Folder,
		})
	default:
		return nil, fmt.Errorf("storage: unknown provider %q", opts.Provider)
	}
}

// ValidateImage 验证图片文件大小与类型
func ValidateImage(file *File, maxSize int64, allowedTypes []string) error {
	if file == nil || file.Body == nil {
		return fmt.Errorf("%w: no file uploaded", ErrInvalidFile)
	}
	if maxSize > 0 && file.Size > maxSize {
		return fmt.Errorf("%w: file exceeds %d MB", ErrInvalidFile, maxSize/(1024*1024))
	}
	if len(allowedTypes) == 0 {
		return nil
	}

	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(file.ContentType, ";", 2)[0]))
	for _, t := range allowedTypes {
		if strings.EqualFold(t, contentType) {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported file type %q", ErrInvalidFile, file.ContentType)
}

// objectKey 生成对象键 folder/uuid.ext
func objectKey(folder, name string) string {
	key := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	if folder == "" {
		return key
	}
	return path.Join(strings.Trim(folder, "/"), key)
}
