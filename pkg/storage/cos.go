package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tencentyun/cos-go-sdk-v5"
)

// COSUploader 上传到腾讯云COS
type COSUploader struct {
	client    *cos.Client
	bucketURL string
	folder    string
}

// NewCOSUploader 创建COS客户端
func NewCOSUploader(bucketURL, secretID, secretKey, folder string) (*COSUploader, error) {
	if bucketURL == "" || secretID == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: cos credentials are incomplete", ErrNotConfigured)
	}
	u, err := url.Parse(bucketURL)
	if err != nil {
		return nil, fmt.Errorf("解析COS URL失败: %w", err)
	}

	client := cos.NewClient(&cos.BaseURL{BucketURL: u}, &http.Client{
		Timeout: 60 * time.Second,
		Transport: &cos.AuthorizationTransport{
			SecretID:  secretID,
			SecretKey: secretKey,
		},
	})
	return &COSUploader{client: client, bucketURL: strings.TrimRight(bucketURL, "/"), folder: folder}, nil
}

func (u *COSUploader) Upload(ctx context.Context, file *File) (string, error) {
	key := objectKey(u.folder, file.Name)

	var opt *cos.ObjectPutOptions
	if file.ContentType != "" {
		opt = &cos.ObjectPutOptions{
			ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{ContentType: file.ContentType},
		}
	}
	if _, err := u.client.Object.Put(ctx, key, file.Body, opt); err != nil {
		return "", fmt.Errorf("上传到腾讯云失败: %w", err)
	}

	// 返回完整的访问URL
	return u.bucketURL + "/" + key, nil
}
