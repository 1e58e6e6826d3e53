// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"context"
	"io"
	"time"

	"study-indexer-go/internal/config"
	"study-indexer-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client 包装 MinIO 客户端，课程内容导入管道从这里下载源文件。
type Client struct {
	client *minio.Client
	bucket string
}

// NewClient 初始化 MinIO 客户端并确保存储桶存在。
func NewClient(cfg config.MinIOConfig) *Client {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		log.Fatal("初始化 MinIO 客户端失败", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := mc.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		log.Fatal("检查 MinIO 存储桶失败", err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			log.Fatal("创建 MinIO 存储桶失败", err)
		}
		log.Infof("MinIO 存储桶 '%s' 创建成功", cfg.BucketName)
	}

	log.Info("MinIO 客户端初始化成功")
	return &Client{client: mc, bucket: cfg.BucketName}
}

// GetObject 按对象名下载文件内容，调用方负责 Close。
func (c *Client) GetObject(ctx context.Context, objectName string) (io.ReadCloser, error) {
	return c.client.GetObject(ctx, c.bucket, objectName, minio.GetObjectOptions{})
}

// StatObject 检查对象是否存在，导入请求先做这一步以便尽早报错。
func (c *Client) StatObject(ctx context.Context, objectName string) (minio.ObjectInfo, error) {
	return c.client.StatObject(ctx, c.bucket, objectName, minio.StatObjectOptions{})
}
