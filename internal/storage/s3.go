// Package storage uploads sealed backups to S3 compatible object storage
// and hands out presigned download links.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const presignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

type Config struct {
	Region       string
	User         string
	Password     string
	Bucket       string
	BaseEndpoint string
}

type S3Store struct {
	cfg Config
	now func() time.Time
}

func NewS3Store(cfg Config) *S3Store {
	return &S3Store{cfg: cfg, now: time.Now}
}

func (s *S3Store) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.User,
			s.cfg.Password,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.BaseEndpoint)
			// MinIO and most self-hosted stores want path-style URLs.
			o.UsePathStyle = true
		}
	}), nil
}

// ObjectKey places a file under a dated, collision free prefix.
func (s *S3Store) ObjectKey(name string) string {
	d := s.now().UTC()
	return fmt.Sprintf("exports/%d/%d/%d/%v/%s", d.Year(), d.Month(), d.Day(), uuid.New(), filepath.Base(name))
}

// Upload stores the file at path and returns its key and a presigned GET
// URL valid for 15 minutes.
func (s *S3Store) Upload(ctx context.Context, path string) (string, string, error) {
	client, err := s.client(ctx)
	if err != nil {
		return "", "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()

	bucket := s.cfg.Bucket
	key := s.ObjectKey(path)
	if _, err := putObject(client, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: aws.String("application/octet-stream"),
	}); err != nil {
		return "", "", fmt.Errorf("put object: %w", err)
	}

	url, err := s.presignGet(ctx, client, key)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}

// DownloadURL presigns a GET for an existing key.
func (s *S3Store) DownloadURL(ctx context.Context, key string) (string, error) {
	client, err := s.client(ctx)
	if err != nil {
		return "", err
	}
	return s.presignGet(ctx, client, key)
}

func (s *S3Store) presignGet(ctx context.Context, client *s3.Client, key string) (string, error) {
	bucket := s.cfg.Bucket
	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
