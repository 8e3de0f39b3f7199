package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/nsafonov/proofdesk/internal/transport"
)

// seams for testing the AWS SDK calls
var (
	loadDefaultConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return config.LoadDefaultConfig(ctx, optFns...)
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in)
	}
)

// S3Config holds the object-storage connection settings.
type S3Config struct {
	Region       string
	AccessKey    string
	SecretKey    string
	BaseEndpoint string
	Bucket       string
}

// S3Archiver downloads a proof artifact through the transport and uploads
// it to an S3-compatible bucket.
type S3Archiver struct {
	cfg        S3Config
	downloader transport.FileDownloader
}

func NewS3Archiver(cfg S3Config, downloader transport.FileDownloader) *S3Archiver {
	return &S3Archiver{cfg: cfg, downloader: downloader}
}

func storageKey(userID int64) string {
	d := time.Now()
	return fmt.Sprintf("proofs/%d/%02d/%02d/%d-%v", d.Year(), d.Month(), d.Day(), userID, uuid.New())
}

func (a *S3Archiver) client(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultConfig(ctx,
		config.WithRegion(a.cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			a.cfg.AccessKey,
			a.cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, err
	}

	return newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if a.cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(a.cfg.BaseEndpoint)
		}
		o.UsePathStyle = true
	}), nil
}

func (a *S3Archiver) Store(ctx context.Context, userID int64, fileRef string) (string, error) {
	data, err := a.downloader.DownloadFile(ctx, fileRef)
	if err != nil {
		return "", fmt.Errorf("downloading proof %s: %w", fileRef, err)
	}

	client, err := a.client(ctx)
	if err != nil {
		return "", err
	}

	key := storageKey(userID)
	_, err = putObject(client, ctx, &s3.PutObjectInput{
		Bucket: &a.cfg.Bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("uploading proof to %s: %w", key, err)
	}

	return key, nil
}
