package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeDownloader struct {
	data []byte
	err  error
}

func (f *fakeDownloader) DownloadFile(ctx context.Context, fileRef string) ([]byte, error) {
	return f.data, f.err
}

func withSeams(t *testing.T, put func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error)) {
	t.Helper()
	origLoad, origNew, origPut := loadDefaultConfig, newS3ClientFromConfig, putObject
	t.Cleanup(func() {
		loadDefaultConfig, newS3ClientFromConfig, putObject = origLoad, origNew, origPut
	})
	loadDefaultConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return &s3.Client{}
	}
	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return put(ctx, in)
	}
}

func TestStore_UploadsDownloadedBytes(t *testing.T) {
	var gotKey string
	var gotBody []byte
	withSeams(t, func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		gotKey = *in.Key
		var err error
		gotBody, err = io.ReadAll(in.Body)
		if err != nil {
			t.Fatalf("reading body: %v", err)
		}
		if *in.Bucket != "proofs" {
			t.Fatalf("unexpected bucket %q", *in.Bucket)
		}
		return &s3.PutObjectOutput{}, nil
	})

	a := NewS3Archiver(S3Config{Bucket: "proofs"}, &fakeDownloader{data: []byte("jpeg bytes")})
	key, err := a.Store(context.Background(), 42, "file-abc")
	if err != nil {
		t.Fatalf("Store error: %v", err)
	}
	if key != gotKey {
		t.Fatalf("returned key %q does not match uploaded key %q", key, gotKey)
	}
	if !strings.HasPrefix(key, "proofs/") || !strings.Contains(key, "/42-") {
		t.Fatalf("unexpected storage key %q", key)
	}
	if string(gotBody) != "jpeg bytes" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestStore_DownloadError(t *testing.T) {
	withSeams(t, func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		t.Fatal("PutObject must not be called when download fails")
		return nil, nil
	})

	a := NewS3Archiver(S3Config{Bucket: "proofs"}, &fakeDownloader{err: errors.New("file gone")})
	_, err := a.Store(context.Background(), 42, "file-abc")
	if err == nil || !strings.Contains(err.Error(), "file gone") {
		t.Fatalf("expected download error, got %v", err)
	}
}

func TestStore_UploadError(t *testing.T) {
	withSeams(t, func(ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return nil, errors.New("bucket unavailable")
	})

	a := NewS3Archiver(S3Config{Bucket: "proofs"}, &fakeDownloader{data: []byte("x")})
	_, err := a.Store(context.Background(), 42, "file-abc")
	if err == nil || !strings.Contains(err.Error(), "bucket unavailable") {
		t.Fatalf("expected upload error, got %v", err)
	}
}
