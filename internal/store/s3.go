package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/posefactory/renderq/internal/common"
)

// S3Store implements Store over any S3-compatible bucket (Cloudflare R2,
// MinIO, AWS). Credentials come from the environment or the shared
// config profile named in the remote identifier; they are never logged.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	limiter  *rate.Limiter
	retry    *RetryPolicy
	logger   arbor.ILogger
}

// NewS3Store creates a client for the configured remote.
func NewS3Store(ctx context.Context, cfg common.StoreConfig, logger arbor.ILogger) (*S3Store, error) {
	bucket := cfg.Bucket()
	if bucket == "" {
		return nil, fmt.Errorf("%w: store remote is not configured", common.ErrValidation)
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if profile := cfg.Profile(); profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load store credentials: %v", common.ErrTransport, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		limiter:  rate.NewLimiter(limit, burst),
		retry:    NewRetryPolicy(cfg.MaxRetries),
		logger:   logger,
	}, nil
}

// List returns the keys under prefix, lexicographically sorted.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.execute(ctx, "list", func() error {
		keys = keys[:0]
		paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return err
			}
			for _, obj := range page.Contents {
				key := aws.ToString(obj.Key)
				if strings.HasSuffix(key, "/") {
					continue // directory markers
				}
				keys = append(keys, key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.transportErr("list", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get downloads one object.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.execute(ctx, "get", func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: object %s", common.ErrNotFound, key)
		}
		return nil, s.transportErr("get", key, err)
	}
	return data, nil
}

// Put uploads one object, overwriting any existing value.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	err := s.execute(ctx, "put", func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return s.transportErr("put", key, err)
	}
	return nil
}

// Delete removes one object. Deleting a missing key succeeds.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	err := s.execute(ctx, "delete", func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
	if err != nil && !isNotFound(err) {
		return s.transportErr("delete", key, err)
	}
	return nil
}

// Exists probes one key.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.execute(ctx, "head", func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				found = false
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, s.transportErr("head", key, err)
	}
	return found, nil
}

// Stat returns metadata for one object.
func (s *S3Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := s.execute(ctx, "head", func() error {
		resp, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		info = ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(resp.ContentLength),
			LastModified: aws.ToTime(resp.LastModified),
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("%w: object %s", common.ErrNotFound, key)
		}
		return ObjectInfo{}, s.transportErr("head", key, err)
	}
	return info, nil
}

// Move performs a server-side copy then delete. A missing source means
// another actor moved it first; the error wraps common.ErrNotFound so
// the claim protocol can treat the race as lost, not broken.
func (s *S3Store) Move(ctx context.Context, src, dst string) error {
	err := s.execute(ctx, "copy", func() error {
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			CopySource: aws.String(s.bucket + "/" + src),
			Key:        aws.String(dst),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: source %s already moved", common.ErrNotFound, src)
		}
		return s.transportErr("copy", src, err)
	}
	return s.Delete(ctx, src)
}

// Mirror recursively uploads a local directory under prefix. Object
// keys preserve the relative tree with forward slashes.
func (s *S3Store) Mirror(ctx context.Context, localPath, prefix string) error {
	prefix = strings.TrimSuffix(prefix, "/")

	return filepath.WalkDir(localPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localPath, path)
		if err != nil {
			return err
		}
		key := prefix + "/" + filepath.ToSlash(rel)

		uploadErr := s.execute(ctx, "upload", func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(key),
				Body:   f,
			})
			return err
		})
		if uploadErr != nil {
			return s.transportErr("upload", key, uploadErr)
		}
		return nil
	})
}

// Pull recursively downloads every object under prefix into localPath,
// preserving the relative tree.
func (s *S3Store) Pull(ctx context.Context, prefix, localPath string) error {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		rel := strings.TrimPrefix(key, prefix)
		target := filepath.Join(localPath, filepath.FromSlash(rel))

		data, err := s.Get(ctx, key)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", target, err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", target, err)
		}
	}
	return nil
}

// execute applies the rate limit then the retry policy to one operation.
func (s *S3Store) execute(ctx context.Context, op string, fn func() error) error {
	return s.retry.Execute(ctx, s.logger, op, func() error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn()
	})
}

func (s *S3Store) transportErr(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", common.ErrTransport, op, key, err)
}

// isNotFound recognizes the SDK's missing-object shapes: NoSuchKey from
// GetObject/CopyObject, bare 404 NotFound from HeadObject.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
