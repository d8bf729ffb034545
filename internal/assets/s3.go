package assets

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/promptgate/promptgate/internal/common/config"
	"github.com/promptgate/promptgate/internal/common/errors"
	"github.com/promptgate/promptgate/internal/common/logger"
)

// S3Store serves assets from an S3-compatible bucket with object keys
// <collection>/<name>.md.
type S3Store struct {
	client *minio.Client
	bucket string
	logger *logger.Logger
}

// NewS3Store connects to the configured S3-compatible endpoint.
func NewS3Store(cfg config.AssetsConfig, log *logger.Logger) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create object storage client")
	}

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		logger: log.WithFields(zap.String("component", "assets-s3")),
	}, nil
}

// Get fetches the named asset object.
func (s *S3Store) Get(ctx context.Context, kind Kind, name string) (*Asset, error) {
	if !kind.Valid() {
		return nil, errors.BadRequest("unknown asset kind: " + string(kind))
	}
	if !validName(name) {
		return nil, errors.BadRequest("invalid asset name")
	}

	key := kind.Collection() + "/" + name + assetExtension
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch asset object")
	}
	defer func() { _ = obj.Close() }()

	info, err := obj.Stat()
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errors.NotFound(string(kind), name)
		}
		return nil, errors.Wrap(err, "failed to stat asset object")
	}

	content, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read asset object")
	}

	return &Asset{
		Kind:       kind,
		Name:       name,
		Content:    string(content),
		Size:       info.Size,
		ModifiedAt: info.LastModified,
	}, nil
}

// List enumerates the object names under a collection prefix.
func (s *S3Store) List(ctx context.Context, kind Kind) ([]string, error) {
	if !kind.Valid() {
		return nil, errors.BadRequest("unknown asset kind: " + string(kind))
	}

	prefix := kind.Collection() + "/"
	names := []string{}
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: false,
	}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, "failed to list asset objects")
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, assetExtension) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, assetExtension))
	}
	sort.Strings(names)
	return names, nil
}
