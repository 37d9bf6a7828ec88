package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// maxRenameAttempts bounds the client-side autorename loop. Upload paths are
// timestamp-prefixed, so more than a couple of collisions means something is
// broken upstream.
const maxRenameAttempts = 5

// temporaryLinkTTL is the lifetime of presigned links handed out as
// temporary links.
const temporaryLinkTTL = 4 * time.Hour

// MinioStore implements BlobStore over a MinIO (or any S3-compatible) backend.
// Version tokens are object ETags; conditional writes use If-Match /
// If-None-Match preconditions. The bucket carries a public-read policy, so
// shared links are plain URLs under publicBase and never expire.
type MinioStore struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

var _ BlobStore = (*MinioStore)(nil)
var _ ConditionalWriter = (*MinioStore)(nil)

// NewMinioStore creates a MinIO client, ensures the bucket exists with a
// public-read policy, and returns a ready-to-use MinioStore.
func NewMinioStore(endpoint, accessKey, secretKey, bucket, publicBase string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
	}

	if err := client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	return &MinioStore{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// PutObject writes data under path. Without Overwrite the write is guarded by
// an if-absent precondition; with Autorename a collision retries under a
// numbered variant of the path instead of failing.
func (s *MinioStore) PutObject(ctx context.Context, path string, data []byte, opts PutOptions) (StorageRef, error) {
	key := strings.TrimPrefix(path, "/")

	if opts.Overwrite {
		if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{}); err != nil {
			return StorageRef{}, s.classify("put object", err)
		}
		return StorageRef{Path: key}, nil
	}

	candidate := key
	for attempt := 0; attempt < maxRenameAttempts; attempt++ {
		putOpts := minio.PutObjectOptions{}
		putOpts.SetMatchETagExcept("*")
		_, err := s.client.PutObject(ctx, s.bucket, candidate, bytes.NewReader(data), int64(len(data)), putOpts)
		if err == nil {
			return StorageRef{Path: candidate}, nil
		}
		wrapped := s.classify("put object", err)
		if !opts.Autorename || !isConflict(wrapped) {
			return StorageRef{}, wrapped
		}
		candidate = renameCandidate(key, attempt+1)
	}
	return StorageRef{}, fmt.Errorf("put object: autorename attempts exhausted for %q", key)
}

// GetObject returns the object's bytes and its ETag as the version token.
func (s *MinioStore) GetObject(ctx context.Context, path string) ([]byte, string, error) {
	key := strings.TrimPrefix(path, "/")

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", s.classify("get object", err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, "", s.classify("read object", err)
	}
	info, err := obj.Stat()
	if err != nil {
		return nil, "", s.classify("stat object", err)
	}
	return buf.Bytes(), info.ETag, nil
}

// PutObjectIfMatch replaces the object only while its ETag equals
// expectedToken. An empty token writes with an if-absent precondition.
func (s *MinioStore) PutObjectIfMatch(ctx context.Context, path string, data []byte, expectedToken string) (string, error) {
	key := strings.TrimPrefix(path, "/")

	putOpts := minio.PutObjectOptions{}
	if expectedToken == "" {
		putOpts.SetMatchETagExcept("*")
	} else {
		putOpts.SetMatchETag(expectedToken)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), putOpts)
	if err != nil {
		return "", s.classify("conditional put", err)
	}
	return info.ETag, nil
}

// CreateSharedLink returns the public-read URL for path. The bucket policy
// makes every object publicly readable, so the link always exists and the
// already-exists conflict case never arises on this backend.
func (s *MinioStore) CreateSharedLink(_ context.Context, path string) (string, error) {
	return s.publicBase + "/" + strings.TrimPrefix(path, "/"), nil
}

// CreateTemporaryLink returns a presigned GET URL with a short lifetime.
func (s *MinioStore) CreateTemporaryLink(ctx context.Context, path string) (string, error) {
	key := strings.TrimPrefix(path, "/")
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, temporaryLinkTTL, url.Values{})
	if err != nil {
		return "", s.classify("presign object", err)
	}
	return u.String(), nil
}

// classify maps minio errors onto the package's sentinel errors.
func (s *MinioStore) classify(op string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%s: %w", op, ErrVersionConflict)
	case resp.StatusCode == 0 || resp.StatusCode >= http.StatusInternalServerError:
		// no HTTP response (network failure) or a server-side error
		return fmt.Errorf("%s: %w: %v", op, ErrUpstream, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// renameCandidate derives the nth collision-avoidance name for key,
// "dir/file.jpg" -> "dir/file (1).jpg".
func renameCandidate(key string, n int) string {
	slash := strings.LastIndex(key, "/")
	dot := strings.LastIndex(key, ".")
	if dot <= slash {
		return fmt.Sprintf("%s (%d)", key, n)
	}
	return fmt.Sprintf("%s (%d)%s", key[:dot], n, key[dot:])
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET
// on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
