// Package blobstore stores user uploads such as profile pictures. It defines
// the BlobStore interface with S3, local-disk and in-memory implementations,
// plus the upload validation shared by handlers.
package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("only image uploads are allowed")
	ErrEmptyFile          = errors.New("file is empty")
)

// MaxImageSize is the maximum accepted profile picture size (5 MB).
const MaxImageSize = 5 * 1024 * 1024

// AllowedImageTypes maps accepted sniffed MIME types to file extensions.
var AllowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ---------------------------------------------------------------------------
// BlobStore interface
// ---------------------------------------------------------------------------

// BlobStore defines the contract for blob storage backends. Put returns the
// public URL of the stored object.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, content io.Reader, size int64) (string, error)
	Delete(ctx context.Context, key string) error
}

// ProfilePictureKey builds the object key for a user's picture.
func ProfilePictureKey(userID uuid.UUID, ext string) string {
	return path.Join("profile", userID.String(), uuid.NewString()+ext)
}

// SaveImage validates an uploaded image and stores it under a fresh key for
// userID. The content type is sniffed from the bytes, not taken from the
// client.
func SaveImage(ctx context.Context, store BlobStore, userID uuid.UUID, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxImageSize {
		return "", ErrFileTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageSize+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	if len(data) > MaxImageSize {
		return "", ErrFileTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := AllowedImageTypes[contentType]
	if !ok {
		return "", ErrInvalidContentType
	}

	return store.Put(ctx, ProfilePictureKey(userID, ext), contentType, bytes.NewReader(data), int64(len(data)))
}

// ---------------------------------------------------------------------------
// S3 implementation
// ---------------------------------------------------------------------------

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps blobs in an S3 bucket (or an S3-compatible endpoint such as
// MinIO or LocalStack).
type S3Store struct {
	client  S3API
	bucket  string
	baseURL string
}

// NewS3Store loads the default AWS credential chain and builds a client for
// bucket. A non-empty endpoint switches to path-style addressing.
func NewS3Store(ctx context.Context, bucket, region, endpoint string) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, bucket, region, endpoint), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, region, endpoint string) *S3Store {
	base := fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	if endpoint != "" {
		base = strings.TrimRight(endpoint, "/") + "/" + bucket
	}
	return &S3Store{client: client, bucket: bucket, baseURL: base}
}

func (s *S3Store) Put(ctx context.Context, key, contentType string, content io.Reader, size int64) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          content,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Local disk implementation
// ---------------------------------------------------------------------------

// LocalStore writes blobs below Dir. The server exposes Dir at URLPrefix.
type LocalStore struct {
	Dir       string
	URLPrefix string
}

// NewLocalStore creates dir if needed. publicURL is the externally visible
// server address; files are served under "<publicURL>/uploads".
func NewLocalStore(dir, publicURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	prefix, err := url.JoinPath(publicURL, "uploads")
	if err != nil {
		return nil, fmt.Errorf("invalid public url: %w", err)
	}
	return &LocalStore{Dir: dir, URLPrefix: prefix}, nil
}

func (s *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.Dir, filepath.FromSlash(clean)), nil
}

func (s *LocalStore) Put(_ context.Context, key, _ string, content io.Reader, _ int64) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("create blob: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close blob: %w", err)
	}
	return s.URLPrefix + "/" + strings.TrimPrefix(path.Clean("/"+key), "/"), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	contentType string
	content     []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for testing.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

func (s *InMemoryBlobStore) Put(_ context.Context, key, contentType string, content io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	s.mu.Lock()
	s.blobs[key] = &storedBlob{contentType: contentType, content: data}
	s.mu.Unlock()
	return "mem://" + key, nil
}

func (s *InMemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, key)
	return nil
}

// Get returns a stored blob's content type and bytes.
func (s *InMemoryBlobStore) Get(key string) (string, []byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return "", nil, false
	}
	return b.contentType, b.content, true
}

// Len returns the number of stored blobs.
func (s *InMemoryBlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
