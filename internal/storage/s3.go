package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"spate/internal/domain"
	"spate/internal/repository"
)

// S3Store keeps the torrents document as a single object in S3 (or a compatible API).
type S3Store struct {
	client   ObjectAPI
	uploader *manager.Uploader
	loc      Location
	mu       sync.Mutex
}

func NewS3Store(client ObjectAPI, loc Location) (*S3Store, error) {
	if loc.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	loc.Key = strings.TrimPrefix(loc.Key, "/")
	if loc.Key == "" {
		return nil, fmt.Errorf("storage key is required")
	}
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		loc:      loc,
	}, nil
}

func (s *S3Store) Location() string {
	return fmt.Sprintf("s3://%s/%s", s.loc.Bucket, s.loc.Key)
}

func (s *S3Store) Load(ctx context.Context) ([]domain.StoredRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, found, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	if !found {
		return []domain.StoredRecord{}, nil
	}
	return repository.DecodeDocument(s.Location(), data)
}

func (s *S3Store) Save(ctx context.Context, records []domain.StoredRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, _, err := s.read(ctx)
	if err != nil {
		return err
	}
	data, err := repository.EncodeDocument(existing, records)
	if err != nil {
		return err
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.loc.Bucket),
		Key:         aws.String(s.loc.Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", s.Location(), err)
	}
	return nil
}

func (s *S3Store) read(ctx context.Context) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.loc.Bucket),
		Key:    aws.String(s.loc.Key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", s.Location(), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", s.Location(), err)
	}
	return data, true, nil
}

var _ repository.TorrentStore = (*S3Store)(nil)
