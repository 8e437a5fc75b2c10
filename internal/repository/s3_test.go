package repository

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/atinyakov/cortexvault/internal/models"
)

type fakeObject struct {
	body []byte
	meta map[string]string
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = fakeObject{body: body, meta: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3Types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body)), Metadata: obj.meta}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &s3Types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: obj.meta}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3VaultRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	repo := NewS3VaultRepository(fake, "vaults-bucket")

	if _, err := repo.Get(ctx, testAccount); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	rec := models.VaultRecord{AccountID: testAccount, TokenHash: []byte{0xab, 0xcd}, Blob: []byte("cipher"), UpdatedAt: ts}
	if err := repo.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	obj := fake.objects["vaults-bucket/vaults/"+testAccount]
	if obj.meta[metaTokenHash] != hex.EncodeToString(rec.TokenHash) {
		t.Errorf("token hash metadata = %q", obj.meta[metaTokenHash])
	}

	got, err := repo.Get(ctx, testAccount)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got.Blob) != "cipher" || !got.UpdatedAt.Equal(ts) || !bytes.Equal(got.TokenHash, rec.TokenHash) {
		t.Errorf("unexpected record: %+v", got)
	}

	other := rec
	other.TokenHash = []byte{0x01}
	if err := repo.Put(ctx, other); !errors.Is(err, models.ErrTokenMismatch) {
		t.Errorf("expected ErrTokenMismatch, got %v", err)
	}

	if err := repo.SoftDelete(ctx, testAccount, ts); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Stat(ctx, testAccount); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.SoftDelete(ctx, testAccount, ts); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestS3VaultRepository_PutError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("throttled")
	repo := NewS3VaultRepository(fake, "b")

	err := repo.Put(context.Background(), models.VaultRecord{AccountID: testAccount, TokenHash: []byte{1}})
	if err == nil || !errors.Is(err, fake.putErr) {
		t.Errorf("expected wrapped put error, got %v", err)
	}
}
