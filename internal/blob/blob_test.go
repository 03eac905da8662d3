package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/campusrent/campusrent/internal/db"
)

func TestDBStore(t *testing.T) {
	s := &DBStore{DB: db.NewTestDB(t)}
	ctx := context.Background()

	url, err := s.Put(ctx, []byte("jpegdata"), "image/jpeg", "items")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(url, "/blobs/items/") || !strings.HasSuffix(url, ".jpg") {
		t.Errorf("unexpected url %q", url)
	}

	key := strings.TrimPrefix(url, URLPrefix)
	data, mimeType, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "jpegdata" || mimeType != "image/jpeg" {
		t.Errorf("unexpected blob %q %q", data, mimeType)
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Foreign URLs are ignored.
	if err := s.Delete(ctx, "https://elsewhere/x.jpg"); err != nil {
		t.Errorf("Delete foreign url: %v", err)
	}
}

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
	fail    error
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	s := NewS3StoreWithClient(fake, "bucket", "https://cdn.example/bucket/")
	ctx := context.Background()

	url, err := s.Put(ctx, []byte("x"), "image/jpeg", "avatars")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.example/bucket/avatars/") {
		t.Errorf("unexpected url %q", url)
	}
	if len(fake.objects) != 1 {
		t.Fatalf("expected 1 object, got %d", len(fake.objects))
	}

	if err := s.Delete(ctx, url); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(fake.objects) != 0 {
		t.Errorf("expected object to be deleted")
	}
}

func TestS3StorePutFailureIsHard(t *testing.T) {
	s := NewS3StoreWithClient(&fakeS3{fail: errors.New("denied")}, "bucket", "https://cdn.example/bucket")
	if _, err := s.Put(context.Background(), []byte("x"), "image/jpeg", "items"); err == nil {
		t.Error("expected upload failure")
	}
}
