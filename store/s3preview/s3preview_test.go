package s3preview

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goTrust/biometric"
)

var _ biometric.PreviewStore = (*Store)(nil)

type fakeS3 struct {
	objects map[string][]byte
	lastCT  string
	failPut error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	f.lastCT = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestStore_PutAndDelete(t *testing.T) {
	api := &fakeS3{objects: map[string][]byte{}}
	s := NewWithAPI(api, Config{Bucket: "vault", Prefix: "gotrust", ContentType: "image/png"})
	ctx := context.Background()

	require.NoError(t, s.PutPreview(ctx, "previews/u1/t1", []byte("png")))
	assert.Equal(t, []byte("png"), api.objects["vault/gotrust/previews/u1/t1"])
	assert.Equal(t, "image/png", api.lastCT)

	require.NoError(t, s.DeletePreview(ctx, "previews/u1/t1"))
	assert.Empty(t, api.objects)
}

func TestStore_PutErrorWrapped(t *testing.T) {
	boom := errors.New("access denied")
	s := NewWithAPI(&fakeS3{failPut: boom}, Config{Bucket: "vault"})

	err := s.PutPreview(context.Background(), "k", nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "put k")
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoBucket)

	var sawOpts int
	orig := loadDefaultConfig
	loadDefaultConfig = func(ctx context.Context, opts ...func(*config.LoadOptions) error) (aws.Config, error) {
		sawOpts = len(opts)
		return aws.Config{Region: "us-east-1"}, nil
	}
	t.Cleanup(func() { loadDefaultConfig = orig })

	s, err := New(context.Background(), Config{
		Bucket: "vault", Region: "us-east-1", Endpoint: "http://localhost:9000",
		AccessKey: "admin", SecretKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", s.contentType)
	assert.Equal(t, 2, sawOpts)
}
