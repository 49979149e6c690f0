package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/casesynth/pkg/errors"
)

type fakeUploader struct {
	inputs []*s3manager.UploadInput
	bodies [][]byte
	err    error
}

func (f *fakeUploader) Upload(input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), input, opts...)
}

func (f *fakeUploader) UploadWithContext(_ aws.Context, input *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, input)
	f.bodies = append(f.bodies, body)
	return &s3manager.UploadOutput{Location: fmt.Sprintf("https://%s/%s", *input.Bucket, *input.Key)}, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestNewUploaderInvalidConfig(t *testing.T) {
	_, err := NewUploaderWithAPI(&fakeUploader{}, nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 config cannot be nil")

	_, err = NewUploaderWithAPI(&fakeUploader{}, &S3Config{Region: "us-east-1"}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3 bucket is required")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfiguration))
}

func TestUploaderGenerateKey(t *testing.T) {
	u, err := NewUploaderWithAPI(&fakeUploader{}, &S3Config{Bucket: "b", Prefix: "synthetic/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "synthetic/synthetic_ia_10311.csv", u.generateKey("synthetic_ia_10311.csv"))

	u, err = NewUploaderWithAPI(&fakeUploader{}, &S3Config{Bucket: "b"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "out.json", u.generateKey("out.json"))
}

func TestUploaderUpload(t *testing.T) {
	fake := &fakeUploader{}
	u, err := NewUploaderWithAPI(fake, &S3Config{Bucket: "case-bucket", Prefix: "runs"}, logrus.New())
	require.NoError(t, err)

	p := writeFile(t, "synthetic_ia_10311.csv", "age,sex\n34,F\n")
	location, err := u.Upload(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "s3://case-bucket/runs/synthetic_ia_10311.csv", location)
	require.Len(t, fake.inputs, 1)
	assert.Equal(t, "text/csv", *fake.inputs[0].ContentType)
	assert.Nil(t, fake.inputs[0].ContentEncoding)
	assert.Equal(t, "age,sex\n34,F\n", string(fake.bodies[0]))
	assert.Equal(t, int64(1), u.Stats()["uploads"])
}

func TestUploaderUploadCompressed(t *testing.T) {
	fake := &fakeUploader{}
	u, err := NewUploaderWithAPI(fake, &S3Config{Bucket: "b", UseCompression: true}, nil)
	require.NoError(t, err)

	p := writeFile(t, "out.json", `{"records":[]}`)
	location, err := u.Upload(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "s3://b/out.json.gz", location)
	assert.Equal(t, "gzip", *fake.inputs[0].ContentEncoding)

	zr, err := gzip.NewReader(bytes.NewReader(fake.bodies[0]))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, `{"records":[]}`, string(plain))
}

func TestUploaderFailures(t *testing.T) {
	u, err := NewUploaderWithAPI(&fakeUploader{err: fmt.Errorf("access denied")}, &S3Config{Bucket: "b"}, nil)
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutputIO))

	p := writeFile(t, "out.csv", "x\n")
	_, err = u.Upload(context.Background(), p)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeOutputIO))
	assert.Contains(t, err.Error(), "access denied")
	assert.Equal(t, int64(2), u.Stats()["errors"])
}
