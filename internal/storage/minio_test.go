package storage

import (
	"context"
	"errors"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, name string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.objects[bucket+"/"+name] = body
	f.types[bucket+"/"+name] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: name, Size: int64(len(body))}, nil
}

func (f *fakeObjects) PresignedGetObject(_ context.Context, bucket, name string, expires time.Duration, _ url.Values) (*url.URL, error) {
	return url.Parse("https://minio.local/" + bucket + "/" + name + "?X-Amz-Expires=" + expires.String())
}

func newTestStore(f *fakeObjects) *ReportStore {
	s := NewReportStore(f, "invoice-reports", time.Hour)
	s.now = func() time.Time { return time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestEnsureBucket_CreatesMissingBucket(t *testing.T) {
	f := newFakeObjects()
	require.NoError(t, newTestStore(f).EnsureBucket(context.Background()))
	assert.True(t, f.buckets["invoice-reports"])
}

func TestArchiveReport(t *testing.T) {
	f := newFakeObjects()
	s := newTestStore(f)

	report := &models.ValidationReport{InvoiceID: "inv-1", InvoiceNumber: "INV-100", OverallPassed: true}
	path, err := s.ArchiveReport(context.Background(), "acme", report, "Overall: VALID\n")
	require.NoError(t, err)

	assert.Equal(t, "invoice-reports/acme/2024/03/inv-1-validation.txt", path)
	assert.Equal(t, "Overall: VALID\n", string(f.objects[path]))
	assert.Equal(t, "text/plain; charset=utf-8", f.types[path])

	jsonPath := "invoice-reports/acme/2024/03/inv-1-validation.json"
	assert.Contains(t, string(f.objects[jsonPath]), `"invoice_number": "INV-100"`)
	assert.Equal(t, "application/json", f.types[jsonPath])
}

func TestArchiveAnalysis_SharedTenant(t *testing.T) {
	f := newFakeObjects()
	path, err := newTestStore(f).ArchiveAnalysis(context.Background(), "", &models.DuplicateAnalysisResult{InvoiceID: "inv-2"})
	require.NoError(t, err)
	assert.Equal(t, "invoice-reports/shared/2024/03/inv-2-duplicates.json", path)
}

func TestArchive_UploadFailure(t *testing.T) {
	f := newFakeObjects()
	f.putErr = errors.New("bucket quota exceeded")

	_, err := newTestStore(f).ArchiveReport(context.Background(), "acme", &models.ValidationReport{InvoiceID: "inv-1"}, "")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorageFailed))
}

func TestPresignedURL(t *testing.T) {
	f := newFakeObjects()
	s := newTestStore(f)

	u, err := s.GetPresignedURL(context.Background(), "invoice-reports/acme/2024/03/inv-1-validation.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/invoice-reports/acme/2024/03/inv-1-validation.txt?X-Amz-Expires=1h0m0s", u)

	u, err = s.GetPresignedURL(context.Background(), "acme/2024/03/inv-1-validation.txt")
	require.NoError(t, err)
	assert.Equal(t, "https://minio.local/invoice-reports/acme/2024/03/inv-1-validation.txt?X-Amz-Expires=1h0m0s", u, "bucket prefix is optional")
}
