package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/config"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// ObjectClient is the part of *minio.Client the report store uses
type ObjectClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// ReportStore archives validation reports and duplicate analyses
type ReportStore struct {
	client ObjectClient
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// Init connects to MinIO and makes sure the report bucket exists
func Init(ctx context.Context, cfg config.StorageConfig) (*ReportStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "failed to create MinIO client")
	}

	store := NewReportStore(client, cfg.Bucket, cfg.PresignExpiry)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func NewReportStore(client ObjectClient, bucket string, expiry time.Duration) *ReportStore {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &ReportStore{client: client, bucket: bucket, expiry: expiry, now: time.Now}
}

// EnsureBucket creates the bucket on first use
func (s *ReportStore) EnsureBucket(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to check bucket")
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to create bucket "+s.bucket)
	}
	return nil
}

// objectName builds {tenant}/YYYY/MM/{invoice}-{kind}.{ext}
func (s *ReportStore) objectName(tenant, invoiceID, kind, ext string) string {
	if tenant == "" {
		tenant = "shared"
	}
	if invoiceID == "" {
		invoiceID = "adhoc"
	}
	now := s.now().UTC()
	return fmt.Sprintf("%s/%d/%02d/%s-%s.%s", tenant, now.Year(), now.Month(), invoiceID, kind, ext)
}

func (s *ReportStore) put(ctx context.Context, name string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to upload "+name)
	}
	return s.bucket + "/" + name, nil
}

// ArchiveReport stores the rendered text report next to its JSON form and
// returns the path of the text object
func (s *ReportStore) ArchiveReport(ctx context.Context, tenant string, report *models.ValidationReport, text string) (string, error) {
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode report")
	}
	if _, err := s.put(ctx, s.objectName(tenant, report.InvoiceID, "validation", "json"), body, "application/json"); err != nil {
		return "", err
	}
	return s.put(ctx, s.objectName(tenant, report.InvoiceID, "validation", "txt"), []byte(text), "text/plain; charset=utf-8")
}

// ArchiveAnalysis stores a duplicate analysis as JSON
func (s *ReportStore) ArchiveAnalysis(ctx context.Context, tenant string, result *models.DuplicateAnalysisResult) (string, error) {
	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode analysis")
	}
	return s.put(ctx, s.objectName(tenant, result.InvoiceID, "duplicates", "json"), body, "application/json")
}

// stripBucket removes the bucket prefix if present
func (s *ReportStore) stripBucket(objectPath string) string {
	return strings.TrimPrefix(objectPath, s.bucket+"/")
}

// GetPresignedURL generates a presigned URL for downloading an archived object
func (s *ReportStore) GetPresignedURL(ctx context.Context, objectPath string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, s.stripBucket(objectPath), s.expiry, nil)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStorageFailed, "failed to generate presigned URL")
	}
	return u.String(), nil
}

// Ping checks the bucket is reachable
func (s *ReportStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
