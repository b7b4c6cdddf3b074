package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// S3Archive writes audit artifacts to Amazon S3 or a compatible object
// store.
type S3Archive struct {
	client     *s3.S3
	bucketName string
	prefix     string
	log        *slog.Logger
}

// NewS3Archive creates an S3 archive sink. When accessKey and secretKey
// are empty the SDK's default credential chain applies.
func NewS3Archive(bucketName, prefix, region, endpoint, accessKey, secretKey string, log *slog.Logger) (*S3Archive, error) {
	cfg := aws.Config{
		Region: aws.String(region),
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	if accessKey != "" && secretKey != "" {
		cfg.Credentials = credentials.NewStaticCredentials(accessKey, secretKey, "")
	}

	sess, err := session.NewSession(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Archive{
		client:     s3.New(sess),
		bucketName: bucketName,
		prefix:     strings.TrimSuffix(prefix, "/"),
		log:        log,
	}, nil
}

// Archive stores data and returns an s3:// locator.
func (a *S3Archive) Archive(ctx context.Context, data []byte) (string, error) {
	start := time.Now()
	hash := sha256.Sum256(data)
	key := path.Join(a.prefix, fmt.Sprintf("%s-%s.json",
		time.Now().UTC().Format("20060102T150405Z"),
		hex.EncodeToString(hash[:8])))

	_, err := a.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.log.Error("Failed to archive artifact to S3",
			slog.String("bucket", a.bucketName),
			slog.String("key", key),
			"err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	a.log.Debug("Archived artifact to S3",
		slog.String("bucket", a.bucketName),
		slog.String("key", key),
		slog.Duration("duration", time.Since(start)))
	return fmt.Sprintf("s3://%s/%s", a.bucketName, key), nil
}

// Available checks the bucket is reachable.
func (a *S3Archive) Available(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := a.client.HeadBucketWithContext(checkCtx, &s3.HeadBucketInput{
		Bucket: aws.String(a.bucketName),
	})
	if err != nil {
		a.log.Debug("S3 archive unavailable", "err", err)
		return false
	}
	return true
}

// Name returns an identifier for logging.
func (a *S3Archive) Name() string {
	return fmt.Sprintf("s3-archive-%s", a.bucketName)
}

var _ interfaces.ArchiveSink = (*S3Archive)(nil)
