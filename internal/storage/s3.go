package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path"
	"time"

	"peakform/coach-app/internal/config"
	"peakform/coach-app/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfg "github.com/aws/aws-sdk-go-v2/config" // Alias config to avoid clash
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// s3Archiver implements PlanArchiver using an S3-compatible backend.
type s3Archiver struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucketName    string
}

// planSnapshot is the JSON document written to object storage.
type planSnapshot struct {
	Plan       *domain.WeeklyPlan `json:"plan"`
	Sessions   []domain.Session   `json:"sessions"`
	ArchivedAt time.Time          `json:"archivedAt"`
}

// NewS3Archiver creates a plan archiver against an S3-compatible endpoint.
func NewS3Archiver(cfg config.S3Config) (PlanArchiver, error) {
	// Custom resolver for S3-compatible endpoints (like MinIO, DigitalOcean Spaces)
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				PartitionID:   "aws",
				URL:           cfg.Endpoint,
				SigningRegion: cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsSDKConfig, err := awsCfg.LoadDefaultConfig(context.TODO(),
		awsCfg.WithRegion(cfg.Region),
		awsCfg.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		awsCfg.WithEndpointResolverWithOptions(customResolver),
	)
	if err != nil {
		log.Printf("ERROR: Failed to load AWS SDK config for S3: %v", err)
		return nil, err
	}

	// Path-style addressing is required by most S3-compatible services.
	s3Client := s3.NewFromConfig(awsSDKConfig, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	presignClient := s3.NewPresignClient(s3Client)

	log.Printf("Plan archive initialized for endpoint: %s, bucket: %s", cfg.Endpoint, cfg.BucketName)

	return &s3Archiver{
		client:        s3Client,
		presignClient: presignClient,
		bucketName:    cfg.BucketName,
	}, nil
}

// ArchivePlan serializes the plan and its sessions and writes them under
// plans/<userId>/<weekStart>-<uuid>.json.
func (s *s3Archiver) ArchivePlan(ctx context.Context, plan *domain.WeeklyPlan, sessions []domain.Session) (string, error) {
	snapshot := planSnapshot{
		Plan:       plan,
		Sessions:   sessions,
		ArchivedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return "", err
	}

	objectKey := path.Join(
		"plans",
		plan.UserID.Hex(),
		fmt.Sprintf("%s-%s.json", plan.WeekStart.Format("2006-01-02"), uuid.NewString()),
	)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		log.Printf("ERROR: Failed to archive plan %s to '%s': %v", plan.ID.Hex(), objectKey, err)
		return "", err
	}

	return objectKey, nil
}

// ArchiveDownloadURL creates a temporary URL for downloading a snapshot (GET).
func (s *s3Archiver) ArchiveDownloadURL(ctx context.Context, objectKey string, expires time.Duration) (string, error) {
	if expires <= 0 {
		expires = DefaultArchiveURLExpiry
	}

	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(objectKey),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		log.Printf("ERROR: Failed to generate presigned GET URL for key '%s': %v", objectKey, err)
		return "", err
	}

	return req.URL, nil
}
