package storage

import (
	"context"
	"errors"
	"io"
	"log"

	"inkwell-backend/internal/apperr"
	"inkwell-backend/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	MinioClient    *minio.Client
	bucketName     string
	publicEndpoint string
)

// InitMinio initializes the MinIO client and creates the bucket if it does
// not exist yet. Uploaded objects are publicly readable.
func InitMinio(cfg *config.Config) {
	bucketName = cfg.MinioBucket
	publicEndpoint = cfg.MinioPublicEndpoint

	var err error
	MinioClient, err = minio.New(
		cfg.MinioEndpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
			Secure: false,
		})
	if err != nil {
		log.Fatalf("MinIO initialization error: %v", err)
	}

	exists, err := MinioClient.BucketExists(context.Background(), bucketName)
	if err != nil {
		log.Fatalf("Bucket check error: %v", err)
	}

	if !exists {
		err = MinioClient.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{})
		if err != nil {
			log.Fatalf("Error creating bucket: %v", err)
		}

		policy := `{
		"Version": "2012-10-17",
		"Statement": [
			{
				"Effect": "Allow",
				"Principal": "*",
				"Action": "s3:GetObject",
				"Resource": "arn:aws:s3:::` + bucketName + `/*"
			}
		]
	}`

		err = MinioClient.SetBucketPolicy(context.Background(), bucketName, policy)
		if err != nil {
			log.Fatalln(err)
		}
		log.Printf("Bucket %s created and set to public", bucketName)
	}
}

// UploadFile streams src into the bucket and returns the durable public URL.
func UploadFile(ctx context.Context, filename string, src io.Reader, fileSize int64, mimeType string) (string, error) {
	_, err := MinioClient.PutObject(
		ctx,
		bucketName,
		filename,
		src,
		fileSize,
		minio.PutObjectOptions{ContentType: mimeType},
	)
	if err != nil {
		return "", apperr.NewDependency("File upload error", err)
	}

	return GetUrl(filename), nil
}

func DeleteFile(ctx context.Context, filename string) error {
	_, err := MinioClient.StatObject(ctx, bucketName, filename, minio.StatObjectOptions{})
	if err != nil {
		var minioErr minio.ErrorResponse
		if errors.As(err, &minioErr) && minioErr.Code == "NoSuchKey" {
			return apperr.NewNotFound("File not found")
		}
		return apperr.NewDependency("Error checking file existence", err)
	}
	if err = MinioClient.RemoveObject(ctx, bucketName, filename, minio.RemoveObjectOptions{}); err != nil {
		return apperr.NewDependency("Failed to delete file from storage", err)
	}
	return nil
}

func GetUrl(filename string) string {
	return publicEndpoint + "/" + bucketName + "/" + filename
}
