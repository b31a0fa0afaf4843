package source

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Source is a struct that implements the Source interface for
// streaming input records from an object in an S3 bucket.
type S3Source struct {
	Name          string     // Name of the input source
	BucketName    string     // Name of the S3 bucket
	ObjectName    string     // Key of the object within the S3 bucket
	Region        string     // Optional AWS region override
	AccessKey     string     // Optional static credentials
	SecretKey     string     // Optional static credentials
	Client        *s3.Client // S3 client instance
	clientOnce    sync.Once  // Ensures client is initialized only once
	clientInitErr error      // Stores error from client initialization
}

// GetName returns the name of the input source.
func (a *S3Source) GetName() string {
	return a.Name
}

// GetPath returns the S3 bucket and object key of the input.
func (a *S3Source) GetPath() string {
	return a.BucketName + "/" + a.ObjectName
}

// Open fetches the object and hands back its body for streaming.
func (a *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if a.Client == nil {
		a.clientOnce.Do(func() {
			opts := []func(*config.LoadOptions) error{}
			if a.Region != "" {
				opts = append(opts, config.WithRegion(a.Region))
			}
			if a.AccessKey != "" {
				opts = append(opts, config.WithCredentialsProvider(
					credentials.NewStaticCredentialsProvider(a.AccessKey, a.SecretKey, "")))
			}
			cfg, err := config.LoadDefaultConfig(ctx, opts...)
			if err != nil {
				a.clientInitErr = fmt.Errorf("failed to load AWS config: %w", err)
				return
			}
			a.Client = s3.NewFromConfig(cfg)
		})
		if a.clientInitErr != nil {
			return nil, a.clientInitErr
		}
	}

	result, err := a.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.BucketName),
		Key:    aws.String(a.ObjectName),
	})
	if err != nil {
		return nil, err
	}
	return result.Body, nil
}

// NewS3Source creates a new S3Source for the given bucket and object
// key.
func NewS3Source(bucket, key, region string) (Source, error) {
	return &S3Source{Name: bucket + "/" + key, BucketName: bucket, ObjectName: key, Region: region}, nil
}
