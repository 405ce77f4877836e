package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/proxylink-dev/proxylink/pkg/apperrors"
	"github.com/proxylink-dev/proxylink/pkg/models"
)

// ObjectAdapter executes get/put/delete/list against an S3-compatible
// object store. A fresh client is built per dispatch from the decrypted
// credentials; nothing credential-derived is cached.
type ObjectAdapter struct {
	limits Limits
}

// NewObjectAdapter creates an object-store adapter with the given limits.
func NewObjectAdapter(limits Limits) *ObjectAdapter {
	return &ObjectAdapter{limits: limits.withDefaults()}
}

var _ Adapter = (*ObjectAdapter)(nil)

func (a *ObjectAdapter) ValidateConfig(config map[string]any) error {
	if _, err := stringField(config, "bucket"); err != nil {
		return err
	}
	if _, err := stringField(config, "region"); err != nil {
		return err
	}
	return nil
}

func (a *ObjectAdapter) Execute(ctx context.Context, config, credentials map[string]any, op models.Operation) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.limits.Timeout)
	defer cancel()

	client, err := a.newClient(ctx, config, credentials)
	if err != nil {
		return nil, classifyErr(ctx, err)
	}

	bucket := optStringField(config, "bucket")
	key := optStringField(config, "prefix") + op.Key

	switch op.Action {
	case models.ObjectGet:
		return a.getObject(ctx, client, bucket, key)
	case models.ObjectPut:
		return a.putObject(ctx, client, bucket, key, op.Content)
	case models.ObjectDelete:
		return a.deleteObject(ctx, client, bucket, key)
	case models.ObjectList:
		return a.listObjects(ctx, client, bucket, optStringField(config, "prefix")+op.Key)
	}
	return nil, apperrors.NewBackendError(apperrors.BackendUpstreamRejected,
		fmt.Errorf("unsupported object action %q", op.Action))
}

func (a *ObjectAdapter) newClient(ctx context.Context, config, credentials map[string]any) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(optStringField(config, "region")),
		awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			optStringField(credentials, "access_key_id"),
			optStringField(credentials, "secret_access_key"),
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := optStringField(config, "endpoint"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func (a *ObjectAdapter) getObject(ctx context.Context, client *s3.Client, bucket, key string) (*Result, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	defer out.Body.Close()

	// Read one byte past the cap so oversize payloads are rejected
	// instead of silently truncated.
	data, err := io.ReadAll(io.LimitReader(out.Body, a.limits.MaxResponseBytes+1))
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	if int64(len(data)) > a.limits.MaxResponseBytes {
		return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
			fmt.Errorf("object exceeds %d bytes", a.limits.MaxResponseBytes))
	}

	return &Result{Content: data}, nil
}

func (a *ObjectAdapter) putObject(ctx context.Context, client *s3.Client, bucket, key string, content []byte) (*Result, error) {
	if int64(len(content)) > a.limits.MaxResponseBytes {
		return nil, apperrors.NewBackendError(apperrors.BackendTooLarge,
			fmt.Errorf("payload exceeds %d bytes", a.limits.MaxResponseBytes))
	}

	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	return &Result{RowsAffected: 1}, nil
}

func (a *ObjectAdapter) deleteObject(ctx context.Context, client *s3.Client, bucket, key string) (*Result, error) {
	_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyErr(ctx, err)
	}
	return &Result{RowsAffected: 1}, nil
}

func (a *ObjectAdapter) listObjects(ctx context.Context, client *s3.Client, bucket, prefix string) (*Result, error) {
	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(a.limits.MaxRows)),
	})
	if err != nil {
		return nil, classifyErr(ctx, err)
	}

	keys := make([]string, 0, len(out.Contents))
	for _, obj := range out.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return &Result{Keys: keys}, nil
}
