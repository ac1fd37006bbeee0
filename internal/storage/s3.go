package storage

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"voicecard/internal/domain"
)

type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

// S3Client is the subset of the S3 API the asset store uses.
type S3Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Assets stores files as objects keyed <kind>/<filename>.
type S3Assets struct {
	client    S3Client
	bucket    string
	publicURL string
}

func NewS3Assets(ctx context.Context, opts S3Options) (*S3Assets, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3AssetsWithClient(client, opts), nil
}

func NewS3AssetsWithClient(client S3Client, opts S3Options) *S3Assets {
	public := strings.TrimRight(opts.PublicURL, "/")
	if public == "" {
		public = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
	}
	return &S3Assets{client: client, bucket: opts.Bucket, publicURL: public}
}

func (sa *S3Assets) Put(ctx context.Context, kind AssetKind, srcPath string) (domain.Asset, error) {
	file, err := os.Open(srcPath)
	if err != nil {
		return domain.Asset{}, fmt.Errorf("open %s asset: %w", kind, err)
	}
	defer file.Close()

	name := newAssetName(srcPath)
	input := &s3.PutObjectInput{
		Bucket: aws.String(sa.bucket),
		Key:    aws.String(objectKey(kind, name)),
		Body:   file,
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := sa.client.PutObject(ctx, input); err != nil {
		return domain.Asset{}, fmt.Errorf("upload %s asset: %w", kind, err)
	}
	_ = os.Remove(srcPath)

	return sa.asset(kind, name), nil
}

func (sa *S3Assets) Copy(ctx context.Context, kind AssetKind, filename string) (domain.Asset, error) {
	name := newAssetName(filename)
	source := url.PathEscape(sa.bucket) + "/" + objectKey(kind, filename)

	_, err := sa.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(sa.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(objectKey(kind, name)),
	})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("copy %s asset: %w", kind, err)
	}
	return sa.asset(kind, name), nil
}

func (sa *S3Assets) Remove(ctx context.Context, kind AssetKind, filename string) error {
	if filename == "" {
		return nil
	}
	_, err := sa.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(sa.bucket),
		Key:    aws.String(objectKey(kind, filename)),
	})
	if err != nil {
		return fmt.Errorf("delete %s asset: %w", kind, err)
	}
	return nil
}

func (sa *S3Assets) asset(kind AssetKind, name string) domain.Asset {
	return domain.Asset{
		Filename: name,
		URL:      sa.publicURL + "/" + objectKey(kind, name),
	}
}

func objectKey(kind AssetKind, filename string) string {
	return string(kind) + "/" + filepath.Base(filename)
}
