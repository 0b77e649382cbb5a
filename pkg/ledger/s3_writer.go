package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

var (
	ErrInvalidS3Config = errors.New("invalid ledger archive config")
	ErrArchiveFailed   = errors.New("ledger archive upload failed")
)

// S3Config points the archive at a bucket. An empty Bucket disables it.
type S3Config struct {
	Bucket         string `env:"LEDGER_S3_BUCKET"`
	Region         string `env:"LEDGER_S3_REGION" envDefault:"us-east-1"`
	Prefix         string `env:"LEDGER_S3_PREFIX" envDefault:"ledger"`
	AccessKeyID    string `env:"LEDGER_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"LEDGER_S3_SECRET_KEY"`
	Endpoint       string `env:"LEDGER_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"LEDGER_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// Enabled reports whether a bucket is configured.
func (c S3Config) Enabled() bool { return c.Bucket != "" }

// S3Putter is the part of the S3 client the archive uses.
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Option configures NewS3Writer.
type S3Option func(*s3Options)

type s3Options struct {
	client        S3Putter
	configOptions []func(*awsconfig.LoadOptions) error
}

// WithS3Client uses a pre-built client instead of loading AWS config.
func WithS3Client(c S3Putter) S3Option {
	return func(o *s3Options) { o.client = c }
}

// WithS3ConfigOption adds an AWS config loader option.
func WithS3ConfigOption(opt func(*awsconfig.LoadOptions) error) S3Option {
	return func(o *s3Options) { o.configOptions = append(o.configOptions, opt) }
}

// S3Writer archives every batch as one JSON Lines object under
// <prefix>/YYYY/MM/DD/<batch hash>.jsonl. The key depends only on the batch
// content, so a retried batch overwrites its own object.
type S3Writer struct {
	client S3Putter
	bucket string
	prefix string
}

func NewS3Writer(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Writer, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidS3Config
	}

	o := &s3Options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		loadOpts = append(loadOpts, o.configOptions...)

		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Join(ErrInvalidS3Config, err)
		}
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Writer{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// KeyFor returns the object key a batch is stored under.
func (w *S3Writer) KeyFor(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.ID))
	}
	day := entries[0].At.UTC().Format("2006/01/02")
	return path.Join(w.prefix, day, hex.EncodeToString(h.Sum(nil))[:32]+".jsonl")
}

func (w *S3Writer) StoreBatch(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return errors.Join(ErrEncodeEntry, err)
		}
	}

	key := w.KeyFor(entries)
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return errors.Join(ErrArchiveFailed, fmt.Errorf("%s: %s: %s", key, apiErr.ErrorCode(), apiErr.ErrorMessage()))
		}
		return errors.Join(ErrArchiveFailed, err)
	}
	return nil
}
