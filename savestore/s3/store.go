package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"visforge/forge"
)

const saveExt = ".json"

// Store keeps save slots as objects in an S3-compatible bucket (AWS S3 or
// MinIO). Slot names map to keys under an optional prefix.
type Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	primary string
}

// Config holds explicit construction parameters. Unset credentials fall back
// to the default AWS credential chain.
type Config struct {
	Region          string
	Bucket          string
	Prefix          string // optional key prefix, e.g. "saves/"
	Endpoint        string // optional; if set enables custom endpoint (e.g. MinIO)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
	// Primary names the primary currency legacy saves are migrated into.
	Primary    string
	HTTPClient *http.Client
}

// Environment variables read by ConfigFromEnv:
//
//	VISFORGE_S3_BUCKET=<bucket> (required)
//	VISFORGE_S3_REGION=<region> (default us-east-1)
//	VISFORGE_S3_PREFIX=<prefix> (optional)
//	VISFORGE_S3_ENDPOINT=<url> (optional, for MinIO)
//	VISFORGE_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)
func ConfigFromEnv() Config {
	return Config{
		Bucket:    os.Getenv("VISFORGE_S3_BUCKET"),
		Region:    os.Getenv("VISFORGE_S3_REGION"),
		Prefix:    os.Getenv("VISFORGE_S3_PREFIX"),
		Endpoint:  os.Getenv("VISFORGE_S3_ENDPOINT"),
		PathStyle: strings.EqualFold(os.Getenv("VISFORGE_S3_PATH_STYLE"), "true"),
	}
}

// New creates a store from cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.HTTPClient != nil {
			o.HTTPClient = cfg.HTTPClient
		}
	})
	return &Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, primary: cfg.Primary}, nil
}

func (s *Store) Bucket() string { return s.bucket }

func (s *Store) keyFor(slot string) (string, error) {
	if strings.TrimSpace(slot) == "" {
		return "", fmt.Errorf("empty slot")
	}
	if strings.Contains(slot, "/") {
		return "", fmt.Errorf("invalid slot contains '/'")
	}
	return s.prefix + slot + saveExt, nil
}

func (s *Store) Load(ctx context.Context, slot string) (*forge.SaveFile, error) {
	key, err := s.keyFor(slot)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, forge.ErrSaveNotFound
		}
		return nil, err
	}
	defer func() { _ = out.Body.Close() }()

	content, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, err
	}
	return forge.DecodeSave(content, s.primary)
}

func (s *Store) Save(ctx context.Context, slot string, save *forge.SaveFile) error {
	key, err := s.keyFor(slot)
	if err != nil {
		return err
	}
	content, err := forge.EncodeSave(save)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/json"),
	})
	return err
}

// Delete removes a slot. S3 does not report whether the object existed, so
// a successful delete always reports true.
func (s *Store) Delete(ctx context.Context, slot string) (bool, error) {
	key, err := s.keyFor(slot)
	if err != nil {
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &s.bucket, Key: &key}); err != nil {
		return false, err
	}
	return true, nil
}

// Slots lists the stored slot names in order.
func (s *Store) Slots(ctx context.Context) ([]string, error) {
	var slots []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: &s.bucket, Prefix: &s.prefix, ContinuationToken: token})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if strings.Contains(name, "/") || !strings.HasSuffix(name, saveExt) {
				continue
			}
			slots = append(slots, strings.TrimSuffix(name, saveExt))
		}
		if out.IsTruncated != nil && *out.IsTruncated && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(slots)
	return slots, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
