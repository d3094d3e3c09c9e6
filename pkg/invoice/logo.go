package invoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// maxLogoSize caps the bytes read for a single logo.
const maxLogoSize = 2 << 20

// LogoFetcher loads the raw image bytes behind a merchant logo reference.
type LogoFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// LogoFetcherFunc adapts a function to LogoFetcher.
type LogoFetcherFunc func(ctx context.Context, ref string) ([]byte, error)

func (f LogoFetcherFunc) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return f(ctx, ref)
}

// HTTPLogoFetcher downloads http(s) logo URLs.
type HTTPLogoFetcher struct {
	client *http.Client
}

// NewHTTPLogoFetcher uses client, or http.DefaultClient when nil. Deadlines
// come from the context passed to Fetch.
func NewHTTPLogoFetcher(client *http.Client) *HTTPLogoFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLogoFetcher{client: client}
}

func (f *HTTPLogoFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, errors.Join(ErrUnsupportedLogo, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrLogoFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrLogoNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrLogoFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLogoSize))
	if err != nil {
		return nil, errors.Join(ErrLogoFetchFailed, err)
	}
	return body, nil
}

// S3GetObjectAPI is the part of the S3 client used for logos.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the bucket client used for s3:// logo references.
type S3Config struct {
	Region         string `env:"LOGO_S3_REGION"`
	AccessKeyID    string `env:"LOGO_S3_ACCESS_KEY_ID"`
	SecretKey      string `env:"LOGO_S3_SECRET_KEY"`
	Endpoint       string `env:"LOGO_S3_ENDPOINT"`
	ForcePathStyle bool   `env:"LOGO_S3_FORCE_PATH_STYLE" envDefault:"false"`
}

// Enabled reports whether a region was configured.
func (c S3Config) Enabled() bool {
	return c.Region != ""
}

// S3LogoFetcher reads s3://bucket/key references.
type S3LogoFetcher struct {
	client S3GetObjectAPI
}

// NewS3LogoFetcher wraps an existing client.
func NewS3LogoFetcher(client S3GetObjectAPI) *S3LogoFetcher {
	return &S3LogoFetcher{client: client}
}

// NewS3LogoFetcherFromConfig loads AWS configuration (static credentials
// when given, the default chain otherwise) and builds the client.
func NewS3LogoFetcherFromConfig(ctx context.Context, cfg S3Config) (*S3LogoFetcher, error) {
	if cfg.Region == "" {
		return nil, ErrInvalidS3Config
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Join(ErrAWSConfig, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3LogoFetcher(client), nil
}

func (f *S3LogoFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLogo, ref)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return nil, fmt.Errorf("%w: %q has no key", ErrUnsupportedLogo, ref)
	}

	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.Host),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil, ErrLogoNotFound
		}
		return nil, errors.Join(ErrLogoFetchFailed, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxLogoSize))
	if err != nil {
		return nil, errors.Join(ErrLogoFetchFailed, err)
	}
	return body, nil
}

// SchemeLogoFetcher routes a reference to the fetcher registered for its
// URL scheme.
type SchemeLogoFetcher map[string]LogoFetcher

func (m SchemeLogoFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, errors.Join(ErrUnsupportedLogo, err)
	}
	f, ok := m[strings.ToLower(u.Scheme)]
	if !ok || f == nil {
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedLogo, u.Scheme)
	}
	return f.Fetch(ctx, ref)
}
