package transfer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Dialer struct {
	cfg Config
}

func (d *s3Dialer) Dial(ctx context.Context) (Session, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        16,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: dialTimeout,
			ForceAttemptHTTP2:   true,
		},
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(d.cfg.User, d.cfg.Password, ""),
		),
		awsconfig.WithRegion(d.cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 config: %w", err)
	}

	scheme := "http"
	if d.cfg.Secure {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port)))

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	// HeadBucket stands in for a connection handshake: it surfaces bad
	// endpoints and credentials at dial time rather than mid-upload.
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(d.cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("s3 head bucket %s: %w", d.cfg.Bucket, err)
	}

	return &s3Session{ctx: ctx, client: client, bucket: d.cfg.Bucket}, nil
}

type s3Session struct {
	ctx    context.Context
	client *s3.Client
	bucket string
}

// EnsureDir is a no-op: object stores have no directories.
func (s *s3Session) EnsureDir(dir string) error {
	return nil
}

func (s *s3Session) UploadFile(localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", localPath, err)
	}

	if _, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(remotePath),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}); err != nil {
		return fmt.Errorf("s3 put %s: %w", remotePath, err)
	}
	return nil
}

func (s *s3Session) Close() error {
	return nil
}
