package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/glenn-app/glenn-backend/internal/config"
	"github.com/google/uuid"
)

// Object is a sanitized file ready to be stored.
type Object struct {
	FileName    string
	Folder      string
	Tags        []string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Result describes a stored file.
type Result struct {
	URL      string `json:"url"`
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	FilePath string `json:"filePath"`
}

// Provider stores objects with an upstream service.
type Provider interface {
	Name() string
	Upload(ctx context.Context, obj Object) (*Result, error)
}

// UpstreamError carries a rejection from the storage service.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream rejected upload (status %d): %s", e.StatusCode, e.Body)
}

// ErrProviderNotConfigured is returned when credentials are missing.
var ErrProviderNotConfigured = errors.New("upload provider not configured")

// NewProvider builds the provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.UploadConfig) (Provider, error) {
	switch cfg.Provider {
	case config.UploadProviderImageKit, "":
		return NewImageKitProvider(cfg.ImageKit, 0), nil
	case config.UploadProviderS3:
		return NewS3Provider(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown upload provider %q", cfg.Provider)
	}
}

// ─── ImageKit ───────────────────────────────────────────────

const defaultImageKitUploadURL = "https://upload.imagekit.io/api/v1/files/upload"

// ImageKitProvider uploads through the ImageKit REST API.
type ImageKitProvider struct {
	privateKey  string
	publicKey   string
	urlEndpoint string
	uploadURL   string
	client      *http.Client
}

// NewImageKitProvider builds an ImageKit client. A zero timeout means 30s.
func NewImageKitProvider(cfg config.ImageKitConfig, timeout time.Duration) *ImageKitProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	uploadURL := cfg.UploadURL
	if uploadURL == "" {
		uploadURL = defaultImageKitUploadURL
	}
	return &ImageKitProvider{
		privateKey:  cfg.PrivateKey,
		publicKey:   cfg.PublicKey,
		urlEndpoint: cfg.URLEndpoint,
		uploadURL:   uploadURL,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *ImageKitProvider) Name() string { return config.UploadProviderImageKit }

type imageKitResponse struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	FilePath string `json:"filePath"`
	URL      string `json:"url"`
}

func (p *ImageKitProvider) Upload(ctx context.Context, obj Object) (*Result, error) {
	if p.privateKey == "" || p.publicKey == "" || p.urlEndpoint == "" {
		return nil, ErrProviderNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, obj.FileName))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, obj.Body); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}

	fields := map[string]string{
		"fileName":          obj.FileName,
		"folder":            "/" + obj.Folder,
		"useUniqueFileName": "false",
		"tags":              strings.Join(obj.Tags, ","),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.uploadURL, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(p.privateKey, "")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out imageKitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &Result{
		URL:      out.URL,
		FileID:   out.FileID,
		Name:     out.Name,
		Size:     out.Size,
		FilePath: out.FilePath,
	}, nil
}

// ─── S3-compatible ──────────────────────────────────────────

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Provider stores objects in an S3-compatible bucket such as R2 or MinIO.
type S3Provider struct {
	client        objectPutter
	bucket        string
	publicBaseURL string
}

// NewS3Provider builds a client from static credentials. A custom endpoint
// switches to path-style addressing.
func NewS3Provider(ctx context.Context, cfg config.S3Config) (*S3Provider, error) {
	if cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, ErrProviderNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	base := cfg.PublicBaseURL
	if base == "" && cfg.Endpoint != "" {
		base = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Provider{client: client, bucket: cfg.Bucket, publicBaseURL: strings.TrimRight(base, "/")}, nil
}

func (p *S3Provider) Name() string { return config.UploadProviderS3 }

func (p *S3Provider) Upload(ctx context.Context, obj Object) (*Result, error) {
	key := obj.Folder + "/" + obj.FileName

	buf, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	in := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
		Metadata:      map[string]string{"tags": strings.Join(obj.Tags, ",")},
	}
	if obj.ContentType != "" {
		in.ContentType = aws.String(obj.ContentType)
	}

	out, err := p.client.PutObject(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	fileID := uuid.NewString()
	if out != nil && out.ETag != nil {
		fileID = strings.Trim(*out.ETag, `"`)
	}
	return &Result{
		URL:      p.publicBaseURL + "/" + key,
		FileID:   fileID,
		Name:     obj.FileName,
		Size:     int64(len(buf)),
		FilePath: "/" + key,
	}, nil
}
