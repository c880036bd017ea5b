// Package upload proxies user file uploads to object storage behind a
// per-account rate limit.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/glenn-app/glenn-backend/internal/logger"
	"github.com/glenn-app/glenn-backend/internal/metrics"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

var (
	ErrNoFile       = errors.New("no file provided")
	ErrFileTooLarge = errors.New("file too large")
)

// LimitError reports which window an account has exhausted.
type LimitError struct {
	Count  int
	Max    int
	Window string // minute or hour
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("Rate limit exceeded: %d uploads in last %s. Max is %d/%s.", e.Count, e.Window, e.Max, e.Window)
}

// File is an incoming upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Options configures a Service.
type Options struct {
	MaxFileBytes  int64
	DefaultFolder string
	TagPrefix     string
}

// Service validates, renames and stores uploads.
type Service struct {
	provider Provider
	limiter  Limiter
	opts     Options
	log      *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewService wires a provider and limiter.
func NewService(provider Provider, limiter Limiter, opts Options, log *logger.Logger, m *metrics.Metrics) *Service {
	if opts.DefaultFolder == "" {
		opts.DefaultFolder = "avatars"
	}
	if opts.TagPrefix == "" {
		opts.TagPrefix = "glenn-app"
	}
	return &Service{
		provider: provider,
		limiter:  limiter,
		opts:     opts,
		log:      log.Named("upload"),
		metrics:  m,
		now:      time.Now,
	}
}

// Upload stores f under folder. When userID is set the upload is checked
// against and then counted toward that account's quota. Only successful
// uploads count.
func (s *Service) Upload(ctx context.Context, userID, folder string, f *File) (*Result, error) {
	if f == nil || f.Body == nil {
		return nil, ErrNoFile
	}
	if s.opts.MaxFileBytes > 0 && f.Size > s.opts.MaxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, f.Size, s.opts.MaxFileBytes)
	}

	if userID != "" {
		if err := s.limiter.Check(ctx, userID); err != nil {
			return nil, err
		}
	}

	folder = s.folder(folder)
	obj := Object{
		FileName:    FileName(f.Name, s.now()),
		Folder:      folder,
		Tags:        []string{s.opts.TagPrefix, folder},
		ContentType: f.ContentType,
		Size:        f.Size,
		Body:        f.Body,
	}

	log := s.log.WithContext(ctx).With(
		zap.String("provider", s.provider.Name()),
		zap.String("user_id", userID),
		zap.String("file_name", obj.FileName),
	)

	res, err := s.provider.Upload(ctx, obj)
	if err != nil {
		s.metrics.Upload(s.provider.Name(), false)
		log.Error("upload failed", zap.Error(err))
		return nil, err
	}
	s.metrics.Upload(s.provider.Name(), true)

	if userID != "" {
		if err := s.limiter.Record(ctx, userID); err != nil {
			log.Warn("failed to record upload for rate limiting", zap.Error(err))
		}
	}
	log.Info("upload stored", zap.String("url", res.URL))
	return res, nil
}

// Usage returns the account's current quota usage.
func (s *Service) Usage(ctx context.Context, userID string) (Usage, error) {
	return s.limiter.Usage(ctx, userID)
}

func (s *Service) folder(folder string) string {
	parts := strings.Split(strings.Trim(folder, "/ "), "/")
	cleaned := parts[:0]
	for _, p := range parts {
		if p = slug.Make(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return s.opts.DefaultFolder
	}
	return strings.Join(cleaned, "/")
}

// FileName turns a client-supplied name into a unique storage name: the
// millisecond timestamp, an underscore, then the slugged base name and
// extension.
func FileName(name string, now time.Time) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := path.Ext(name)
	base := slug.Make(strings.TrimSuffix(name, ext))
	if base == "" {
		base = "file"
	}
	ext = slug.Make(strings.TrimPrefix(ext, "."))
	if ext != "" {
		ext = "." + ext
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + base + ext
}
