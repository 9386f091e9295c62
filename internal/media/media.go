// Package media stores images sent to the bot in the public uploads directory.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 10 * 1024 * 1024
	defaultExt      = ".jpg"
	filePrefix      = "post-"
)

// ErrNotImage is returned when the downloaded file is not an image.
var ErrNotImage = errors.New("file is not an image")

// FileResolver turns a Telegram file ID into a download URL.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Config controls where images are written and how they are fetched.
type Config struct {
	Dir       string
	URLPrefix string
	Timeout   time.Duration
	MaxBytes  int64
}

// Store downloads Telegram photos and writes them to the uploads directory.
type Store struct {
	resolver FileResolver
	client   *http.Client
	dir      string
	prefix   string
	timeout  time.Duration
	maxBytes int64
	logger   *slog.Logger
}

// NewStore creates the uploads directory if needed and returns a Store.
func NewStore(resolver FileResolver, cfg Config, logger *slog.Logger) (*Store, error) {
	if resolver == nil {
		return nil, errors.New("media store requires a file resolver")
	}
	if cfg.Dir == "" {
		return nil, errors.New("media store requires an uploads directory")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create uploads directory %q: %w", cfg.Dir, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		resolver: resolver,
		client:   &http.Client{Timeout: cfg.Timeout},
		dir:      cfg.Dir,
		prefix:   strings.TrimSuffix(cfg.URLPrefix, "/"),
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBytes,
		logger:   logger.With("component", "media"),
	}, nil
}

// SaveImage downloads the file and returns the public URL of the stored copy.
func (s *Store) SaveImage(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", errors.New("empty fileID provided")
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("context cancelled before file download: %w", ctx.Err())
	}

	downloadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	link, err := s.resolver.FileURL(downloadCtx, fileID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file: %w", err)
	}

	data, err := s.download(downloadCtx, link)
	if err != nil {
		return "", err
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: detected %s", ErrNotImage, mtype.String())
	}
	ext := mtype.Extension()
	if ext == "" {
		ext = defaultExt
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate file name: %w", err)
	}
	name := filePrefix + id.String() + ext

	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image %s: %w", name, err)
	}

	s.logger.InfoContext(ctx, "Image saved", "file", name, "bytes", len(data), "mime", mtype.String())
	return s.prefix + "/" + name, nil
}

func (s *Store) download(ctx context.Context, link string) (data []byte, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file data: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("received empty file data")
	}
	return data, nil
}
