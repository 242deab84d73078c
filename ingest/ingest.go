// Package ingest makes the recipe's dataset_path available as a local path.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kbukum/dataflow/errors"
	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/resilience"
)

// Ingester resolves the dataset source to a local file or directory.
type Ingester interface {
	Ingest(ctx context.Context) (string, error)
}

// New returns an HTTPIngester for http(s) URLs and a LocalIngester for
// everything else.
func New(source, workDir string, retry resilience.RetryConfig, log *logger.Logger) Ingester {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return &HTTPIngester{URL: source, WorkDir: workDir, Retry: retry, Log: log}
	}
	return LocalIngester{Path: source}
}

// LocalIngester passes a local path through after checking it exists.
type LocalIngester struct {
	Path string
}

// Ingest implements Ingester.
func (l LocalIngester) Ingest(_ context.Context) (string, error) {
	if _, err := os.Stat(l.Path); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound("dataset", l.Path)
		}
		return "", errors.InvalidInput("dataset_path", err.Error())
	}
	return l.Path, nil
}

// HTTPIngester downloads the dataset to WorkDir/input. Transport failures,
// 429 and 5xx responses are retried.
type HTTPIngester struct {
	URL     string
	WorkDir string
	Client  *http.Client
	Retry   resilience.RetryConfig
	Log     *logger.Logger
}

// Ingest implements Ingester.
func (h *HTTPIngester) Ingest(ctx context.Context) (string, error) {
	u, err := url.Parse(h.URL)
	if err != nil {
		return "", errors.InvalidInput("dataset_path", err.Error())
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "dataset.jsonl"
	}
	dir := filepath.Join(h.WorkDir, "input")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(dir, name)

	log := h.Log
	if log == nil {
		log = logger.NewNop()
	}
	cfg := h.Retry
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("download failed, retrying", logger.Fields(
			"attempt", attempt,
			logger.FieldError, err.Error(),
			"backoff_ms", backoff.Milliseconds(),
		))
	}
	n, err := resilience.Retry(ctx, cfg, func() (int64, error) {
		return h.download(ctx, dst)
	})
	if err != nil {
		return "", err
	}
	log.Info("dataset downloaded", logger.Fields("url", h.URL, "path", dst, "bytes", n))
	return dst, nil
}

func (h *HTTPIngester) download(ctx context.Context, dst string) (int64, error) {
	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return 0, errors.InvalidInput("dataset_path", err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errors.ExternalServiceError("dataset source", err)
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return 0, err
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, errors.ExternalServiceError("dataset source", err)
	}
	return n, os.Rename(tmp, dst)
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return errors.NotFound("dataset", "")
	case code == http.StatusTooManyRequests || code >= 500:
		return errors.ExternalServiceError("dataset source", fmt.Errorf("HTTP %d", code))
	default:
		err := errors.ExternalServiceError("dataset source", fmt.Errorf("HTTP %d", code))
		err.Retryable = false
		return err
	}
}
