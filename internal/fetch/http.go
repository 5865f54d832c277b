package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"resty.dev/v3"

	"favesave/internal/model"
	"favesave/internal/runstore"
)

const copyChunk = 32 * 1024

// DirectMediaExt returns the media extension of a URL whose path points
// straight at a media file, or "" otherwise.
func DirectMediaExt(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".mp4", ".m4a", ".mp3":
		return ext
	default:
		return ""
	}
}

type HTTPOptions struct {
	// LimitMBps caps throughput per fetch; 0 disables the cap.
	LimitMBps float64
	// Timeout bounds the whole request; 0 means none.
	Timeout   time.Duration
	UserAgent string
}

// HTTPFetcher streams direct media URLs to disk without yt-dlp.
type HTTPFetcher struct {
	client    *resty.Client
	limitBps  float64
	chunkSize int
}

func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	client := resty.New()
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "favesave"
	}
	client.SetHeader("User-Agent", ua)
	return &HTTPFetcher{
		client:    client,
		limitBps:  opts.LimitMBps * 1024 * 1024,
		chunkSize: copyChunk,
	}
}

func (f *HTTPFetcher) Close() error {
	return f.client.Close()
}

func (f *HTTPFetcher) newLimiter() *rate.Limiter {
	if f.limitBps <= 0 {
		return nil
	}
	burst := int(f.limitBps)
	if burst < f.chunkSize {
		burst = f.chunkSize
	}
	return rate.NewLimiter(rate.Limit(f.limitBps), burst)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := Checkpoint(ctx); err != nil {
		return Result{}, err
	}
	ext := DirectMediaExt(req.URL)
	if ext == "" {
		return Result{}, fmt.Errorf("not a direct media URL: %s", req.URL)
	}
	target := filepath.Join(req.Dir, req.Label+model.MediaID(req.URL)+ext)

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ErrCancelled
		}
		return Result{}, fmt.Errorf("request %s: %w", req.URL, err)
	}
	body := resp.RawResponse.Body
	defer body.Close()

	switch code := resp.StatusCode(); {
	case code == http.StatusForbidden || code == http.StatusUnavailableForLegalReasons:
		return Result{}, &BlockedError{Message: fmt.Sprintf("HTTP %d from %s", code, req.URL)}
	case resp.IsError() || code >= 300:
		return Result{}, fmt.Errorf("unexpected status %d from %s", code, req.URL)
	}

	if err := runstore.Mkdir(req.Dir); err != nil {
		return Result{}, err
	}
	tmp, err := os.CreateTemp(req.Dir, ".favesave-part-*")
	if err != nil {
		return Result{}, fmt.Errorf("create partial file: %w", err)
	}
	tmpPath := tmp.Name()

	n, copyErr := f.copyWithCheckpoints(ctx, tmp, body, req.Progress)
	closeErr := tmp.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return Result{}, copyErr
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return Result{}, fmt.Errorf("finalize %s: %w", target, err)
	}
	return Result{Path: target, Bytes: n}, nil
}

// copyWithCheckpoints checks for cancellation before every chunk.
func (f *HTTPFetcher) copyWithCheckpoints(ctx context.Context, w io.Writer, r io.Reader, progress func(string)) (int64, error) {
	limiter := f.newLimiter()
	buf := make([]byte, f.chunkSize)
	var total int64
	for {
		if err := Checkpoint(ctx); err != nil {
			return total, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if limiter != nil {
				if werr := limiter.WaitN(ctx, n); werr != nil {
					return total, ErrCancelled
				}
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("write media: %w", werr)
			}
			total += int64(n)
			if progress != nil {
				progress(fmt.Sprintf("[download] %d bytes", total))
			}
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return total, ErrCancelled
			}
			return total, fmt.Errorf("read media: %w", err)
		}
	}
}
