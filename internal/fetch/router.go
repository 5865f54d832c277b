package fetch

import (
	"context"
	"fmt"
	"strings"
)

type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeYTDLP Mode = "ytdlp"
	ModeHTTP  Mode = "http"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeYTDLP:
		return ModeYTDLP, nil
	case ModeHTTP:
		return ModeHTTP, nil
	default:
		return "", fmt.Errorf("invalid fetch backend %q (expected auto, ytdlp, or http)", raw)
	}
}

// Router sends direct media URLs to the HTTP backend and everything else to
// the extractor backend.
type Router struct {
	Extractor Fetcher
	Direct    Fetcher
	Mode      Mode
}

func (r Router) Fetch(ctx context.Context, req Request) (Result, error) {
	backend, err := r.pick(req.URL)
	if err != nil {
		return Result{}, err
	}
	return backend.Fetch(ctx, req)
}

func (r Router) pick(rawURL string) (Fetcher, error) {
	switch r.Mode {
	case ModeHTTP:
		if r.Direct == nil {
			return nil, fmt.Errorf("http backend not configured")
		}
		return r.Direct, nil
	case ModeYTDLP:
		if r.Extractor == nil {
			return nil, fmt.Errorf("yt-dlp backend not configured")
		}
		return r.Extractor, nil
	default:
		if r.Direct != nil && DirectMediaExt(rawURL) != "" {
			return r.Direct, nil
		}
		if r.Extractor == nil {
			return nil, fmt.Errorf("yt-dlp backend not configured")
		}
		return r.Extractor, nil
	}
}
