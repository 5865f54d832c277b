package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favesave/internal/model"
)

func TestClassify(t *testing.T) {
	live := context.Background()
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name    string
		ctx     context.Context
		err     error
		kind    model.OutcomeKind
		blocked bool
	}{
		{"success", live, nil, model.OutcomeDownloaded, false},
		{"cancelled sentinel", live, ErrCancelled, model.OutcomeCancelled, false},
		{"wrapped cancellation", live, fmt.Errorf("wrap: %w", context.Canceled), model.OutcomeCancelled, false},
		{"failure after cancel", cancelled, errors.New("boom"), model.OutcomeCancelled, false},
		{"blocked", live, &BlockedError{Message: "denied"}, model.OutcomeFailed, true},
		{"wrapped blocked", live, fmt.Errorf("ctx: %w", &BlockedError{Message: "denied"}), model.OutcomeFailed, true},
		{"generic", live, errors.New("404"), model.OutcomeFailed, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := Classify(tc.ctx, tc.err, time.Second)
			assert.Equal(t, tc.kind, out.Kind)
			assert.Equal(t, tc.blocked, out.Blocked)
		})
	}
}

func TestRun_ShortCircuitsWhenAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	f := FetcherFunc(func(ctx context.Context, req Request) (Result, error) {
		called = true
		return Result{}, nil
	})
	out := Run(ctx, f, Request{URL: "https://t/1"})
	assert.Equal(t, model.OutcomeCancelled, out.Kind)
	assert.False(t, called)
}

func TestRun_RecoversPanics(t *testing.T) {
	f := FetcherFunc(func(ctx context.Context, req Request) (Result, error) {
		panic("backend exploded")
	})
	out := Run(context.Background(), f, Request{URL: "https://t/1"})
	assert.Equal(t, model.OutcomeFailed, out.Kind)
	assert.Contains(t, out.Message, "backend exploded")
}

func TestDirectMediaExt(t *testing.T) {
	assert.Equal(t, ".mp4", DirectMediaExt("https://cdn.example.com/a/b.MP4?sig=1"))
	assert.Equal(t, ".mp3", DirectMediaExt("https://cdn.example.com/x.mp3"))
	assert.Empty(t, DirectMediaExt("https://www.tiktokv.com/share/video/123/"))
	assert.Empty(t, DirectMediaExt("://bad"))
}

func TestHTTPFetcher_WritesDeterministicFilename(t *testing.T) {
	payload := strings.Repeat("x", 100*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	defer srv.Close()

	dir := t.TempDir()
	f := NewHTTPFetcher(HTTPOptions{})
	defer f.Close()

	var lines int
	res, err := f.Fetch(context.Background(), Request{
		URL:      srv.URL + "/media/abc123.mp4",
		Dir:      dir,
		Label:    "faved_2024-01-01_",
		Progress: func(string) { lines++ },
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "faved_2024-01-01_abc123.mp4"), res.Path)
	assert.Equal(t, int64(len(payload)), res.Bytes)
	assert.Positive(t, lines)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Len(t, data, len(payload))
}

func TestHTTPFetcher_ForbiddenIsBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	defer f.Close()

	_, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/v.mp4", Dir: t.TempDir(), Label: "liked_"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestHTTPFetcher_NotFoundIsGenericFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{})
	defer f.Close()

	dir := t.TempDir()
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/v.mp4", Dir: dir, Label: "liked_"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlocked)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHTTPFetcher_CancelMidTransferRemovesPartial(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("y", 64*1024)))
		w.(http.Flusher).Flush()
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	f := NewHTTPFetcher(HTTPOptions{})
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	dir := t.TempDir()
	_, err := f.Fetch(ctx, Request{URL: srv.URL + "/slow.mp4", Dir: dir, Label: "shared_"})
	require.Error(t, err)
	assert.Equal(t, model.OutcomeCancelled, Classify(ctx, err, 0).Kind)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHTTPFetcher_RateLimitStillCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("z", 8*1024)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{LimitMBps: 1})
	defer f.Close()

	res, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/v.m4a", Dir: t.TempDir(), Label: "faved_"})
	require.NoError(t, err)
	assert.Equal(t, int64(8*1024), res.Bytes)
}

func TestRouter_PicksBackendByURL(t *testing.T) {
	var got []string
	named := func(name string) Fetcher {
		return FetcherFunc(func(ctx context.Context, req Request) (Result, error) {
			got = append(got, name)
			return Result{}, nil
		})
	}
	r := Router{Extractor: named("ytdlp"), Direct: named("http"), Mode: ModeAuto}

	_, _ = r.Fetch(context.Background(), Request{URL: "https://www.tiktokv.com/share/video/1/"})
	_, _ = r.Fetch(context.Background(), Request{URL: "https://cdn.example.com/1.mp4"})
	assert.Equal(t, []string{"ytdlp", "http"}, got)

	r.Mode = ModeYTDLP
	_, _ = r.Fetch(context.Background(), Request{URL: "https://cdn.example.com/2.mp4"})
	assert.Equal(t, "ytdlp", got[len(got)-1])

	_, err := Router{Mode: ModeHTTP}.Fetch(context.Background(), Request{URL: "https://x/1.mp4"})
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	m, err = ParseMode(" HTTP ")
	require.NoError(t, err)
	assert.Equal(t, ModeHTTP, m)

	_, err = ParseMode("curl")
	assert.Error(t, err)
}
