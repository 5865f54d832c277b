package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favesave/internal/export"
	"favesave/internal/fetch"
	"favesave/internal/model"
	"favesave/internal/runstore"
	"favesave/internal/session"
)

const dataset = `{
  "Your Activity": {
    "Favorite Videos": {"FavoriteVideoList": [
      {"Date": "2023-01-01 10:00:00", "Link": "https://www.tiktokv.com/share/video/111/"},
      {"Date": "2024-06-01 08:30:15", "Link": "https://www.tiktokv.com/share/video/222/"}
    ]},
    "Like List": {"ItemFavoriteList": [
      {"date": "2024-02-02 00:00:00", "link": "https://www.tiktokv.com/share/video/333/"}
    ]},
    "Share History": {"ShareHistoryList": [
      {"Date": "2024-03-03 12:00:00", "Link": "https://www.tiktokv.com/share/video/444/"}
    ]}
  }
}`

type lines struct {
	mu  sync.Mutex
	all []string
}

func (l *lines) Logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.all = append(l.all, fmt.Sprintf(format, args...))
}
func (l *lines) Percent(int)                          {}
func (l *lines) Snapshot(model.Snapshot)              {}
func (l *lines) StateChanged(model.RunState)          {}
func (l *lines) FetchProgress(model.WorkItem, string) {}

func (l *lines) joined() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.all, "\n")
}

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user_data_tiktok.json")
	require.NoError(t, os.WriteFile(path, []byte(dataset), 0o644))
	return path
}

func writingFetcher(calls *[]string, mu *sync.Mutex) fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		mu.Lock()
		*calls = append(*calls, req.URL)
		mu.Unlock()
		path := filepath.Join(req.Dir, req.Label+model.MediaID(req.URL)+".mp4")
		return fetch.Result{Path: path}, os.WriteFile(path, []byte("v"), 0o644)
	})
}

func allOptions(path string) Options {
	return Options{DatasetPath: path, Faves: true, Likes: true, Shares: true, Concurrency: 2}
}

func TestRun_DefaultsDestinationNextToDataset(t *testing.T) {
	path := writeDataset(t)
	var mu sync.Mutex
	var calls []string
	rep := &lines{}

	res, err := Run(context.Background(), allOptions(path), Deps{
		Fetcher:  writingFetcher(&calls, &mu),
		Reporter: rep,
		Logger:   quietLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Downloaded)
	assert.Equal(t, model.StateCompleted, res.State)
	assert.Equal(t, 2, res.DownloadedByCategory[model.CategoryFaved])

	dir := filepath.Join(filepath.Dir(path), DefaultDirName)
	_, err = os.Stat(filepath.Join(dir, "faved_2024-06-01-08-30-15_222.mp4"))
	assert.NoError(t, err)

	out := rep.joined()
	assert.Contains(t, out, "Download folder: "+dir)
	assert.Contains(t, out, "Total candidates: 4")
	assert.Contains(t, out, "Date filter: off")
	assert.Contains(t, out, "Downloaded: 4, already present: 0")

	_, err = os.Stat(filepath.Join(dir, ".favesave.lock"))
	assert.True(t, os.IsNotExist(err), "lock must be released")
}

func TestRun_DateCutoffIsInclusive(t *testing.T) {
	path := writeDataset(t)
	var mu sync.Mutex
	var calls []string
	opts := allOptions(path)
	opts.Likes, opts.Shares = false, false
	opts.Earliest = "2024-06-01"

	res, err := Run(context.Background(), opts, Deps{Fetcher: writingFetcher(&calls, &mu), Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCandidates)
	assert.Equal(t, []string{"https://www.tiktokv.com/share/video/222/"}, calls)
}

func TestRun_SecondRunFetchesNothing(t *testing.T) {
	path := writeDataset(t)
	var mu sync.Mutex
	var calls []string
	deps := Deps{Fetcher: writingFetcher(&calls, &mu), Logger: quietLogger()}

	_, err := Run(context.Background(), allOptions(path), deps)
	require.NoError(t, err)
	second, err := Run(context.Background(), allOptions(path), deps)
	require.NoError(t, err)
	assert.Len(t, calls, 4)
	assert.Equal(t, 4, second.AlreadyPresent)
}

func TestRun_RetryFailuresClearsSessionRecord(t *testing.T) {
	path := writeDataset(t)
	dir := t.TempDir()
	store := session.Load(dir, quietLogger())
	store.MarkFailed("https://www.tiktokv.com/share/video/333/")

	var mu sync.Mutex
	var calls []string
	opts := allOptions(path)
	opts.DownloadDir = dir

	res, err := Run(context.Background(), opts, Deps{Fetcher: writingFetcher(&calls, &mu), Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.SkippedFailed)
	assert.Len(t, calls, 3)

	opts.RetryFailures = true
	rep := &lines{}
	res, err = Run(context.Background(), opts, Deps{Fetcher: writingFetcher(&calls, &mu), Reporter: rep, Logger: quietLogger()})
	require.NoError(t, err)
	assert.Zero(t, res.SkippedFailed)
	assert.Equal(t, 1, res.Downloaded)
	assert.Equal(t, 3, res.AlreadyPresent)
	assert.Contains(t, rep.joined(), "Cleared previous failures")
}

func TestRun_MalformedDatasetProcessesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	f := fetch.FetcherFunc(func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		t.Fatal("no fetch expected")
		return fetch.Result{}, nil
	})

	_, err := Run(context.Background(), allOptions(path), Deps{Fetcher: f, Logger: quietLogger()})
	var loadErr *export.DatasetLoadError
	assert.True(t, errors.As(err, &loadErr), "got %v", err)
}

func TestRun_RequiresACategory(t *testing.T) {
	f := fetch.FetcherFunc(func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		return fetch.Result{}, nil
	})
	_, err := Run(context.Background(), Options{DatasetPath: writeDataset(t)}, Deps{Fetcher: f})
	assert.ErrorIs(t, err, ErrNoCategories)
}

func TestRun_RejectsBadCutoff(t *testing.T) {
	opts := allOptions(writeDataset(t))
	opts.Earliest = "01/02/2024"
	_, err := Prepare(opts)
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestRun_LockedDestinationIsRefused(t *testing.T) {
	path := writeDataset(t)
	dir := t.TempDir()
	lock, err := runstore.AcquireDirLock(dir, "other")
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	opts := allOptions(path)
	opts.DownloadDir = dir
	f := fetch.FetcherFunc(func(ctx context.Context, req fetch.Request) (fetch.Result, error) {
		t.Fatal("no fetch expected")
		return fetch.Result{}, nil
	})
	_, err = Run(context.Background(), opts, Deps{Fetcher: f, Logger: quietLogger()})
	assert.ErrorIs(t, err, runstore.ErrLocked)
}

func TestResolveDir(t *testing.T) {
	assert.Equal(t, "out", ResolveDir(" out ", "/x/data.json"))
	assert.Equal(t, filepath.Join("/x", DefaultDirName), ResolveDir("", "/x/data.json"))
}
