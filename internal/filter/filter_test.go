package filter

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favesave/internal/model"
)

type fakeExclusions struct {
	blocked map[string]bool
	failed  map[string]bool
}

func (f fakeExclusions) IsBlocked(url string) bool { return f.blocked[url] }
func (f fakeExclusions) IsFailed(url string) bool  { return f.failed[url] }

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func TestScanExisting_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloaded_videos")
	existing := ScanExisting(dir, quietLogger())
	assert.Empty(t, existing)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestScanExisting_UnreadableDegradesToEmpty(t *testing.T) {
	base := t.TempDir()
	notADir := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o644))

	existing := ScanExisting(notADir, quietLogger())
	assert.Empty(t, existing)
}

func TestIsPresent(t *testing.T) {
	existing := Existing{
		"faved_2024-01-01-10-00-00_111.mp4":  {},
		"liked_2024-01-01-100000_222.m4a":    {},
		"shared_333.mp3":                     {},
		"faved_2024-01-01-10-00-00_444.webm": {},
	}

	cases := []struct {
		name string
		item model.WorkItem
		want bool
	}{
		{"label match", model.WorkItem{URL: "https://t/video/111/", Label: "faved_2024-01-01-10-00-00_"}, true},
		{"legacy label match", model.WorkItem{URL: "https://t/video/222", Label: "liked_2024-01-01-10-00-00_", LegacyLabel: "liked_2024-01-01-100000_"}, true},
		{"bare category label", model.WorkItem{URL: "https://t/video/333", Label: "shared_"}, true},
		{"wrong extension", model.WorkItem{URL: "https://t/video/444", Label: "faved_2024-01-01-10-00-00_"}, false},
		{"wrong category", model.WorkItem{URL: "https://t/video/111", Label: "liked_2024-01-01-10-00-00_"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, existing.IsPresent(tc.item))
		})
	}
}

func TestClassify_ExclusionsTakePrecedence(t *testing.T) {
	existing := Existing{"faved_1.mp4": {}}
	excl := fakeExclusions{
		blocked: map[string]bool{"https://t/1": true},
		failed:  map[string]bool{"https://t/2": true},
	}

	assert.Equal(t, model.ClassPreviouslyBlocked,
		Classify(model.WorkItem{URL: "https://t/1", Label: "faved_"}, existing, excl))
	assert.Equal(t, model.ClassPreviouslyFailed,
		Classify(model.WorkItem{URL: "https://t/2", Label: "faved_"}, existing, excl))

	present := Existing{"faved_3.mp4": {}}
	assert.Equal(t, model.ClassAlreadyPresent,
		Classify(model.WorkItem{URL: "https://t/3", Label: "faved_"}, present, excl))
	assert.Equal(t, model.ClassEligible,
		Classify(model.WorkItem{URL: "https://t/4", Label: "faved_"}, present, excl))
	assert.Equal(t, model.ClassEligible,
		Classify(model.WorkItem{URL: "https://t/4", Label: "faved_"}, present, nil))
}
