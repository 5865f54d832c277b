package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"favesave/internal/model"
)

const sampleExport = `{
  "Your Activity": {
    "Favorite Videos": {
      "FavoriteVideoList": [
        {"Date": "2023-01-01 10:00:00", "Link": "https://www.tiktokv.com/share/video/111/"},
        {"Date": "2024-06-01 08:30:15", "Link": "https://www.tiktokv.com/share/video/222/"}
      ]
    },
    "Like List": {
      "ItemFavoriteList": [
        {"date": "2024-02-02 00:00:00", "link": "https://www.tiktokv.com/share/video/333/"},
        {"date": "", "link": "https://www.tiktokv.com/share/video/444/"}
      ]
    },
    "Share History": {
      "ShareHistoryList": [
        {"Date": "garbage", "Link": "https://www.tiktokv.com/share/video/555/"}
      ]
    }
  }
}`

func TestParse_PrefersYourActivity(t *testing.T) {
	ds, err := Parse("x.json", []byte(sampleExport))
	require.NoError(t, err)
	assert.Equal(t, RootYourActivity, ds.Root)
	assert.Len(t, ds.Activity.Favorites, 2)
	assert.Len(t, ds.Activity.Likes, 2)
	assert.Equal(t, "https://www.tiktokv.com/share/video/333/", ds.Activity.Likes[0].Link)
	assert.Len(t, ds.Activity.Shares, 1)
}

func TestParse_FallsBackToLikesAndFavorites(t *testing.T) {
	doc := `{"Your Activity": {}, "Likes and Favorites": {"Like List": {"ItemFavoriteList": [{"date": "2024-01-01", "link": "https://t/1"}]}}}`
	ds, err := Parse("x.json", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, RootLikesAndFavorites, ds.Root)
	require.Len(t, ds.Activity.Likes, 1)
	assert.Equal(t, "2024-01-01", ds.Activity.Likes[0].Date)
}

func TestParse_NeitherRootYieldsEmptyActivity(t *testing.T) {
	ds, err := Parse("x.json", []byte(`{"Profile": {}}`))
	require.NoError(t, err)
	assert.Empty(t, ds.Root)
	assert.Empty(t, Build(ds.Activity, Options{Faves: true, Likes: true, Shares: true}))
}

func TestLoad_MalformedIsDatasetLoadError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{nope"), 0o644))

	_, err := Load(path)
	var loadErr *DatasetLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, path, loadErr.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.True(t, errors.As(err, &loadErr))
}

func TestBuild_DateCutoffIsInclusiveAndFailOpen(t *testing.T) {
	activity := Activity{Favorites: []Record{
		{Link: "https://t/a", Date: "2023-01-01"},
		{Link: "https://t/b", Date: "2024-06-01"},
	}}
	cutoff, err := ParseCutoff("2024-01-01")
	require.NoError(t, err)

	items := Build(activity, Options{Faves: true, Earliest: cutoff})
	require.Len(t, items, 1)
	assert.Equal(t, "https://t/b", items[0].URL)

	onCutoff := Build(Activity{Favorites: []Record{{Link: "https://t/c", Date: "2024-01-01 23:59:59"}}},
		Options{Faves: true, Earliest: cutoff})
	assert.Len(t, onCutoff, 1)

	unparsable := Build(Activity{Favorites: []Record{{Link: "https://t/d", Date: "01/05/2020"}}},
		Options{Faves: true, Earliest: cutoff})
	assert.Len(t, unparsable, 1)
}

func TestBuild_OrderAndLabels(t *testing.T) {
	ds, err := Parse("x.json", []byte(sampleExport))
	require.NoError(t, err)

	items := Build(ds.Activity, Options{Faves: true, Likes: true, Shares: true})
	require.Len(t, items, 5)

	wantLabels := []string{
		"faved_2023-01-01-10-00-00_",
		"faved_2024-06-01-08-30-15_",
		"liked_2024-02-02-00-00-00_",
		"liked_",
		"shared_garbage_",
	}
	for i, item := range items {
		assert.Equal(t, i, item.SequenceIndex)
		assert.Equal(t, wantLabels[i], item.Label)
	}
	assert.Equal(t, model.CategoryShared, items[4].Category)
	assert.Equal(t, "faved_2023-01-01-100000_", items[0].LegacyLabel)
	assert.Empty(t, items[3].LegacyLabel)
}

func TestBuild_DisabledCategoriesAreSkipped(t *testing.T) {
	ds, err := Parse("x.json", []byte(sampleExport))
	require.NoError(t, err)

	items := Build(ds.Activity, Options{Likes: true})
	require.Len(t, items, 2)
	for _, item := range items {
		assert.Equal(t, model.CategoryLiked, item.Category)
	}
}

func TestCount(t *testing.T) {
	ds, err := Parse("x.json", []byte(sampleExport))
	require.NoError(t, err)
	cutoff, err := ParseCutoff("2024-01-01")
	require.NoError(t, err)

	counts := Count(ds.Activity, Options{Faves: true, Likes: true, Shares: false, Earliest: cutoff})
	assert.Equal(t, Counts{Faves: 1, Likes: 2, Shares: 0, Total: 3}, counts)
}

func TestDateToken(t *testing.T) {
	cases := map[string]string{
		"2024-06-01 08:30:15": "2024-06-01-08-30-15",
		"2024/06/01":          "2024-06-01",
		"":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, DateToken(in), in)
	}
}
