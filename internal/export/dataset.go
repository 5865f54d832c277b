package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	RootYourActivity      = "Your Activity"
	RootLikesAndFavorites = "Likes and Favorites"
)

// DatasetLoadError aborts a run before any item is processed.
type DatasetLoadError struct {
	Path string
	Err  error
}

func (e *DatasetLoadError) Error() string {
	return fmt.Sprintf("load dataset %s: %v", e.Path, e.Err)
}

func (e *DatasetLoadError) Unwrap() error {
	return e.Err
}

// Record is one activity entry. Date is kept verbatim.
type Record struct {
	Link string
	Date string
}

type Activity struct {
	Favorites []Record
	Likes     []Record
	Shares    []Record
}

type Dataset struct {
	Path string
	// Root names the activity node that was used, or is empty when neither
	// known root was present.
	Root     string
	Activity Activity
}

type capitalRecord struct {
	Link string `json:"Link"`
	Date string `json:"Date"`
}

type lowerRecord struct {
	Link string `json:"link"`
	Date string `json:"date"`
}

type activityNode struct {
	FavoriteVideos struct {
		List []capitalRecord `json:"FavoriteVideoList"`
	} `json:"Favorite Videos"`
	LikeList struct {
		List []lowerRecord `json:"ItemFavoriteList"`
	} `json:"Like List"`
	ShareHistory struct {
		List []capitalRecord `json:"ShareHistoryList"`
	} `json:"Share History"`
}

func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DatasetLoadError{Path: path, Err: err}
	}
	return Parse(path, data)
}

// Parse decodes an export document. "Your Activity" is preferred over the
// legacy "Likes and Favorites" root; an empty or missing node falls through.
func Parse(path string, data []byte) (*Dataset, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, &DatasetLoadError{Path: path, Err: fmt.Errorf("dataset is not UTF-8 encoded")}
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, &DatasetLoadError{Path: path, Err: err}
	}

	ds := &Dataset{Path: path}
	for _, key := range []string{RootYourActivity, RootLikesAndFavorites} {
		raw, ok := root[key]
		if !ok || isEmptyNode(raw) {
			continue
		}
		var node activityNode
		if err := json.Unmarshal(raw, &node); err != nil {
			return nil, &DatasetLoadError{Path: path, Err: fmt.Errorf("decode %q: %w", key, err)}
		}
		ds.Root = key
		ds.Activity = node.activity()
		break
	}
	return ds, nil
}

func isEmptyNode(raw json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		// Not an object; let the typed decode report it.
		return strings.TrimSpace(string(raw)) == "null"
	}
	return len(probe) == 0
}

func (n activityNode) activity() Activity {
	var a Activity
	for _, r := range n.FavoriteVideos.List {
		a.Favorites = append(a.Favorites, Record{Link: r.Link, Date: r.Date})
	}
	for _, r := range n.LikeList.List {
		a.Likes = append(a.Likes, Record{Link: r.Link, Date: r.Date})
	}
	for _, r := range n.ShareHistory.List {
		a.Shares = append(a.Shares, Record{Link: r.Link, Date: r.Date})
	}
	return a
}
