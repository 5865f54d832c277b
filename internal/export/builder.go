package export

import (
	"strings"
	"time"

	"favesave/internal/model"
)

const dateLayout = "2006-01-02"

// Options selects which records become work items. A zero Earliest means no
// date cutoff.
type Options struct {
	Faves    bool
	Likes    bool
	Shares   bool
	Earliest time.Time
}

func (o Options) Enabled(c model.Category) bool {
	switch c {
	case model.CategoryFaved:
		return o.Faves
	case model.CategoryLiked:
		return o.Likes
	case model.CategoryShared:
		return o.Shares
	default:
		return false
	}
}

func (o Options) AnyEnabled() bool {
	return o.Faves || o.Likes || o.Shares
}

// Counts holds per-category candidate totals after filtering.
type Counts struct {
	Faves  int `json:"faves"`
	Likes  int `json:"likes"`
	Shares int `json:"shares"`
	Total  int `json:"total"`
}

// ParseCutoff parses a YYYY-MM-DD cutoff. Empty input means no cutoff.
func ParseCutoff(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}

// IncludeDate reports whether a record dated raw passes the inclusive cutoff.
// Only the date portion is compared; unparsable dates are included.
func IncludeDate(raw string, earliest time.Time) bool {
	if earliest.IsZero() || raw == "" {
		return true
	}
	datePart, _, _ := strings.Cut(raw, " ")
	d, err := time.Parse(dateLayout, datePart)
	if err != nil {
		return true
	}
	return !d.Before(truncateDay(earliest))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var tokenReplacer = strings.NewReplacer(":", "-", " ", "-", "/", "-")

// DateToken turns a raw timestamp into a filesystem-safe token.
func DateToken(raw string) string {
	return tokenReplacer.Replace(raw)
}

// Label builds the filename prefix for a record.
func Label(c model.Category, rawDate string) string {
	token := DateToken(rawDate)
	if token == "" {
		return string(c) + "_"
	}
	return string(c) + "_" + token + "_"
}

var legacyReplacer = strings.NewReplacer(":", "", " ", "-", "/", "-")

// LegacyLabel is the prefix older FaveSave releases wrote, which dropped the
// colons from the time part. Empty when it matches Label.
func LegacyLabel(c model.Category, rawDate string) string {
	token := legacyReplacer.Replace(rawDate)
	legacy := string(c) + "_"
	if token != "" {
		legacy += token + "_"
	}
	if legacy == Label(c, rawDate) {
		return ""
	}
	return legacy
}

func (a Activity) records(c model.Category) []Record {
	switch c {
	case model.CategoryFaved:
		return a.Favorites
	case model.CategoryLiked:
		return a.Likes
	case model.CategoryShared:
		return a.Shares
	default:
		return nil
	}
}

// Build produces work items for the enabled categories in fixed order,
// favorites then likes then shares, keeping source order within each.
// Records without a link are dropped.
func Build(a Activity, opts Options) []model.WorkItem {
	var items []model.WorkItem
	for _, c := range model.Categories {
		if !opts.Enabled(c) {
			continue
		}
		for _, r := range a.records(c) {
			link := strings.TrimSpace(r.Link)
			if link == "" || !IncludeDate(r.Date, opts.Earliest) {
				continue
			}
			items = append(items, model.WorkItem{
				URL:           link,
				Label:         Label(c, r.Date),
				LegacyLabel:   LegacyLabel(c, r.Date),
				Category:      c,
				SequenceIndex: len(items),
			})
		}
	}
	return items
}

// Count reports how many candidates Build would produce per category.
func Count(a Activity, opts Options) Counts {
	var counts Counts
	for _, item := range Build(a, opts) {
		switch item.Category {
		case model.CategoryFaved:
			counts.Faves++
		case model.CategoryLiked:
			counts.Likes++
		case model.CategoryShared:
			counts.Shares++
		}
		counts.Total++
	}
	return counts
}
