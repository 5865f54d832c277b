package filter

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"favesave/internal/model"
	"favesave/internal/runstore"
)

// Exclusions is the read side of the persisted session record.
type Exclusions interface {
	IsBlocked(url string) bool
	IsFailed(url string) bool
}

// Existing is a snapshot of filenames in the destination directory.
type Existing map[string]struct{}

// ScanExisting lists the destination directory once, creating it when
// missing. Access failures degrade to an empty set.
func ScanExisting(dir string, logger *log.Entry) Existing {
	existing := Existing{}
	if err := runstore.Mkdir(dir); err != nil {
		logger.WithError(err).Warn("cannot create download folder, treating it as empty")
		return existing
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.WithError(err).Warn("cannot read download folder, treating it as empty")
		return existing
	}
	for _, e := range entries {
		if e.IsDir() || runstore.IsLockEntry(e.Name()) {
			continue
		}
		existing[e.Name()] = struct{}{}
	}
	return existing
}

// IsPresent reports whether some file starts with the item's label and ends
// with its media id plus a known media extension.
func (e Existing) IsPresent(item model.WorkItem) bool {
	id := model.MediaID(item.URL)
	if id == "" {
		return false
	}
	prefixes := []string{item.Label}
	if item.LegacyLabel != "" {
		prefixes = append(prefixes, item.LegacyLabel)
	}
	for name := range e {
		if !hasAnyPrefix(name, prefixes) {
			continue
		}
		for _, ext := range model.MediaExtensions {
			if strings.HasSuffix(name, id+ext) {
				return true
			}
		}
	}
	return false
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// Classify applies the exclusion checks in scheduling order: a known-blocked
// or known-failed URL is skipped even if a partial file exists.
func Classify(item model.WorkItem, existing Existing, excl Exclusions) model.Classification {
	switch {
	case excl != nil && excl.IsBlocked(item.URL):
		return model.ClassPreviouslyBlocked
	case excl != nil && excl.IsFailed(item.URL):
		return model.ClassPreviouslyFailed
	case existing.IsPresent(item):
		return model.ClassAlreadyPresent
	default:
		return model.ClassEligible
	}
}
