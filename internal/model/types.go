package model

import (
	"strings"
	"time"
)

// Category is one of the three activity lists a work item can come from.
type Category string

const (
	CategoryFaved  Category = "faved"
	CategoryLiked  Category = "liked"
	CategoryShared Category = "shared"
)

// Categories lists categories in build order.
var Categories = []Category{CategoryFaved, CategoryLiked, CategoryShared}

// CategoryFromLabel recovers the category encoded in a work item label.
func CategoryFromLabel(label string) (Category, bool) {
	for _, c := range Categories {
		prefix := string(c) + "_"
		if len(label) >= len(prefix) && label[:len(prefix)] == prefix {
			return c, true
		}
	}
	return "", false
}

// WorkItem is one URL scheduled for fetch. Label doubles as the filename prefix.
type WorkItem struct {
	URL   string `json:"url"`
	Label string `json:"label"`
	// LegacyLabel is an alternate prefix accepted when matching files that
	// are already on disk.
	LegacyLabel   string   `json:"legacy_label,omitempty"`
	Category      Category `json:"category"`
	SequenceIndex int      `json:"sequence_index"`
}

type Classification string

const (
	ClassAlreadyPresent    Classification = "already_present"
	ClassPreviouslyBlocked Classification = "previously_blocked"
	ClassPreviouslyFailed  Classification = "previously_failed"
	ClassEligible          Classification = "eligible"
)

// Disposition is the terminal classification of a work item at run end.
type Disposition string

const (
	DispositionAlreadyPresent Disposition = "already_present"
	DispositionSkippedBlocked Disposition = "skipped_blocked"
	DispositionSkippedFailed  Disposition = "skipped_failed"
	DispositionDownloaded     Disposition = "downloaded"
	DispositionBlocked        Disposition = "blocked"
	DispositionFailed         Disposition = "failed"
	DispositionCancelled      Disposition = "cancelled"
	DispositionNotAttempted   Disposition = "not_attempted"
)

type OutcomeKind string

const (
	OutcomeDownloaded OutcomeKind = "downloaded"
	OutcomeCancelled  OutcomeKind = "cancelled"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome is the classified result of a single fetch. Blocked is only
// meaningful when Kind is OutcomeFailed.
type Outcome struct {
	Kind     OutcomeKind
	Duration time.Duration
	Message  string
	Blocked  bool
}

func Downloaded(d time.Duration) Outcome {
	return Outcome{Kind: OutcomeDownloaded, Duration: d}
}

func Cancelled() Outcome {
	return Outcome{Kind: OutcomeCancelled}
}

func Failed(msg string, blocked bool) Outcome {
	return Outcome{Kind: OutcomeFailed, Message: msg, Blocked: blocked}
}

// ItemResult pairs a work item with its terminal disposition.
type ItemResult struct {
	Item        WorkItem    `json:"item"`
	Disposition Disposition `json:"disposition"`
	Message     string      `json:"message,omitempty"`
}

// RunResult is the aggregate outcome of one orchestrator run.
//
// Failed counts every failed fetch of this run, blocked ones included;
// Blocked is the subset that hit an upstream access denial. Items that were
// never dispatched because the run was cancelled are counted only in
// NotAttempted.
type RunResult struct {
	RunID                string           `json:"run_id"`
	State                RunState         `json:"state"`
	TotalCandidates      int              `json:"total_candidates"`
	Downloaded           int              `json:"downloaded"`
	AlreadyPresent       int              `json:"already_present"`
	Failed               int              `json:"failed"`
	Blocked              int              `json:"blocked"`
	SkippedBlocked       int              `json:"skipped_blocked"`
	SkippedFailed        int              `json:"skipped_failed"`
	Cancelled            int              `json:"cancelled"`
	NotAttempted         int              `json:"not_attempted"`
	DownloadedByCategory map[Category]int `json:"downloaded_by_category"`
	Elapsed              time.Duration    `json:"elapsed"`
	Items                []WorkItem       `json:"-"`
	Results              []ItemResult     `json:"-"`
}

// Accounted sums every terminal bucket. It equals TotalCandidates once a run
// has terminated.
func (r RunResult) Accounted() int {
	return r.Downloaded + r.AlreadyPresent + r.Failed + r.SkippedBlocked +
		r.SkippedFailed + r.Cancelled + r.NotAttempted
}

// MediaExtensions are the file extensions a finished download can carry.
var MediaExtensions = []string{".mp4", ".m4a", ".mp3"}

// MediaID is the last path segment of a URL with trailing slashes and any
// query removed. A trailing media extension is dropped so direct file links
// and share links name their output the same way.
func MediaID(url string) string {
	trimmed := strings.TrimSpace(url)
	if q := strings.IndexAny(trimmed, "?#"); q >= 0 {
		trimmed = trimmed[:q]
	}
	trimmed = strings.Trim(trimmed, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	lower := strings.ToLower(trimmed)
	for _, ext := range MediaExtensions {
		if strings.HasSuffix(lower, ext) {
			return trimmed[:len(trimmed)-len(ext)]
		}
	}
	return trimmed
}

// Snapshot is the detailed progress record emitted once per skipped or
// harvested item.
type Snapshot struct {
	CurrentIndex    int           `json:"current_index"`
	Total           int           `json:"total"`
	CurrentURL      string        `json:"current_url"`
	Elapsed         time.Duration `json:"elapsed"`
	DownloadedSoFar int           `json:"downloaded_so_far"`
	FailedSoFar     int           `json:"failed_so_far"`
}
