package ytdlp

import (
	"regexp"
	"strings"
)

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+([^\s]+)`)
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
	reOf    = regexp.MustCompile(`\bof\s+~?\s*([^\s]+)`)
)

// Progress is one parsed "[download]" status line.
type Progress struct {
	Percent string
	Total   string
	Speed   string
	ETA     string
}

// ParseProgress extracts transfer figures from a yt-dlp status line.
func ParseProgress(line string) (Progress, bool) {
	l := strings.TrimSpace(line)
	if !strings.HasPrefix(l, "[download]") {
		return Progress{}, false
	}
	var p Progress
	if m := rePct.FindStringSubmatch(l); len(m) > 1 {
		p.Percent = m[1] + "%"
	}
	if p.Percent == "" {
		return Progress{}, false
	}
	if m := reOf.FindStringSubmatch(l); len(m) > 1 {
		p.Total = m[1]
	}
	if m := reSpeed.FindStringSubmatch(l); len(m) > 1 {
		p.Speed = m[1]
	}
	if m := reETA.FindStringSubmatch(l); len(m) > 1 {
		p.ETA = m[1]
	}
	return p, true
}

func (p Progress) String() string {
	parts := []string{p.Percent}
	if p.Total != "" {
		parts = append(parts, "of "+p.Total)
	}
	if p.Speed != "" {
		parts = append(parts, "at "+p.Speed)
	}
	if p.ETA != "" {
		parts = append(parts, "ETA "+p.ETA)
	}
	return strings.Join(parts, " ")
}
