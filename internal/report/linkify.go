package report

import (
	"bufio"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"
)

var reURL = regexp.MustCompile(`https?://[^\s<>"]+`)

// linkable limits anchors to the hosts the export links point at.
func linkable(u string) bool {
	return strings.Contains(strings.ToLower(u), "tiktok")
}

// LinkifyHTML escapes line for HTML and wraps TikTok URLs in anchors.
func LinkifyHTML(line string) string {
	var b strings.Builder
	last := 0
	for _, loc := range reURL.FindAllStringIndex(line, -1) {
		u := line[loc[0]:loc[1]]
		if !linkable(u) {
			continue
		}
		b.WriteString(html.EscapeString(line[last:loc[0]]))
		esc := html.EscapeString(u)
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, esc, esc)
		last = loc[1]
	}
	b.WriteString(html.EscapeString(line[last:]))
	return b.String()
}

// LinkifyTerminal wraps TikTok URLs in OSC 8 hyperlinks.
func LinkifyTerminal(line string) string {
	return reURL.ReplaceAllStringFunc(line, func(u string) string {
		if !linkable(u) {
			return u
		}
		return "\x1b]8;;" + u + "\x1b\\" + u + "\x1b]8;;\x1b\\"
	})
}

// HTMLLog appends linkified log lines to a standalone HTML file.
type HTMLLog struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

func OpenHTMLLog(path string) (*HTMLLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create html log: %w", err)
	}
	l := &HTMLLog{f: f, w: bufio.NewWriter(f)}
	fmt.Fprintf(l.w, "<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>FaveSave log</title></head>\n<body><pre>\n")
	return l, nil
}

func (l *HTMLLog) Line(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[%s] %s\n", time.Now().Format("15:04:05"), LinkifyHTML(line))
	_ = l.w.Flush()
}

func (l *HTMLLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "</pre></body></html>\n")
	if err := l.w.Flush(); err != nil {
		_ = l.f.Close()
		return err
	}
	return l.f.Close()
}
