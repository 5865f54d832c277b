package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"favesave/internal/fetch"
	"favesave/internal/model"
)

// DefaultFormat prefers separate mp4 video and m4a audio, falling back to the
// best single file.
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best"

// blockedSignature is the extractor message for an IP-level ban.
const blockedSignature = "IP address is blocked"

type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

type Options struct {
	// Binary defaults to yt-dlp on PATH.
	Binary            string
	Format            string
	DownloadLimitMBps float64
	LogWriter         io.Writer
	// Line receives every output line before it is parsed.
	Line func(stream OutputStream, line string)
}

type DependencyReport struct {
	YTDLPFound  bool   `json:"yt_dlp_found"`
	YTDLPPath   string `json:"yt_dlp_path,omitempty"`
	FFmpegFound bool   `json:"ffmpeg_found"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath("yt-dlp"); err == nil {
		report.YTDLPFound = true
		report.YTDLPPath = path
	}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	return report
}

func CheckDependencies() error {
	report := DependencyStatus()
	if !report.YTDLPFound {
		return fmt.Errorf("missing dependency: yt-dlp is not installed or not on PATH")
	}
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is required to merge separate video and audio streams and was not found on PATH")
	}
	return nil
}

// Fetcher downloads one URL per call by running yt-dlp.
type Fetcher struct {
	opts Options
}

func NewFetcher(opts Options) *Fetcher {
	if strings.TrimSpace(opts.Binary) == "" {
		opts.Binary = "yt-dlp"
	}
	if strings.TrimSpace(opts.Format) == "" {
		opts.Format = DefaultFormat
	}
	return &Fetcher{opts: opts}
}

func (f *Fetcher) args(req fetch.Request) []string {
	args := []string{
		"--no-playlist",
		"--newline",
		"-P", req.Dir,
		"-o", req.Label + "%(id)s.%(ext)s",
		"-f", f.opts.Format,
	}
	if f.opts.DownloadLimitMBps > 0 {
		args = append(args, "--limit-rate", formatRateLimitMBps(f.opts.DownloadLimitMBps))
	}
	return append(args, req.URL)
}

func (f *Fetcher) Fetch(ctx context.Context, req fetch.Request) (fetch.Result, error) {
	if err := fetch.Checkpoint(ctx); err != nil {
		return fetch.Result{}, err
	}
	if strings.TrimSpace(req.URL) == "" {
		return fetch.Result{}, fmt.Errorf("video URL is required")
	}
	if strings.TrimSpace(req.Dir) == "" {
		return fetch.Result{}, fmt.Errorf("output directory is required")
	}

	if err := f.runCommand(ctx, f.args(req), req.Progress); err != nil {
		return fetch.Result{}, err
	}
	return fetch.Result{Path: filepath.Join(req.Dir, req.Label+model.MediaID(req.URL))}, nil
}

// runCommand streams yt-dlp output line by line. Every line is a
// cancellation checkpoint; the process is killed as soon as one trips.
// Output goes through in-process pipes so a killed parent whose children
// still hold the descriptors cannot stall the caller past WaitDelay.
func (f *Fetcher) runCommand(parent context.Context, args []string, progress func(string)) error {
	ctx, stop := context.WithCancel(parent)
	defer stop()

	cmd := exec.CommandContext(ctx, f.opts.Binary, args...)
	cmd.WaitDelay = 5 * time.Second

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	var outBuf strings.Builder
	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup
	var blocked bool

	read := func(stream OutputStream, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		scanner.Split(splitByNewlineOrCR)
		for scanner.Scan() {
			line := scanner.Text()
			mu.Lock()
			appendLimited(&outBuf, &errBuf, stream, line)
			if strings.Contains(line, blockedSignature) {
				blocked = true
			}
			if f.opts.LogWriter != nil {
				_, _ = io.WriteString(f.opts.LogWriter, line+"\n")
			}
			mu.Unlock()

			if f.opts.Line != nil {
				f.opts.Line(stream, line)
			}
			if progress != nil {
				if p, ok := ParseProgress(line); ok {
					progress(p.String())
				}
			}
			if fetch.Checkpoint(parent) != nil {
				stop()
			}
		}
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}

	wg.Add(2)
	go read(StreamStdout, stdoutR)
	go read(StreamStderr, stderrR)

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		wg.Wait()
		return fmt.Errorf("start yt-dlp: %w", err)
	}
	waitErr := cmd.Wait()
	_ = stdoutW.Close()
	_ = stderrW.Close()
	wg.Wait()

	// A clean exit wins over a cancel that landed after the process finished.
	if waitErr == nil {
		return nil
	}
	if parent.Err() != nil {
		return fetch.ErrCancelled
	}

	mu.Lock()
	defer mu.Unlock()
	detail := strings.TrimSpace(errBuf.String())
	if blocked {
		return &fetch.BlockedError{Message: lastLineContaining(detail+"\n"+outBuf.String(), blockedSignature)}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) && detail != "" {
		return fmt.Errorf("yt-dlp failed: %s", lastErrorLine(detail))
	}
	return fmt.Errorf("yt-dlp failed: %w\n%s\n%s", waitErr, detail, strings.TrimSpace(outBuf.String()))
}

func lastLineContaining(text, needle string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.Contains(lines[i], needle) {
			return strings.TrimSpace(lines[i])
		}
	}
	return needle
}

// lastErrorLine prefers the final "ERROR:" line yt-dlp prints.
func lastErrorLine(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.TrimSpace(lines[i])
		if strings.HasPrefix(l, "ERROR:") {
			return l
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

func appendLimited(outBuf, errBuf *strings.Builder, stream OutputStream, line string) {
	const maxKeep = 8192
	b := outBuf
	if stream == StreamStderr {
		b = errBuf
	}
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	remain := maxKeep - b.Len()
	if len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}

func formatRateLimitMBps(v float64) string {
	return fmt.Sprintf("%gM", v)
}
