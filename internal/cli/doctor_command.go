package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"favesave/internal/config"
	"favesave/internal/export"
	"favesave/internal/pipeline"
	"favesave/internal/runstore"
	"favesave/internal/ytdlp"
)

type doctorResult struct {
	OK     bool          `json:"ok"`
	Checks []doctorCheck `json:"checks"`
}

type doctorCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "settings file path")
	dataset := fs.String("dataset", "", "dataset to validate (default: last used)")
	dir := fs.String("dir", "", "download folder to validate (default: from settings)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	res := doctor(*configPath, firstNonEmpty(*dataset, cfg.Dataset), firstNonEmpty(*dir, cfg.DownloadDir))
	if *jsonOut {
		return printJSON(res)
	}
	for _, c := range res.Checks {
		mark := "ok"
		if !c.OK {
			mark = "FAIL"
		}
		fmt.Printf("[%s] %s: %s\n", mark, c.Name, c.Message)
	}
	if !res.OK {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func doctor(configPath, dataset, dir string) doctorResult {
	checks := make([]doctorCheck, 0, 5)
	dep := ytdlp.DependencyStatus()
	checks = append(checks,
		doctorCheck{Name: "dependency:yt-dlp", OK: dep.YTDLPFound, Message: dependencyMessage(dep.YTDLPFound, dep.YTDLPPath, "yt-dlp")},
		doctorCheck{Name: "dependency:ffmpeg", OK: dep.FFmpegFound, Message: dependencyMessage(dep.FFmpegFound, dep.FFmpegPath, "ffmpeg")},
	)

	cfgOK, cfgMessage := ensureWritableDir(filepath.Dir(configPath))
	checks = append(checks, doctorCheck{Name: "directory:settings", OK: cfgOK, Message: cfgMessage})

	if dataset != "" {
		checks = append(checks, datasetCheck(dataset))
	}
	if dataset != "" || dir != "" {
		target := pipeline.ResolveDir(dir, dataset)
		ok, msg := ensureWritableDir(target)
		checks = append(checks, doctorCheck{Name: "directory:downloads", OK: ok, Message: target + ": " + msg})
	}

	ok := true
	for _, c := range checks {
		if !c.OK {
			ok = false
			break
		}
	}
	return doctorResult{OK: ok, Checks: checks}
}

func datasetCheck(path string) doctorCheck {
	ds, err := export.Load(path)
	if err != nil {
		return doctorCheck{Name: "dataset", OK: false, Message: err.Error()}
	}
	if ds.Root == "" {
		return doctorCheck{Name: "dataset", OK: false, Message: path + ": no activity section found"}
	}
	counts := export.Count(ds.Activity, export.Options{Faves: true, Likes: true, Shares: true})
	return doctorCheck{
		Name:    "dataset",
		OK:      true,
		Message: fmt.Sprintf("%s: %d faves, %d likes, %d shares", ds.Root, counts.Faves, counts.Likes, counts.Shares),
	}
}

func dependencyMessage(ok bool, path, name string) string {
	if ok {
		return name + " found at " + path
	}
	return name + " not found on PATH"
}

func ensureWritableDir(path string) (bool, string) {
	if strings.TrimSpace(path) == "" {
		return false, "empty path"
	}
	if err := runstore.Mkdir(path); err != nil {
		return false, err.Error()
	}
	f, err := os.CreateTemp(path, "favesave-check-*.tmp")
	if err != nil {
		return false, err.Error()
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return true, "writable"
}
