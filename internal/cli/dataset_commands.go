package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"favesave/internal/config"
	"favesave/internal/export"
	"favesave/internal/pipeline"
	"favesave/internal/runstore"
	"favesave/internal/session"
)

type countsResult struct {
	Dataset  string        `json:"dataset"`
	Root     string        `json:"root,omitempty"`
	Earliest string        `json:"earliest,omitempty"`
	Counts   export.Counts `json:"counts"`
}

func runCounts(args []string) error {
	fs := flag.NewFlagSet("counts", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "settings file path")
	dataset := fs.String("dataset", "", "path to the exported user_data_tiktok.json (default: last used)")
	earliest := fs.String("earliest", "", "only count items on or after YYYY-MM-DD")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	path := firstNonEmpty(*dataset, cfg.Dataset)
	if path == "" {
		fs.Usage()
		return errors.New("--dataset is required")
	}
	cutoffRaw := firstNonEmpty(*earliest, cfg.Earliest())
	cutoff, err := export.ParseCutoff(cutoffRaw)
	if err != nil {
		return err
	}
	ds, err := export.Load(path)
	if err != nil {
		return err
	}

	res := countsResult{
		Dataset:  path,
		Root:     ds.Root,
		Earliest: cutoffRaw,
		Counts:   export.Count(ds.Activity, export.Options{Faves: true, Likes: true, Shares: true, Earliest: cutoff}),
	}
	if *jsonOut {
		return printJSON(res)
	}
	fmt.Printf("dataset: %s\n", res.Dataset)
	if res.Root == "" {
		fmt.Println("root: (none found)")
	} else {
		fmt.Printf("root: %s\n", res.Root)
	}
	if res.Earliest != "" {
		fmt.Printf("earliest: %s\n", res.Earliest)
	}
	fmt.Printf("faves: %d\n", res.Counts.Faves)
	fmt.Printf("likes: %d\n", res.Counts.Likes)
	fmt.Printf("shares: %d\n", res.Counts.Shares)
	fmt.Printf("total: %d\n", res.Counts.Total)
	return nil
}

type statusResult struct {
	Dir     string              `json:"dir"`
	Blocked []string            `json:"blocked"`
	Failed  []string            `json:"failed"`
	Locked  bool                `json:"locked"`
	Owner   *runstore.LockOwner `json:"lock_owner,omitempty"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "settings file path")
	dir := fs.String("dir", "", "download folder (default: from settings)")
	dataset := fs.String("dataset", "", "dataset used to derive the default folder")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := resolveTargetDir(*configPath, *dir, *dataset)
	if err != nil {
		fs.Usage()
		return err
	}
	store := session.Load(target, newLogger("warn", "text", os.Stderr))
	blocked, failed := store.Snapshot()
	res := statusResult{Dir: target, Blocked: blocked, Failed: failed}
	if owner, err := runstore.ReadLockOwner(target); err == nil {
		res.Locked = true
		res.Owner = &owner
	}
	if *jsonOut {
		return printJSON(res)
	}

	fmt.Printf("dir: %s\n", res.Dir)
	if res.Locked {
		fmt.Printf("locked: yes (pid=%d run=%s since %s)\n", res.Owner.PID, res.Owner.RunID, res.Owner.CreatedAt)
	} else {
		fmt.Println("locked: no")
	}
	printURLList("blocked", res.Blocked)
	printURLList("failed", res.Failed)
	return nil
}

func runClear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "settings file path")
	dir := fs.String("dir", "", "download folder (default: from settings)")
	dataset := fs.String("dataset", "", "dataset used to derive the default folder")
	yes := fs.Bool("yes", false, "skip confirmation")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := resolveTargetDir(*configPath, *dir, *dataset)
	if err != nil {
		fs.Usage()
		return err
	}
	if !*yes {
		ok, err := promptConfirm(fmt.Sprintf("Forget blocked/failed items recorded in %s? [y/N]: ", target))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("clear: aborted")
			return nil
		}
	}

	// A running orchestrator holds the sets in memory and would write them back.
	lock, err := runstore.AcquireDirLock(target, "clear")
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	store := session.Load(target, newLogger("error", "text", io.Discard))
	existed, err := store.Clear()
	if err != nil {
		return err
	}
	if existed {
		fmt.Println("Cleared previous failures")
	} else {
		fmt.Println("No previous failures found to clear")
	}
	return nil
}

func resolveTargetDir(configPath, dir, dataset string) (string, error) {
	dir = strings.TrimSpace(dir)
	dataset = strings.TrimSpace(dataset)
	if dir == "" || dataset == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return "", err
		}
		dir = firstNonEmpty(dir, cfg.DownloadDir)
		dataset = firstNonEmpty(dataset, cfg.Dataset)
	}
	if dir == "" && dataset == "" {
		return "", errors.New("--dir or --dataset is required")
	}
	return pipeline.ResolveDir(dir, dataset), nil
}

func printURLList(label string, urls []string) {
	if len(urls) == 0 {
		fmt.Printf("%s: (none)\n", label)
		return
	}
	fmt.Printf("%s: %d\n", label, len(urls))
	for i, u := range urls {
		fmt.Printf("  %d. %s\n", i+1, u)
	}
}
