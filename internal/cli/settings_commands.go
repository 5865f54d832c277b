package cli

import (
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"favesave/internal/config"
	"favesave/internal/export"
	"favesave/internal/fetch"
)

func runSettings(args []string) error {
	if len(args) == 0 {
		printSettingsUsage()
		return nil
	}
	switch args[0] {
	case "show":
		return runSettingsShow(args[1:])
	case "set":
		return runSettingsSet(args[1:])
	case "help", "-h", "--help":
		printSettingsUsage()
		return nil
	default:
		printSettingsUsage()
		return fmt.Errorf("unknown settings subcommand %q", args[0])
	}
}

func runSettingsShow(args []string) error {
	fs := flag.NewFlagSet("settings show", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "settings file path")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": strings.TrimSpace(*configPath),
			"settings":    cfg,
		})
	}
	printSettings(*configPath, cfg)
	return nil
}

func runSettingsSet(args []string) error {
	fs := flag.NewFlagSet("settings set", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath(), "settings file path")
	dataset := fs.String("dataset", "", "remembered dataset path")
	dir := fs.String("dir", "", "remembered download folder (\"-\" clears it)")
	concurrency := fs.Int("concurrency", -1, "parallel downloads, 1-10 (-1 keeps current)")
	downloadLimit := fs.Float64("limit-mb-s", -1, "per-download limit in MB/s (>=0, 0 disables, -1 keeps current)")
	backend := fs.String("backend", "", "fetch backend: auto|ytdlp|http (empty keeps current)")
	earliest := fs.String("earliest", "", "date filter YYYY-MM-DD (\"-\" disables it)")
	stall := fs.Duration("stall-threshold", 0, "warn when one download runs this long (0 keeps current)")
	hangTimeout := fs.Duration("watchdog-timeout", 0, "warn after this long without progress (0 keeps current)")
	maxHang := fs.Duration("max-hang", 0, "offer recovery after this long without progress (0 keeps current)")
	metricsAddr := fs.String("metrics-addr", "", "metrics listen address (\"-\" disables it)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if v := strings.TrimSpace(*dataset); v != "" {
		cfg.Dataset = v
	}
	if v := strings.TrimSpace(*dir); v != "" {
		cfg.DownloadDir = clearable(v)
	}
	if *concurrency != -1 {
		if *concurrency < 1 || *concurrency > 10 {
			return errors.New("--concurrency must be between 1 and 10")
		}
		cfg.Run.Concurrency = *concurrency
	}
	if *downloadLimit != -1 {
		if *downloadLimit < 0 {
			return errors.New("--limit-mb-s must be >= 0")
		}
		cfg.Fetch.LimitMBps = *downloadLimit
	}
	if v := strings.TrimSpace(*backend); v != "" {
		mode, err := fetch.ParseMode(v)
		if err != nil {
			return err
		}
		cfg.Fetch.Backend = string(mode)
	}
	if v := strings.TrimSpace(*earliest); v != "" {
		if v == "-" {
			cfg.DateFilter.Enabled = false
		} else {
			if _, err := export.ParseCutoff(v); err != nil {
				return err
			}
			cfg.DateFilter.Enabled = true
			cfg.DateFilter.Earliest = v
		}
	}
	if err := setDuration(&cfg.Run.StallThreshold, *stall, "--stall-threshold"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Watchdog.Timeout, *hangTimeout, "--watchdog-timeout"); err != nil {
		return err
	}
	if err := setDuration(&cfg.Watchdog.MaxHang, *maxHang, "--max-hang"); err != nil {
		return err
	}
	if v := strings.TrimSpace(*metricsAddr); v != "" {
		cfg.Metrics.Addr = clearable(v)
	}

	if err := config.Save(*configPath, cfg); err != nil {
		return err
	}
	saved, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]any{
			"config_path": strings.TrimSpace(*configPath),
			"settings":    saved,
		})
	}
	fmt.Printf("updated settings in %s\n", *configPath)
	printSettings(*configPath, saved)
	return nil
}

func setDuration(dst *time.Duration, v time.Duration, name string) error {
	if v == 0 {
		return nil
	}
	if v < 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	*dst = v
	return nil
}

func clearable(v string) string {
	if v == "-" {
		return ""
	}
	return v
}

func printSettings(path string, cfg *config.Config) {
	fmt.Printf("config: %s\n", strings.TrimSpace(path))
	fmt.Printf("dataset: %s\n", firstNonEmpty(cfg.Dataset, "(none)"))
	fmt.Printf("download_dir: %s\n", firstNonEmpty(cfg.DownloadDir, "(next to dataset)"))
	fmt.Printf("categories: faves=%t likes=%t shares=%t\n", cfg.Categories.Faves, cfg.Categories.Likes, cfg.Categories.Shares)
	fmt.Printf("earliest: %s\n", firstNonEmpty(cfg.Earliest(), "(off)"))
	fmt.Printf("concurrency: %d\n", cfg.Run.Concurrency)
	fmt.Printf("stall_threshold: %s\n", cfg.Run.StallThreshold)
	fmt.Printf("watchdog: timeout=%s max_hang=%s\n", cfg.Watchdog.Timeout, cfg.Watchdog.MaxHang)
	fmt.Printf("backend: %s\n", cfg.Fetch.Backend)
	fmt.Printf("download_limit_mb_s: %s\n", formatFloat(cfg.Fetch.LimitMBps))
	fmt.Printf("metrics_addr: %s\n", firstNonEmpty(cfg.Metrics.Addr, "(off)"))
}

func printSettingsUsage() {
	fmt.Println("settings commands:")
	fmt.Println("  settings show")
	fmt.Println("  settings set [--concurrency N] [--limit-mb-s N] [--backend auto|ytdlp|http]")
	fmt.Println("               [--dataset <path>] [--dir <folder>|-] [--earliest YYYY-MM-DD|-]")
	fmt.Println("               [--stall-threshold D] [--watchdog-timeout D] [--max-hang D] [--metrics-addr A|-]")
}

func formatFloat(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
