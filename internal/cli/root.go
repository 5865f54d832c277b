package cli

import "fmt"

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}

	switch args[0] {
	case "run":
		return runDownload(args[1:])
	case "counts":
		return runCounts(args[1:])
	case "status":
		return runStatus(args[1:])
	case "clear":
		return runClear(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Println("favesave: download the videos listed in a TikTok data export")
	fmt.Println()
	fmt.Println("Quick Start:")
	fmt.Println("  favesave doctor")
	fmt.Println("  favesave counts --dataset user_data_tiktok.json")
	fmt.Println("  favesave run --dataset user_data_tiktok.json [--dir <folder>]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run       download favorites, likes and shares into one folder")
	fmt.Println("  counts    show how many items each category would queue")
	fmt.Println("  status    show the blocked/failed record and lock of a download folder")
	fmt.Println("  clear     forget previous blocked/failed items so they are retried")
	fmt.Println("  doctor    run dependency and filesystem preflight checks")
	fmt.Println("  settings  show/update remembered settings")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Settings live in ~/.favesave/settings.yaml; FAVESAVE_* env vars override them")
	fmt.Println("  - Without --dir, files go to <dataset folder>/downloaded_videos")
}
