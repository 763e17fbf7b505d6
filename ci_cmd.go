package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/animatekit/internal/trigger"
)

var (
	ciPatterns []string
	ciWatch    bool
)

var ciCmd = &cobra.Command{
	Use:   "ci [CHANGED_PATH...]",
	Short: "Evaluate which changed paths warrant a pipeline run",
	Long: paragraph(
		fmt.Sprintf("\nApply the notebook path filters to a list of changed paths, as the smoke workflow does. Exits %s when nothing matches, so it can gate further steps. With --watch, stay running and re-convert when a watched file changes.", keyword("non-zero")),
	),
	Example: paragraph("git diff --name-only main | xargs animatekit ci\nanimatekit ci notebooks/animation/convert.ipynb\nanimatekit ci --watch"),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := trigger.NewFilter(ciPatterns)

		if ciWatch {
			return ciWatchLoop(cmd, filter)
		}

		matching := filter.Matching(args)
		if len(matching) == 0 {
			fmt.Println("no matching changes")
			os.Exit(1)
		}
		for _, path := range matching {
			fmt.Println(path)
		}
		return nil
	},
}

func init() {
	ciCmd.Flags().StringArrayVar(&ciPatterns, "pattern", nil, "override the default path filter patterns")
	ciCmd.Flags().BoolVarP(&ciWatch, "watch", "w", false, "watch the working tree and re-convert on changes")
}

// ciWatchLoop watches the working tree and re-runs the conversion whenever
// a matching file changes.
func ciWatchLoop(cmd *cobra.Command, filter *trigger.Filter) error {
	cfg, err := loadPipelineConfig()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	watcher, err := trigger.NewWatcher(cwd, filter, func(paths []string) {
		log.Info("watched files changed", "paths", paths)

		backend, err := newBackend(cfg)
		if err != nil {
			log.Error("building backend", "error", err)
			return
		}
		if err := runConversion(cmd.Context(), cfg, backend); err != nil {
			log.Error("conversion after change failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched, err := watcher.Scan()
	if err != nil {
		return err
	}
	fmt.Printf("watching %d files, ctrl+c to stop\n", len(watched))

	return watcher.Run(cmd.Context())
}
