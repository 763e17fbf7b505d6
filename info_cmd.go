package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/animatekit/internal/artifacts"
	"github.com/dgnsrekt/animatekit/internal/hub"
)

var infoCmd = &cobra.Command{
	Use:   "info [ORG/NAME[@REVISION]]",
	Short: "Show converted artifacts and the checkpoint model card",
	Long: paragraph(
		"\nList the IR artifacts in the models directory. With a checkpoint reference, also fetch and render its model card.",
	),
	Example: paragraph("animatekit info\nanimatekit info moore/animate-anyone"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadPipelineConfig()
		if err != nil {
			return err
		}

		store, err := artifacts.NewStore(cfg.ModelsDir)
		if err != nil {
			return err
		}
		defer store.Close()

		infos := store.List()
		stats := store.Stats()
		fmt.Printf("Artifacts in %s: %d (%s)\n", cfg.ModelsDir, stats.Count, humanize.Bytes(uint64(stats.TotalSize)))
		for _, info := range infos {
			fmt.Printf("  %s  %s  %s\n", info.Name, humanize.Bytes(uint64(info.Size)), humanize.Time(info.ModTime))
		}

		if len(args) == 0 {
			return nil
		}

		ref, err := hub.ParseRef(args[0])
		if err != nil {
			return err
		}

		card, err := hub.NewClient(hubConfig()).FetchModelCard(cmd.Context(), ref)
		if err != nil {
			return fmt.Errorf("fetching model card for %s: %w", ref, err)
		}

		width := 80
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
				width = w
			}
			if width > 120 {
				width = 120
			}
		}

		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithColorProfile(termenv.ColorProfile()),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return fmt.Errorf("unable to create renderer: %w", err)
		}

		out, err := r.Render(string(card))
		if err != nil {
			return fmt.Errorf("unable to render markdown: %w", err)
		}
		fmt.Print(out)
		return nil
	},
}
