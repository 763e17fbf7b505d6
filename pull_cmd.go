package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/animatekit/internal/hub"
	"github.com/dgnsrekt/animatekit/utils"
)

var pullCmd = &cobra.Command{
	Use:   "pull [ORG/NAME[@REVISION]]",
	Short: "Download a checkpoint from the model hub",
	Long: paragraph(
		fmt.Sprintf("\nDownload a checkpoint into the models directory. Files already present with matching hashes are %s.", keyword("skipped")),
	),
	Example: paragraph("animatekit pull moore/animate-anyone\nanimatekit pull moore/animate-anyone@v2"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arg := "moore/animate-anyone"
		if len(args) == 1 {
			arg = args[0]
		}

		ref, err := hub.ParseRef(arg)
		if err != nil {
			return hub.SuggestError(arg)
		}

		cfg, err := loadPipelineConfig()
		if err != nil {
			return err
		}

		client := hub.NewClient(hubConfig())
		dest := checkpointDir(cfg)

		var lastLine int
		manifest, err := client.Pull(cmd.Context(), ref, dest, func(p hub.Progress) {
			if p.Phase != "files" || p.FilesCompleted == lastLine {
				return
			}
			lastLine = p.FilesCompleted
			fmt.Printf("  %s  %d/%d files  %s\n",
				p.CurrentFile, p.FilesCompleted, p.FilesTotal,
				humanize.Bytes(uint64(p.BytesDownloaded)))
		})
		if err != nil {
			return err
		}

		fmt.Printf("Pulled %s (%d files, %s) to %s\n",
			ref, len(manifest.Files), humanize.Bytes(uint64(manifest.TotalSize())), dest)
		return nil
	},
}

// hubConfig resolves hub settings from Viper.
func hubConfig() hub.Config {
	cfg := hub.DefaultConfig()

	if viper.IsSet("hub.registry_url") {
		cfg.RegistryURL = viper.GetString("hub.registry_url")
	}
	if viper.IsSet("hub.cache_dir") {
		cfg.CacheDir = utils.ExpandPath(viper.GetString("hub.cache_dir"))
	}
	if viper.IsSet("hub.concurrency") {
		cfg.Concurrency = viper.GetInt("hub.concurrency")
	}
	if viper.IsSet("hub.rate_limit") {
		cfg.RateLimit = viper.GetInt("hub.rate_limit")
	}
	return cfg
}
