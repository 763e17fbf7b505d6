package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/animatekit/internal/hub"
	"github.com/dgnsrekt/animatekit/server"
)

var (
	demoShare bool
	demoPort  int
	demoRef   string
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Serve the animation demo over HTTP",
	Long: paragraph(
		fmt.Sprintf("\nCompile the pipeline and serve the demo locally. Passing %s binds all interfaces; without it the server stays on localhost, and a failed local bind is an error rather than a reason to widen exposure.", keyword("--share")),
	),
	Example: paragraph("animatekit demo\nanimatekit demo --port 8080\nanimatekit demo --share"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadPipelineConfig()
		if err != nil {
			return err
		}

		pipe, err := buildPipeline(cmd, cfg)
		if err != nil {
			return err
		}

		srvCfg, err := env.ParseAs[server.Config]()
		if err != nil {
			return fmt.Errorf("error parsing config: %v", err)
		}
		if viper.IsSet("demo.host") {
			srvCfg.Host = viper.GetString("demo.host")
		}
		if cmd.Flags().Changed("port") {
			srvCfg.Port = demoPort
		} else if viper.IsSet("demo.port") {
			srvCfg.Port = viper.GetInt("demo.port")
		}
		if cmd.Flags().Changed("share") {
			srvCfg.Share = demoShare
		} else if viper.IsSet("demo.share") {
			srvCfg.Share = viper.GetBool("demo.share")
		}

		if demoRef != "" {
			ref, err := hub.ParseRef(demoRef)
			if err != nil {
				return err
			}
			card, err := hub.NewClient(hubConfig()).FetchModelCard(cmd.Context(), ref)
			if err != nil {
				log.Warn("could not fetch model card", "ref", ref, "error", err)
			} else {
				srvCfg.ModelCard = card
			}
		}

		srv, err := server.New(srvCfg, pipe)
		if err != nil {
			return err
		}
		return srv.ListenAndServe(cmd.Context())
	},
}

func init() {
	demoCmd.Flags().BoolVar(&demoShare, "share", false, "expose the demo on all interfaces")
	demoCmd.Flags().IntVarP(&demoPort, "port", "p", 7860, "port to listen on")
	demoCmd.Flags().StringVar(&demoRef, "ref", "", "checkpoint ref whose model card is shown on the index page")
}
