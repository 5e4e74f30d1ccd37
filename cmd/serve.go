package cmd

import (
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relayserve/relayserve/internal/config"
	"github.com/relayserve/relayserve/internal/engine"
	"github.com/relayserve/relayserve/internal/probe"
	"github.com/relayserve/relayserve/internal/router"
	"github.com/relayserve/relayserve/internal/transport"
)

var routerConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relayserve HTTP front end",
	Run: func(cmd *cobra.Command, args []string) {
		applyLogLevel()

		settings := config.FromEnv()
		devices := probe.Probe()

		if routerConfigPath != "" {
			routerCfg, err := router.LoadConfig(routerConfigPath)
			if err != nil {
				logrus.Fatalf("router config: %v", err)
			}
			r := router.New(routerCfg)
			if r.HasBackends() {
				logrus.Infof("router: loaded multi-backend config from %s", routerConfigPath)
			} else {
				logrus.Warnf("router: %s declared no usable backends, ignoring", routerConfigPath)
			}
		}

		eng, err := engine.New(settings, devices)
		if err != nil {
			logrus.Fatalf("engine construction failed: %v", err)
		}

		prettyDefault := "json"
		if settings.PrettyDefault {
			prettyDefault = "pretty"
		}
		backendsDesc := "none"
		if len(settings.Backends) > 0 {
			backendsDesc = strconv.Itoa(len(settings.Backends)) + " configured"
		}
		logrus.Infof("Relay starting\n- Listening: :%d\n- Model: %s\n- Response default: %s\n- Backends: %s",
			settings.Port, settings.ModelID, prettyDefault, backendsDesc)

		srv := transport.New(settings, eng)
		addr := ":" + strconv.Itoa(settings.Port)
		if err := srv.ListenAndServe(addr); err != nil {
			logrus.Fatalf("server exited: %v", err)
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&routerConfigPath, "router-config", "", "Path to optional YAML multi-backend router config")
	rootCmd.AddCommand(serveCmd)
}
