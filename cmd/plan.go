package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relayserve/relayserve/internal/device"
	"github.com/relayserve/relayserve/internal/probe"
	"github.com/relayserve/relayserve/internal/shard"
)

var (
	planTotalLayers int
	planUseProbe    bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print a shard plan for the probed (or stubbed) devices without starting a server",
	Run: func(cmd *cobra.Command, args []string) {
		applyLogLevel()

		var devices []device.Device
		if planUseProbe {
			devices = probe.Probe()
		} else {
			devices = []device.Device{{Name: "stub", Backend: "cpu", TFlops: 1, BandwidthGBps: 10, VRAMGB: 4}}
		}

		planner := shard.NewPlanner()
		result, err := planner.Plan(devices, planTotalLayers)
		if err != nil {
			logrus.Fatalf("shard plan: %v", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			logrus.Fatalf("encoding plan: %v", err)
		}
		fmt.Fprintln(os.Stderr, "plan: devices=", len(devices), "total_layers=", planTotalLayers)
	},
}

func init() {
	planCmd.Flags().IntVar(&planTotalLayers, "total-layers", 32, "Total layer count to shard across devices")
	planCmd.Flags().BoolVar(&planUseProbe, "probe", false, "Probe real devices instead of using a single stub device")
	rootCmd.AddCommand(planCmd)
}
