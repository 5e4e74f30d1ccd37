package cmd

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Spawn one llama-server process per configured port and relay its output",
	Run: func(cmd *cobra.Command, args []string) {
		applyLogLevel()

		llamaServer := strings.TrimSpace(os.Getenv("LLAMA_SERVER_PATH"))
		modelPath := strings.TrimSpace(os.Getenv("LLAMA_MODEL_PATH"))
		if llamaServer == "" || modelPath == "" {
			logrus.Fatalf("set LLAMA_SERVER_PATH and LLAMA_MODEL_PATH")
		}

		ports := splitNonEmpty(os.Getenv("LLAMA_PORTS"), "8081")
		extraArgs := strings.Fields(os.Getenv("LLAMA_SERVER_ARGS"))

		var procs []*exec.Cmd
		for _, port := range ports {
			args := append([]string{"-m", modelPath, "--host", "0.0.0.0", "--port", port}, extraArgs...)
			proc := exec.Command(llamaServer, args...)
			proc.Dir = modelDir(modelPath)

			stdout, err := proc.StdoutPipe()
			if err != nil {
				logrus.Fatalf("spawn: stdout pipe: %v", err)
			}
			proc.Stderr = proc.Stdout

			logrus.Infof("Starting: %s %s", llamaServer, strings.Join(args, " "))
			if err := proc.Start(); err != nil {
				logrus.Fatalf("spawn: starting backend on port %s: %v", port, err)
			}
			procs = append(procs, proc)
			go relayOutput(stdout)
		}

		logrus.Info("Backends running. Ctrl+C to stop.")
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		for _, proc := range procs {
			_ = proc.Process.Signal(syscall.SIGTERM)
		}
	},
}

func relayOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logrus.Infof("backend: %s", scanner.Text())
	}
}

func splitNonEmpty(raw, def string) []string {
	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func modelDir(modelPath string) string {
	idx := strings.LastIndex(modelPath, "/")
	if idx < 0 {
		return "."
	}
	return modelPath[:idx]
}

func init() {
	rootCmd.AddCommand(spawnCmd)
}
