// Command snapcam captures stills from a camera and saves or sends them.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-snapcam/internal/config"
	"github.com/teslashibe/go-snapcam/internal/log"
	"github.com/teslashibe/go-snapcam/pkg/camera"
	"github.com/teslashibe/go-snapcam/pkg/camera/gocvcam"
)

var rootCmd = &cobra.Command{
	Use:   "snapcam",
	Short: "Camera capture with local save and session upload",
	Long: `snapcam opens a camera, shows a live preview, captures a still
(full frame, overlay crop or aspect-locked guide frame) and saves it locally
or sends it to a session endpoint over WebSocket.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Init(logLevel)
	},
}

// Global flags
var (
	logLevel   string
	useMock    bool
	deviceFlag int
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", config.LogLevel(), "Log level: debug, info, warn, error")
	pf.BoolVar(&useMock, "mock", false, "Use a synthetic camera instead of a real device")
	pf.IntVar(&deviceFlag, "device", config.Device(), "OpenCV device index (-1 picks by facing mode)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shootCmd)
	rootCmd.AddCommand(receiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newSource returns the camera backend selected by the global flags.
func newSource(logger *slog.Logger) camera.Source {
	if useMock {
		return camera.NewMockSource(logger)
	}
	cfg := gocvcam.DefaultConfig()
	cfg.Device = deviceFlag
	return gocvcam.New(cfg, logger)
}

// constraintsFor returns the named preset, or the default constraints.
func constraintsFor(preset string) (camera.Constraints, error) {
	if preset == "" {
		return camera.DefaultConfig(), nil
	}
	p := camera.GetPreset(preset)
	if p == nil {
		return camera.Constraints{}, fmt.Errorf("unknown preset %q (have %v)", preset, camera.PresetNames())
	}
	return *p, nil
}
