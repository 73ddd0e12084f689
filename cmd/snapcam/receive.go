package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-snapcam/internal/config"
	"github.com/teslashibe/go-snapcam/internal/log"
	"github.com/teslashibe/go-snapcam/pkg/receiver"
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Run a session endpoint that stores uploaded stills",
	Long: `Accept WebSocket connections on /ws/session/:id and store every
uploaded still under <dir>/<session>/<uuid>-<fileName>.`,
	RunE: runReceive,
}

// Receive flags
var (
	receivePort int
	receiveDir  string
)

func init() {
	receiveCmd.Flags().IntVar(&receivePort, "port", config.ReceiverPort(), "Listen port")
	receiveCmd.Flags().StringVar(&receiveDir, "dir", config.OutputDir(), "Directory uploads are stored under")
}

func runReceive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h := receiver.NewHub(receiver.DirStore{Dir: receiveDir}, log.L())
	app := receiver.NewApp(h)

	errCh := make(chan error, 1)
	addr := fmt.Sprintf(":%d", receivePort)
	go func() { errCh <- app.Listen(addr) }()
	log.Info("receiver listening", "addr", addr, "dir", receiveDir)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return app.ShutdownWithTimeout(5 * time.Second)
	}
}
