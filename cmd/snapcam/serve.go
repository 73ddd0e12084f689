package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-snapcam/internal/config"
	"github.com/teslashibe/go-snapcam/internal/log"
	"github.com/teslashibe/go-snapcam/pkg/camera"
	"github.com/teslashibe/go-snapcam/pkg/receiver"
	"github.com/teslashibe/go-snapcam/pkg/save"
	"github.com/teslashibe/go-snapcam/pkg/session"
	"github.com/teslashibe/go-snapcam/pkg/transport"
	"github.com/teslashibe/go-snapcam/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the preview and control server",
	Long: `Start a capture session and serve its preview feed, status feed and
control API (capture, retake, save, send, camera settings).`,
	RunE: runServe,
}

// Serve flags
var (
	servePort    int
	serveStatic  string
	sessionFlags sessionOptions
)

// sessionOptions are flags shared by serve and shoot.
type sessionOptions struct {
	sessionID   string
	receiverURL string
	outputDir   string
	preset      string
	fileName    string
	confirm     string
}

func (o *sessionOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.sessionID, "session", config.SessionID(), "Session id; enables sending when set")
	f.StringVar(&o.receiverURL, "receiver-url", config.ReceiverURL(), "Session endpoint base URL")
	f.StringVar(&o.outputDir, "output-dir", config.OutputDir(), "Directory stills are saved to")
	f.StringVar(&o.preset, "preset", "", "Camera preset: "+fmt.Sprint(camera.PresetNames()))
	f.StringVar(&o.fileName, "file-name", config.DefaultFileName, "File name stills are saved and sent as")
	f.StringVar(&o.confirm, "confirm", string(session.ConfirmSave), "Confirm action: save, send or both")
}

// build creates a session from the flags. The caller owns Close.
func (o *sessionOptions) build(extra ...session.Option) (*session.Session, *camera.Manager, error) {
	c, err := constraintsFor(o.preset)
	if err != nil {
		return nil, nil, err
	}
	switch session.ConfirmAction(o.confirm) {
	case session.ConfirmSave, session.ConfirmSend, session.ConfirmBoth:
	default:
		return nil, nil, fmt.Errorf("unknown confirm action %q", o.confirm)
	}

	logger := log.L()
	cfg := session.DefaultConfig()
	cfg.Constraints = c
	cfg.FileName = o.fileName
	cfg.Confirm = session.ConfirmAction(o.confirm)

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithSaver(save.NewFileSaver(o.outputDir)),
	}
	if o.sessionID != "" {
		opts = append(opts, session.WithTransport(transport.NewClient(transport.Config{
			BaseURL:   o.receiverURL,
			SessionID: o.sessionID,
		}, logger)))
	}
	opts = append(opts, extra...)

	return session.New(cfg, newSource(logger), opts...), camera.NewManager(c), nil
}

// checkReceiver warns early when sending is enabled but the receiver is down.
func (o *sessionOptions) checkReceiver(ctx context.Context) {
	if o.sessionID == "" {
		return
	}
	h, err := receiver.CheckHealth(ctx, o.receiverURL)
	if err != nil {
		log.Warn("receiver not reachable, sends will fail until it is", "url", o.receiverURL, "error", err)
		return
	}
	log.Debug("receiver healthy", "url", o.receiverURL, "sessions", h.Sessions)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", config.Port(), "HTTP listen port")
	serveCmd.Flags().StringVar(&serveStatic, "static", "", "Directory of static UI files served at /")
	sessionFlags.register(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := web.NewServer(web.Config{
		Addr:      fmt.Sprintf(":%d", servePort),
		StaticDir: serveStatic,
	}, log.L())

	sess, mgr, err := sessionFlags.build(
		session.WithPreview(srv),
		session.WithNotifier(session.MultiNotifier{srv, session.LogNotifier{Logger: log.L()}}),
	)
	if err != nil {
		return err
	}
	defer sess.Close()
	srv.Attach(sess, mgr)

	sessionFlags.checkReceiver(ctx)

	// Start failures are notified and recoverable through retake.
	if err := sess.Start(ctx); err != nil {
		log.Warn("session started with errors", "error", err)
	}
	srv.PublishStatus()

	log.Info("snapcam serving", "url", fmt.Sprintf("http://localhost:%d", servePort))
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("web server: %w", err)
	}
	return nil
}

