package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MegaGrindStone/elf-therapist/internal/tui"
	"github.com/MegaGrindStone/elf-therapist/internal/widget"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

type options struct {
	server     string
	prefsPath  string
	logPath    string
	spanChunks bool
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "elf-widget",
		Short: "Talk to the elf therapist from your terminal",
		Long: "elf-widget opens a session with an elf therapist server and streams its replies into a " +
			"terminal chat window.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:5000", "base URL of the therapist server")
	cmd.Flags().StringVar(&opts.prefsPath, "prefs", "", "preferences file (default: <config dir>/elftherapist/widget.yaml)")
	cmd.Flags().StringVar(&opts.logPath, "log", "", "log file (default: <config dir>/elftherapist/widget.log)")
	cmd.Flags().BoolVar(&opts.spanChunks, "span-chunks", false,
		"parse a keywords segment even when it arrives split across chunks")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "log at debug level")

	return cmd
}

func (o *options) fillDefaults() error {
	if o.prefsPath != "" && o.logPath != "" {
		return nil
	}
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("error getting user config dir: %w", err)
	}
	dir := filepath.Join(cfgDir, "elftherapist")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	if o.prefsPath == "" {
		o.prefsPath = filepath.Join(dir, "widget.yaml")
	}
	if o.logPath == "" {
		o.logPath = filepath.Join(dir, "widget.log")
	}
	return nil
}

func run(ctx context.Context, opts options) error {
	if err := opts.fillDefaults(); err != nil {
		return err
	}

	// The terminal belongs to the TUI, so logs go to a file.
	logFile, err := os.OpenFile(opts.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("error opening log file: %w", err)
	}
	defer logFile.Close()

	level := slog.LevelInfo
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var p *tea.Program
	view := tui.NewProgramView(func(msg tea.Msg) { p.Send(msg) })
	controller, err := newController(ctx, opts, view, logger)
	if err != nil {
		return err
	}
	controller.OnStateChange(view.StateChanged)

	p = tea.NewProgram(tui.NewModel(ctx, controller), tea.WithAltScreen(), tea.WithContext(ctx))

	logger.Info("Widget starting",
		slog.String("server", opts.server),
		slog.Bool("spanChunks", opts.spanChunks))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error running the widget: %w", err)
	}
	logger.Info("Widget stopped", slog.Int("messages", len(controller.Transcript())))
	return nil
}

// newController opens a session with the server and builds the controller behind view. A server that cannot
// be reached is only logged: the widget still starts and answers the first message with the error reply.
func newController(ctx context.Context, opts options, view widget.View, logger *slog.Logger) (*widget.Controller, error) {
	client, err := widget.NewClient(opts.server, logger)
	if err != nil {
		return nil, err
	}
	// Loading the page is what starts a session on the server.
	if err := client.Open(ctx); err != nil {
		logger.Error("Failed to open the therapist office",
			slog.String("server", opts.server),
			slog.String("err", err.Error()))
	}

	return widget.NewController(
		client,
		view,
		widget.NewFilePrefs(opts.prefsPath),
		widget.NewDispatcher(opts.spanChunks, logger),
		logger,
	), nil
}
