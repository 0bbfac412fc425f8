package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/snx/internal/shared"
	"github.com/desertthunder/snx/internal/tasks"
	"github.com/desertthunder/snx/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive terminal browser. Logs go to a file while the
// program owns the terminal.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd)

	store, err := r.openStore(config)
	if err != nil {
		return err
	}
	defer r.closeStore()

	source, err := r.spotifyService(config)
	if err != nil {
		return err
	}

	sess, err := r.sessionFromConfig(config)
	if err != nil {
		return err
	}

	logPath := config.Logging.File
	if logPath == "" {
		logPath = "./tmp/snx-tui.log"
	}
	fileLogger := shared.NewFileLogger(logPath)
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(config.Logging.Level))
	r.SetLogger(fileLogger)

	engine := tasks.NewLibraryEngine(source, store, r.engineOpts(config))
	model := ui.NewModel(ctx, engine, sess)

	p := tea.NewProgram(model)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
