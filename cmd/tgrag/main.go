package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/bus"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/config"
	"github.com/matheus3301/tgrag/internal/console"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/lock"
	"github.com/matheus3301/tgrag/internal/profile"
	"github.com/matheus3301/tgrag/internal/search"
	"github.com/matheus3301/tgrag/internal/tui"
	"github.com/matheus3301/tgrag/internal/tui/model"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	name := profile.Resolve(*profileFlag, cfg)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var (
		client *backend.Client
		chats  cache.Store
		jobs   *job.Runner
		runner *search.Runner
		events *bus.Bus
		pcfg   config.Profile
		logger *zap.Logger
	)
	app := fx.New(
		console.Module(console.Params{Profile: name, Exclusive: true, Interactive: true}),
		console.WithLogger(),
		fx.Populate(&client, &chats, &jobs, &runner, &events, &pcfg, &logger),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var held *lock.HeldError
		if errors.As(err, &held) {
			fmt.Fprintln(os.Stderr, "tgragctl can still read the profile while it is open")
		}
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	vm := model.NewViewModel(model.Deps{
		Backend: client,
		Chats:   chats,
		Jobs:    jobs,
		Search:  runner,
		Bus:     events,
		Logger:  logger,
		TopK:    pcfg.TopK,
		Style:   pcfg.AnswerStyle,
	})
	ui := tui.NewApp(vm, tui.Options{
		Profile:    name,
		BackendURL: pcfg.BackendURL,
		Bus:        events,
		Logger:     logger,
	})
	runErr := ui.Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
