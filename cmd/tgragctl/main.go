package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/tgrag/internal/backend"
	"github.com/matheus3301/tgrag/internal/cache"
	"github.com/matheus3301/tgrag/internal/config"
	"github.com/matheus3301/tgrag/internal/console"
	"github.com/matheus3301/tgrag/internal/job"
	"github.com/matheus3301/tgrag/internal/profile"
	"github.com/matheus3301/tgrag/internal/search"
	"github.com/matheus3301/tgrag/internal/store"
)

// offline marks commands that only touch the config file.
const offline = "offline"

// env is the state shared by every subcommand of one invocation.
type env struct {
	profileFlag string
	configPath  string
	dataDir     string
	jsonOut     bool
	noColor     bool

	profile string
	app     *fx.App
	cfg     config.Profile
	client  *backend.Client
	chats   cache.Store
	jobs    *job.Runner
	search  *search.Runner
	db      *store.DB
	logger  *zap.Logger

	out io.Writer
	err io.Writer
}

func main() {
	root, e := newRootCmd()
	if err := execute(root, e, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs the command tree and always shuts the console down; cobra
// skips post-run hooks when a command fails.
func execute(root *cobra.Command, e *env, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if cerr := e.close(); err == nil {
		err = cerr
	}
	if err != nil {
		e.printError(root.ErrOrStderr(), "%v", err)
	}
	return err
}

func newRootCmd() (*cobra.Command, *env) {
	e := &env{}
	root := &cobra.Command{
		Use:           "tgragctl",
		Short:         "Scriptable access to a tgrag backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			e.out = cmd.OutOrStdout()
			e.err = cmd.ErrOrStderr()
			if cmd.Annotations[offline] != "" {
				return nil
			}
			return e.open()
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return e.close()
		},
	}
	root.PersistentFlags().StringVar(&e.profileFlag, "profile", "", "profile name (overrides config default)")
	root.PersistentFlags().StringVar(&e.configPath, "config", "", "path to config.toml (default ~/.tgrag/config.toml)")
	root.PersistentFlags().StringVar(&e.dataDir, "data-dir", "", "profile data directory override")
	root.PersistentFlags().BoolVar(&e.jsonOut, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVar(&e.noColor, "no-color", false, "disable colored output")
	_ = root.PersistentFlags().MarkHidden("data-dir")

	root.AddCommand(
		statusCmd(e),
		chatsCmd(e),
		topicsCmd(e),
		downloadCmd(e),
		searchCmd(e),
		askCmd(e),
		sourcesCmd(e),
		statsCmd(e),
		deleteCmd(e),
		jobsCmd(e),
		jobCmd(e),
		contactsCmd(e),
		contactCmd(e),
		authCmd(e),
		profilesCmd(e),
	)
	return root, e
}

func (e *env) configFile() string {
	if e.configPath != "" {
		return e.configPath
	}
	return profile.ConfigPath()
}

// open resolves the profile and starts the shared console services.
func (e *env) open() error {
	cfg, err := config.LoadOrDefault(e.configFile())
	if err != nil {
		return err
	}
	e.profile = profile.Resolve(e.profileFlag, cfg)
	if err := profile.ValidateName(e.profile); err != nil {
		return err
	}

	e.app = fx.New(
		console.Module(console.Params{
			Profile:    e.profile,
			ConfigPath: e.configPath,
			BaseDir:    e.dataDir,
		}),
		console.WithLogger(),
		fx.Populate(&e.cfg, &e.client, &e.chats, &e.jobs, &e.search, &e.db, &e.logger),
	)
	if err := e.app.Err(); err != nil {
		e.app = nil
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.app.Start(ctx); err != nil {
		e.app = nil
		return err
	}
	return nil
}

func (e *env) close() error {
	if e.app == nil {
		return nil
	}
	app := e.app
	e.app = nil
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return app.Stop(ctx)
}
