package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/jarvik/webclient/internal/config"
	"github.com/zhouzirui/jarvik/webclient/internal/model/session"
	"github.com/zhouzirui/jarvik/webclient/internal/service/blob"
	"github.com/zhouzirui/jarvik/webclient/internal/service/env"
	"github.com/zhouzirui/jarvik/webclient/internal/service/router"
	"github.com/zhouzirui/jarvik/webclient/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds what every command needs. It is built once the flags are
// parsed.
type app struct {
	cfg    *config.Config
	log    *zap.Logger
	router *router.Router
	out    *printer

	verbose bool
	devlab  bool
	backend string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "jarvik",
		Short:         "Command line client for the Jarvik assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")
	root.PersistentFlags().BoolVar(&a.devlab, "devlab", false, "send requests to the discovered devlab backend")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "local backend URL (overrides JARVIK_BACKEND_URL)")

	root.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newAPIKeyCmd(a),
		newStatusCmd(a),
		newAskCmd(a),
		newFeedbackCmd(a),
		newModelCmd(a),
		newKnowledgeCmd(a),
		newMemoryCmd(a),
		newDownloadCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	a.out = newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())

	// .env 不存在时直接使用系统环境变量。
	_ = godotenv.Load()

	if a.backend != "" {
		if err := os.Setenv("JARVIK_BACKEND_URL", a.backend); err != nil {
			return err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		a.out.fail("configuration: %v", err)
		return err
	}
	a.cfg = cfg

	level := "warn"
	if a.verbose {
		level = "debug"
	}
	a.log = logger.New(logger.Options{
		FilePath:   cfg.Log.FilePath,
		Production: cfg.Log.Production,
		Level:      level,
	})

	a.router = router.New(router.Options{
		Origin:           cfg.Backend.BaseURL,
		DevlabConfigPath: cfg.Backend.DevlabConfigPath,
		AskRouting:       cfg.Backend.AskRouting,
		HTTPClient:       &http.Client{Timeout: cfg.Backend.Timeout},
		Store:            session.NewFileStore(cfg.Session.File),
		Blobs:            blob.NewStore("blob:", cfg.Blob.TTL),
		Log:              a.log,
	})

	if cfg.Backend.DiscoverDevlab || a.devlab {
		a.router.Discover(cmd.Context())
	}
	if a.devlab {
		if _, err := a.router.UseEnvironment(env.Devlab); err != nil {
			a.out.fail("%v", err)
			return err
		}
	}
	return nil
}

// report prints err and returns it so RunE can hand it back to cobra.
func (a *app) report(err error) error {
	if err != nil {
		a.out.failErr(err)
	}
	return err
}

func requireArgs(n int, what string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("missing %s", what)
		}
		return nil
	}
}
