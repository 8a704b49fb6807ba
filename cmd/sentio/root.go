package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/JaimeStill/sentio/internal/api"
	"github.com/JaimeStill/sentio/internal/config"
	"github.com/JaimeStill/sentio/internal/infrastructure"
	"github.com/JaimeStill/sentio/pkg/repository"
)

const loadTimeout = time.Minute

type app struct {
	cfg    *config.Config
	infra  *infrastructure.Infrastructure
	domain *api.Domain
	json   bool
}

// RootCommand creates the root command with every subcommand attached.
func RootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:          "sentio",
		Short:        "Review staged livestock classifications",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&a.json, "json", false, "Print results as JSON")

	rootCmd.AddCommand(
		stageCommand(a),
		pendingCommand(a),
		statsCommand(a),
		finalizeCommand(a),
		thresholdsCommand(a),
		applyCommand(a),
		referenceCommand(a),
	)

	for _, sub := range rootCmd.Commands() {
		sub.RunE = a.withBackend(sub.RunE)
	}

	return rootCmd
}

// withBackend opens the backend before run and shuts it down afterward,
// whether or not run succeeds.
func (a *app) withBackend(run func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if err := a.open(cmd); err != nil {
			return err
		}
		defer func() {
			if cerr := a.close(); err == nil {
				err = cerr
			}
		}()
		return run(cmd, args)
	}
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		return err
	}
	if err := infra.Start(); err != nil {
		return err
	}
	infra.Lifecycle.WaitForStartup()
	if !infra.Lifecycle.Ready() {
		infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())
		return fmt.Errorf("backend not ready: %v", infra.Lifecycle.Failures())
	}

	ctx, cancel := repository.Bounded(cmd.Context(), loadTimeout)
	defer cancel()

	domain, err := api.NewDomain(ctx, api.NewRuntime(cfg, infra))
	if err != nil {
		infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())
		return err
	}

	a.cfg, a.infra, a.domain = cfg, infra, domain
	return nil
}

func (a *app) close() error {
	if a.infra == nil {
		return nil
	}
	infra := a.infra
	a.infra, a.domain = nil, nil

	timeout := a.cfg.ShutdownTimeoutDuration()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return infra.Lifecycle.Shutdown(timeout)
}

// print writes v as indented JSON when --json is set, otherwise calls text.
func (a *app) print(w io.Writer, v any, text func(io.Writer)) error {
	if a.json {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
