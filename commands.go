package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kelomina/ADGHRuleTool/pkg/admin"
	"github.com/kelomina/ADGHRuleTool/pkg/config"
	"github.com/kelomina/ADGHRuleTool/pkg/cycle"
	"github.com/kelomina/ADGHRuleTool/pkg/inspect"
	"github.com/kelomina/ADGHRuleTool/pkg/rules"
	"github.com/kelomina/ADGHRuleTool/pkg/version"
)

// runCommand runs cycles until SIGINT or SIGTERM. The admin server, when
// configured, shares the lifetime of the scheduler.
func (a *app) runCommand(cmd *cobra.Command, _ []string) error {
	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer func() {
		_ = p.closeLog()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if p.cfg.Schedule.WaitForEnter {
		if err := cycle.WaitForEnter(ctx, a.in, a.out); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.scheduler.Run(gctx)
	})
	if p.cfg.Admin.Listen != "" {
		handler := admin.NewHandler(p.scheduler, p.metrics)
		g.Go(func() error {
			return admin.Serve(gctx, p.cfg.Admin.Listen, handler, p.log)
		})
	}

	if err := g.Wait(); err != nil {
		p.log.Error("stopped with error", "error", err)
		return err
	}
	p.log.Info("shutdown complete")
	return nil
}

// onceCommand runs a single cycle and the cleanup pass that would normally
// follow the inter-cycle wait.
func (a *app) onceCommand(cmd *cobra.Command, _ []string) error {
	p, err := a.newPipeline()
	if err != nil {
		return err
	}
	defer func() {
		_ = p.closeLog()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := p.scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}
	if err := p.scheduler.Cleanup(); err != nil {
		p.log.Error("cleanup failed", "path", p.cfg.Output.Path, "error", err)
	}

	fmt.Fprintf(a.out, "fetched %d of %d sources, %d rules written to %s\n",
		report.Fetched, report.Sources, report.Rules, p.cfg.Output.Path)
	for _, msg := range report.Errors() {
		fmt.Fprintf(a.out, "  failed: %s\n", msg)
	}
	return nil
}

func (a *app) cleanCommand(_ *cobra.Command, args []string) error {
	stats, err := rules.Cleanup(a.fs, args[0], config.ExclusionMarker)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "kept %d lines, removed %d\n", stats.Kept, stats.Removed)
	return nil
}

func (a *app) inspectCommand(_ *cobra.Command, args []string) error {
	report, err := inspect.File(a.fs, args[0], config.ExclusionMarker)
	if err != nil {
		return err
	}
	return report.Write(a.out)
}

func (a *app) versionCommand(_ *cobra.Command, _ []string) {
	fmt.Fprintln(a.out, "adghruletool", version.Version)
}
