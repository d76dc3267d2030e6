package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"fisherbot/internal/app"
	"fisherbot/internal/storage"
	logx "fisherbot/pkg/logx"
)

func runCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bot until SIGINT or SIGTERM",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *cfgPath)
		},
	}
}

func run(ctx context.Context, cfgPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(cfgPath)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.Start(runCtx); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("fatal start: %w", err)
	}

	var reason app.StopReason
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	case <-ctx.Done():
		reason = app.StopAppStop
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		return err
	}
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}

func migrateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := app.OpenStore(*cfgPath, logx.NewConsole("INFO").With(logx.String("comp", "storage")))
			if err != nil {
				return err
			}
			defer st.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := st.Connect(ctx); err != nil {
				return err
			}
			color.Green("✓ schema ready (%s)", st.Driver())
			return nil
		},
	}
}

func stateCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "state [actor_id]",
		Short: "Print the persisted actor state",
		Long: `Print the persisted actor state. The actor defaults to fisher.actor_id
from the config. A missing row is created with zero counters.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, cfg, err := app.OpenStore(*cfgPath, logx.Nop())
			if err != nil {
				return err
			}
			defer st.Close()

			id := cfg.Fisher.ActorID
			if len(args) == 1 {
				id = args[0]
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			if err := st.Connect(ctx); err != nil {
				return err
			}
			actor, err := st.LoadActor(ctx, id)
			if err != nil {
				if errors.Is(err, storage.ErrUnavailable) {
					return fmt.Errorf("database unreachable: %w", err)
				}
				return err
			}
			printActor(actor)
			return nil
		},
	}
}

func printActor(a storage.ActorState) {
	bold := color.New(color.Bold)
	label := color.New(color.FgCyan)
	gold := color.New(color.FgYellow)
	emerald := color.New(color.FgGreen)

	bold.Printf("Actor %s\n", a.ActorID)
	fmt.Println(strings.Repeat("─", 32))
	row := func(name, value string, c *color.Color) {
		label.Printf("  %-14s", name)
		if c != nil {
			c.Println(value)
			return
		}
		fmt.Println(value)
	}
	row("trips", fmt.Sprint(a.Trips), nil)
	row("balance", fmt.Sprintf("$%d", a.Balance), nil)
	row("clan", orDash(a.Clan), nil)
	row("biome", orDash(a.Biome), nil)
	row("gold fish", fmt.Sprint(a.GoldFish), gold)
	row("emerald fish", fmt.Sprint(a.EmeraldFish), emerald)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
