package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"atelier/internal/gateway/app"
	"atelier/internal/gateway/config"
	"atelier/internal/runway"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "atelier",
	Short: "Fashion design co-pilot",
	Long: `Atelier turns a conversation and uploaded references into design concepts,
technical flats, tech packs with sourcing leads, and runway renders.

Set GEMINI_API_KEY to talk to a real model. Without it the studio runs with
placeholder output; --offline uses a deterministic scripted provider.`,
	SilenceUsage: true,
}

func main() {
	addPersistentFlags()
	rootCmd.AddCommand(serveCmd(), chatCmd(), scenariosCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	fs := rootCmd.PersistentFlags()
	fs.Bool("offline", false, "use the scripted offline provider")
	fs.String("scenarios", "", "YAML scenario catalog overriding the built-in one")
	fs.Bool("manual-disclosure", false, "do not share uploads with the model until toggled")
	fs.Duration("poll-interval", 10*time.Second, "video job poll interval")
	fs.Duration("max-wait", 10*time.Minute, "maximum time to wait for a video job")
	_ = v.BindPFlag("offline", fs.Lookup("offline"))
	_ = v.BindPFlag("runway.catalog", fs.Lookup("scenarios"))
	_ = v.BindPFlag("session.manual_disclosure", fs.Lookup("manual-disclosure"))
	_ = v.BindPFlag("runway.poll_interval", fs.Lookup("poll-interval"))
	_ = v.BindPFlag("runway.max_wait", fs.Lookup("max-wait"))
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, "", log.LstdFlags)
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}

			errCh := make(chan error, 1)
			go func() { errCh <- a.Start() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-quit:
			case err := <-errCh:
				if err != nil {
					logger.Printf("Server error: %v", err)
				}
			}

			logger.Println("Shutting down server...")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := a.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			logger.Println("Server exiting")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8081 or $PORT)")
	_ = v.BindPFlag("addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive design session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			logger := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)
			p, err := app.NewProvider(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer p.Close()
			s, err := app.NewStudio(p, cfg, logger)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return newREPL(s, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
		},
	}
}

func scenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List runway scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			cat, err := runway.LoadCatalog(cfg.Runway.Catalog)
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.AppendHeader(table.Row{"ID", "Label", "Default", "Prompt"})
			for _, sc := range cat.Scenarios {
				def := ""
				if sc.ID == cat.Default {
					def = "*"
				}
				tw.AppendRow(table.Row{sc.ID, sc.Label, def, sc.Prompt})
			}
			tw.Render()
			return nil
		},
	}
}
