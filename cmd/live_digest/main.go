package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"live-digest/internal/live_digest/api"
	"live-digest/internal/live_digest/helper"
	"live-digest/internal/live_digest/processor"
	"live-digest/internal/live_digest/render"
	"live-digest/internal/live_digest/scheduler"
	"live-digest/internal/live_digest/source"
	"live-digest/internal/live_digest/store"
	"live-digest/internal/middleware/logger"
	"live-digest/pkg/config"
)

var cfgPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "live-digest",
		Short:         "Extract live-show announcements from weibo posts into date shards and render them",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config/config.yaml", "config file path")

	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(shardsCmd())
	rootCmd.AddCommand(collectCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app 每个子命令共用的配置和 logger
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func setup() (*app, error) {
	cfg, err := config.LoadConfig(cfgPath)
	missing := errors.Is(err, os.ErrNotExist)
	switch {
	case missing:
		cfg = config.Default()
		cfg.Extractor.APIKey = os.Getenv("LLM_API_KEY")
	case err != nil:
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	log, err := logger.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	if missing {
		log.Warn("Config file not found, using defaults", zap.String("path", cfgPath))
	}
	helper.ConfigureTimeLocation(cfg.TimeZone, log)
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
}

func (a *app) openStore(ctx context.Context) (store.ShardStore, func(), error) {
	s, err := store.Open(ctx, a.cfg.Store, a.log)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return s, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			a.log.Warn("Failed to close store", zap.Error(err))
		}
	}, nil
}

func ingestCmd() *cobra.Command {
	var input string
	var renderAfter bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract posts from a JSONL file and store them by live date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			posts, err := source.ReadPostsFile(input, a.log)
			if err != nil {
				return err
			}
			ext, err := processor.NewExtractor(a.cfg.Extractor, a.log)
			if err != nil {
				return err
			}
			s, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			p := &processor.Pipeline{
				Log:         a.log,
				Extractor:   ext,
				Store:       s,
				GlobalDedup: a.cfg.Ingest.GlobalDedup,
			}
			sum, err := p.Run(ctx, posts)
			if err != nil {
				return err
			}
			fmt.Printf("run %s: %d posts, %d inserted, %d duplicates, %d known, %d invalid, %d failed, %d shard errors\n",
				sum.RunID, sum.Total, sum.Inserted, sum.Duplicates, sum.Known, sum.Invalid, sum.Failed, sum.ShardErrs)

			if !renderAfter {
				return nil
			}
			_, err = render.NewRenderer(s, a.cfg.Render, a.log).Run(ctx, helper.Today())
			return err
		},
	}

	cmd.Flags().StringVar(&input, "input", "database/result.jsonl", `JSONL input ("-" for stdin)`)
	cmd.Flags().BoolVar(&renderAfter, "render", false, "render pages after ingest")
	return cmd
}

func renderCmd() *cobra.Command {
	var asOfFlag string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render shards dated on or after --as-of into static HTML",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			asOf, err := helper.ParseAsOf(asOfFlag)
			if err != nil {
				return fmt.Errorf("invalid --as-of: %w", err)
			}
			s, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := render.NewRenderer(s, a.cfg.Render, a.log).Run(ctx, asOf)
			if err != nil {
				return err
			}
			fmt.Printf("rendered %d shard(s) into %s", len(res.Shards), a.cfg.Render.OutputDir)
			if len(res.Failed) > 0 {
				fmt.Printf(", skipped %d corrupt: %v", len(res.Failed), res.Failed)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "YYYY-MM-DD, defaults to today")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the shard API and rendered pages, re-rendering on schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			s, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if a.cfg.Scheduler.Enabled {
				worker := &scheduler.Worker{
					Log:      a.log,
					Renderer: render.NewRenderer(s, a.cfg.Render, a.log),
					Anchors:  a.cfg.Scheduler.Anchors,
				}
				go worker.Run(ctx)
			}

			srv := &api.Server{Log: a.log, Store: s, OutputDir: a.cfg.Render.OutputDir}
			r := srv.Router()
			_ = r.SetTrustedProxies(nil)

			httpSrv := &http.Server{Addr: a.cfg.Server.Addr, Handler: r}
			errCh := make(chan error, 1)
			go func() { errCh <- httpSrv.ListenAndServe() }()
			a.log.Info("Live digest service is running", zap.String("address", a.cfg.Server.Addr))

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			a.log.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		},
	}
}

func shardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shards",
		Short: "List shards and their record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			s, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			dir, err := store.LoadDirectory(ctx, s)
			if err != nil {
				return err
			}
			for _, key := range dir.Keys {
				recs, err := s.List(ctx, key)
				if err != nil {
					fmt.Printf("%-12s  error: %v\n", key, err)
					continue
				}
				fmt.Printf("%-12s  %d\n", key, len(recs))
			}
			return nil
		},
	}
}

func collectCmd() *cobra.Command {
	var input, output string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Convert a weibo-spider JSON dump into ingest JSONL",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read spider dump: %w", err)
			}
			posts, err := source.FromSpider(data, a.cfg.Collect, a.log)
			if err != nil {
				return err
			}

			if output == "-" {
				return source.WritePosts(os.Stdout, posts)
			}
			// 与采集脚本一致：追加写入
			f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("open output: %w", err)
			}
			defer f.Close()
			if err := source.WritePosts(f, posts); err != nil {
				return err
			}
			fmt.Printf("appended %d post(s) to %s\n", len(posts), output)
			return nil
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "weibo-spider JSON dump")
	cmd.Flags().StringVar(&output, "output", "database/result.jsonl", `JSONL output ("-" for stdout)`)
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
