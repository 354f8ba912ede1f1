package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fabfab/agentic-rag/api"
	"github.com/fabfab/agentic-rag/config"
	"github.com/fabfab/agentic-rag/ingestion"
	"github.com/fabfab/agentic-rag/logging"
	"github.com/fabfab/agentic-rag/metrics"
	"github.com/fabfab/agentic-rag/telemetry"
)

const defaultRecordLabel = "Product"

func main() {
	a := &app{}
	if err := execute(a, newRootCmd(a)); err != nil {
		os.Exit(1)
	}
}

// execute runs the command tree and always releases the logger and tracer;
// cobra skips post-run hooks when a command fails.
func execute(a *app, root *cobra.Command) error {
	defer a.close()
	return root.Execute()
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	cfg        config.Config
	logger     *zap.Logger
	tracing    *telemetry.Provider
	closed     bool
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "agentic-rag",
		Short:         "Routed retrieval-augmented question answering over Postgres, Neo4j and the web",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "optional config file (yaml, toml or json)")

	root.AddCommand(
		newServeCmd(a),
		newAskCmd(a),
		newIngestCmd(a),
		newClearCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.logger = logger

	tracing, err := telemetry.NewProvider(cfg.TracingStdout)
	if err != nil {
		return err
	}
	a.tracing = tracing
	return nil
}

func (a *app) close() {
	if a.closed {
		return
	}
	a.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.tracing.Shutdown(ctx); err != nil && a.logger != nil {
		a.logger.Warn("tracer shutdown failed", zap.Error(err))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidatePipeline(); err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			registry := prometheus.NewRegistry()
			registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			collector := metrics.NewCollector(a.cfg.MetricsNamespace, registry, a.logger)

			p, err := newPipeline(ctx, a.cfg, a.logger, collector)
			if err != nil {
				return err
			}
			defer p.Close()

			ingestor := ingestion.NewService(p.pool, p.graph, p.embedder, a.logger, a.cfg.Embeddings.Dimension,
				ingestion.WithRecordLabel(defaultRecordLabel))
			server := api.New(p.service, a.logger,
				api.WithIngestor(ingestor, a.cfg.DataDir),
				api.WithClearer(ingestor),
				api.WithMetrics(collector, registry),
			)

			httpServer := &http.Server{
				Addr:              a.cfg.HTTPAddr,
				Handler:           server,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http server listening", zap.String("addr", a.cfg.HTTPAddr))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down http server")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}

func newAskCmd(a *app) *cobra.Command {
	var (
		question string
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Answer one question and print the result",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidatePipeline(); err != nil {
				return err
			}

			if strings.TrimSpace(question) == "" {
				q, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Enter your question: ")
				if err != nil {
					return err
				}
				question = q
			}

			ctx, cancel := signalContext()
			defer cancel()

			p, err := newPipeline(ctx, a.cfg, a.logger, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			answer, err := p.service.Run(ctx, question)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, answer.Text)
			if verbose {
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Route:   %s\n", answer.Route)
				fmt.Fprintf(out, "Outcome: %s\n", answer.Outcome)
				fmt.Fprintf(out, "Stages:  %s\n", strings.Join(answer.Stages, " -> "))
				if answer.TransformCycles > 0 {
					fmt.Fprintf(out, "Query transform cycles: %d\n", answer.TransformCycles)
				}
				if answer.RetryExhausted {
					fmt.Fprintln(out, "No relevant documents were found after reformulating the question.")
				}
				if answer.TranslationDeclined {
					fmt.Fprintln(out, "The question could not be translated into a graph query.")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&question, "question", "q", "", "question to ask (prompted when empty)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the route, outcome and stage trace")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var (
		dir   string
		label string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest markdown, text, pdf and csv documents into Postgres and Neo4j",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.DataDir
			}

			ctx, cancel := signalContext()
			defer cancel()

			s, err := openStores(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := ingestion.NewService(s.pool, s.graph, s.embedder, a.logger, a.cfg.Embeddings.Dimension,
				ingestion.WithRecordLabel(label))
			a.logger.Info("ingesting documents",
				zap.String("dir", dir),
				zap.String("embeddings", strings.ToUpper(a.cfg.Embeddings.Provider)+"/"+a.cfg.Embeddings.Model),
				zap.String("record_label", label),
			)

			summary, err := svc.Ingest(ctx, dir)
			if err != nil {
				return fmt.Errorf("ingestion failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %d of %d files (%d unchanged, %d failed), %d chunks, %d records\n",
				summary.Ingested, summary.Files, summary.Unchanged, summary.Failed, summary.Chunks, summary.Records)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory containing documents (defaults to DATA_DIR)")
	cmd.Flags().StringVar(&label, "label", defaultRecordLabel, "node label for csv rows; empty skips record nodes")
	return cmd
}

func newClearCmd(a *app) *cobra.Command {
	var (
		confirmed bool
		label     string
	)

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all ingested data from Postgres and Neo4j",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				answer, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(),
					"This will permanently delete ingested RAG data from Postgres and Neo4j. Continue? [y/N]: ")
				if err != nil {
					return err
				}
				answer = strings.ToLower(answer)
				if answer != "y" && answer != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), "clear aborted")
					return nil
				}
			}

			ctx, cancel := signalContext()
			defer cancel()

			s, err := openStores(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := ingestion.NewService(s.pool, s.graph, nil, a.logger, a.cfg.Embeddings.Dimension,
				ingestion.WithRecordLabel(label))
			if err := svc.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "RAG data removed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirmed, "confirm", false, "skip confirmation prompt")
	cmd.Flags().StringVar(&label, "label", defaultRecordLabel, "record node label to delete as well")
	return cmd
}

func prompt(in io.Reader, out io.Writer, message string) (string, error) {
	fmt.Fprint(out, message)
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text()), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return "", nil
}
