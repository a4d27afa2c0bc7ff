// Command membriad is the membria daemon: it serves the JSON-RPC tool
// surface over stdio (per spec.md §4.J) while running the webhook
// listener and the knowledge-base watcher as supervised background
// services. Modeled on the teacher's
// cmd/nerd/cmd_mangle_lsp.go: a cobra root command that builds a
// context, installs a signal.Notify-driven cancellation, and serves a
// stdio JSON-RPC protocol until shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/membria/membria-core/internal/calibration"
	"github.com/membria/membria-core/internal/chains"
	membriactx "github.com/membria/membria-core/internal/context"
	"github.com/membria/membria-core/internal/config"
	"github.com/membria/membria-core/internal/embedding"
	"github.com/membria/membria-core/internal/firewall"
	"github.com/membria/membria-core/internal/ingest"
	"github.com/membria/membria-core/internal/jsonrpc"
	"github.com/membria/membria-core/internal/logging"
	"github.com/membria/membria-core/internal/mcpproxy"
	"github.com/membria/membria-core/internal/memory"
	"github.com/membria/membria-core/internal/outcome"
	"github.com/membria/membria-core/internal/pattern"
	"github.com/membria/membria-core/internal/signalqueue"
	"github.com/membria/membria-core/internal/store"
	"github.com/membria/membria-core/internal/supervisor"
	"github.com/membria/membria-core/internal/webhook"
)

var (
	configPath string
	tomlPath   string
	debugMode  bool
	kbWatch    string
	stdioOnly  bool
)

var rootCmd = &cobra.Command{
	Use:   "membriad",
	Short: "membria decision-memory daemon",
	Long: `membriad serves the JSON-RPC tool surface an agent harness uses to
capture decisions, record outcomes and retrieve calibrated context, and
runs the webhook listener and knowledge-base watcher that keep that
memory current.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&tomlPath, "project-config", ".membria.toml", "path to project-local .membria.toml override")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug-level logging")
	rootCmd.PersistentFlags().StringVar(&kbWatch, "watch-kb", "", "knowledge-base directory to continuously re-ingest (optional)")
	rootCmd.PersistentFlags().BoolVar(&stdioOnly, "stdio-only", false, "serve only the JSON-RPC stdio surface, skipping the webhook listener and watchers (used by membriactl's one-shot subprocess calls)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, tomlPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logging.Init(debugMode || cfg.GetBool("logging.debug_mode", false)); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log := logging.Get(logging.CategoryBoot)

	gs, err := store.Open(cfg.GetString("graphstore.database_path"))
	if err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	defer gs.Close()

	sq, err := signalqueue.Open(cfg.GetString("signalqueue.database_path"))
	if err != nil {
		return fmt.Errorf("open signal queue: %w", err)
	}
	defer sq.Close()

	now := func() int64 { return time.Now().Unix() }
	policy := memory.PolicyFromConfig(cfg)
	mem := memory.New(gs, policy)
	calc := calibration.New(gs)
	tracker := outcome.New(gs, calc, now)
	extractor := pattern.New(gs)
	composer := chains.New(gs, calc, extractor)
	ctxMgr := membriactx.New(gs, calc, extractor, composer, cfg)
	fw := firewall.New(gs, cfg)

	proxy, err := mcpproxy.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("load mcp allowlist: %w", err)
	}
	log.Info("mcp proxy watching %d allowlisted servers", len(proxy.Servers()))

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.GetString("embedding.provider"),
		OllamaEndpoint: cfg.GetString("embedding.ollama_endpoint"),
		OllamaModel:    cfg.GetString("embedding.ollama_model"),
		GenAIAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		GenAIModel:     cfg.GetString("embedding.genai_model"),
	})
	if err != nil {
		log.Warn("embedding engine unavailable, knowledge-base ingestion disabled: %v", err)
	}

	tools := jsonrpc.NewTools(gs, mem, tracker, calc, extractor, ctxMgr, fw)
	rpcServer := jsonrpc.NewServer()
	tools.Register(rpcServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var super *supervisor.Supervisor
	if stdioOnly {
		log.Info("membriad serving JSON-RPC over stdio only (--stdio-only)")
	} else {
		whServer := webhook.New(gs, tracker, cfg)
		httpServer := &http.Server{
			Addr:    cfg.GetString("webhook.bind_addr"),
			Handler: whServer.Router(),
		}

		services := []supervisor.Service{
			{Name: "webhook", Run: func(ctx context.Context) error {
				errCh := make(chan error, 1)
				go func() { errCh <- httpServer.ListenAndServe() }()
				select {
				case <-ctx.Done():
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return httpServer.Shutdown(shutdownCtx)
				case err := <-errCh:
					if err == http.ErrServerClosed {
						return nil
					}
					return err
				}
			}},
		}
		if kbWatch != "" && engine != nil {
			ing := ingest.New(gs, engine, cfg, now)
			services = append(services, supervisor.Service{Name: "kb-watch", Run: func(ctx context.Context) error {
				return ing.Watch(ctx, ingest.Options{Root: kbWatch, DocType: "kb"})
			}})
		}

		super = supervisor.New(services...)
		super.Start(ctx)
		log.Info("membriad serving JSON-RPC over stdio, webhook on %s", cfg.GetString("webhook.bind_addr"))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	serveErr := rpcServer.Serve(ctx, os.Stdin, os.Stdout)
	cancel()
	if super != nil {
		if shutdownErr := super.Shutdown(5 * time.Second); shutdownErr != nil {
			log.Error("service shutdown error: %v", shutdownErr)
		}
	}
	if serveErr != nil && serveErr != context.Canceled {
		return fmt.Errorf("jsonrpc serve: %w", serveErr)
	}
	return nil
}
