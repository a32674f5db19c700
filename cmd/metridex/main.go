package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/metridex/metridex/internal/mcp"
	"github.com/metridex/metridex/internal/server"
	"github.com/metridex/metridex/pkg/corpus"
	"github.com/metridex/metridex/pkg/hoster"
	"github.com/metridex/metridex/pkg/queries/artistlookup"
	"github.com/metridex/metridex/pkg/queries/artistprefix"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "Address and port for the REST API server (e.g. :8080)")
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	corpusPath := flag.String("corpus", "", "Path to the SQLite artist corpus (overrides the configuration)")
	mcpMode := flag.Bool("mcp", false, "Serve the Model Context Protocol over stdio instead of HTTP")
	seedDemo := flag.Bool("seed-demo", false, "Populate the --corpus SQLite file with the demo artists and exit")

	flag.Parse()

	if err := run(*httpAddr, *configPath, *corpusPath, *mcpMode, *seedDemo); err != nil {
		fmt.Fprintf(os.Stderr, "metridex: %v\n", err)
		os.Exit(1)
	}
}

func run(httpAddr, configPath, corpusPath string, mcpMode, seedDemo bool) error {
	config, err := server.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: config.SlogLevel()}))
	slog.SetDefault(logger)

	// Command line flags take precedence over the configuration file.
	if corpusPath != "" {
		config.Corpus = server.CorpusConfig{Type: "sqlite", Path: corpusPath}
	}
	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if config.Listen != "" && !explicit["http-addr"] {
		httpAddr = config.Listen
	}

	if seedDemo {
		return seedDemoCorpus(config.Corpus)
	}

	ctx := context.Background()

	source, closeSource, err := openCorpus(config.Corpus)
	if err != nil {
		return err
	}
	defer closeSource()

	reg := hoster.NewRegistry(logger)
	err = reg.RegisterAll(ctx,
		artistlookup.New(source, logger),
		artistprefix.New(source, logger),
	)
	if err != nil {
		return fmt.Errorf("failed to register queries: %w", err)
	}

	if mcpMode {
		logger.Info("serving MCP over stdio", "queries", len(reg.Slugs()))
		return mcp.NewMCPServer(reg).Run(ctx, &mcpsdk.StdioTransport{})
	}

	srv, err := server.NewServer(reg, httpAddr, config)
	if err != nil {
		return err
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	srv.Shutdown()
	return <-errCh
}

// openCorpus builds the artist source declared in the configuration. With no
// corpus configured the server runs on the built-in demo artists, which keeps
// the first-run experience dependency free.
func openCorpus(config server.CorpusConfig) (corpus.Source, func(), error) {
	switch config.Type {
	case "sqlite":
		source, err := corpus.OpenSQLite(config.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open corpus: %w", err)
		}
		return source, func() {
			if err := source.Close(); err != nil {
				slog.Error("failed to close corpus", "error", err)
			}
		}, nil
	case "", "demo":
		return corpus.StaticSource(corpus.DemoArtists()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown corpus type '%s'", config.Type)
	}
}

// seedDemoCorpus creates the SQLite corpus schema and fills it with the demo
// artists so a fresh install has something to query.
func seedDemoCorpus(config server.CorpusConfig) error {
	if config.Type != "sqlite" || config.Path == "" {
		return fmt.Errorf("--seed-demo needs a SQLite corpus; pass --corpus <path>")
	}

	source, err := corpus.OpenSQLite(config.Path)
	if err != nil {
		return fmt.Errorf("failed to open corpus: %w", err)
	}
	defer source.Close()

	ctx := context.Background()
	if err := source.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to create corpus schema: %w", err)
	}
	artists := corpus.DemoArtists()
	if err := source.InsertArtists(ctx, artists); err != nil {
		return fmt.Errorf("failed to seed corpus: %w", err)
	}

	slog.Info("seeded demo corpus", "path", config.Path, "artists", len(artists))
	return nil
}
