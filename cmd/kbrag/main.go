package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/answer"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/api"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/catalog"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/common"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/extract"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/index"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/llm"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/llm/providers"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/search"
	"github.com/kobyzev-yuri/steccom-rag-lk-sub000/internal/vector"
)

func main() {
	addr := flag.String("addr", ":8090", "HTTP listen address")
	dbPath := flag.String("db", "", "path to the catalog SQLite database")
	indexDir := flag.String("index-dir", "", "directory for persisted index snapshots")
	docRoot := flag.String("doc-root", "", "root directory for relative document paths")
	preload := flag.Bool("preload", true, "load all active knowledge bases on startup")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		common.Logger().Warn("main: .env not loaded", "error", err)
	}
	logger := common.Logger()

	store, err := catalog.NewSQLiteStore(catalog.LoadConfig().Merge(catalog.Config{Path: *dbPath}))
	if err != nil {
		logger.Error("main: catalog unavailable", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	dir := *indexDir
	if dir == "" {
		dir = os.Getenv("KBRAG_INDEX_DIR")
	}
	if dir == "" {
		dir = "indexes"
	}

	provider := providers.New(llm.LoadConfig())
	builder := index.NewBuilder(store, extract.NewFileExtractor(*docRoot), provider, vector.NewFileStore(dir))
	engine := search.NewEngine(builder, provider, search.LoadConfig())
	assembler := answer.NewAssembler(engine, provider, store, llm.LoadConfig().ChatModel)
	server := api.NewServer(store, builder, engine, assembler)

	if *preload {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		ready, err := builder.LoadAll(ctx)
		cancel()
		if err != nil {
			logger.Error("main: preload failed", "error", err)
		} else {
			logger.Info("main: preload done", "ready", ready)
		}
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("main: listening", "addr", *addr, "provider", provider.Name())
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("main: shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("main: shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("main: server failed", "error", err)
			os.Exit(1)
		}
	}
}
