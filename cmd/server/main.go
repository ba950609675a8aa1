package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"blockcoder.app/internal/auth"
	"blockcoder.app/internal/game/catalog"
	"blockcoder.app/internal/game/tuning"
	"blockcoder.app/internal/persistence/userdb"
	"blockcoder.app/internal/transport/httpapi"
	"blockcoder.app/internal/transport/ws"
)

const defaultSecret = "dev-secret-change-this"

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		schemaPath = flag.String("schema", "./schemas/player_state.schema.json", "player state schema path")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found in %s; using defaults", *configDir)
	}

	catalogPath := filepath.Join(*configDir, "catalog.json")
	cat, err := catalog.Load(catalogPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load catalog: %v", err)
		}
		logger.Printf("catalog not found in %s; using built-in defaults", *configDir)
		cat = catalog.Default()
	}
	logger.Printf("catalog: %d blocks, digest %.12s", len(cat.Order), cat.DefsDigest)
	if _, ok := cat.Lookup(tune.StarterBlock); !ok {
		logger.Fatalf("starter block %q not in catalog", tune.StarterBlock)
	}

	schema, err := jsonschema.Compile(*schemaPath)
	if err != nil {
		logger.Fatalf("compile state schema: %v", err)
	}

	secret := strings.TrimSpace(os.Getenv("BC_TOKEN_SECRET"))
	if secret == "" {
		secret = defaultSecret
		logger.Printf("BC_TOKEN_SECRET not set; using the dev secret")
	}
	signer := auth.NewSigner([]byte(secret), time.Duration(tune.TokenTTLHours)*time.Hour)

	users, err := userdb.Open(filepath.Join(*dataDir, "users.db"))
	if err != nil {
		logger.Fatalf("open user db: %v", err)
	}
	defer users.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := ws.NewFeed(logger)
	api := httpapi.NewServer(users, signer, tune, schema, feed, logger)

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("/v1/ws", feed.Handler())
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		n, err := users.UserCount()
		if err != nil {
			logger.Printf("user count: %v", err)
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP blockcoder_users Registered user count.\n")
		fmt.Fprintf(rw, "# TYPE blockcoder_users gauge\n")
		fmt.Fprintf(rw, "blockcoder_users %d\n", n)

		fmt.Fprintf(rw, "# HELP blockcoder_saves_total Accepted saves since start.\n")
		fmt.Fprintf(rw, "# TYPE blockcoder_saves_total counter\n")
		fmt.Fprintf(rw, "blockcoder_saves_total %d\n", api.SaveCount())

		fmt.Fprintf(rw, "# HELP blockcoder_feed_subscribers Connected leaderboard feed clients.\n")
		fmt.Fprintf(rw, "# TYPE blockcoder_feed_subscribers gauge\n")
		fmt.Fprintf(rw, "blockcoder_feed_subscribers %d\n", feed.SubscriberCount())
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}
