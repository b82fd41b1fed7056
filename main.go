package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"sketchmagic_back/cache"
	"sketchmagic_back/canvas"
	"sketchmagic_back/discovery"
	"sketchmagic_back/generator"
	"sketchmagic_back/history"
	"sketchmagic_back/settings"
	"sketchmagic_back/storage"
	"sketchmagic_back/studio"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// mustLoadEnv loads .env when present.
func mustLoadEnv() {
	_ = godotenv.Load()
}

// corsConfig allows every origin unless CORS_ALLOW_ORIGINS lists them.
func corsConfig() cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")

	raw := strings.TrimSpace(os.Getenv("CORS_ALLOW_ORIGINS"))
	if raw == "" || raw == "*" {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, origin := range strings.Split(raw, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}
	return cfg
}

func main() {
	mustLoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := gin.Default()
	r.Use(cors.New(corsConfig()))

	canvasModule, err := canvas.RegisterRoutes(r)
	if err != nil {
		log.Fatalf("register canvas routes: %v", err)
	}
	go canvasModule.Sessions().Run(ctx)

	openDB := history.SharedOpener(history.OpenDatabaseFromEnv)
	historyStore, err := history.NewStoreFromEnv(openDB)
	if err != nil {
		log.Fatalf("configure history: %v", err)
	}
	results, err := storage.NewResultStorageFromEnv()
	if err != nil {
		log.Fatalf("configure result storage: %v", err)
	}
	var publisher history.Publisher
	if results != nil {
		publisher = results
	}
	if _, err := history.RegisterRoutes(r, historyStore, publisher); err != nil {
		log.Fatalf("register history routes: %v", err)
	}

	prefs := settings.New(nil)
	if db, err := openDB(); err != nil {
		log.Printf("settings: database unavailable, using defaults: %v", err)
	} else if prefs, err = settings.NewFromEnv(db); err != nil {
		log.Fatalf("configure settings: %v", err)
	}
	if _, err := settings.RegisterRoutes(r, prefs); err != nil {
		log.Fatalf("register settings routes: %v", err)
	}

	client, err := generator.NewClientFromEnv()
	if err != nil {
		log.Fatalf("configure generator: %v", err)
	}
	variants, err := studio.VariantsFromEnv()
	if err != nil {
		log.Fatalf("configure variants: %v", err)
	}
	sketchStudio, err := studio.New(studio.Config{
		Transformer: client,
		Sketcher:    client,
		Credentials: client,
		History:     historyStore,
		Canvases:    canvasModule,
		Preferences: prefs,
		Catalog:     generator.LoadCatalog(),
		Variants:    variants,
	})
	if err != nil {
		log.Fatalf("configure studio: %v", err)
	}
	if _, err := studio.RegisterRoutes(r, sketchStudio); err != nil {
		log.Fatalf("register studio routes: %v", err)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	portNumber, err := strconv.Atoi(port)
	if err != nil {
		log.Fatalf("invalid PORT %q", port)
	}

	announcer, err := discovery.Announce(portNumber)
	if err != nil {
		log.Printf("discovery: announcement disabled: %v", err)
	}
	defer announcer.Shutdown()
	defer cache.Close()

	srv := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("start server: %v", err)
	}
}
