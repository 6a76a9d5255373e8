// Command progenitord serves the evolution engine over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gopkg.in/yaml.v3"

	"progenitor/cmd/progenitord/handlers"
	"progenitor/pkg/progenitor"
)

type config struct {
	Listen string `yaml:"listen"`
	Store  struct {
		Kind string `yaml:"kind"`
		Path string `yaml:"path"`
	} `yaml:"store"`
	Seed           int64   `yaml:"seed"`
	Workers        int     `yaml:"workers"`
	FoundingSize   int     `yaml:"founding_size"`
	MutationRate   float64 `yaml:"mutation_rate"`
	TournamentSize int     `yaml:"tournament_size"`
}

func loadConfig(path string) (config, error) {
	var cfg config
	cfg.Listen = ":8750"
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8750"
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "daemon config file (yaml)")
	listen := flag.String("listen", "", "listen address, overrides config")
	storeKind := flag.String("store", "", "store kind: sqlite|memory, overrides config")
	dbPath := flag.String("db", "", "sqlite database path, overrides config")
	seed := flag.Int64("seed", 0, "random seed, 0 means time-based")
	workers := flag.Int("workers", 0, "fitness evaluation workers per generation")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *storeKind != "" {
		cfg.Store.Kind = *storeKind
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}

	client, err := progenitor.New(progenitor.Options{
		StoreKind:      cfg.Store.Kind,
		DBPath:         cfg.Store.Path,
		Seed:           cfg.Seed,
		Workers:        cfg.Workers,
		FoundingSize:   cfg.FoundingSize,
		MutationRate:   cfg.MutationRate,
		TournamentSize: cfg.TournamentSize,
	})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Init(ctx); err != nil {
		log.Fatalf("init engine: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	e.POST("/api/populations", handlers.CreatePopulationHandler(client))
	e.GET("/api/populations", handlers.ListPopulationsHandler(client))
	e.GET("/api/populations/:id", handlers.GetPopulationHandler(client))
	e.POST("/api/populations/:id/evolve", handlers.EvolveHandler(client))
	e.GET("/api/populations/:id/best", handlers.BestIndividualHandler(client))
	e.GET("/api/populations/:id/individuals", handlers.IndividualsHandler(client))
	e.GET("/api/populations/:id/history", handlers.HistoryHandler(client))
	e.DELETE("/api/populations/:id", handlers.DeletePopulationHandler(client))
	e.GET("/api/health", handlers.HealthHandler(client))

	log.Println("registered routes:")
	for _, route := range e.Routes() {
		log.Println(route.Method, route.Path)
	}

	go func() {
		if err := e.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	graceful, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(graceful); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
