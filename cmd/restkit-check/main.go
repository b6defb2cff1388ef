// restkit-check is a connectivity and credential sanity check: it mints a
// token via the client_credentials grant, hits the API's diagnostic endpoint,
// and optionally issues one GET against an arbitrary path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"restkit/cache"
	"restkit/client"
	"restkit/config"
	"restkit/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON configuration file (default: environment variables)")
	getPath := flag.String("get", "", "Optional API path to GET after the test request, e.g. users/info/")
	getParams := flag.String("params", "", "Query parameters for -get as k=v pairs joined by &")
	flag.Parse()

	// A local .env is optional; ignore its absence.
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Options{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
		Output: os.Stderr,
	})

	store, closeStore, err := buildStore(cfg.Cache)
	if err != nil {
		log.Fatalf("Failed to set up token cache: %v", err)
	}
	if closeStore != nil {
		defer closeStore()
	}

	c, err := client.New(client.Config{
		BaseURL:      cfg.API.BaseURL,
		ClientID:     cfg.API.ClientID,
		ClientSecret: cfg.API.ClientSecret,
		Settings: client.Settings{
			CachePath:         cfg.Cache.Path,
			TimeoutSeconds:    cfg.API.TimeoutSeconds,
			DisableRetryOn503: !cfg.API.RetryEnabled(),
			DecodeJSON:        cfg.API.DecodeJSON,
			Cache:             store,
			Logger:            logger,
		},
	})
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	fmt.Printf("Testing connectivity to %s ...\n", cfg.API.BaseURL)
	if err := c.TestRequest(ctx); err != nil {
		log.Fatalf("❌ Test request failed: %v", err)
	}
	fmt.Println("✅ Test request succeeded")

	if *getPath != "" {
		params, err := url.ParseQuery(*getParams)
		if err != nil {
			log.Fatalf("Invalid -params value: %v", err)
		}
		resp, err := c.Get(ctx, *getPath, params)
		if err != nil {
			log.Fatalf("❌ GET %s failed: %v", *getPath, err)
		}
		fmt.Printf("✅ GET %s returned %d (%d bytes)\n", *getPath, resp.Status, len(resp.Raw))
		fmt.Println(strings.TrimSpace(string(resp.Raw)))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

// buildStore picks the external cache collaborator from configuration. The
// filesystem path is handled by the client itself via Settings.CachePath.
func buildStore(cfg config.CacheConfig) (cache.Store, func(), error) {
	switch {
	case cfg.RedisAddr != "":
		cli := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return cache.NewRedisStore(cli), func() { cli.Close() }, nil
	case cfg.SQLitePath != "":
		store, err := cache.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return nil, nil, nil
	}
}
