package main

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"webrtc-signaling-relay/internal/app/httpapi"
	"webrtc-signaling-relay/pkg/signaling"
)

func main() {
	loadEnv()
	cfg := loadConfig()
	logConfig(cfg)

	presence := buildPresence(cfg)

	hub := signaling.NewHub(signaling.HubOptions{
		Presence: presence,
	})

	http.Handle("/signaling", hub.HTTPHandler())
	http.Handle("/api/health", httpapi.HealthHandler())
	http.Handle("/api/rooms", httpapi.RoomsHandler(hub.Rooms()))
	http.Handle("/debug/ice", httpapi.DebugICEHandler(cfg.ICEMode, cfg.ICEServers))

	log.Printf("listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

type config struct {
	Addr           string
	RedisAddr      string
	PresencePrefix string
	ICEServers     []signaling.ICEServer
	ICEMode        string
}

func loadConfig() config {
	mode, servers := signaling.LoadICEFromEnv()
	return config{
		Addr:           getenv("ADDR", ":8080"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		PresencePrefix: getenv("PRESENCE_PREFIX", "signaling"),
		ICEServers:     servers,
		ICEMode:        mode,
	}
}

// buildPresence wires the advisory Redis mirror. REDIS_ADDR unset disables
// it; when set, an unreachable Redis is a startup failure.
func buildPresence(cfg config) signaling.PresenceStore {
	if cfg.RedisAddr == "" {
		log.Printf("REDIS_ADDR not set; presence mirroring disabled")
		return signaling.NewNopPresence()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping failed: %v", err)
	}

	store := signaling.NewRedisPresence(rdb, cfg.PresencePrefix)
	// Rooms do not survive a restart, so neither should the mirror.
	if err := store.Reset(ctx); err != nil {
		log.Printf("redis reset presence: %v", err)
	}
	return store
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func loadEnv() {
	paths := []string{
		".env",
		filepath.Join("..", ".env"),
	}
	for _, p := range paths {
		if err := loadEnvFile(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Printf("env load warning for %s: %v", p, err)
		}
	}
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, val)
		}
	}
	return scanner.Err()
}

func logConfig(cfg config) {
	turnConfigured := false
	for _, s := range cfg.ICEServers {
		if s.Username != "" || s.Credential != "" {
			turnConfigured = true
			break
		}
	}

	log.Printf("config: addr=%s redis_addr=%s ice_mode=%s ice_servers=%d turn_configured=%v",
		cfg.Addr, cfg.RedisAddr, cfg.ICEMode, len(cfg.ICEServers), turnConfigured)
}
