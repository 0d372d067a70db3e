package main

import (
	"flag"
	"log"
	"os"
	"strings"

	"github.com/himanishpuri/AccentAB/pkg/accentab"
)

var (
	port           int
	storePath      string
	backend        string
	allowedOrigins string
	logRequests    bool
)

func init() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&storePath, "store", getEnvOrDefault("ACCENTAB_STORE", "."), "CSV directory or SQLite database file")
	flag.StringVar(&backend, "backend", getEnvOrDefault("ACCENTAB_BACKEND", accentab.BackendCSV), "Store backend: csv or sqlite")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.BoolVar(&logRequests, "log-requests", true, "Log every request")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	flag.Parse()

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service, err := accentab.NewService(
		accentab.WithStorePath(storePath),
		accentab.WithBackend(backend),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		StorePath:      storePath,
		Backend:        backend,
		AllowedOrigins: origins,
		LogRequests:    logRequests,
	}

	server := NewServer(service, config)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
