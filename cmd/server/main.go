// Package main is the entry point for the handbook API server.
//
// Configuration comes from environment variables:
//
//	PORT          listen port (default 8080)
//	DB_PATH       SQLite database file (default data/handbook.db)
//	JWT_SECRET    HMAC secret for session tokens (required, min 16 chars)
//	CATALOG_DIR   directory with courses.json and programs.json (default data/catalog)
//	EMAIL_DOMAIN  institutional mail domain (default ad.unsw.edu.au)
//	CORS_ORIGINS  comma-separated allowed origins (default *)
package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/campushq/handbook/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	port := 8080
	if portStr := os.Getenv("PORT"); portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			logger.Error("invalid PORT value", slog.String("value", portStr))
			os.Exit(1)
		}
	}

	dbPath := "data/handbook.db"
	if envDB := os.Getenv("DB_PATH"); envDB != "" {
		dbPath = envDB
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		logger.Error("failed to create database directory",
			slog.String("dir", filepath.Dir(dbPath)),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Session tokens are worthless if the secret is guessable; refuse to
	// start without one. Generate with: openssl rand -hex 32
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	catalogDir := "data/catalog"
	if envDir := os.Getenv("CATALOG_DIR"); envDir != "" {
		catalogDir = envDir
	}

	var corsOrigins []string
	if envOrigins := os.Getenv("CORS_ORIGINS"); envOrigins != "" {
		for _, origin := range strings.Split(envOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				corsOrigins = append(corsOrigins, origin)
			}
		}
	}

	cfg := server.Config{
		Port:        port,
		DBPath:      dbPath,
		JWTSecret:   jwtSecret,
		CatalogDir:  catalogDir,
		EmailDomain: os.Getenv("EMAIL_DOMAIN"),
		CORSOrigins: corsOrigins,
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
