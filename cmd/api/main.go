package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"

	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/services/middleware"
	"github.com/modelrelay/modelrelay/pkg/gateway"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	adminToken := flag.String("admin-token", "", "print an admin bearer token for the given subject and exit")
	flag.Parse()

	config.LoadEnvFiles([]string{".env.local", ".env.development", ".env"})

	path := *configPath
	if path == "" {
		path = os.Getenv("MODELRELAY_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.New(path)
	if err != nil {
		fiberlog.Fatalf("failed to load config: %v", err)
	}

	if *adminToken != "" {
		if cfg.Auth.JWTSecret == "" {
			fiberlog.Fatalf("cannot issue admin token: auth.jwt_secret is not configured")
		}
		ttl := time.Duration(cfg.Auth.TokenExpiryMins) * time.Minute
		token, err := middleware.NewAdmin(cfg.Auth.JWTSecret).IssueToken(*adminToken, ttl)
		if err != nil {
			fiberlog.Fatalf("failed to issue admin token: %v", err)
		}
		fmt.Println(token)
		return
	}

	g, err := gateway.New(cfg)
	if err != nil {
		fiberlog.Fatalf("failed to initialize gateway: %v", err)
	}

	if err := g.Run(); err != nil {
		fiberlog.Fatalf("server failed: %v", err)
	}
}
