package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nickyhof/orpheusplus"
	"github.com/nickyhof/orpheusplus/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	app := kingpin.New("orpheusplus-server", "TCP server for versioned tables.")
	app.HelpFlag.Short('h')
	app.Version(Version)

	configPath := app.Flag("config", "Path of the config file.").Short('c').Default(config.Path()).String()
	addr := app.Flag("addr", "TCP address to listen on.").Default(":3307").String()
	metricsAddr := app.Flag("metrics-addr", "Address serving /metrics; empty disables it.").Default(":9090").String()
	certFile := app.Flag("tls-cert", "TLS certificate file.").String()
	keyFile := app.Flag("tls-key", "TLS key file.").String()
	jwtSecret := app.Flag("jwt-secret", "Require AUTH JWT tokens signed with this secret.").Envar("ORPHEUSPLUS_JWT_SECRET").String()
	issuer := app.Flag("jwt-issuer", "Expected iss claim.").String()
	audience := app.Flag("jwt-audience", "Expected aud claim.").String()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.SetLevel(cfg.Level())

	instance, err := orpheusplus.OpenConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to open instance: %v", err)
	}
	defer instance.Close()
	if cfg.RootDir == "" {
		log.Warn("root_dir is empty; metadata lives in memory and is lost on shutdown")
	}

	server := NewServer(instance, cfg.Identity())
	if *jwtSecret != "" {
		server = NewServerWithAuth(instance, cfg.Identity(), &AuthConfig{
			Enabled:   true,
			JWTSecret: *jwtSecret,
			Issuer:    *issuer,
			Audience:  *audience,
		})
	}

	if *certFile != "" || *keyFile != "" {
		err = server.StartTLS(*addr, *certFile, *keyFile)
	} else {
		err = server.Start(*addr)
	}
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	if *metricsAddr != "" {
		if err := server.StartMetrics(*metricsAddr); err != nil {
			log.Fatalf("Failed to start metrics: %v", err)
		}
	}

	fmt.Printf("orpheusplus server %s listening on %s\n", Version, server.Addr())
	fmt.Println("Send one statement per line, 'quit' to disconnect")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	server.Stop()
	log.Info("server stopped")
}
