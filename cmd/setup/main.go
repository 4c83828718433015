package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"churchattend/internal/auth"
	"churchattend/internal/cache"
	"churchattend/internal/config"
	"churchattend/internal/ratelimit"
	"churchattend/internal/records"
	"churchattend/internal/sheets"
)

// Setup prepares the spreadsheet for first use: it creates any missing
// worksheets with their header rows, then the default super admin when the
// Users sheet is empty. Safe to run repeatedly.
func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	conn := sheets.NewConn(func(ctx context.Context) (sheets.API, error) {
		return sheets.NewClient(ctx, cfg.CredentialsFile, cfg.SpreadsheetID)
	}, cfg.ConnectionTTL)
	store := records.NewStore(conn, cache.NewTimed(cfg.CacheTTL), ratelimit.New(),
		cfg.ReadInterval, cfg.WriteInterval)
	authSvc := auth.NewService(store, cfg.RememberSecret)

	if err := store.EnsureWorksheets(ctx); err != nil {
		log.Fatalf("worksheet setup failed: %v", err)
	}
	log.Println("worksheets ready")

	created, err := authSvc.EnsureDefaultAdmin(ctx)
	if err != nil {
		log.Fatalf("default admin setup failed: %v", err)
	}
	if created {
		log.Printf("created default admin %q (password %q), change it on first login",
			auth.DefaultAdminUsername, auth.DefaultAdminPassword)
	} else {
		log.Println("users sheet already populated, no admin created")
	}

	log.Println("setup complete")
}
