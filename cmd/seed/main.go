package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"docbatch/internal/config"
	"docbatch/internal/infra/api"
	pg "docbatch/internal/infra/db/postgres"
)

// Seeds a user account with credits and prints a bearer token for it, for
// manual end-to-end testing against a local stack.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	userID := flag.String("user", "dev-user", "account id (the token's user_id claim)")
	credits := flag.Int64("credits", 1000, "credits to add")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	reset := flag.Bool("reset", false, "wipe all batch and billing data first")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if *reset {
		log.Println("wiping batch and billing tables...")
		_, err := pool.Exec(ctx, `
			TRUNCATE batch_outputs, batch_files, processing_records, usage_charges, batch_jobs, user_accounts
			RESTART IDENTITY CASCADE;`)
		if err != nil {
			log.Fatalf("truncate: %v", err)
		}
	}

	acct, err := pg.NewAccountRepo(pool).TopUp(ctx, nil, *userID, *credits)
	if err != nil {
		log.Fatalf("top up: %v", err)
	}
	token, err := api.NewAuthManager(cfg.Auth.JWTSecret).Mint(acct.ID, *ttl)
	if err != nil {
		log.Fatalf("mint token: %v", err)
	}

	fmt.Printf("account %s balance=%d pages_used=%d\n", acct.ID, acct.CreditBalance, acct.PagesUsed)
	fmt.Printf("Authorization: Bearer %s\n", token)
}
