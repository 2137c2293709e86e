// Command migrate applies the schema to the configured database and can
// seed an initial organization and admin user for a fresh deployment.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"caseshare.org/internal/actor"
	"caseshare.org/internal/cases"
	"caseshare.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn           = flag.String("dsn", os.Getenv("CASESHARE_PG_DSN"), "PostgreSQL DSN")
		seedOrg       = flag.String("seed-org", "", "Seed an HQ organization with this name")
		seedAdmin     = flag.String("seed-admin", "", "Seed an HQ admin with this email (requires -seed-org)")
		seedAdminPass = flag.String("seed-admin-password", "", "Password for the seeded admin")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or CASESHARE_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Println("schema up to date")

	if *seedOrg == "" {
		return
	}
	org := cases.Organization{
		ID:        "org-hq",
		Name:      *seedOrg,
		Kind:      cases.OrgHQ,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateOrganization(ctx, org); err != nil {
		log.Fatalf("seed org: %v", err)
	}
	log.Printf("seeded organization %s (%s)", org.Name, org.ID)

	if *seedAdmin == "" {
		return
	}
	if *seedAdminPass == "" {
		log.Fatal("missing -seed-admin-password")
	}
	hash, err := actor.HashPassword(*seedAdminPass)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}
	admin := actor.User{
		ID:           "u-hq-admin",
		Email:        *seedAdmin,
		PasswordHash: hash,
		Role:         actor.RoleHQAdmin,
		HomeOrg:      org.ID,
	}
	if err := store.UpsertUser(ctx, admin); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	log.Printf("seeded HQ admin %s", admin.Email)
}
