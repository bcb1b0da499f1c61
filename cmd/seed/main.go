// seed creates a user in the local dev database and prints the requests that
// log it in.
// Run: go run ./cmd/seed -email alice@dept.gov.sg
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/ErlanBelekov/otp-auth/config"
	"github.com/ErlanBelekov/otp-auth/internal/admission"
	"github.com/ErlanBelekov/otp-auth/internal/domain"
	"github.com/ErlanBelekov/otp-auth/internal/infrastructure/postgres"
)

func main() {
	emailFlag := flag.String("email", "seed@dev.gov.sg", "address to create")
	baseURL := flag.String("base-url", "http://localhost:8080", "server base URL for the printed curl commands")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx := context.Background()

	addr, err := domain.NormalizeEmail(*emailFlag)
	if err != nil {
		log.Fatalf("email: %v", err)
	}

	matcher, err := admission.Compile(cfg.MailSuffix)
	if err != nil {
		log.Fatalf("MAIL_SUFFIX: %v", err)
	}
	if !matcher.Admit(addr) {
		log.Fatalf("%s is not admitted by MAIL_SUFFIX %q; the server would never send it a code", addr, matcher)
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	user, err := postgres.NewUserRepository(pool).FindOrCreate(ctx, addr)
	if err != nil {
		log.Fatalf("create user: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  User:    %s\n", user.Email)
	fmt.Printf("  User ID: %s\n", user.ID)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: request a code")
	fmt.Println()
	fmt.Printf("    curl -s -X POST %s/api/v1/auth/otp \\\n", *baseURL)
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"email\":\"%s\"}'\n", user.Email)
	fmt.Println()
	fmt.Println("    # With ENV=local the email, code included, is printed in the server log.")
	fmt.Println()
	fmt.Println("  Step 2: exchange it for a session cookie")
	fmt.Println()
	fmt.Printf("    curl -s -c cookies.txt -X POST %s/api/v1/auth/verify \\\n", *baseURL)
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"email\":\"%s\",\"otp\":\"CODE\"}'\n", user.Email)
	fmt.Println()
	fmt.Println("  Step 3: use the session")
	fmt.Println()
	fmt.Printf("    curl -s -b cookies.txt %s/api/v1/auth/whoami\n", *baseURL)
	fmt.Printf("    curl -s -b cookies.txt -X POST %s/api/v1/auth/logout\n", *baseURL)
}
