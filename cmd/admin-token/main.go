package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/lazydrop/lazydrop-billing/pkg/auth"
	"github.com/lazydrop/lazydrop-billing/pkg/config"
	"github.com/lazydrop/lazydrop-billing/pkg/enums"
)

func main() {
	subject := flag.String("subject", "", "operator identifier recorded as the token subject")
	role := flag.String("role", string(enums.AdminRoleReadOnly), "admin|readonly")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadJWT()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load jwt config: %v\n", err)
		os.Exit(1)
	}

	token, err := mint(cfg, time.Now(), *subject, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}

func mint(cfg config.JWTConfig, now time.Time, subject, role string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("missing -subject")
	}
	adminRole := enums.AdminRole(role)
	if !adminRole.IsValid() {
		return "", fmt.Errorf("invalid -role %q", role)
	}
	return auth.MintAdminToken(cfg, now, auth.AdminTokenPayload{
		Subject: subject,
		Role:    adminRole,
		JTI:     uuid.NewString(),
	})
}
