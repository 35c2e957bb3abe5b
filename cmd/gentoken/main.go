// gentoken mints a JWT for local API testing.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tradeconnect/server/internal/auth"
)

func main() {
	var (
		username = flag.String("username", "dev", "token username claim")
		role     = flag.String("role", "admin", "token role (admin, staff, viewer)")
		expiry   = flag.Duration("expiry", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(1)
	}
	if _, ok := auth.ParseRole(*role); !ok {
		fmt.Fprintf(os.Stderr, "unknown role %q\n", *role)
		os.Exit(1)
	}

	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "tradeconnect"
	}

	tokens := auth.NewJWTManager(secret, *expiry, issuer)
	token, err := tokens.Generate(*username, *username, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintln(os.Stderr, "\nTest with:")
	fmt.Fprintf(os.Stderr, "curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/speakers\n", token)
}
