package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"vending-dispatch/internal/http/middleware"

	"github.com/golang-jwt/jwt/v5"
)

// Prints an admin bearer token for the /api/admin routes.
// JWT_SECRET must match the server's.
func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run main.go <operator-name> [ttl]")
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}

	ttl := 24 * time.Hour
	if len(os.Args) > 2 {
		d, err := time.ParseDuration(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid ttl %q: %v", os.Args[2], err)
		}
		ttl = d
	}

	now := time.Now()
	claims := middleware.AdminClaims{
		Role: middleware.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   os.Args[1],
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(signed)
}
