// Package main is a development utility that generates a signing secret for bearer
// tokens and prints it as the UMS_AUTH_JWT_SECRET export expected by the server.
// Tokens for a user can then be issued with `server token <user-id>`.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/usermanagement/usermanagement/internal/auth"
)

func main() {
	secret := make([]byte, auth.MinSecretLength)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("JWT Secret Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport UMS_AUTH_JWT_SECRET=%s\n", hex.EncodeToString(secret))
	fmt.Println("\nIssue a token for the seeded administrator with:")
	fmt.Println("  server token 01969bb5-90e0-755b-b6cb-7cfa4db50ad3")
	fmt.Println("==========================================================")
}
