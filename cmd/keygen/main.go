package main

import (
	"fmt"
	"log"

	"github.com/dmitrymomot/dialbill/pkg/secrets"
)

func main() {
	// Generate a base64-encoded application key for credential encryption
	encodedKey, err := secrets.GenerateEncodedKey()
	if err != nil {
		log.Fatalf("Failed to generate application key: %v", err)
	}

	fmt.Printf("Generated application key (for CREDENTIALS_APP_KEY env var):\n---\n%s\n---\n", encodedKey)
}
