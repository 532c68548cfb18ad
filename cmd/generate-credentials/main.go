/*-------------------------------------------------------------------------
 *
 * main.go
 *    Credential generation CLI tool for the bastion gateway
 *
 * Command-line utility for generating the shared agent key and the
 * approver password hash that the server configuration requires.
 *
 * IDENTIFICATION
 *    cmd/generate-credentials/main.go
 *
 *-------------------------------------------------------------------------
 */

package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/joshuaohana/the-bastion/internal/auth"
)

func main() {
	var (
		password = flag.String("password", "", "Approver password to hash (omit to skip)")
		keyOnly  = flag.Bool("key-only", false, "Generate only the agent key")
	)
	flag.Parse()

	/* Generate agent key */
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to generate agent key: %v\n", err)
		os.Exit(1)
	}
	key := base64.URLEncoding.EncodeToString(raw)

	fmt.Println("Agent key generated successfully")
	fmt.Printf("Key: %s\n", key)
	fmt.Printf("Prefix: %s\n", auth.KeyPrefix(key))

	if *keyOnly {
		fmt.Fprintf(os.Stderr, "\nWarning: Save this key securely - it cannot be retrieved again after generation.\n")
		return
	}

	/* Hash approver password */
	if *password == "" {
		fmt.Fprintf(os.Stderr, "\nNo -password given; skipping approver password hash.\n")
		return
	}

	hash, err := auth.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to hash password: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nApprover password hash generated successfully")
	fmt.Printf("Hash: %s\n", hash)
	fmt.Fprintf(os.Stderr, "\nWarning: Save the agent key securely - it cannot be retrieved again after generation.\n")
}
