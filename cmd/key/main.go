// Command key prints two fresh signing secrets for the jwt config section.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

func main() {
	access, err := secret()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	refresh, err := secret()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Printf("access_secret:  %s\n", access)
	fmt.Printf("refresh_secret: %s\n", refresh)
}

// secret returns 32 random bytes as standard base64 (44 chars).
func secret() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b[:]), nil
}
