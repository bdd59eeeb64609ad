// Prints a fresh hex-encoded 32-byte credential encryption key for the
// CREDENTIAL_KEY setting.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatalf("generating key: %v", err)
	}
	fmt.Println(hex.EncodeToString(key))
}
