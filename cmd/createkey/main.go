// Command createkey generates a random API key for the chat API. Put the key
// in the API_KEY environment variable of the server and send it as a Bearer
// token in requests.
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
)

const (
	charset   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	keyLength = 32
)

func main() {
	apiKey, err := generateKey()
	if err != nil {
		slog.Error("Failed to generate API key", "error", err)
		os.Exit(1)
	}

	fmt.Println("API key:", apiKey)
	fmt.Println()
	fmt.Println("Server side:")
	fmt.Printf("  export API_KEY=%s\n", apiKey)
	fmt.Println()
	fmt.Println("Client side:")
	fmt.Printf("  curl -H \"Authorization: Bearer %s\" http://localhost:8880/questions/list\n", apiKey)
	fmt.Println()
	fmt.Printf("  curl -N -X POST -H \"Authorization: Bearer %s\" -H \"Content-Type: application/json\" \\\n", apiKey)
	fmt.Printf("    -d '{\"prompt\":\"Кога е уписот?\"}' http://localhost:8880/chat\n")
}

// generateKey builds a keyLength key from charset using rejection sampling so
// every character is equally likely.
func generateKey() (string, error) {
	maxValidByte := byte((255 / len(charset)) * len(charset))

	key := make([]byte, keyLength)
	randomByte := make([]byte, 1)

	for i := range key {
		for {
			if _, err := rand.Read(randomByte); err != nil {
				return "", fmt.Errorf("read random bytes: %w", err)
			}

			if randomByte[0] < maxValidByte {
				key[i] = charset[int(randomByte[0])%len(charset)]

				break
			}
		}
	}

	return string(key), nil
}
