/**
 * @description
 * Developer tool that signs a payment document with the shared secret and posts it to
 * a running gateway, the way the upstream sender would.
 *
 * Usage:
 *   go run ./cmd/send-webhook <document.json> [gateway-url]
 *
 * Example:
 *   go run ./cmd/send-webhook testdata/pain001.json http://localhost:8080/webhook
 *
 * @dependencies
 * - github.com/joho/godotenv: For local .env loading.
 * - Environment variables: FIM_SHARED_SECRET, SIGNATURE_HEADER (optional)
 */

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/transfa/payout-gateway/internal/app"
	"github.com/transfa/payout-gateway/internal/domain"
)

const defaultGatewayURL = "http://localhost:8080/webhook"

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Println("Usage: go run ./cmd/send-webhook <document.json> [gateway-url]")
		fmt.Println("Example: go run ./cmd/send-webhook testdata/pain001.json " + defaultGatewayURL)
		os.Exit(1)
	}

	documentPath := os.Args[1]
	gatewayURL := defaultGatewayURL
	if len(os.Args) == 3 {
		gatewayURL = os.Args[2]
	}

	for _, envFile := range []string{".env", "../.env"} {
		_ = godotenv.Load(envFile)
	}

	secret := os.Getenv("FIM_SHARED_SECRET")
	if secret == "" {
		secret = os.Getenv("FIMSHAREDSECRET")
	}
	if secret == "" {
		log.Fatal("FIM_SHARED_SECRET environment variable is required")
	}
	header := os.Getenv("SIGNATURE_HEADER")
	if header == "" {
		header = "X-FIM-Signature"
	}

	body, err := os.ReadFile(documentPath)
	if err != nil {
		log.Fatalf("Failed to read document: %v", err)
	}

	instructions, err := app.ExtractInstructions(body)
	if err != nil {
		log.Fatalf("Document would be rejected by the gateway: %v", err)
	}
	printSummary(instructions)

	if !isLocal(gatewayURL) {
		fmt.Printf("\n%s is not a local gateway. Send anyway? (yes/no): ", gatewayURL)
		var confirmation string
		fmt.Scanln(&confirmation)
		if confirmation != "yes" {
			fmt.Println("Cancelled.")
			os.Exit(0)
		}
	}

	verifier, err := app.NewSignatureVerifier(secret)
	if err != nil {
		log.Fatalf("Invalid secret: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	status, respBody, err := send(ctx, gatewayURL, header, verifier.Sign(body), body)
	if err != nil {
		log.Fatalf("Failed to send webhook: %v", err)
	}

	fmt.Printf("\nGateway responded with %d\n", status)
	var pretty bytes.Buffer
	if json.Indent(&pretty, respBody, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(respBody))
	}
}

func printSummary(instructions []domain.CreditTransferInstruction) {
	fmt.Printf("Document contains %d instruction(s):\n", len(instructions))
	for _, instr := range instructions {
		fmt.Printf("  #%d %s %s to %q ref %q\n", instr.Position, instr.Amount.StringFixed(2), instr.Currency, instr.Recipient, instr.Reference)
	}
}

func isLocal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

func send(ctx context.Context, gatewayURL, header, signature string, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gatewayURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, signature)

	client := &http.Client{Timeout: 45 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
