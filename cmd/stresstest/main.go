// Command stresstest fires concurrent transfers at a running cave server and
// checks that no update was lost: afterwards the thief balance must have
// dropped by exactly the sum of the successful transfers and the holder
// balance must have grown by the same amount.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yashasviy/cave-treasure-api/auth"
	"github.com/yashasviy/cave-treasure-api/db"
	"github.com/yashasviy/cave-treasure-api/models"
)

const (
	// DefaultURL is the target API base URL
	DefaultURL = "http://localhost:8080"

	// DefaultConcurrency is the number of concurrent requests
	DefaultConcurrency = 50

	// DefaultAmount is the transfer amount per request
	DefaultAmount = 10
)

// TestConfig holds the stress test configuration
type TestConfig struct {
	BaseURL            string
	Token              string
	ConcurrentRequests int
	Amount             int64
	IdempotencyKey     string
}

// TestResults tracks the outcomes of all requests
type TestResults struct {
	SuccessCount      int32
	InsufficientCount int32
	CacheHitCount     int32
	ConflictCount     int32
	ErrorCount        int32
	Duration          time.Duration
}

func main() {
	config := TestConfig{}
	flag.StringVar(&config.BaseURL, "url", DefaultURL, "API base URL")
	flag.IntVar(&config.ConcurrentRequests, "concurrent", DefaultConcurrency, "Number of concurrent requests")
	flag.Int64Var(&config.Amount, "amount", DefaultAmount, "Amount per transfer")
	flag.StringVar(&config.IdempotencyKey, "key", "", "Idempotency key shared by all requests (empty sends none)")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret used to mint the bearer token")
	rolesClaim := flag.String("roles-claim", auth.DefaultRolesClaim, "Claim carrying role names")
	flag.Parse()

	if *secret == "" {
		log.Fatal("a JWT secret is required (-secret or JWT_SECRET)")
	}
	gate := auth.JWTGate{
		Secret:     []byte(*secret),
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   os.Getenv("JWT_AUDIENCE"),
		RolesClaim: *rolesClaim,
	}
	token, err := gate.Issue("stress-tester",
		[]string{"treasure-hunter"},
		[]string{"see:holder-treasure", "take:thief-treasure"},
		10*time.Minute,
	)
	if err != nil {
		log.Fatalf("Failed to mint token: %v", err)
	}
	config.Token = token
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	fmt.Println("  CAVE TREASURE - CONCURRENT TRANSFER STRESS TEST")

	thiefBefore, holderBefore, err := readBalances(config)
	if err != nil {
		log.Fatalf("Failed to read starting balances: %v", err)
	}

	fmt.Printf("Endpoint:       %s/cave/transfer\n", config.BaseURL)
	fmt.Printf("Concurrency:    %d requests\n", config.ConcurrentRequests)
	fmt.Printf("Transfer:       %d each\n", config.Amount)
	fmt.Printf("Start:          thief=%d holder=%d\n", thiefBefore, holderBefore)
	fmt.Println("---------------------------------------------------------------")

	results := runStressTest(config)

	thiefAfter, holderAfter, err := readBalances(config)
	if err != nil {
		log.Fatalf("Failed to read final balances: %v", err)
	}
	ok := printResults(results, config, thiefBefore-thiefAfter, holderAfter-holderBefore)
	reportJournal()
	if !ok {
		os.Exit(1)
	}
}

// runStressTest executes concurrent requests and returns aggregated results
func runStressTest(config TestConfig) TestResults {
	var (
		results TestResults
		wg      sync.WaitGroup
		start   = time.Now()
	)

	fmt.Printf("\nLaunching %d concurrent requests...\n", config.ConcurrentRequests)

	for i := 0; i < config.ConcurrentRequests; i++ {
		wg.Add(1)
		go func(requestID int) {
			defer wg.Done()
			executeRequest(config, requestID, &results)
		}(i)
	}

	wg.Wait()
	results.Duration = time.Since(start)

	return results
}

// executeRequest sends a single transfer and updates results atomically
func executeRequest(config TestConfig, requestID int, results *TestResults) {
	jsonPayload, err := json.Marshal(models.TransferRequest{Amount: config.Amount})
	if err != nil {
		log.Printf("[Request %d] Failed to marshal JSON: %v", requestID, err)
		atomic.AddInt32(&results.ErrorCount, 1)
		return
	}

	req, err := http.NewRequest(http.MethodPost, config.BaseURL+"/cave/transfer", bytes.NewBuffer(jsonPayload))
	if err != nil {
		log.Printf("[Request %d] Failed to create request: %v", requestID, err)
		atomic.AddInt32(&results.ErrorCount, 1)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+config.Token)
	if config.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", config.IdempotencyKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("[Request %d] HTTP error: %v", requestID, err)
		atomic.AddInt32(&results.ErrorCount, 1)
		return
	}
	defer resp.Body.Close()

	var body models.ErrorResponse
	switch {
	case resp.Header.Get("X-Idempotency-Hit") == "true":
		atomic.AddInt32(&results.CacheHitCount, 1)
	case resp.StatusCode == http.StatusOK:
		atomic.AddInt32(&results.SuccessCount, 1)
	case resp.StatusCode == http.StatusConflict:
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "insufficient_funds" {
			atomic.AddInt32(&results.InsufficientCount, 1)
		} else {
			atomic.AddInt32(&results.ConflictCount, 1)
		}
	default:
		log.Printf("[Request %d] Unexpected status: %d", requestID, resp.StatusCode)
		atomic.AddInt32(&results.ErrorCount, 1)
	}
}

func readBalances(config TestConfig) (thief, holder int64, err error) {
	thief, err = readBalance(config, "/cave/thief-balance")
	if err != nil {
		return 0, 0, err
	}
	holder, err = readBalance(config, "/cave/holder-balance")
	return thief, holder, err
}

func readBalance(config TestConfig, path string) (int64, error) {
	req, err := http.NewRequest(http.MethodGet, config.BaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+config.Token)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}

	var balance models.TreasureModel
	if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
		return 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return balance.Amount, nil
}

// reportJournal prints the newest journal entries when DB_URL is set
func reportJournal() {
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		return
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dbURL)
	if err != nil {
		log.Printf("Journal unavailable: %v", err)
		return
	}
	defer conn.Close()

	records, err := db.NewJournal(conn).Recent(ctx, 5)
	if err != nil {
		log.Printf("Journal query failed: %v", err)
		return
	}
	fmt.Println("Latest journal entries:")
	for _, r := range records {
		fmt.Printf("  %s  %s -> %s  %d  by %s\n", r.CreatedAt.Format(time.RFC3339), r.From, r.To, r.Amount, r.Initiator)
	}
}

// printResults displays formatted test results and returns the verdict
func printResults(results TestResults, config TestConfig, thiefDelta, holderDelta int64) bool {
	moved := int64(results.SuccessCount) * config.Amount

	fmt.Println("                    TEST RESULTS")
	fmt.Printf("Duration:                     %v\n", results.Duration)
	fmt.Printf("Requests per second:          %.2f\n", float64(config.ConcurrentRequests)/results.Duration.Seconds())
	fmt.Printf("[SUCCESS] Applied transfers:           %d\n", results.SuccessCount)
	fmt.Printf("[FUNDS]   Insufficient funds:          %d\n", results.InsufficientCount)
	fmt.Printf("[CACHED]  Idempotent replays:          %d\n", results.CacheHitCount)
	fmt.Printf("[BLOCKED] In-flight duplicates:        %d\n", results.ConflictCount)
	fmt.Printf("[ERROR]   Network/Server errors:       %d\n", results.ErrorCount)
	fmt.Printf("Thief decreased by:           %d (expected %d)\n", thiefDelta, moved)
	fmt.Printf("Holder increased by:          %d (expected %d)\n", holderDelta, moved)

	if thiefDelta == moved && holderDelta == moved && results.ErrorCount == 0 {
		fmt.Println("TEST PASSED: no lost updates")
		return true
	}
	fmt.Println("TEST FAILED: balances do not add up")
	if thiefDelta != holderDelta {
		fmt.Println("  * CRITICAL: treasure created or destroyed")
	}
	if thiefDelta != moved {
		fmt.Println("  * CRITICAL: lost update detected")
	}
	if results.ErrorCount > 0 {
		fmt.Printf("  * Network/server errors: %d\n", results.ErrorCount)
	}
	fmt.Println("  * Note: balances reset when the TTL window elapses mid-run")
	return false
}
