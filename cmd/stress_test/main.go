package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

// Run the server with THROTTLE_LIMIT above -requests, otherwise the extra orders are
// answered 429 and counted as throttled.
func main() {
	baseURL := flag.String("base", "http://localhost:3000", "server base URL")
	adminEmail := flag.String("admin-email", "admin@example.com", "admin account used to create the test record")
	adminPassword := flag.String("admin-password", "adminpassword", "admin password")
	userEmail := flag.String("user-email", "user1@example.com", "account placing the orders")
	userPassword := flag.String("user-password", "user1password", "user password")
	initialStock := flag.Int("stock", 20, "stock of the test record")
	totalRequests := flag.Int("requests", 50, "concurrent 1-unit orders")
	flag.Parse()

	client := &http.Client{Timeout: 30 * time.Second}

	adminToken := login(client, *baseURL, *adminEmail, *adminPassword)
	userToken := login(client, *baseURL, *userEmail, *userPassword)

	album := "Stress " + uuid.NewString()[:8]
	var record struct {
		ID string `json:"id"`
	}
	status := call(client, http.MethodPost, *baseURL+"/api/records", adminToken, map[string]any{
		"artist":   "Stress Test",
		"album":    album,
		"price":    10,
		"qty":      *initialStock,
		"format":   "Vinyl",
		"category": "Rock",
	}, &record)
	if status != http.StatusCreated {
		logger.Fatal().Int("status", status).Msg("failed to create test record")
	}

	var succeeded, insufficient, throttled, other atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status := call(client, http.MethodPost, *baseURL+"/api/orders", userToken, map[string]any{
				"recordId": record.ID,
				"quantity": 1,
			}, nil)
			switch status {
			case http.StatusCreated:
				succeeded.Add(1)
			case http.StatusBadRequest:
				insufficient.Add(1)
			case http.StatusTooManyRequests:
				throttled.Add(1)
			default:
				other.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	var page struct {
		Data []struct {
			Qty int `json:"qty"`
		} `json:"data"`
	}
	call(client, http.MethodGet, *baseURL+"/api/records?album="+url.QueryEscape(album), "", nil, &page)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:      %d\n", *initialStock)
	fmt.Printf("Total Requests:     %d\n", *totalRequests)
	fmt.Printf("Succeeded:          %d\n", succeeded.Load())
	fmt.Printf("Insufficient Stock: %d\n", insufficient.Load())
	fmt.Printf("Throttled:          %d\n", throttled.Load())
	fmt.Printf("Other:              %d\n", other.Load())
	fmt.Printf("Duration:           %v\n", elapsed)
	fmt.Println("==========================================")

	want := min(*initialStock, *totalRequests)
	if int(succeeded.Load()) == want && int(insufficient.Load()) == *totalRequests-want {
		fmt.Printf("PASS: exactly %d orders succeeded, %d rejected\n", want, *totalRequests-want)
	} else {
		fmt.Printf("FAIL: expected %d success/%d insufficient, got %d/%d\n",
			want, *totalRequests-want, succeeded.Load(), insufficient.Load())
	}

	if len(page.Data) == 1 {
		remaining := page.Data[0].Qty
		fmt.Printf("Final Stock: %d\n", remaining)
		if remaining == *initialStock-int(succeeded.Load()) {
			fmt.Println("PASS: stock matches committed orders")
		} else {
			fmt.Printf("FAIL: expected stock %d, got %d\n", *initialStock-int(succeeded.Load()), remaining)
		}
	}
}

func login(client *http.Client, baseURL, email, password string) string {
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	status := call(client, http.MethodPost, baseURL+"/api/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if status != http.StatusOK {
		logger.Fatal().Str("email", email).Int("status", status).Msg("login failed")
	}
	return resp.AccessToken
}

func call(client *http.Client, method, endpoint, token string, body, out any) int {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			logger.Fatal().Err(err).Msg("encode request")
		}
	}

	req, err := http.NewRequest(method, endpoint, &payload)
	if err != nil {
		logger.Fatal().Err(err).Msg("build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		logger.Warn().Err(err).Str("method", method).Str("endpoint", endpoint).Msg("request failed")
		return 0
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode
}
