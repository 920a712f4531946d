package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joho/godotenv"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	testAppBinary         = "./rentago_test_app" // Name for the test binary
	testAppPort           = "8089"               // Port for the test server
	testServiceApiPortApi = "8091"               // Port for Service API run by API process
	testServiceApiPortBg  = "8092"               // Port for Service API run by BG process
	testAppURL            = "http://localhost:" + testAppPort
	testServiceApiURL     = "http://localhost:" + testServiceApiPortApi
	testMongoDbName       = "rentago_integration_test"
	startupTimeout        = 15 * time.Second
	pingEndpoint          = testAppURL + "/v1/ping"
)

// TestMain manages the setup and teardown of the integration test environment.
func TestMain(m *testing.M) {
	defer func() {
		log.Println("Integration Test Teardown: Cleaning up test binary...")
		_ = os.Remove(testAppBinary)
	}()

	log.Println("Integration Test Setup: Building application...")
	godotenv.Load()
	buildCmd := exec.Command("go", "build", "-o", testAppBinary, ".")
	buildOutput, err := buildCmd.CombinedOutput()
	if err != nil {
		log.Printf("Failed to build application: %v\nOutput:\n%s", err, string(buildOutput))
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: Build successful: %s", testAppBinary)

	// Ensure the integration database is dropped when we are done.
	defer cleanupTestDatabase()

	sharedEnv := []string{
		"MONGO_DB_NAME=" + testMongoDbName,
		"JWT_SECRET=integration-test-secret",
		"GIN_MODE=release",
		"MOCK_SERVICES=true",
		"REDIS_ADDR=localhost:6379",
		"SMTP_FROM_ADDRESS=test@example.com",
		"REVIEW_REQUIRE_RETURNED=true",
	}

	// --- Start API Process ---
	apiCmd := exec.Command(testAppBinary, "-m", "api")
	apiCmd.Env = append(append(os.Environ(), sharedEnv...),
		"API_PORT="+testAppPort,
		"SERVICE_API_PORT="+testServiceApiPortApi,
		"RATE_LIMIT_BUCKET_SIZE=200",
		"RATE_LIMIT_REFILL_RATE=200",
	)
	apiCmd.Stderr = os.Stderr
	apiCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting API process...")
	if err := apiCmd.Start(); err != nil {
		log.Printf("Failed to start API process: %v", err)
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: API process started (PID: %d)...", apiCmd.Process.Pid)

	// --- Start Background Worker Process ---
	bgCmd := exec.Command(testAppBinary, "-m", "bg")
	bgCmd.Env = append(append(os.Environ(), sharedEnv...),
		"SERVICE_API_PORT="+testServiceApiPortBg,
	)
	bgCmd.Stderr = os.Stderr
	bgCmd.Stdout = os.Stdout

	log.Println("Integration Test Setup: Starting Background Worker process...")
	if err := bgCmd.Start(); err != nil {
		_ = apiCmd.Process.Kill()
		log.Printf("Failed to start Background Worker process: %v", err)
		os.Exit(1)
	}
	log.Printf("Integration Test Setup: Background Worker process started (PID: %d)...", bgCmd.Process.Pid)

	// Defer shutdown logic for BOTH processes
	defer func() {
		log.Println("Integration Test Teardown: Shutting down application processes...")
		log.Println("Sending SIGTERM to Background Worker...")
		if processErr := bgCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			log.Printf("Integration Test Teardown: Failed to send SIGTERM to BG Worker: %v. Killing.", processErr)
			_ = bgCmd.Process.Kill()
		} else {
			_, waitErr := bgCmd.Process.Wait()
			if waitErr != nil && waitErr.Error() != "signal: killed" && waitErr.Error() != "exit status 1" {
				log.Printf("Integration Test Teardown: Error waiting for BG Worker exit: %v", waitErr)
			}
		}
		log.Println("Sending SIGTERM to API Process...")
		if processErr := apiCmd.Process.Signal(syscall.SIGTERM); processErr != nil {
			log.Printf("Integration Test Teardown: Failed to send SIGTERM to API Process: %v. Killing.", processErr)
			_ = apiCmd.Process.Kill()
		} else {
			_, waitErr := apiCmd.Process.Wait()
			if waitErr != nil && waitErr.Error() != "signal: killed" && waitErr.Error() != "exit status 1" {
				log.Printf("Integration Test Teardown: Error waiting for API Process exit: %v", waitErr)
			}
		}
		log.Println("Integration Test Teardown: Application processes stopped.")
	}()

	// Wait for the API application to be ready by polling the ping endpoint
	log.Printf("Integration Test Setup: Waiting for API application to become ready at %s...", pingEndpoint)
	startTime := time.Now()
	ready := false
	for time.Since(startTime) < startupTimeout {
		resp, err := http.Get(pingEndpoint)
		if err == nil && resp.StatusCode == http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if string(bodyBytes) == "pong" {
				log.Println("Integration Test Setup: Application is ready!")
				ready = true
				break
			}
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(200 * time.Millisecond)
	}

	if !ready {
		log.Printf("Application failed to start within %v", startupTimeout)
		os.Exit(1)
	}

	// Give the background worker a moment to connect to Redis and register handlers.
	log.Println("Integration Test Setup: Pausing briefly for background worker startup...")
	time.Sleep(2 * time.Second)

	log.Println("Integration Test Setup: Running tests...")
	exitCode := m.Run()
	log.Printf("Integration Test Teardown: Tests finished with exit code %d.", exitCode)
	// Let TestMain return normally. The test runner will handle the exit code.
}

func cleanupTestDatabase() {
	mongoURI := os.Getenv("MONGO_URI")
	if mongoURI == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		log.Printf("Integration Test Teardown: Could not connect to Mongo for cleanup: %v", err)
		return
	}
	defer client.Disconnect(ctx)
	if err := client.Database(testMongoDbName).Drop(ctx); err != nil {
		log.Printf("Integration Test Teardown: Failed to drop database %s: %v", testMongoDbName, err)
	} else {
		log.Printf("Integration Test Teardown: Dropped database %s.", testMongoDbName)
	}
}

// doJSON performs a JSON request against the running API and decodes the
// response body into a generic map. A nil payload sends no body.
func doJSON(t *testing.T, method, path, token string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err, "doJSON: marshal payload for %s %s", method, path)
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, testAppURL+path, bodyReader)
	require.NoError(t, err, "doJSON: build request for %s %s", method, path)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "doJSON: request %s %s failed", method, path)
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "doJSON: read response for %s %s", method, path)

	var decoded map[string]interface{}
	if len(bodyBytes) > 0 {
		if err := json.Unmarshal(bodyBytes, &decoded); err != nil {
			t.Fatalf("doJSON: %s %s returned non-JSON body (status %d): %s", method, path, resp.StatusCode, string(bodyBytes))
		}
	}
	return resp.StatusCode, decoded
}

// registerUser signs up a fresh user and returns its email, JWT and ID.
func registerUser(t *testing.T, name string) (email, token, userID string) {
	t.Helper()
	email = fmt.Sprintf("%s_%d@example.com", strings.ToLower(name), time.Now().UnixNano())
	status, body := doJSON(t, http.MethodPost, "/v1/auth/register", "", map[string]interface{}{
		"name":     name,
		"email":    email,
		"password": "StrongP@ssw0rd123",
	})
	require.Equal(t, http.StatusCreated, status, "registerUser: unexpected status for %s: %v", email, body)

	token, _ = body["token"].(string)
	require.NotEmpty(t, token, "registerUser: missing token for %s", email)

	user, _ := body["user"].(map[string]interface{})
	require.NotNil(t, user, "registerUser: missing user object for %s", email)
	userID, _ = user["id"].(string)
	require.NotEmpty(t, userID, "registerUser: missing user ID for %s", email)
	return email, token, userID
}

// getEmailFromServiceAPI polls the service API for a mock email stored by the
// background worker. Delivery goes through the task queue, so retry for a while.
func getEmailFromServiceAPI(t *testing.T, eventType, emailAddr string) map[string]interface{} {
	t.Helper()

	payload := map[string]interface{}{
		"method":    "getTestEmail",
		"arguments": []string{eventType, emailAddr},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err, "getEmailFromServiceAPI: marshal payload")

	deadline := time.Now().Add(20 * time.Second)
	for {
		resp, err := http.Post(testServiceApiURL+"/api", "application/json", bytes.NewReader(data))
		require.NoError(t, err, "getEmailFromServiceAPI: service API request failed")
		bodyBytes, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, readErr, "getEmailFromServiceAPI: read service API response")

		if resp.StatusCode == http.StatusOK {
			var decoded struct {
				Success bool                   `json:"success"`
				Data    map[string]interface{} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(bodyBytes, &decoded), "getEmailFromServiceAPI: unmarshal response")
			require.True(t, decoded.Success, "getEmailFromServiceAPI: service API reported failure")
			return decoded.Data
		}
		if time.Now().After(deadline) {
			t.Fatalf("getEmailFromServiceAPI: no '%s' email for %s after 20s (last status %d: %s)",
				eventType, emailAddr, resp.StatusCode, string(bodyBytes))
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func itemStatus(t *testing.T, itemID string) string {
	t.Helper()
	status, body := doJSON(t, http.MethodGet, "/v1/item/"+itemID, "", nil)
	require.Equal(t, http.StatusOK, status, "itemStatus: fetching item %s: %v", itemID, body)
	s, _ := body["status"].(string)
	return s
}

// TestIntegration_Ping tests the /v1/ping endpoint of the running application.
func TestIntegration_Ping(t *testing.T) {
	resp, err := http.Get(pingEndpoint)
	assert.NoError(t, err, "Request to %s should not fail", pingEndpoint)
	if err != nil {
		t.FailNow()
	}
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode, "Expected status code OK (200)")

	bodyBytes, err := io.ReadAll(resp.Body)
	assert.NoError(t, err, "Should be able to read response body")
	assert.Equal(t, "pong", string(bodyBytes), "Response body should be 'pong'")
}

// TestIntegration_RegisterLoginMe covers the auth round trip against the live server.
func TestIntegration_RegisterLoginMe(t *testing.T) {
	email, _, userID := registerUser(t, "Quinn")

	// Fresh login with the same credentials
	status, body := doJSON(t, http.MethodPost, "/v1/auth/login", "", map[string]interface{}{
		"email":    email,
		"password": "StrongP@ssw0rd123",
	})
	require.Equal(t, http.StatusOK, status, "login failed: %v", body)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	status, body = doJSON(t, http.MethodGet, "/v1/me", token, nil)
	require.Equal(t, http.StatusOK, status, "GET /v1/me failed: %v", body)
	assert.Equal(t, userID, body["id"])
	assert.Equal(t, email, body["email"])

	// Wrong password must not authenticate
	status, _ = doJSON(t, http.MethodPost, "/v1/auth/login", "", map[string]interface{}{
		"email":    email,
		"password": "not-the-password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	// Public profile never exposes the email address
	status, body = doJSON(t, http.MethodGet, "/v1/user/"+userID, "", nil)
	require.Equal(t, http.StatusOK, status)
	_, hasEmail := body["email"]
	assert.False(t, hasEmail, "public profile should not carry the email address")
}

// TestIntegration_RentalLifecycle drives a full rent flow over HTTP: listing,
// conversation, request, accept, finalize, return and both review kinds, with
// notification emails checked through the service API.
func TestIntegration_RentalLifecycle(t *testing.T) {
	sellerEmail, sellerToken, sellerID := registerUser(t, "Sella")
	buyerEmail, buyerToken, _ := registerUser(t, "Bryn")

	// Seller lists a rentable item
	status, body := doJSON(t, http.MethodPost, "/v1/item", sellerToken, map[string]interface{}{
		"title":        "Canoe paddle",
		"body":         "Two-piece aluminium paddle, good condition.",
		"listing_type": "rent",
		"price":        map[string]interface{}{"value": 15, "currency_code": "NZD"},
		"tags":         []string{"outdoors", "watersports"},
	})
	require.Equal(t, http.StatusCreated, status, "item create failed: %v", body)
	itemID, _ := body["id"].(string)
	require.NotEmpty(t, itemID)
	assert.Equal(t, "available", body["status"])

	// Buyer opens a conversation about the item and asks a question
	status, body = doJSON(t, http.MethodPost, "/v1/conversations", buyerToken, map[string]interface{}{
		"user_id": sellerID,
		"item_id": itemID,
	})
	require.Equal(t, http.StatusOK, status, "conversation create failed: %v", body)
	convID, _ := body["id"].(string)
	require.NotEmpty(t, convID)

	status, body = doJSON(t, http.MethodPost, "/v1/conversations/"+convID+"/messages", buyerToken, map[string]interface{}{
		"body": "Is this available next weekend?",
	})
	require.Equal(t, http.StatusCreated, status, "message send failed: %v", body)

	// Buyer requests the rental
	status, body = doJSON(t, http.MethodPost, "/v1/transactions", buyerToken, map[string]interface{}{
		"conversation_id": convID,
	})
	require.Equal(t, http.StatusCreated, status, "transaction create failed: %v", body)
	txnID, _ := body["id"].(string)
	require.NotEmpty(t, txnID)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "rent", body["type"])

	// The seller is notified of the new request
	emailData := getEmailFromServiceAPI(t, "requested", sellerEmail)
	assert.Contains(t, emailData["to"], sellerEmail)
	subject, _ := emailData["subject"].(string)
	assert.Contains(t, subject, "New request")
	assert.Contains(t, subject, "Canoe paddle")

	// A second request on the same conversation is rejected
	status, body = doJSON(t, http.MethodPost, "/v1/transactions", buyerToken, map[string]interface{}{
		"conversation_id": convID,
	})
	assert.Equal(t, http.StatusConflict, status, "duplicate request should conflict: %v", body)

	// Only the seller may accept
	status, _ = doJSON(t, http.MethodPost, "/v1/transactions/"+txnID+"/accept", buyerToken, nil)
	assert.Equal(t, http.StatusConflict, status, "buyer must not be able to accept")

	status, body = doJSON(t, http.MethodPost, "/v1/transactions/"+txnID+"/accept", sellerToken, nil)
	require.Equal(t, http.StatusOK, status, "accept failed: %v", body)
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, "reserved", itemStatus(t, itemID))

	emailData = getEmailFromServiceAPI(t, "accepted", buyerEmail)
	assert.Contains(t, emailData["to"], buyerEmail)

	// Seller hands the item over and finalizes
	status, body = doJSON(t, http.MethodPost, "/v1/transactions/"+txnID+"/finalize", sellerToken, nil)
	require.Equal(t, http.StatusOK, status, "finalize failed: %v", body)
	assert.Equal(t, "completed", body["status"])
	assert.NotNil(t, body["completed_at"])
	assert.Equal(t, "rented", itemStatus(t, itemID))

	emailData = getEmailFromServiceAPI(t, "completed", buyerEmail)
	assert.Contains(t, emailData["to"], buyerEmail)

	// Item review is gated until the item comes back; the user review is not
	status, body = doJSON(t, http.MethodGet, "/v1/reviews/eligibility?item="+itemID+"&user="+sellerID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status, "eligibility check failed: %v", body)
	assert.Equal(t, false, body["can_review_item"])
	assert.Equal(t, true, body["can_review_user"])

	status, body = doJSON(t, http.MethodPost, "/v1/item/"+itemID+"/returned", sellerToken, nil)
	require.Equal(t, http.StatusOK, status, "mark returned failed: %v", body)
	assert.Equal(t, "available", body["status"])

	status, body = doJSON(t, http.MethodGet, "/v1/reviews/eligibility?item="+itemID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["can_review_item"])

	// Buyer reviews the item and the seller
	status, body = doJSON(t, http.MethodPost, "/v1/item/"+itemID+"/review", buyerToken, map[string]interface{}{
		"rating": 5,
		"body":   "Paddle was exactly as described.",
	})
	require.Equal(t, http.StatusOK, status, "item review failed: %v", body)

	status, body = doJSON(t, http.MethodGet, "/v1/item/"+itemID+"/reviews", "", nil)
	require.Equal(t, http.StatusOK, status)
	reviews, _ := body["data"].([]interface{})
	require.Len(t, reviews, 1)
	review, _ := reviews[0].(map[string]interface{})
	assert.Equal(t, float64(5), review["rating"])

	status, body = doJSON(t, http.MethodPost, "/v1/user/"+sellerID+"/review", buyerToken, map[string]interface{}{
		"rating": 4,
		"body":   "Friendly and punctual.",
	})
	require.Equal(t, http.StatusOK, status, "user review failed: %v", body)

	// Seller has unread activity in the conversation until reading it
	status, body = doJSON(t, http.MethodGet, "/v1/conversations/unread", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	counts, _ := body["data"].(map[string]interface{})
	unread, _ := counts[convID].(float64)
	assert.GreaterOrEqual(t, unread, float64(1), "seller should have unread messages in %s", convID)

	status, body = doJSON(t, http.MethodGet, "/v1/conversations/"+convID+"/messages", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	messages, _ := body["data"].([]interface{})
	assert.GreaterOrEqual(t, len(messages), 1, "conversation should carry at least the buyer's question")

	status, body = doJSON(t, http.MethodGet, "/v1/conversations/unread", sellerToken, nil)
	require.Equal(t, http.StatusOK, status)
	counts, _ = body["data"].(map[string]interface{})
	_, stillUnread := counts[convID]
	assert.False(t, stillUnread, "reading the conversation should clear its unread count")
}

// TestIntegration_DenyKeepsItemAvailable checks the deny branch of the request flow.
func TestIntegration_DenyKeepsItemAvailable(t *testing.T) {
	_, sellerToken, sellerID := registerUser(t, "Sorrel")
	buyerEmail, buyerToken, _ := registerUser(t, "Blake")

	status, body := doJSON(t, http.MethodPost, "/v1/item", sellerToken, map[string]interface{}{
		"title":        "Vintage armchair",
		"listing_type": "sell",
		"price":        map[string]interface{}{"value": 120, "currency_code": "NZD"},
	})
	require.Equal(t, http.StatusCreated, status, "item create failed: %v", body)
	itemID, _ := body["id"].(string)
	require.NotEmpty(t, itemID)

	status, body = doJSON(t, http.MethodPost, "/v1/conversations", buyerToken, map[string]interface{}{
		"user_id": sellerID,
		"item_id": itemID,
	})
	require.Equal(t, http.StatusOK, status, "conversation create failed: %v", body)
	convID, _ := body["id"].(string)

	status, body = doJSON(t, http.MethodPost, "/v1/transactions", buyerToken, map[string]interface{}{
		"conversation_id": convID,
	})
	require.Equal(t, http.StatusCreated, status, "transaction create failed: %v", body)
	txnID, _ := body["id"].(string)

	status, body = doJSON(t, http.MethodPost, "/v1/transactions/"+txnID+"/deny", sellerToken, nil)
	require.Equal(t, http.StatusOK, status, "deny failed: %v", body)
	assert.Equal(t, "denied", body["status"])
	assert.Equal(t, "available", itemStatus(t, itemID))

	emailData := getEmailFromServiceAPI(t, "denied", buyerEmail)
	assert.Contains(t, emailData["to"], buyerEmail)

	// Denied is terminal: no further transitions are possible
	status, _ = doJSON(t, http.MethodPost, "/v1/transactions/"+txnID+"/accept", sellerToken, nil)
	assert.Equal(t, http.StatusConflict, status, "denied transaction must not be acceptable")

	// A denied request never granted purchase history, so no review rights
	status, body = doJSON(t, http.MethodGet, "/v1/reviews/eligibility?item="+itemID, buyerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["can_review_item"])
}
