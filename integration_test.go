package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"testing"
	"time"

	"studenthub-wallet/internal/auth"
	"studenthub-wallet/internal/config"
	"studenthub-wallet/internal/server"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const testJWTSecret = "integration-secret"

type IntegrationTestSuite struct {
	suite.Suite
	postgresContainer *postgres.PostgresContainer
	serverInstance    *server.Server
	baseURL           string
	client            *http.Client
	db                *sql.DB
	authn             *auth.Authenticator
	adminToken        string
	systemToken       string
}

func (suite *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("studenthub"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %s", err)
	}
	suite.postgresContainer = postgresContainer

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		suite.T().Fatalf("Failed to get connection string: %s", err)
	}

	// Start the application server; it applies the embedded migrations itself
	cfg := config.Default()
	cfg.ServerPort = "0"
	cfg.DatabaseURL = connStr
	cfg.AutoMigrate = true
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Wallet.CoinValue = "0.5"
	if err := cfg.Validate(); err != nil {
		suite.T().Fatalf("Invalid test configuration: %s", err)
	}

	serverInstance, port, err := server.StartServer(cfg)
	if err != nil {
		suite.T().Fatalf("Failed to start application server: %s", err)
	}
	suite.serverInstance = serverInstance
	suite.baseURL = "http://localhost:" + port

	suite.db, err = sql.Open("postgres", connStr)
	if err != nil {
		suite.T().Fatalf("Failed to open verification connection: %s", err)
	}

	suite.client = &http.Client{Timeout: 30 * time.Second}
	suite.authn = auth.NewAuthenticator(testJWTSecret, cfg.Auth.JWTIssuer)
	suite.adminToken = suite.issue(uuid.New(), auth.RoleAdmin)
	suite.systemToken = suite.issue(uuid.New(), auth.RoleSystem)

	if err := suite.waitForServerReady(); err != nil {
		suite.T().Fatal(err)
	}
}

func (suite *IntegrationTestSuite) waitForServerReady() error {
	timeout := 30 * time.Second
	start := time.Now()

	for time.Since(start) < timeout {
		resp, err := http.Get(suite.baseURL + "/health")
		if err == nil && resp.StatusCode == http.StatusOK {
			resp.Body.Close()
			return nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}

func (suite *IntegrationTestSuite) TearDownSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if suite.serverInstance != nil {
		suite.serverInstance.Stop(ctx)
	}

	if suite.db != nil {
		suite.db.Close()
	}

	if err := testcontainers.TerminateContainer(suite.postgresContainer); err != nil {
		suite.T().Logf("Failed to terminate postgres container: %s", err)
	}
}

func (suite *IntegrationTestSuite) issue(subject uuid.UUID, role auth.Role) string {
	token, err := suite.authn.Issue(subject, role, time.Hour)
	if err != nil {
		suite.T().Fatalf("Failed to issue token: %s", err)
	}
	return token
}

// call performs an authenticated request and returns the status and raw body.
func (suite *IntegrationTestSuite) call(method, path, token string, payload interface{}) (int, string, error) {
	var reader io.Reader
	if payload != nil {
		body, _ := json.Marshal(payload)
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, suite.baseURL+path, reader)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := suite.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(respBody), nil
}

// Helper to parse response and log errors
func (suite *IntegrationTestSuite) parseResponse(body string) (map[string]interface{}, error) {
	var response map[string]interface{}
	if err := json.Unmarshal([]byte(body), &response); err != nil {
		suite.T().Logf("Failed to parse response: %s", body)
		return nil, err
	}
	return response, nil
}

func (suite *IntegrationTestSuite) data(body string) map[string]interface{} {
	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)
	data, ok := response["data"].(map[string]interface{})
	assert.True(suite.T(), ok, "Response should have 'data' object: %s", body)
	return data
}

func (suite *IntegrationTestSuite) errorCode(body string) string {
	response, err := suite.parseResponse(body)
	assert.NoError(suite.T(), err)
	errObj, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errObj["code"].(string)
	return code
}

func (suite *IntegrationTestSuite) createFundedAccount(coins int64) (uuid.UUID, string) {
	id := uuid.New()
	status, body, err := suite.call("POST", "/accounts", suite.systemToken, map[string]string{"account_id": id.String()})
	assert.NoError(suite.T(), err)
	suite.T().Logf("Create Account Response: %s", body)
	assert.Equal(suite.T(), http.StatusCreated, status)

	if coins > 0 {
		status, body, err = suite.call("POST", "/accounts/"+id.String()+"/credits", suite.systemToken, map[string]int64{"amount": coins})
		assert.NoError(suite.T(), err)
		assert.Equal(suite.T(), http.StatusOK, status, body)
	}
	return id, suite.issue(id, auth.RoleUser)
}

func (suite *IntegrationTestSuite) assertBalances(id uuid.UUID, available, locked int64) {
	status, body, err := suite.call("GET", "/accounts/"+id.String(), suite.adminToken, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, status)

	data := suite.data(body)
	assert.Equal(suite.T(), float64(available), data["available_coins"], "available coins")
	assert.Equal(suite.T(), float64(locked), data["locked_coins"], "locked coins")
}

// assertLedgerMatches folds the stored ledger and compares it with the balance columns.
func (suite *IntegrationTestSuite) assertLedgerMatches(id uuid.UUID) {
	var ledgerAvailable, ledgerLocked, available, locked int64
	err := suite.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE type WHEN 'earn' THEN amount WHEN 'refund' THEN amount
				WHEN 'unlock' THEN amount WHEN 'lock' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE type WHEN 'lock' THEN -amount WHEN 'unlock' THEN -amount
				WHEN 'finalize' THEN amount ELSE 0 END), 0)
		FROM ledger_entries WHERE account_id = $1`, id).Scan(&ledgerAvailable, &ledgerLocked)
	assert.NoError(suite.T(), err)

	err = suite.db.QueryRow(`SELECT available_coins, locked_coins FROM accounts WHERE id = $1`, id).
		Scan(&available, &locked)
	assert.NoError(suite.T(), err)

	assert.Equal(suite.T(), available, ledgerAvailable, "ledger available fold")
	assert.Equal(suite.T(), locked, ledgerLocked, "ledger locked fold")
}

func (suite *IntegrationTestSuite) submit(id uuid.UUID, token string, amount int64) (int, string) {
	status, body, err := suite.call("POST", "/accounts/"+id.String()+"/withdrawals", token, map[string]int64{"amount": amount})
	assert.NoError(suite.T(), err)
	suite.T().Logf("Submit Response: %s", body)
	return status, body
}

// ------------------------------------------------------------------
// Steps below are helpers (non-test methods). They will be executed
// in the order invoked by TestFlow.
// ------------------------------------------------------------------

func (suite *IntegrationTestSuite) stepHealthCheck() {
	resp, err := suite.client.Get(suite.baseURL + "/health")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	var healthResp map[string]interface{}
	err = json.Unmarshal(body, &healthResp)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "healthy", healthResp["status"])
}

func (suite *IntegrationTestSuite) stepDuplicateAccount() {
	id, _ := suite.createFundedAccount(0)

	status, body, err := suite.call("POST", "/accounts", suite.systemToken, map[string]string{"account_id": id.String()})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusConflict, status)
	assert.Equal(suite.T(), "duplicate_account", suite.errorCode(body))
}

func (suite *IntegrationTestSuite) stepSubmitApprovePay() {
	id, token := suite.createFundedAccount(500)

	status, body := suite.submit(id, token, 200)
	assert.Equal(suite.T(), http.StatusCreated, status)
	request := suite.data(body)
	assert.Equal(suite.T(), "pending", request["status"])
	payout, err := decimal.NewFromString(request["payout_value"].(string))
	assert.NoError(suite.T(), err)
	assert.True(suite.T(), payout.Equal(decimal.NewFromInt(100)), "payout value %s", payout)
	suite.assertBalances(id, 300, 200)

	status, body = suite.submit(id, token, 100)
	assert.Equal(suite.T(), http.StatusConflict, status)
	assert.Equal(suite.T(), "already_pending", suite.errorCode(body))

	requestID := request["id"].(string)
	status, body, err = suite.call("POST", "/admin/withdrawals/"+requestID+"/approve", suite.adminToken, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, status, body)
	assert.Equal(suite.T(), "approved", suite.data(body)["status"])
	suite.assertBalances(id, 300, 0)

	status, body, err = suite.call("POST", "/admin/withdrawals/"+requestID+"/approve", suite.adminToken, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusConflict, status)
	assert.Equal(suite.T(), "not_pending", suite.errorCode(body))
	suite.assertBalances(id, 300, 0)

	status, body, err = suite.call("POST", "/admin/withdrawals/"+requestID+"/paid", suite.adminToken, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, status, body)
	assert.Equal(suite.T(), "paid", suite.data(body)["status"])

	suite.assertLedgerMatches(id)
}

func (suite *IntegrationTestSuite) stepSubmitReject() {
	id, token := suite.createFundedAccount(500)

	status, body := suite.submit(id, token, 200)
	assert.Equal(suite.T(), http.StatusCreated, status)
	requestID := suite.data(body)["id"].(string)

	status, body, err := suite.call("POST", "/admin/withdrawals/"+requestID+"/reject", suite.adminToken, map[string]string{"reason": ""})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	assert.Equal(suite.T(), "invalid_input", suite.errorCode(body))

	status, body, err = suite.call("POST", "/admin/withdrawals/"+requestID+"/reject", suite.adminToken, map[string]string{"reason": "bank details mismatch"})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, status, body)
	request := suite.data(body)
	assert.Equal(suite.T(), "rejected", request["status"])
	assert.Equal(suite.T(), "bank details mismatch", request["admin_remark"])
	suite.assertBalances(id, 500, 0)
	suite.assertLedgerMatches(id)

	// A new request is allowed once the previous one is decided
	status, _ = suite.submit(id, token, 150)
	assert.Equal(suite.T(), http.StatusCreated, status)
	suite.assertBalances(id, 350, 150)
}

func (suite *IntegrationTestSuite) stepValidationErrors() {
	id, token := suite.createFundedAccount(150)

	status, body := suite.submit(id, token, 99)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "below_minimum", suite.errorCode(body))

	status, body = suite.submit(id, token, 151)
	assert.Equal(suite.T(), http.StatusUnprocessableEntity, status)
	assert.Equal(suite.T(), "insufficient_funds", suite.errorCode(body))

	status, body = suite.submit(id, token, 0)
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	assert.Equal(suite.T(), "invalid_amount", suite.errorCode(body))

	suite.assertBalances(id, 150, 0)
}

func (suite *IntegrationTestSuite) stepConcurrentSubmits() {
	id, token := suite.createFundedAccount(400)

	const attempts = 8
	var wg sync.WaitGroup
	statuses := make(chan int, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, err := suite.call("POST", "/accounts/"+id.String()+"/withdrawals", token, map[string]int64{"amount": 300})
			if err != nil {
				statuses <- 0
				return
			}
			statuses <- status
		}()
	}
	wg.Wait()
	close(statuses)

	created := 0
	for status := range statuses {
		if status == http.StatusCreated {
			created++
			continue
		}
		assert.Contains(suite.T(), []int{http.StatusConflict, http.StatusUnprocessableEntity}, status)
	}
	assert.Equal(suite.T(), 1, created)
	suite.assertBalances(id, 100, 300)
	suite.assertLedgerMatches(id)
}

func (suite *IntegrationTestSuite) stepConcurrentDecisions() {
	id, token := suite.createFundedAccount(500)
	status, body := suite.submit(id, token, 200)
	assert.Equal(suite.T(), http.StatusCreated, status)
	requestID := suite.data(body)["id"].(string)

	var wg sync.WaitGroup
	results := make(chan int, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		status, _, _ := suite.call("POST", "/admin/withdrawals/"+requestID+"/approve", suite.adminToken, nil)
		results <- status
	}()
	go func() {
		defer wg.Done()
		status, _, _ := suite.call("POST", "/admin/withdrawals/"+requestID+"/reject", suite.adminToken, map[string]string{"reason": "race"})
		results <- status
	}()
	wg.Wait()
	close(results)

	var ok, conflict int
	for status := range results {
		switch status {
		case http.StatusOK:
			ok++
		case http.StatusConflict:
			conflict++
		}
	}
	assert.Equal(suite.T(), 1, ok)
	assert.Equal(suite.T(), 1, conflict)

	var available, locked int64
	err := suite.db.QueryRow(`SELECT available_coins, locked_coins FROM accounts WHERE id = $1`, id).Scan(&available, &locked)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(0), locked)
	assert.Contains(suite.T(), []int64{300, 500}, available)
	suite.assertLedgerMatches(id)
}

func (suite *IntegrationTestSuite) stepReconcileRepairsDrift() {
	id, _ := suite.createFundedAccount(250)

	_, err := suite.db.Exec(`UPDATE accounts SET available_coins = 999 WHERE id = $1`, id)
	assert.NoError(suite.T(), err)

	status, body, err := suite.call("POST", "/admin/accounts/"+id.String()+"/reconcile", suite.adminToken, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, status, body)
	data := suite.data(body)
	assert.Equal(suite.T(), true, data["drifted"])
	assert.Equal(suite.T(), float64(999), data["previous_available_coins"])
	suite.assertBalances(id, 250, 0)
}

func (suite *IntegrationTestSuite) stepNotifications() {
	id, token := suite.createFundedAccount(300)
	status, _ := suite.submit(id, token, 100)
	assert.Equal(suite.T(), http.StatusCreated, status)

	assert.Eventually(suite.T(), func() bool {
		_, body, err := suite.call("GET", "/accounts/"+id.String()+"/notifications?unread=true", token, nil)
		if err != nil {
			return false
		}
		response, err := suite.parseResponse(body)
		if err != nil {
			return false
		}
		list, ok := response["data"].([]interface{})
		return ok && len(list) == 2
	}, 5*time.Second, 50*time.Millisecond)

	status, body, err := suite.call("POST", "/accounts/"+id.String()+"/notifications/read", token, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, status)
	assert.Equal(suite.T(), float64(2), suite.data(body)["updated"])
}

func (suite *IntegrationTestSuite) stepCreditOverflow() {
	id, _ := suite.createFundedAccount(math.MaxInt64 - 5)

	status, body, err := suite.call("POST", "/accounts/"+id.String()+"/credits", suite.systemToken, map[string]int64{"amount": 6})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusBadRequest, status)
	assert.Equal(suite.T(), "invalid_amount", suite.errorCode(body))

	status, body, err = suite.call("POST", "/accounts/"+id.String()+"/credits", suite.systemToken, map[string]int64{"amount": 5})
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusOK, status, body)
	suite.assertBalances(id, math.MaxInt64, 0)
}

func (suite *IntegrationTestSuite) stepAuthorization() {
	id, token := suite.createFundedAccount(200)
	other, _ := suite.createFundedAccount(200)

	status, _, err := suite.call("GET", "/accounts/"+other.String(), token, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusForbidden, status)

	status, _, err = suite.call("GET", "/admin/withdrawals", token, nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusForbidden, status)

	status, _, err = suite.call("GET", "/accounts/"+id.String(), "", nil)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), http.StatusUnauthorized, status)
}

// Single ordered test
func (suite *IntegrationTestSuite) TestFlow() {
	suite.stepHealthCheck()
	suite.stepDuplicateAccount()
	suite.stepSubmitApprovePay()
	suite.stepSubmitReject()
	suite.stepValidationErrors()
	suite.stepConcurrentSubmits()
	suite.stepConcurrentDecisions()
	suite.stepReconcileRepairsDrift()
	suite.stepNotifications()
	suite.stepCreditOverflow()
	suite.stepAuthorization()
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	suite.Run(t, new(IntegrationTestSuite))
}
