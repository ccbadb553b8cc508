package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockGatewayServer imitates the SIM gateway REST API for client tests.
type MockGatewayServer struct {
	Server       *httptest.Server
	Token        string
	Balance      float64
	Transactions map[string]*MockTransaction

	mu         sync.Mutex
	nextID     int
	resolveOn  map[string]scriptedOutcome
	polls      map[string]int
	requestLog []MockRequest
}

type MockTransaction struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Operator        string `json:"operator"`
	PhoneNumber     string `json:"phone_number"`
	Status          string `json:"status"`
	RawResponse     string `json:"raw_response"`
	CustomerMessage string `json:"customer_message"`
	UssdCode        string `json:"ussd_code"`
}

type MockRequest struct {
	Method    string
	Path      string
	Timestamp time.Time
}

type scriptedOutcome struct {
	poll   int
	status string
	raw    string
}

func NewMockGatewayServer(token string, balance float64) *MockGatewayServer {
	m := &MockGatewayServer{
		Token:        token,
		Balance:      balance,
		Transactions: make(map[string]*MockTransaction),
		resolveOn:    make(map[string]scriptedOutcome),
		polls:        make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	return m
}

func (m *MockGatewayServer) URL() string {
	return m.Server.URL
}

func (m *MockGatewayServer) Close() {
	m.Server.Close()
}

// AddPending registers a PENDING transaction as if it had just been submitted.
func (m *MockGatewayServer) AddPending(id, txType string) *MockTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &MockTransaction{ID: id, Type: txType, Status: "PENDING"}
	m.Transactions[id] = tx
	return tx
}

// ResolveOnPoll makes the n-th GET of the transaction (1-based) observe the given outcome.
func (m *MockGatewayServer) ResolveOnPoll(id string, poll int, status, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolveOn[id] = scriptedOutcome{poll: poll, status: status, raw: raw}
}

func (m *MockGatewayServer) Polls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.polls[id]
}

func (m *MockGatewayServer) RequestLog() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.requestLog...)
}

func (m *MockGatewayServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.requestLog = append(m.requestLog, MockRequest{Method: r.Method, Path: r.URL.Path, Timestamp: time.Now()})
	m.mu.Unlock()

	if m.Token != "" && r.Header.Get("Authorization") != "Bearer "+m.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case r.Method == http.MethodGet && path == "/profile":
		m.handleProfile(w)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/transactions/"):
		m.handleGetTransaction(w, strings.TrimPrefix(path, "/transactions/"))
	case r.Method == http.MethodPost && (path == "/activations" || path == "/topups"):
		m.handleSubmit(w, r, strings.TrimSuffix(strings.TrimPrefix(path, "/"), "s"))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "route not found"})
	}
}

func (m *MockGatewayServer) handleProfile(w http.ResponseWriter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": "user-1", "role": "CUSTOMER", "balance": m.Balance})
}

func (m *MockGatewayServer) handleGetTransaction(w http.ResponseWriter, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.Transactions[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Transaction not found", "code": "NOT_FOUND"})
		return
	}

	m.polls[id]++
	if outcome, scripted := m.resolveOn[id]; scripted && m.polls[id] >= outcome.poll {
		tx.Status = outcome.status
		tx.RawResponse = outcome.raw
		tx.CustomerMessage = outcome.raw
	}

	writeJSON(w, http.StatusOK, tx)
}

func (m *MockGatewayServer) handleSubmit(w http.ResponseWriter, r *http.Request, txType string) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Data is incomplete", "code": "INVALID_REQUEST"})
		return
	}

	m.mu.Lock()
	m.nextID++
	tx := &MockTransaction{
		ID:     fmt.Sprintf("tx-%d", m.nextID),
		Type:   txType,
		Status: "PENDING",
	}
	if op, ok := body["operator"].(string); ok {
		tx.Operator = op
	}
	if phone, ok := body["phone_number"].(string); ok {
		tx.PhoneNumber = phone
	}
	m.Transactions[tx.ID] = tx
	m.mu.Unlock()

	writeJSON(w, http.StatusCreated, tx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
