// Package main implements the snapfleet emergency access JSON-RPC 2.0
// server.
//
// Plaintext-bearing methods (base secret configuration and disclosure,
// local and cloud password issuance) are only reachable through a
// Noise-NK encrypted call; audit reads and device-side validation are
// served in the clear.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/flynn/noise"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	snapcrypto "github.com/snapfleet/snapfleet/pkg/crypto"
	"github.com/snapfleet/snapfleet/pkg/database"
	"github.com/snapfleet/snapfleet/pkg/masterpass"
	"github.com/snapfleet/snapfleet/pkg/server"
)

const version = "1.0.0"

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      interface{}   `json:"id"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      interface{}   `json:"id"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RequestContext tracks whether a request came through the encrypted channel
type RequestContext struct {
	IsEncrypted bool
	SessionID   string
}

// Server is the snapfleet JSON-RPC server
type Server struct {
	db             *database.Database
	engine         *masterpass.Engine
	port           int
	dbPath         string
	monitoring     *server.MonitoringTracker
	sessionManager *server.NoiseSessionManager
}

// NewServer creates a new server instance
func NewServer(dbPath string, port int) (*Server, error) {
	db, err := database.NewDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	dhKey, err := loadOrGenerateServerKeyPair(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize server key: %v", err)
	}

	sessionManager, err := server.NewNoiseSessionManager(dhKey)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Server{
		db:             db,
		engine:         masterpass.NewEngine(),
		port:           port,
		dbPath:         dbPath,
		monitoring:     server.NewMonitoringTracker(),
		sessionManager: sessionManager,
	}, nil
}

// loadOrGenerateServerKeyPair loads the persisted Noise static keypair or
// generates and stores a new one.
func loadOrGenerateServerKeyPair(db *database.Database) (*noise.DHKey, error) {
	publicKeyData, err := db.GetServerConfig("server_public_key")
	if err != nil {
		return nil, fmt.Errorf("failed to get server public key: %v", err)
	}

	privateKeyData, err := db.GetServerConfig("server_private_key")
	if err != nil {
		return nil, fmt.Errorf("failed to get server private key: %v", err)
	}

	if len(publicKeyData) == 32 && len(privateKeyData) == 32 {
		log.Info().Msg("loaded existing server key pair from database")
		dhKey := &noise.DHKey{
			Private: make([]byte, 32),
			Public:  make([]byte, 32),
		}
		copy(dhKey.Private, privateKeyData)
		copy(dhKey.Public, publicKeyData)
		return dhKey, nil
	}

	log.Info().Msg("generating new server key pair")
	keypair, err := snapcrypto.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %v", err)
	}

	if err := db.SetServerConfig("server_public_key", keypair.Public); err != nil {
		return nil, fmt.Errorf("failed to store server public key: %v", err)
	}
	if err := db.SetServerConfig("server_private_key", keypair.Private); err != nil {
		return nil, fmt.Errorf("failed to store server private key: %v", err)
	}

	return &keypair, nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Content-Type", "application/json")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		s.monitoring.RecordError()
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response := JSONRPCResponse{
			JSONRPC: "2.0",
			Error: &JSONRPCError{
				Code:    -32700,
				Message: "Parse error",
			},
			ID: nil,
		}
		json.NewEncoder(w).Encode(response)
		s.monitoring.RecordError()
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "noise_handshake":
		result, err = s.handleNoiseHandshake(req.Params)
	case "encrypted_call":
		result, err = s.handleEncryptedCall(req.Params)
	default:
		result, err = s.routeMethodWithContext(req.Method, req.Params, &RequestContext{
			IsEncrypted: false,
			SessionID:   "",
		})
	}

	response := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
	}

	if err != nil {
		response.Error = &JSONRPCError{
			Code:    -32603,
			Message: err.Error(),
		}
		s.monitoring.RecordError()
	} else {
		response.Result = result
		responseTime := float64(time.Since(startTime).Nanoseconds()) / 1000000.0
		s.monitoring.RecordRequest(responseTime)
	}

	json.NewEncoder(w).Encode(response)
}

// routeMethodWithContext routes JSON-RPC method calls with request context
func (s *Server) routeMethodWithContext(method string, params []interface{}, ctx *RequestContext) (interface{}, error) {
	switch method {
	case "Echo":
		return s.handleEcho(params)
	case "GetServerInfo":
		info := server.GetServerInfo(version, s.sessionManager.GetServerPublicKey(), s.monitoring)
		if info.Monitoring != nil {
			info.Monitoring.ActiveNoiseSessions = s.sessionManager.GetSessionCount()
		}
		return info, nil
	case "ConfigureBaseSecret":
		if !ctx.IsEncrypted {
			return nil, fmt.Errorf("ConfigureBaseSecret requires Noise-NK encryption")
		}
		return s.handleConfigureBaseSecret(params)
	case "GetBaseSecretStatus":
		return s.handleGetBaseSecretStatus(params, ctx)
	case "GenerateLocalPassword":
		if !ctx.IsEncrypted {
			return nil, fmt.Errorf("GenerateLocalPassword requires Noise-NK encryption")
		}
		return s.handleGenerateLocalPassword(params)
	case "GenerateCloudPassword":
		if !ctx.IsEncrypted {
			return nil, fmt.Errorf("GenerateCloudPassword requires Noise-NK encryption")
		}
		return s.handleGenerateCloudPassword(params)
	case "ValidateCloudPassword":
		return s.handleValidateCloudPassword(params)
	case "ListCloudPasswords":
		return s.handleListCloudPasswords(params)
	case "RevokeCloudPassword":
		return s.handleRevokeCloudPassword(params)
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

// handleEcho handles the Echo method
func (s *Server) handleEcho(params []interface{}) (interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("Echo requires exactly 1 parameter")
	}

	message, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("Echo parameter must be a string")
	}

	return server.Echo(message), nil
}

// objectParams extracts the single object parameter used by all domain
// methods.
func objectParams(method string, params []interface{}) (map[string]interface{}, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("%s requires exactly 1 parameter", method)
	}

	obj, ok := params[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%s params must be an object", method)
	}

	return obj, nil
}

func stringField(obj map[string]interface{}, key string) string {
	value, _ := obj[key].(string)
	return value
}

func boolField(obj map[string]interface{}, key string) bool {
	value, _ := obj[key].(bool)
	return value
}

func intField(obj map[string]interface{}, key string) int {
	// JSON numbers decode as float64
	value, _ := obj[key].(float64)
	return int(value)
}

// handleConfigureBaseSecret handles the ConfigureBaseSecret method
func (s *Server) handleConfigureBaseSecret(params []interface{}) (interface{}, error) {
	obj, err := objectParams("ConfigureBaseSecret", params)
	if err != nil {
		return nil, err
	}

	if err := server.ConfigureBaseSecret(s.db, stringField(obj, "base_secret"), stringField(obj, "operator")); err != nil {
		return nil, err
	}

	log.Info().Str("operator", stringField(obj, "operator")).Msg("base secret configured")
	return true, nil
}

// handleGetBaseSecretStatus handles the GetBaseSecretStatus method.
// Disclosing the secret value requires the encrypted channel; the bare
// configured/updated metadata does not.
func (s *Server) handleGetBaseSecretStatus(params []interface{}, ctx *RequestContext) (interface{}, error) {
	obj, err := objectParams("GetBaseSecretStatus", params)
	if err != nil {
		return nil, err
	}

	includeValue := boolField(obj, "include_value")
	if includeValue && !ctx.IsEncrypted {
		return nil, fmt.Errorf("GetBaseSecretStatus with include_value requires Noise-NK encryption")
	}

	return server.GetBaseSecretStatus(s.db, includeValue)
}

// handleGenerateLocalPassword handles the GenerateLocalPassword method
func (s *Server) handleGenerateLocalPassword(params []interface{}) (interface{}, error) {
	obj, err := objectParams("GenerateLocalPassword", params)
	if err != nil {
		return nil, err
	}

	response, err := server.GenerateLocalPassword(s.db, s.engine,
		stringField(obj, "device_id"),
		stringField(obj, "reason"),
		stringField(obj, "operator"),
	)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("device_id", response.MACAddress).
		Str("operator", response.GeneratedBy).
		Msg("local master password generated")
	return response, nil
}

// handleGenerateCloudPassword handles the GenerateCloudPassword method
func (s *Server) handleGenerateCloudPassword(params []interface{}) (interface{}, error) {
	obj, err := objectParams("GenerateCloudPassword", params)
	if err != nil {
		return nil, err
	}

	response, err := server.IssueCloudPassword(s.db,
		stringField(obj, "device_id"),
		intField(obj, "validity_minutes"),
		stringField(obj, "reason"),
		stringField(obj, "operator"),
	)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("id", response.ID).
		Int("validity_minutes", response.ValidityMinutes).
		Str("operator", response.IssuedBy).
		Msg("cloud emergency password issued")
	return response, nil
}

// handleValidateCloudPassword handles the device-reported validation
func (s *Server) handleValidateCloudPassword(params []interface{}) (interface{}, error) {
	obj, err := objectParams("ValidateCloudPassword", params)
	if err != nil {
		return nil, err
	}

	return server.ValidateCloudPassword(s.db,
		stringField(obj, "device_id"),
		stringField(obj, "password"),
	)
}

// handleListCloudPasswords handles the ListCloudPasswords method
func (s *Server) handleListCloudPasswords(params []interface{}) (interface{}, error) {
	obj, err := objectParams("ListCloudPasswords", params)
	if err != nil {
		return nil, err
	}

	return server.ListCloudPasswords(s.db, server.ListCloudPasswordsRequest{
		DeviceID: stringField(obj, "device_id"),
		Limit:    intField(obj, "limit"),
		Offset:   intField(obj, "offset"),
	})
}

// handleRevokeCloudPassword handles the RevokeCloudPassword method
func (s *Server) handleRevokeCloudPassword(params []interface{}) (interface{}, error) {
	obj, err := objectParams("RevokeCloudPassword", params)
	if err != nil {
		return nil, err
	}

	if err := server.RevokeCloudPassword(s.db, stringField(obj, "id"), stringField(obj, "operator")); err != nil {
		return nil, err
	}

	log.Info().
		Str("id", stringField(obj, "id")).
		Str("operator", stringField(obj, "operator")).
		Msg("cloud emergency password revoked")
	return true, nil
}

// handleNoiseHandshake handles Round 1: Noise-NK handshake establishment
func (s *Server) handleNoiseHandshake(params []interface{}) (interface{}, error) {
	obj, err := objectParams("noise_handshake", params)
	if err != nil {
		return nil, err
	}

	sessionID, ok := obj["session"].(string)
	if !ok {
		return nil, fmt.Errorf("noise_handshake requires 'session' field")
	}
	if !server.ValidateSessionID(sessionID) {
		return nil, fmt.Errorf("invalid session id")
	}

	msgB64, ok := obj["message"].(string)
	if !ok {
		return nil, fmt.Errorf("noise_handshake requires 'message' field")
	}

	handshakeMsg, err := base64.StdEncoding.DecodeString(msgB64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 handshake message: %v", err)
	}

	serverHandshakeResponse, err := s.sessionManager.StartHandshake(sessionID, handshakeMsg)
	if err != nil {
		return nil, fmt.Errorf("handshake failed: %v", err)
	}

	return map[string]interface{}{
		"message": base64.StdEncoding.EncodeToString(serverHandshakeResponse),
	}, nil
}

// handleEncryptedCall handles Round 2: Encrypted method call
func (s *Server) handleEncryptedCall(params []interface{}) (interface{}, error) {
	obj, err := objectParams("encrypted_call", params)
	if err != nil {
		return nil, err
	}

	sessionID, ok := obj["session"].(string)
	if !ok {
		return nil, fmt.Errorf("encrypted_call requires 'session' field")
	}

	dataB64, ok := obj["data"].(string)
	if !ok {
		return nil, fmt.Errorf("encrypted_call requires 'data' field")
	}

	encryptedData, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encrypted data: %v", err)
	}

	decryptedCall, err := s.sessionManager.DecryptCall(sessionID, encryptedData)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %v", err)
	}

	method, ok := decryptedCall["method"].(string)
	if !ok {
		return nil, fmt.Errorf("decrypted call missing method")
	}

	callParams, ok := decryptedCall["params"].([]interface{})
	if !ok {
		callParams = []interface{}{}
	}

	result, err := s.routeMethodWithContext(method, callParams, &RequestContext{
		IsEncrypted: true,
		SessionID:   sessionID,
	})

	responseDict := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      decryptedCall["id"],
	}

	if err != nil {
		responseDict["error"] = map[string]interface{}{
			"code":    -32603,
			"message": err.Error(),
		}
	} else {
		responseDict["result"] = result
	}

	encryptedResponse, err := s.sessionManager.EncryptResponse(sessionID, responseDict)
	if err != nil {
		return nil, fmt.Errorf("response encryption failed: %v", err)
	}

	return map[string]interface{}{
		"data": base64.StdEncoding.EncodeToString(encryptedResponse),
	}, nil
}

// Start starts the JSON-RPC server
func (s *Server) Start() error {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleJSONRPC).Methods("POST", "OPTIONS")

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"version": version,
		})
	}).Methods("GET")

	addr := fmt.Sprintf(":%d", s.port)
	log.Info().
		Str("addr", addr).
		Str("database", s.dbPath).
		Str("public_key", base64.StdEncoding.EncodeToString(s.sessionManager.GetServerPublicKey())).
		Msg("starting snapfleet JSON-RPC server")

	return http.ListenAndServe(addr, router)
}

// Close closes the server and database connections
func (s *Server) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func main() {
	var (
		configPath  = flag.String("config", "snapfleet.yaml", "Path to YAML config file")
		port        = flag.Int("port", 0, "Port to listen on (overrides config)")
		dbPath      = flag.String("db", "", "Path to SQLite database file (overrides config)")
		showVersion = flag.Bool("version", false, "Show version information")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("snapfleet emergency access server v%s\n", version)
		return
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Flag and environment overrides
	if *port != 0 {
		cfg.Port = *port
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}
	if envPort := os.Getenv("SNAPFLEET_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			cfg.Port = p
		}
	}
	if envDB := os.Getenv("SNAPFLEET_DB"); envDB != "" {
		cfg.Database = envDB
	}

	srv, err := NewServer(cfg.Database, cfg.Port)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}
	defer srv.Close()

	log.Fatal().Err(srv.Start()).Msg("server stopped")
}
