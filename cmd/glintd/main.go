// ABOUTME: Development auth and company server for exercising the glint client locally
// ABOUTME: In-memory accounts, HS256 access tokens, rotating opaque refresh tokens

package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/glintapp/glint/internal/authapi"
	"github.com/glintapp/glint/internal/company"
)

func main() {
	addr := flag.String("addr", ":8787", "listen address")
	secret := flag.String("secret", "", "JWT signing secret (random if empty)")
	accessTTL := flag.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	seed := flag.Bool("seed", true, "create the demo owner account")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	key := []byte(*secret)
	if len(key) == 0 {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Error("generating signing secret", "error", err)
			os.Exit(1)
		}
		key = []byte(hex.EncodeToString(buf))
	}

	srv := newServer(key, *accessTTL, logger)
	if *seed {
		srv.seedDemoAccount()
	}

	logger.Info("glintd listening", "addr", *addr, "access_ttl", *accessTTL)
	if err := http.ListenAndServe(*addr, srv.routes()); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// account is a registered user with its password hash.
type account struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash []byte
}

// server holds all state in memory. Dev use only; restarting it invalidates
// every session.
type server struct {
	mu        sync.Mutex
	accounts  map[string]*account // keyed by email
	byID      map[string]*account // keyed by user id
	refresh   map[string]string   // refresh token -> user id
	companies map[string]*company.Company // keyed by owner id

	secret    []byte
	accessTTL time.Duration
	logger    *slog.Logger
}

func newServer(secret []byte, accessTTL time.Duration, logger *slog.Logger) *server {
	return &server{
		accounts:  make(map[string]*account),
		byID:      make(map[string]*account),
		refresh:   make(map[string]string),
		companies: make(map[string]*company.Company),
		secret:    secret,
		accessTTL: accessTTL,
		logger:    logger.With("component", "glintd"),
	}
}

// seedDemoAccount registers demo@glint.dev / glint-demo with a company, so
// the CLI works out of the box.
func (s *server) seedDemoAccount() {
	hash, err := bcrypt.GenerateFromPassword([]byte("glint-demo"), bcrypt.DefaultCost)
	if err != nil {
		s.logger.Error("hashing demo password", "error", err)
		return
	}

	acct := &account{
		ID:           uuid.New().String(),
		Email:        "demo@glint.dev",
		Name:         "Demo Owner",
		Role:         authapi.RoleOwner,
		PasswordHash: hash,
	}

	s.mu.Lock()
	s.accounts[acct.Email] = acct
	s.byID[acct.ID] = acct
	s.companies[acct.ID] = &company.Company{
		ID:      uuid.New().String(),
		OwnerID: acct.ID,
		Name:    "Demo Barbers",
		Address: "1 Clipper Lane",
		Phone:   "+1 555 0100",
	}
	s.mu.Unlock()

	s.logger.Info("seeded demo account", "email", acct.Email, "password", "glint-demo")
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", s.handleSignup)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/verify", s.handleVerify)
	mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /companies/mine", s.handleGetMine)
	mux.HandleFunc("PATCH /companies/{id}", s.handleUpdateCompany)
	return mux
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req authapi.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, authapi.KindValidation, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusUnprocessableEntity, authapi.KindValidation, "valid email required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, http.StatusUnprocessableEntity, authapi.KindValidation, "password must be at least 8 characters")
		return
	}
	if req.Role == "" {
		req.Role = authapi.RoleCustomer
	}
	if req.Role != authapi.RoleOwner && req.Role != authapi.RoleCustomer {
		writeError(w, http.StatusUnprocessableEntity, authapi.KindValidation, "unknown role")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, authapi.KindTransient, "hashing password")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, authapi.KindDuplicateAccount, "email already registered")
		return
	}

	acct := &account{
		ID:           uuid.New().String(),
		Email:        req.Email,
		Name:         req.Name,
		Role:         req.Role,
		PasswordHash: hash,
	}
	s.accounts[acct.Email] = acct
	s.byID[acct.ID] = acct

	if req.Role == authapi.RoleOwner && req.CompanyName != "" {
		s.companies[acct.ID] = &company.Company{
			ID:      uuid.New().String(),
			OwnerID: acct.ID,
			Name:    req.CompanyName,
		}
	}
	s.mu.Unlock()

	s.logger.Info("account created", "email", acct.Email, "role", acct.Role)
	s.writeAuthResult(w, acct)
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, authapi.KindValidation, "invalid request body")
		return
	}

	s.mu.Lock()
	acct := s.accounts[strings.TrimSpace(strings.ToLower(req.Email))]
	s.mu.Unlock()

	if acct == nil || bcrypt.CompareHashAndPassword(acct.PasswordHash, []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, authapi.KindInvalidCredentials, "invalid email or password")
		return
	}

	s.writeAuthResult(w, acct)
}

func (s *server) handleVerify(w http.ResponseWriter, r *http.Request) {
	acct, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, authapi.KindUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, userFor(acct))
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, authapi.KindValidation, "invalid request body")
		return
	}

	s.mu.Lock()
	userID, ok := s.refresh[req.RefreshToken]
	if ok {
		// Rotation: the presented token is spent either way
		delete(s.refresh, req.RefreshToken)
	}
	acct := s.byID[userID]
	s.mu.Unlock()

	if !ok || acct == nil {
		writeError(w, http.StatusUnauthorized, authapi.KindUnauthorized, "invalid or expired refresh token")
		return
	}

	pair, err := s.issueTokens(acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, authapi.KindTransient, "issuing tokens")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (s *server) handleGetMine(w http.ResponseWriter, r *http.Request) {
	acct, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, authapi.KindUnauthorized, err.Error())
		return
	}
	if acct.Role != authapi.RoleOwner {
		writeError(w, http.StatusForbidden, authapi.KindUnauthorized, "owner role required")
		return
	}

	s.mu.Lock()
	comp := s.companies[acct.ID]
	s.mu.Unlock()

	if comp == nil {
		writeError(w, http.StatusNotFound, authapi.KindNotFound, "no company for this account")
		return
	}
	writeJSON(w, http.StatusOK, comp)
}

func (s *server) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	acct, err := s.authenticate(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, authapi.KindUnauthorized, err.Error())
		return
	}

	var patch company.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, authapi.KindValidation, "invalid request body")
		return
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		writeError(w, http.StatusUnprocessableEntity, authapi.KindValidation, "name must not be empty")
		return
	}

	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	comp := s.companies[acct.ID]
	if comp == nil || comp.ID != id {
		writeError(w, http.StatusNotFound, authapi.KindNotFound, "no such company")
		return
	}

	if patch.Name != nil {
		comp.Name = *patch.Name
	}
	if patch.Description != nil {
		comp.Description = *patch.Description
	}
	if patch.Address != nil {
		comp.Address = *patch.Address
	}
	if patch.Latitude != nil {
		comp.Latitude = *patch.Latitude
	}
	if patch.Longitude != nil {
		comp.Longitude = *patch.Longitude
	}
	if patch.Phone != nil {
		comp.Phone = *patch.Phone
	}

	writeJSON(w, http.StatusOK, comp)
}

// authenticate resolves the bearer access token to an account.
func (s *server) authenticate(r *http.Request) (*account, error) {
	header := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return nil, errors.New("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errors.New("token expired")
		}
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid token")
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, errors.New("invalid token")
	}

	s.mu.Lock()
	acct := s.byID[sub]
	s.mu.Unlock()

	if acct == nil {
		return nil, errors.New("unknown account")
	}
	return acct, nil
}

// issueTokens creates an access/refresh pair for the account and records the
// refresh token.
func (s *server) issueTokens(acct *account) (*authapi.TokenPair, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  acct.ID,
		"role": acct.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.accessTTL).Unix(),
	}

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	refreshToken := uuid.New().String()
	s.mu.Lock()
	s.refresh[refreshToken] = acct.ID
	s.mu.Unlock()

	return &authapi.TokenPair{AccessToken: access, RefreshToken: refreshToken}, nil
}

func (s *server) writeAuthResult(w http.ResponseWriter, acct *account) {
	pair, err := s.issueTokens(acct)
	if err != nil {
		writeError(w, http.StatusInternalServerError, authapi.KindTransient, "issuing tokens")
		return
	}
	writeJSON(w, http.StatusOK, authapi.AuthResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         userFor(acct),
	})
}

func userFor(acct *account) authapi.User {
	return authapi.User{
		ID:    acct.ID,
		Email: acct.Email,
		Name:  acct.Name,
		Role:  acct.Role,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind authapi.Kind, message string) {
	writeJSON(w, status, map[string]string{"error": message, "kind": string(kind)})
}
