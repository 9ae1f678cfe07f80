package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/docbookhq/docbook/internal/model"
	"github.com/docbookhq/docbook/internal/storage"
	"github.com/docbookhq/docbook/libs/auth"
	"github.com/docbookhq/docbook/libs/db"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	pool     *db.Pool
	users    *storage.UserRepository
	doctors  *storage.DoctorRepository
	secret   string
	tokenTTL time.Duration
}

func NewAuthHandler(pool *db.Pool, users *storage.UserRepository, doctors *storage.DoctorRepository, secret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &AuthHandler{
		pool:     pool,
		users:    users,
		doctors:  doctors,
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	Specialty string `json:"specialty"`
	Degrees   string `json:"degrees"`
	Bio       string `json:"bio"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	DoctorID    string `json:"doctor_id,omitempty"`
}

type meResponse struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	DoctorID string `json:"doctor_id,omitempty"`
	Role     string `json:"role"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Password = strings.TrimSpace(req.Password)
	req.Name = strings.TrimSpace(req.Name)
	req.Role = strings.TrimSpace(strings.ToLower(req.Role))
	if req.Role == "" {
		req.Role = "patient"
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		http.Error(w, "email, password and name required", http.StatusBadRequest)
		return
	}
	if req.Role != "patient" && req.Role != "doctor" {
		http.Error(w, "role must be patient or doctor", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "failed to hash password", http.StatusInternalServerError)
		return
	}

	user := storage.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
		Role:         req.Role,
	}

	ctx := r.Context()
	tx, err := h.pool.Begin(ctx)
	if err != nil {
		http.Error(w, "failed to start transaction", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.users.CreateTx(ctx, tx, user); err != nil {
		if storage.IsDuplicate(err) {
			http.Error(w, "email already registered", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create user", http.StatusInternalServerError)
		return
	}

	var doctorID string
	if req.Role == "doctor" {
		doctorID = uuid.NewString()
		doctor := model.Doctor{
			ID:        doctorID,
			UserID:    user.ID,
			Name:      user.Name,
			Specialty: strings.TrimSpace(req.Specialty),
			Degrees:   strings.TrimSpace(req.Degrees),
			Bio:       strings.TrimSpace(req.Bio),
		}
		if err := h.doctors.CreateTx(ctx, tx, doctor); err != nil {
			http.Error(w, "failed to create doctor profile", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit transaction", http.StatusInternalServerError)
		return
	}

	token, err := h.issueToken(user.ID, doctorID, user.Role)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: token, TokenType: "Bearer", DoctorID: doctorID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	user, err := h.users.GetByEmail(ctx, req.Email)
	if err != nil {
		// Identical response for unknown email and bad password.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	var doctorID string
	if user.Role == "doctor" {
		doctor, err := h.doctors.GetByUserID(ctx, user.ID)
		if err != nil {
			http.Error(w, "failed to load doctor profile", http.StatusInternalServerError)
			return
		}
		doctorID = doctor.ID
	}

	token, err := h.issueToken(user.ID, doctorID, user.Role)
	if err != nil {
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: token, TokenType: "Bearer", DoctorID: doctorID})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.users.GetByID(r.Context(), claims.Sub)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load user", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(meResponse{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		DoctorID: claims.DoctorID,
		Role:     claims.Role,
	})
}

func (h *AuthHandler) issueToken(userID, doctorID, role string) (string, error) {
	now := time.Now()
	return auth.SignHS256(auth.Claims{
		Sub:      userID,
		DoctorID: doctorID,
		Role:     role,
		Iat:      now.Unix(),
		Exp:      now.Add(h.tokenTTL).Unix(),
	}, h.secret)
}

type claimsCtxKey struct{}

func ClaimsFromContext(ctx context.Context) *auth.Claims {
	v, _ := ctx.Value(claimsCtxKey{}).(*auth.Claims)
	return v
}

// RequireAuth verifies the bearer token and stores the claims on the
// request context.
func RequireAuth(secret string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if !strings.HasPrefix(header, "Bearer ") || token == "" {
			http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
			return
		}
		claims, err := auth.ParseAndVerifyHS256(token, secret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsCtxKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireDoctor additionally demands a doctor token with a profile attached.
func RequireDoctor(secret string, next http.Handler) http.Handler {
	return RequireAuth(secret, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.Role != "doctor" || claims.DoctorID == "" {
			http.Error(w, "doctor account required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
