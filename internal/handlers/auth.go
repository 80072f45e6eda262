package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openplay/sportmatch/internal/models"
	"github.com/openplay/sportmatch/internal/services"
)

const (
	oauthStateCookieName = "oauth_state"
	oauthNonceCookieName = "oauth_nonce"
	oauthCookieMaxAge    = 10 * 60 // 10 minutes

	minPasswordLength = 8
)

type AuthHandler struct {
	userService  services.UserServiceInterface
	authService  services.AuthServiceInterface
	emailService services.EmailServiceInterface
	providers    map[string]services.OAuthProvider
	secure       bool
}

func NewAuthHandler(userService services.UserServiceInterface, authService services.AuthServiceInterface, emailService services.EmailServiceInterface, providers map[services.Provider]services.OAuthProvider, secure bool) *AuthHandler {
	normalized := make(map[string]services.OAuthProvider, len(providers))
	for key, provider := range providers {
		normalized[strings.ToLower(string(key))] = provider
	}

	return &AuthHandler{
		userService:  userService,
		authService:  authService,
		emailService: emailService,
		providers:    normalized,
		secure:       secure,
	}
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type SignoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type VerifyEmailRequest struct {
	Code string `json:"code"`
}

type AuthResponse struct {
	User   *models.User        `json:"user"`
	Tokens *services.TokenPair `json:"tokens"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Email) == "" {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Password must be at least 8 characters")
		return
	}
	if err := services.ValidateUsername(strings.TrimSpace(req.Username)); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Username must be 3-50 characters of letters, digits or underscore")
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		writeInternalError(w, "hashing password", err)
		return
	}

	user, err := h.userService.Create(r.Context(), models.CreateUserParams{
		Email:        req.Email,
		PasswordHash: &hash,
		Username:     req.Username,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailAlreadyExists):
			writeError(w, http.StatusConflict, CodeConflict, "Email already registered")
		case errors.Is(err, services.ErrUsernameAlreadyExists):
			writeError(w, http.StatusConflict, CodeConflict, "Username already taken")
		case errors.Is(err, services.ErrInvalidUsername):
			writeError(w, http.StatusBadRequest, CodeValidationError, "Username must be 3-50 characters of letters, digits or underscore")
		default:
			writeInternalError(w, "creating user", err)
		}
		return
	}

	h.sendVerificationCode(r, user, strings.TrimSpace(req.Username))

	tokens, err := h.authService.IssueTokens(r.Context(), user.ID)
	if err != nil {
		writeInternalError(w, "issuing tokens", err)
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{User: user, Tokens: tokens})
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req SigninRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Email and password are required")
		return
	}

	if err := h.authService.CheckSigninThrottle(r.Context(), req.Email); err != nil {
		writeError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many attempts, try again later")
		return
	}

	user, err := h.userService.GetByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, services.ErrUserNotFound) {
		writeInternalError(w, "looking up user", err)
		return
	}

	// A missing user and a wrong password take the same path so responses
	// do not reveal which emails are registered.
	if user == nil || !h.authService.VerifyPassword(user.PasswordHash, req.Password) {
		if recordErr := h.authService.RecordFailedSignin(r.Context(), req.Email); recordErr != nil {
			log.Printf("Error recording failed signin: %v", recordErr)
		}
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Invalid email or password")
		return
	}

	if err := h.authService.ClearFailedSignins(r.Context(), req.Email); err != nil {
		log.Printf("Error clearing failed signins: %v", err)
	}

	tokens, err := h.authService.IssueTokens(r.Context(), user.ID)
	if err != nil {
		writeInternalError(w, "issuing tokens", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: user, Tokens: tokens})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Refresh token is required")
		return
	}

	tokens, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, CodeAuthError, "Invalid or expired refresh token")
			return
		}
		writeInternalError(w, "refreshing tokens", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]*services.TokenPair{"tokens": tokens})
}

func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	var req SignoutRequest
	// The body is optional; without it only the access token is revoked.
	_ = json.NewDecoder(r.Body).Decode(&req)

	accessToken := bearerToken(r)
	if err := h.authService.Revoke(r.Context(), accessToken, req.RefreshToken); err != nil {
		writeInternalError(w, "revoking tokens", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Signed out"})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}

	var req VerifyEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Verification code is required")
		return
	}

	if err := h.authService.CheckVerificationCode(r.Context(), user.ID, req.Code); err != nil {
		if errors.Is(err, services.ErrInvalidVerificationCode) {
			writeError(w, http.StatusBadRequest, CodeValidationError, "Invalid or expired verification code")
			return
		}
		writeInternalError(w, "checking verification code", err)
		return
	}

	if err := h.userService.MarkEmailVerified(r.Context(), user.ID); err != nil {
		writeInternalError(w, "marking email verified", err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Email verified"})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}
	if user.EmailVerified {
		writeError(w, http.StatusConflict, CodeConflict, "Email already verified")
		return
	}

	h.sendVerificationCode(r, user, "")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Verification code sent"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, CodeAuthError, "Authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.User{"user": user})
}

func (h *AuthHandler) ProviderStart(w http.ResponseWriter, r *http.Request) {
	provider := h.getProvider(r)
	if provider == nil {
		http.NotFound(w, r)
		return
	}

	state, err := generateSecureToken(32)
	if err != nil {
		writeInternalError(w, "generating oauth state", err)
		return
	}
	nonce, err := generateSecureToken(32)
	if err != nil {
		writeInternalError(w, "generating oauth nonce", err)
		return
	}

	h.setOAuthCookie(w, oauthStateCookieName, state)
	h.setOAuthCookie(w, oauthNonceCookieName, nonce)

	http.Redirect(w, r, provider.AuthCodeURL(state, nonce), http.StatusFound)
}

func (h *AuthHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider := h.getProvider(r)
	if provider == nil {
		http.NotFound(w, r)
		return
	}

	if providerErr := r.URL.Query().Get("error"); providerErr != "" {
		writeError(w, http.StatusBadRequest, CodeAuthError, "Provider sign-in was cancelled")
		return
	}

	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		writeError(w, http.StatusBadRequest, CodeValidationError, "Missing code or state")
		return
	}

	stateCookie, err := r.Cookie(oauthStateCookieName)
	if err != nil || !secureCompare(stateCookie.Value, state) {
		writeError(w, http.StatusBadRequest, CodeAuthError, "Invalid oauth state")
		return
	}
	nonceCookie, err := r.Cookie(oauthNonceCookieName)
	if err != nil || nonceCookie.Value == "" {
		writeError(w, http.StatusBadRequest, CodeAuthError, "Invalid oauth state")
		return
	}

	claims, err := provider.ExchangeAndVerify(r.Context(), code, nonceCookie.Value)
	if err != nil {
		log.Printf("Provider exchange failed: %v", err)
		writeError(w, http.StatusBadRequest, CodeAuthError, "Provider sign-in failed")
		return
	}

	h.clearOAuthCookie(w, oauthStateCookieName)
	h.clearOAuthCookie(w, oauthNonceCookieName)

	user, err := h.authService.LinkOrCreateProviderUser(r.Context(), claims)
	if err != nil {
		if errors.Is(err, services.ErrProviderEmailUnverified) {
			writeError(w, http.StatusBadRequest, CodeAuthError, "Provider email is not verified")
			return
		}
		writeInternalError(w, "linking provider user", err)
		return
	}

	tokens, err := h.authService.IssueTokens(r.Context(), user.ID)
	if err != nil {
		writeInternalError(w, "issuing tokens", err)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{User: user, Tokens: tokens})
}

// sendVerificationCode is best-effort: failures are logged, never surfaced.
// username may be empty when the caller only holds the account record; the
// email falls back to a generic greeting.
func (h *AuthHandler) sendVerificationCode(r *http.Request, user *models.User, username string) {
	code, err := h.authService.CreateVerificationCode(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error creating verification code: %v", err)
		return
	}
	if err := h.emailService.SendVerificationCode(r.Context(), user.Email, username, code); err != nil {
		log.Printf("Error sending verification email: %v", err)
	}
}

func (h *AuthHandler) getProvider(r *http.Request) services.OAuthProvider {
	providerKey := strings.ToLower(r.PathValue("provider"))
	if providerKey == "" {
		return nil
	}
	return h.providers[providerKey]
}

func (h *AuthHandler) setOAuthCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   oauthCookieMaxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearOAuthCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func generateSecureToken(size int) (string, error) {
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func secureCompare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
