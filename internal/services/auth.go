package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"golang.org/x/crypto/bcrypt"

	"github.com/openplay/sportmatch/internal/models"
)

var (
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrInvalidToken            = errors.New("invalid or expired token")
	ErrInvalidVerificationCode = errors.New("invalid or expired verification code")
	ErrTooManyAttempts         = errors.New("too many attempts, try again later")
	ErrProviderEmailUnverified = errors.New("provider email not verified")
)

const (
	accessTokenTTL  = time.Hour
	refreshTokenTTL = 30 * 24 * time.Hour

	verificationCodeTTL = 15 * time.Minute

	// Failed sign-in attempts per email before throttling kicks in; the
	// counter lives in Redis so the limit holds across instances.
	maxFailedSignins  = 10
	failedSigninTTL   = 15 * time.Minute
	failedSigninScope = "auth:failed:"
)

// TokenPair is the bearer credential set returned by signup/signin/refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthServiceInterface is the surface the middleware and handlers need.
type AuthServiceInterface interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hash *string, password string) bool
	IssueTokens(ctx context.Context, userID uuid.UUID) (*TokenPair, error)
	VerifyAccessToken(ctx context.Context, token string) (uuid.UUID, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Revoke(ctx context.Context, accessToken, refreshToken string) error
	CreateVerificationCode(ctx context.Context, userID uuid.UUID) (string, error)
	CheckVerificationCode(ctx context.Context, userID uuid.UUID, code string) error
	CheckSigninThrottle(ctx context.Context, email string) error
	RecordFailedSignin(ctx context.Context, email string) error
	ClearFailedSignins(ctx context.Context, email string) error
	LinkOrCreateProviderUser(ctx context.Context, claims IdentityClaims) (*models.User, error)
}

type AuthService struct {
	db    DB
	redis RedisClient
}

func NewAuthService(db DB, redis RedisClient) *AuthService {
	return &AuthService{db: db, redis: redis}
}

func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func (s *AuthService) VerifyPassword(hash *string, password string) bool {
	// Provider-only accounts have no password hash.
	if hash == nil || *hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(*hash), []byte(password)) == nil
}

func (s *AuthService) IssueTokens(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	access, err := generateToken()
	if err != nil {
		return nil, err
	}
	refresh, err := generateToken()
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, accessKey(access), userID.String(), accessTokenTTL); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}
	if err := s.redis.Set(ctx, refreshKey(refresh), userID.String(), refreshTokenTTL); err != nil {
		_ = s.redis.Del(ctx, accessKey(access))
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	now := time.Now()
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(accessTokenTTL.Seconds()),
		ExpiresAt:    now.Add(accessTokenTTL),
	}, nil
}

func (s *AuthService) VerifyAccessToken(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrInvalidToken
	}
	value, err := s.redis.Get(ctx, accessKey(token))
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return userID, nil
}

// Refresh rotates the token pair: the presented refresh token is revoked
// before the new pair is issued.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrInvalidToken
	}
	value, err := s.redis.Get(ctx, refreshKey(refreshToken))
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(value)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if err := s.redis.Del(ctx, refreshKey(refreshToken)); err != nil {
		return nil, fmt.Errorf("revoking refresh token: %w", err)
	}

	return s.IssueTokens(ctx, userID)
}

func (s *AuthService) Revoke(ctx context.Context, accessToken, refreshToken string) error {
	keys := make([]string, 0, 2)
	if accessToken != "" {
		keys = append(keys, accessKey(accessToken))
	}
	if refreshToken != "" {
		keys = append(keys, refreshKey(refreshToken))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...); err != nil {
		return fmt.Errorf("revoking tokens: %w", err)
	}
	return nil
}

// CreateVerificationCode issues a fresh 6-digit email verification code,
// replacing any outstanding one.
func (s *AuthService) CreateVerificationCode(ctx context.Context, userID uuid.UUID) (string, error) {
	code, err := generateNumericCode(6)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, verificationKey(userID), code, verificationCodeTTL); err != nil {
		return "", fmt.Errorf("storing verification code: %w", err)
	}
	return code, nil
}

func (s *AuthService) CheckVerificationCode(ctx context.Context, userID uuid.UUID, code string) error {
	stored, err := s.redis.Get(ctx, verificationKey(userID))
	if err != nil {
		return ErrInvalidVerificationCode
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		return ErrInvalidVerificationCode
	}
	return s.redis.Del(ctx, verificationKey(userID))
}

func (s *AuthService) CheckSigninThrottle(ctx context.Context, email string) error {
	value, err := s.redis.Get(ctx, failedSigninScope+normalizeEmail(email))
	if err != nil {
		// Missing counter means no recorded failures.
		return nil
	}
	var count int
	if _, err := fmt.Sscanf(value, "%d", &count); err != nil {
		return nil
	}
	if count >= maxFailedSignins {
		return ErrTooManyAttempts
	}
	return nil
}

func (s *AuthService) RecordFailedSignin(ctx context.Context, email string) error {
	key := failedSigninScope + normalizeEmail(email)
	count, err := s.redis.Incr(ctx, key)
	if err != nil {
		return fmt.Errorf("recording failed signin: %w", err)
	}
	if count == 1 {
		if err := s.redis.Expire(ctx, key, failedSigninTTL); err != nil {
			return fmt.Errorf("expiring failed signin counter: %w", err)
		}
	}
	return nil
}

func (s *AuthService) ClearFailedSignins(ctx context.Context, email string) error {
	return s.redis.Del(ctx, failedSigninScope+normalizeEmail(email))
}

// LinkOrCreateProviderUser resolves verified OIDC claims to a local user:
// an already-linked identity wins, then an existing account with the same
// verified email is linked, otherwise a new user and profile are created.
func (s *AuthService) LinkOrCreateProviderUser(ctx context.Context, claims IdentityClaims) (*models.User, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, fmt.Errorf("provider subject is required")
	}

	user, err := s.getUserByProviderSubject(ctx, claims.Provider, subject)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	email := normalizeEmail(claims.Email)
	if email == "" || !claims.EmailVerified {
		return nil, ErrProviderEmailUnverified
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // Rollback is a no-op after commit

	user = &models.User{}
	err = tx.QueryRow(ctx,
		`SELECT id, email, password_hash, role, email_verified, email_verified_at, created_at, updated_at
		 FROM users WHERE email = $1 FOR UPDATE`,
		email,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.EmailVerified, &user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("looking up user by email: %w", err)
	}

	if err != nil {
		// New account: the provider vouches for the email.
		username, genErr := generateUsernameFromEmail(ctx, tx, email)
		if genErr != nil {
			return nil, genErr
		}
		err = tx.QueryRow(ctx,
			`INSERT INTO users (email, password_hash, role, email_verified, email_verified_at)
			 VALUES ($1, NULL, 'user', true, NOW())
			 RETURNING id, email, password_hash, role, email_verified, email_verified_at, created_at, updated_at`,
			email,
		).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.EmailVerified, &user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("creating provider user: %w", err)
		}

		var fullName *string
		if name := strings.TrimSpace(claims.Name); name != "" {
			fullName = &name
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO profiles (id, username, full_name) VALUES ($1, $2, $3)`,
			user.ID, username, fullName,
		); err != nil {
			return nil, fmt.Errorf("creating provider profile: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO user_identities (user_id, provider, subject, email_at_link_time)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (provider, subject) DO NOTHING`,
		user.ID, claims.Provider, subject, email,
	); err != nil {
		return nil, fmt.Errorf("linking user identity: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users
		 SET email_verified = true,
		     email_verified_at = COALESCE(email_verified_at, NOW()),
		     updated_at = NOW()
		 WHERE id = $1`,
		user.ID,
	); err != nil {
		return nil, fmt.Errorf("marking email verified: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return user, nil
}

func (s *AuthService) getUserByProviderSubject(ctx context.Context, provider Provider, subject string) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(ctx,
		`SELECT u.id, u.email, u.password_hash, u.role, u.email_verified, u.email_verified_at, u.created_at, u.updated_at
		 FROM user_identities ui
		 JOIN users u ON u.id = ui.user_id
		 WHERE ui.provider = $1 AND ui.subject = $2`,
		provider, subject,
	).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.EmailVerified, &user.EmailVerifiedAt, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user by provider subject: %w", err)
	}
	return user, nil
}

// generateUsernameFromEmail derives a valid unique username from the email's
// local part, appending a numeric suffix on collision.
func generateUsernameFromEmail(ctx context.Context, q DBConn, email string) (string, error) {
	base := strings.SplitN(email, "@", 2)[0]
	cleaned := make([]rune, 0, len(base))
	for _, r := range base {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			cleaned = append(cleaned, r)
		}
	}
	candidate := string(cleaned)
	if len(candidate) < 3 {
		candidate = "player_" + candidate
	}
	if len(candidate) > 42 {
		candidate = candidate[:42]
	}

	for attempt := 0; attempt < 20; attempt++ {
		name := candidate
		if attempt > 0 {
			name = fmt.Sprintf("%s_%d", candidate, attempt)
		}
		var exists bool
		if err := q.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM profiles WHERE LOWER(username) = LOWER($1))", name).Scan(&exists); err != nil {
			return "", fmt.Errorf("checking username existence: %w", err)
		}
		if !exists {
			return name, nil
		}
	}
	return "", fmt.Errorf("could not derive a unique username for %s", email)
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

func generateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

func accessKey(token string) string  { return "session:access:" + token }
func refreshKey(token string) string { return "session:refresh:" + token }
func verificationKey(userID uuid.UUID) string {
	return "auth:verify:" + userID.String()
}
