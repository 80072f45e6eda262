package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/openplay/sportmatch/internal/models"
	"github.com/openplay/sportmatch/internal/services"
)

type fakeAuthService struct {
	services.AuthServiceInterface
	hashFn       func(password string) (string, error)
	verifyFn     func(hash *string, password string) bool
	issueFn      func(ctx context.Context, userID uuid.UUID) (*services.TokenPair, error)
	throttleFn   func(ctx context.Context, email string) error
	recordFn     func(ctx context.Context, email string) error
	clearFn      func(ctx context.Context, email string) error
	createCodeFn func(ctx context.Context, userID uuid.UUID) (string, error)
}

func (f *fakeAuthService) HashPassword(password string) (string, error) {
	return f.hashFn(password)
}

func (f *fakeAuthService) VerifyPassword(hash *string, password string) bool {
	return f.verifyFn(hash, password)
}

func (f *fakeAuthService) IssueTokens(ctx context.Context, userID uuid.UUID) (*services.TokenPair, error) {
	return f.issueFn(ctx, userID)
}

func (f *fakeAuthService) CheckSigninThrottle(ctx context.Context, email string) error {
	return f.throttleFn(ctx, email)
}

func (f *fakeAuthService) RecordFailedSignin(ctx context.Context, email string) error {
	return f.recordFn(ctx, email)
}

func (f *fakeAuthService) ClearFailedSignins(ctx context.Context, email string) error {
	return f.clearFn(ctx, email)
}

func (f *fakeAuthService) CreateVerificationCode(ctx context.Context, userID uuid.UUID) (string, error) {
	return f.createCodeFn(ctx, userID)
}

type fakeUserService struct {
	services.UserServiceInterface
	getByEmailFn func(ctx context.Context, email string) (*models.User, error)
	createFn     func(ctx context.Context, params models.CreateUserParams) (*models.User, error)
}

func (f *fakeUserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return f.getByEmailFn(ctx, email)
}

func (f *fakeUserService) Create(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
	return f.createFn(ctx, params)
}

type fakeEmailService struct {
	sendFn func(ctx context.Context, to, username, code string) error
}

func (f *fakeEmailService) SendVerificationCode(ctx context.Context, to, username, code string) error {
	return f.sendFn(ctx, to, username, code)
}

func TestAuthHandler_Signup_InvalidBody(t *testing.T) {
	handler := NewAuthHandler(nil, nil, nil, nil, false)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", nil)
	rr := httptest.NewRecorder()

	handler.Signup(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestAuthHandler_Signup_ShortPassword(t *testing.T) {
	handler := NewAuthHandler(nil, nil, nil, nil, false)

	body, _ := json.Marshal(SignupRequest{Email: "ada@example.com", Password: "short", Username: "ada"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	handler.Signup(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestAuthHandler_Signup_InvalidUsername(t *testing.T) {
	handler := NewAuthHandler(nil, nil, nil, nil, false)

	body, _ := json.Marshal(SignupRequest{Email: "ada@example.com", Password: "longenough", Username: "a!"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	handler.Signup(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rr.Code)
	}
}

func TestAuthHandler_Signup_EmailGreetsByUsername(t *testing.T) {
	userID := uuid.New()
	var gotTo, gotUsername string
	handler := NewAuthHandler(
		&fakeUserService{
			createFn: func(ctx context.Context, params models.CreateUserParams) (*models.User, error) {
				return &models.User{ID: userID, Email: params.Email}, nil
			},
		},
		&fakeAuthService{
			hashFn: func(password string) (string, error) { return "hashed", nil },
			createCodeFn: func(ctx context.Context, id uuid.UUID) (string, error) {
				return "123456", nil
			},
			issueFn: func(ctx context.Context, id uuid.UUID) (*services.TokenPair, error) {
				return &services.TokenPair{AccessToken: "acc", RefreshToken: "ref", TokenType: "bearer"}, nil
			},
		},
		&fakeEmailService{
			sendFn: func(ctx context.Context, to, username, code string) error {
				gotTo = to
				gotUsername = username
				return nil
			},
		},
		nil, false,
	)

	body, _ := json.Marshal(SignupRequest{Email: "ada@example.com", Password: "longenough", Username: "ada_l"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	handler.Signup(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotTo != "ada@example.com" {
		t.Errorf("expected email sent to the signup address, got %q", gotTo)
	}
	if gotUsername != "ada_l" {
		t.Errorf("expected greeting by username, got %q", gotUsername)
	}
}

func TestAuthHandler_Signin_Throttled(t *testing.T) {
	handler := NewAuthHandler(nil, &fakeAuthService{
		throttleFn: func(ctx context.Context, email string) error {
			return services.ErrTooManyAttempts
		},
	}, nil, nil, false)

	body, _ := json.Marshal(SigninRequest{Email: "ada@example.com", Password: "whatever1"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	handler.Signin(rr, req)

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Code != CodeRateLimited {
		t.Errorf("expected code %s, got %s", CodeRateLimited, resp.Error.Code)
	}
}

func TestAuthHandler_Signin_UnknownEmailUniformResponse(t *testing.T) {
	recorded := false
	handler := NewAuthHandler(
		&fakeUserService{
			getByEmailFn: func(ctx context.Context, email string) (*models.User, error) {
				return nil, services.ErrUserNotFound
			},
		},
		&fakeAuthService{
			throttleFn: func(ctx context.Context, email string) error { return nil },
			verifyFn:   func(hash *string, password string) bool { return false },
			recordFn: func(ctx context.Context, email string) error {
				recorded = true
				return nil
			},
		},
		nil, nil, false,
	)

	body, _ := json.Marshal(SigninRequest{Email: "ghost@example.com", Password: "whatever1"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	handler.Signin(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if !recorded {
		t.Error("expected failed signin to be recorded")
	}

	var resp ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error.Message != "Invalid email or password" {
		t.Errorf("expected uniform credentials message, got %q", resp.Error.Message)
	}
}

func TestAuthHandler_Signin_Success(t *testing.T) {
	userID := uuid.New()
	hash := "hashed"
	handler := NewAuthHandler(
		&fakeUserService{
			getByEmailFn: func(ctx context.Context, email string) (*models.User, error) {
				return &models.User{ID: userID, Email: email, PasswordHash: &hash}, nil
			},
		},
		&fakeAuthService{
			throttleFn: func(ctx context.Context, email string) error { return nil },
			verifyFn:   func(h *string, password string) bool { return true },
			clearFn:    func(ctx context.Context, email string) error { return nil },
			issueFn: func(ctx context.Context, id uuid.UUID) (*services.TokenPair, error) {
				return &services.TokenPair{AccessToken: "acc", RefreshToken: "ref", TokenType: "bearer"}, nil
			},
		},
		nil, nil, false,
	)

	body, _ := json.Marshal(SigninRequest{Email: "ada@example.com", Password: "longenough"})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signin", bytes.NewBuffer(body))
	rr := httptest.NewRecorder()

	handler.Signin(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp AuthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.User == nil || resp.User.ID != userID {
		t.Errorf("unexpected user payload: %+v", resp.User)
	}
	if resp.Tokens == nil || resp.Tokens.AccessToken != "acc" {
		t.Errorf("unexpected tokens payload: %+v", resp.Tokens)
	}
}

func TestAuthHandler_Me_Unauthenticated(t *testing.T) {
	handler := NewAuthHandler(nil, nil, nil, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	rr := httptest.NewRecorder()

	handler.Me(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rr.Code)
	}
}

func TestAuthHandler_Me_ReturnsUser(t *testing.T) {
	handler := NewAuthHandler(nil, nil, nil, nil, false)

	req, user := authedRequest(http.MethodGet, "/api/auth/me", nil)
	rr := httptest.NewRecorder()

	handler.Me(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]*models.User
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp["user"] == nil || resp["user"].ID != user.ID {
		t.Errorf("unexpected user payload: %+v", resp["user"])
	}
}

func TestAuthHandler_ProviderStart_UnknownProvider(t *testing.T) {
	handler := NewAuthHandler(nil, nil, nil, map[services.Provider]services.OAuthProvider{}, false)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/github/start", nil)
	req.SetPathValue("provider", "github")
	rr := httptest.NewRecorder()

	handler.ProviderStart(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rr.Code)
	}
}
