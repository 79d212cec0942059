package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("s3cret-pass", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := NewService(Config{Username: "operator", PasswordHash: hash, JWTSecret: "test-secret", TokenTTL: time.Hour}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter22", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	if !VerifyPassword("hunter22", hash) {
		t.Error("correct password rejected")
	}
	if VerifyPassword("hunter23", hash) {
		t.Error("wrong password accepted")
	}
	if _, err := HashPassword(string(make([]byte, MaxPasswordLength+1)), bcrypt.MinCost); err == nil {
		t.Error("expected an error for an overlong password")
	}
}

func TestTokenRoundTripAndExpiry(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	now := time.Unix(1_700_000_000, 0)
	m.now = func() time.Time { return now }

	tok, err := m.GenerateAccessToken("operator")
	if err != nil {
		t.Fatal(err)
	}
	claims, err := m.ValidateAccessToken(tok.AccessToken)
	if err != nil || claims.Username != "operator" {
		t.Fatalf("claims=%+v err=%v", claims, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := m.ValidateAccessToken(tok.AccessToken); err != ErrTokenExpired {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}

	other := NewJWTManager("other-secret", time.Minute)
	if _, err := other.ValidateAccessToken(tok.AccessToken); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	tests := []struct {
		user, pass string
		wantErr    error
	}{
		{"operator", "s3cret-pass", nil},
		{"operator", "wrong", ErrInvalidCredentials},
		{"intruder", "s3cret-pass", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		_, err := svc.Login(tt.user, tt.pass)
		if err != tt.wantErr {
			t.Errorf("Login(%q,%q) err = %v, want %v", tt.user, tt.pass, err, tt.wantErr)
		}
	}

	disabled, _ := NewService(Config{JWTSecret: "x"}, zerolog.Nop())
	if _, err := disabled.Login("a", "b"); err != ErrAuthDisabled {
		t.Errorf("err = %v, want ErrAuthDisabled", err)
	}
	if _, err := NewService(Config{}, zerolog.Nop()); err == nil {
		t.Error("expected an error without a jwt secret")
	}
}

func TestLoginHandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService(t)

	r := gin.New()
	r.POST("/login", svc.LoginHandler)
	r.GET("/protected", Middleware(svc.JWT()), func(c *gin.Context) {
		op, _ := OperatorFrom(c)
		c.String(http.StatusOK, op.Username)
	})

	body, _ := json.Marshal(LoginRequest{Username: "operator", Password: "s3cret-pass"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", w.Code, w.Body.String())
	}
	var tok TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tok); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"bad scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + tok.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.name, w.Code, tt.want)
		}
		if tt.want == http.StatusOK && w.Body.String() != "operator" {
			t.Errorf("%s: body = %q", tt.name, w.Body.String())
		}
	}

	body, _ = json.Marshal(LoginRequest{Username: "operator", Password: "bad"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body)))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d, want 401", w.Code)
	}
}
