package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Config holds operator credentials. PasswordHash is a bcrypt hash; a plain
// Password is hashed at start-up when no hash is given.
type Config struct {
	Enabled      bool          `json:"enabled"`
	Username     string        `json:"username"`
	Password     string        `json:"-"`
	PasswordHash string        `json:"password_hash"`
	JWTSecret    string        `json:"-"`
	TokenTTL     time.Duration `json:"token_ttl"`
}

// Service authenticates the operator and issues tokens
type Service struct {
	username     string
	passwordHash string
	jwt          *JWTManager
	logger       zerolog.Logger
}

// NewService creates an auth service
func NewService(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	hash := cfg.PasswordHash
	if hash == "" && cfg.Password != "" {
		h, err := HashPassword(cfg.Password, DefaultBcryptCost)
		if err != nil {
			return nil, err
		}
		hash = h
	}
	return &Service{
		username:     cfg.Username,
		passwordHash: hash,
		jwt:          NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		logger:       logger.With().Str("component", "auth").Logger(),
	}, nil
}

// JWT returns the token manager used by the middleware
func (s *Service) JWT() *JWTManager {
	return s.jwt
}

// Login checks credentials and returns a signed token
func (s *Service) Login(username, password string) (TokenResponse, error) {
	if s.username == "" || s.passwordHash == "" {
		return TokenResponse{}, ErrAuthDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := VerifyPassword(password, s.passwordHash)
	if !userOK || !passOK {
		s.logger.Warn().Str("username", username).Msg("Failed login attempt")
		return TokenResponse{}, ErrInvalidCredentials
	}
	s.logger.Info().Str("username", username).Msg("Operator logged in")
	return s.jwt.GenerateAccessToken(username)
}
