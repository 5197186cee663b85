package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/config"
	"github.com/swapsoft/pwdbudget/internal/models"
)

const accessTokenType = "access"

// JWTService issues and verifies the access tokens handed out after a
// successful OTP verification.
type JWTService struct {
	secretKey    []byte
	accessExpiry time.Duration
	logger       *logrus.Logger
	nowF         func() time.Time
}

func NewJWTService(cfg *config.JWTConfig, logger *logrus.Logger) (*JWTService, error) {
	secretKey := []byte(cfg.SecretKey)
	if len(secretKey) < 32 {
		return nil, fmt.Errorf("secret key must be at least 32 bytes")
	}

	return &JWTService{
		secretKey:    secretKey,
		accessExpiry: cfg.AccessExpiry,
		logger:       logger,
		nowF:         time.Now,
	}, nil
}

type Claims struct {
	UserID string `json:"uid"`
	Office string `json:"office"`
	Post   string `json:"post"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// IssueAccessToken signs an access token for userID in office.
func (s *JWTService) IssueAccessToken(userID, office, post string) (*models.AccessToken, error) {
	now := s.nowF()
	jti := uuid.New().String()

	claims := &Claims{
		UserID: userID,
		Office: office,
		Post:   post,
		Type:   accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   office + "/" + userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessExpiry)),
			ID:        jti,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.WithError(err).Error("Failed to sign access token")
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &models.AccessToken{
		Token:     signed,
		TokenType: "Bearer",
		ExpiresIn: int64(s.accessExpiry.Seconds()),
	}, nil
}

// VerifyToken parses and validates an access token.
func (s *JWTService) VerifyToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.nowF))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Type != accessTokenType {
		return nil, fmt.Errorf("token is not an access token")
	}

	return claims, nil
}
