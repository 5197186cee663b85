package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/swapsoft/pwdbudget/internal/apperr"
	"github.com/swapsoft/pwdbudget/internal/middleware"
	"github.com/swapsoft/pwdbudget/internal/models"
	"github.com/swapsoft/pwdbudget/internal/service"
)

// AuthService is the login flow used by AuthHandlers.
type AuthService interface {
	Login(ctx context.Context, userID, password, office string) (*service.LoginResult, error)
	VerifyOTP(ctx context.Context, userID, otp, office string) (*service.VerifyResult, error)
	ResendOTP(ctx context.Context, userID, office string) (*service.ResendResult, error)
	Profile(ctx context.Context, userID, office string) (*models.Profile, error)
}

type AuthHandlers struct {
	auth   AuthService
	logger *logrus.Logger
}

func NewAuthHandlers(auth AuthService, logger *logrus.Logger) *AuthHandlers {
	return &AuthHandlers{
		auth:   auth,
		logger: logger,
	}
}

type LoginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Office   string `json:"office"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*service.LoginResult
}

type VerifyOTPRequest struct {
	UserID string `json:"userId"`
	OTP    string `json:"otp"`
	Office string `json:"office,omitempty"`
}

type VerifyOTPResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Post        string `json:"post"`
	Office      string `json:"office"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type ResendOTPRequest struct {
	UserID string `json:"userId"`
	Office string `json:"office"`
}

type ResendOTPResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
	*service.ResendResult
}

type ProfileResponse struct {
	Success bool            `json:"success"`
	Data    *models.Profile `json:"data"`
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.UserID, req.Password, req.Office)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	msg := "OTP sent successfully"
	if !res.SMSSent {
		msg = "OTP generated but the SMS could not be sent, please use resend OTP"
	}
	respondWithJSON(w, http.StatusOK, LoginResponse{Success: true, Message: msg, LoginResult: res})
}

func (h *AuthHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.VerifyOTP(r.Context(), req.UserID, req.OTP, req.Office)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, VerifyOTPResponse{
		Success:     true,
		Message:     "Login successful",
		UserID:      res.UserID,
		Name:        res.Name,
		Post:        res.Post,
		Office:      res.Office,
		AccessToken: res.Token.Token,
		TokenType:   res.Token.TokenType,
		ExpiresIn:   res.Token.ExpiresIn,
	})
}

func (h *AuthHandlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req ResendOTPRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.ResendOTP(r.Context(), req.UserID, req.Office)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	msg := "OTP resent successfully"
	if !res.SMSSent {
		msg = "OTP generated but the SMS could not be sent"
	}
	respondWithJSON(w, http.StatusOK, ResendOTPResponse{Success: true, Message: msg, UserID: req.UserID, ResendResult: res})
}

// Profile returns the profile of the authenticated user.
func (h *AuthHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, r, h.logger, apperr.ErrUnauthorized)
		return
	}

	p, err := h.auth.Profile(r.Context(), claims.UserID, claims.Office)
	if err != nil {
		respondWithError(w, r, h.logger, err)
		return
	}

	respondWithJSON(w, http.StatusOK, ProfileResponse{Success: true, Data: p})
}
