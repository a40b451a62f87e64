package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/privora/privauth"
)

// envelope is the uniform response shape of every endpoint.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	User    any    `json:"user,omitempty"`
	Token   string `json:"token,omitempty"`
}

const maxBodyBytes = 64 * 1024

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type otpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Register(r.Context(), privauth.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: "account created",
		User:    result.Account,
		Token:   result.Token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}

	result, err := s.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "login successful",
		User:    result.Account,
		Token:   result.Token,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	account, err := s.engine.CurrentAccount(r.Context(), token)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "ok", User: account})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.VerifyEmail(r.Context(), req.Email, req.OTP); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "email verified"})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.ResendVerificationCode(r.Context(), req.Email); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "verification code sent"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "if that email is registered, a reset code has been sent",
	})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.VerifyResetCode(r.Context(), req.Email, req.OTP); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "code verified"})
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.ResendResetCode(r.Context(), req.Email); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "a new code has been sent"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !s.decode(w, r, &req) {
		return
	}

	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "password has been reset"})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{
			Success: false,
			Message: "malformed request body",
			Error:   "validation",
		})
		return false
	}
	return true
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

// respondError maps engine errors onto stable error kinds and statuses.
// Anything unrecognized is a 503 with no internal detail.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind, message := classifyError(err)

	if status == http.StatusServiceUnavailable {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}

	writeJSON(w, status, envelope{Success: false, Message: message, Error: kind})
}

func classifyError(err error) (int, string, string) {
	switch {
	case errors.Is(err, privauth.ErrValidation):
		return http.StatusBadRequest, "validation", err.Error()
	case errors.Is(err, privauth.ErrWeakPassword):
		return http.StatusBadRequest, "weak_password", "password does not meet the strength requirements"
	case errors.Is(err, privauth.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", "an account with that email already exists"
	case errors.Is(err, privauth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, privauth.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized", "authentication required"
	case errors.Is(err, privauth.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "no account with that email"
	case errors.Is(err, privauth.ErrCodeExpired):
		return http.StatusBadRequest, "code_expired", "the code has expired, request a new one"
	case errors.Is(err, privauth.ErrCodeInvalid):
		return http.StatusBadRequest, "code_invalid", "the code is incorrect"
	case errors.Is(err, privauth.ErrChallengeNotFound):
		return http.StatusBadRequest, "code_not_found", "no code outstanding, request a new one"
	case errors.Is(err, privauth.ErrTooManyAttempts):
		return http.StatusTooManyRequests, "too_many_attempts", "too many incorrect attempts, request a new code"
	case errors.Is(err, privauth.ErrResendTooSoon):
		return http.StatusTooManyRequests, "resend_too_soon", "please wait before requesting another code"
	case errors.Is(err, privauth.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited", "too many requests, try again later"
	case errors.Is(err, privauth.ErrPreconditionFailed):
		return http.StatusPreconditionFailed, "precondition_failed", "verify the code before resetting the password"
	default:
		return http.StatusServiceUnavailable, "unavailable", "something went wrong, please try again"
	}
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
