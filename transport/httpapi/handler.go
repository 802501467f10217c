package httpapi

import (
	"context"
	"net/http"

	goRecover "github.com/MrEthical07/goRecover"
	"github.com/MrEthical07/goRecover/middleware"
)

// Service is the flow surface the handlers call. *goRecover.Engine
// satisfies it.
type Service interface {
	Signup(ctx context.Context, email, password, username string) error
	ResendCode(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, email, code string) error
	InitiateReset(ctx context.Context, email string) error
	VerifyCodeForReset(ctx context.Context, email, code string) (string, error)
	CompleteReset(ctx context.Context, payload, newPassword string) error
	Login(ctx context.Context, username, password string) (*goRecover.LoginResult, error)
	Logout(ctx context.Context, sessionToken string) error
}

var _ Service = (*goRecover.Engine)(nil)

const (
	MsgSignup        = "SIGNUP SUCCESSFUL"
	MsgResendCode    = "RESEND CODE VERIFICATION SUCCESS"
	MsgVerifyEmail   = "EMAIL VERIFICATION SUCCESS"
	MsgInitiateReset = "INITIATE PASSWORD RESET SUCCESS"
	MsgCompleteReset = "PASSWORD UPDATE SUCCESS"
	MsgLogout        = "LOGOUT SUCCESS"
)

type signupRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Username string `json:"username" validate:"required"`
}

type emailRequest struct {
	Email string `json:"email" validate:"required"`
}

type codeRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

type completeResetRequest struct {
	Payload  string `json:"payload" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthHandler serves the /auth routes.
type AuthHandler struct {
	svc Service
}

func NewAuthHandler(svc Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Signup(r.Context(), req.Email, req.Password, req.Username); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: MsgSignup})
}

func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResendCode(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: MsgResendCode})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: MsgVerifyEmail})
}

func (h *AuthHandler) InitiateReset(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.InitiateReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: MsgInitiateReset})
}

func (h *AuthHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	payload, err := h.svc.VerifyCodeForReset(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PayloadEnvelope{Payload: payload})
}

func (h *AuthHandler) CompleteReset(w http.ResponseWriter, r *http.Request) {
	var req completeResetRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.CompleteReset(r.Context(), req.Payload, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: MsgCompleteReset})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: result})
}

// Logout ends every session of the bearer token's owner. A missing
// token is reported as NotLoggedIn without calling the service.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, goRecover.ErrNotLoggedIn)
		return
	}
	if err := h.svc.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: MsgLogout})
}
