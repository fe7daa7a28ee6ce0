package handler

import (
	"net/http"

	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/model"
	"github.com/vasapolrittideah/school-attendance-api/services/attendance-service/internal/usecase"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		writeAppError(w, r, err)
		return
	}

	user, err := s.auth.Register(r.Context(), usecase.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.UserType),
		Name:     req.Name,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{
		Message: "User registered successfully",
		UserID:  user.ID.Hex(),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		writeAppError(w, r, err)
		return
	}

	result, err := s.auth.Login(r.Context(), usecase.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token: result.Token,
		User:  newProfileResponse(result.User),
	})
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req GoogleLoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, r, err)
		return
	}
	if err := s.validator.Struct(req); err != nil {
		writeAppError(w, r, err)
		return
	}

	result, err := s.auth.GoogleLogin(r.Context(), req.IDToken)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token: result.Token,
		User:  newProfileResponse(result.User),
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newProfileResponse(userFromContext(r.Context())))
}
