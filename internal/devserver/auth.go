package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/zsprackett/chargewatch/internal/api"
	"github.com/zsprackett/chargewatch/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// jwtMiddleware validates the bearer token from the Authorization header or,
// for WebSocket clients that cannot set headers, the token query parameter.
func jwtMiddleware(secret string, publicPaths []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, p := range publicPaths {
			if r.URL.Path == p {
				next.ServeHTTP(w, r)
				return
			}
		}

		tokenStr := ""
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			tokenStr = strings.TrimPrefix(h, "Bearer ")
		} else if q := r.URL.Query().Get("token"); q != "" {
			tokenStr = q
		}
		if tokenStr == "" {
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims, err := auth.ValidateAccessToken(secret, tokenStr)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(r *http.Request) *auth.Claims {
	if c, ok := r.Context().Value(claimsKey).(*auth.Claims); ok {
		return c
	}
	return &auth.Claims{}
}

type signInBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body signInBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	acct, id, ok := s.account(body.Email)
	if !ok || bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(body.Password)) != nil {
		s.logger.Warn("sign-in rejected", "email", body.Email)
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}

	token, err := auth.IssueAccessToken(s.cfg.JWTSecret, acct.Email, acct.FullName, acct.IsAdmin, s.cfg.TokenTTL)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.logger.Info("signed in", "email", acct.Email, "admin", acct.IsAdmin)
	writeJSON(w, http.StatusOK, api.SignInResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        api.User{ID: id, Email: acct.Email, FullName: acct.FullName, IsAdmin: acct.IsAdmin},
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	acct, id, ok := s.account(claims.Subject)
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Unknown user")
		return
	}
	writeJSON(w, http.StatusOK, api.User{ID: id, Email: acct.Email, FullName: acct.FullName, IsAdmin: acct.IsAdmin})
}
