package rpc

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwtClockSkew = 30 * time.Second

// jwtAuthenticator validates HS256 bearer tokens.
type jwtAuthenticator struct {
	secret []byte
	issuer string
}

func newJWTAuthenticator(secret []byte, issuer string) *jwtAuthenticator {
	return &jwtAuthenticator{secret: secret, issuer: strings.TrimSpace(issuer)}
}

func extractBearer(header string) string {
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (a *jwtAuthenticator) verify(tokenString string) error {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(jwtClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

// requireAuth returns nil when authentication is disabled or the request
// carries a valid bearer token.
func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.auth == nil {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	token := extractBearer(header)
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	if err := s.auth.verify(token); err != nil {
		s.logger.Warn("rpc token rejected", slog.String("error", err.Error()))
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}
