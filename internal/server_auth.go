package internal

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"roomchat/internal/storage"
)

// SessionCookie carries the signed session token.
const SessionCookie = "SESSION"

var errUnauthorized = errors.New("unauthorized")

var errForbidden = errors.New("forbidden")

type sessionClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Role     string `json:"role"`
}

type authContext struct {
	UserID   int64
	Username string
	Role     string
}

func (a *authContext) IsAdmin() bool { return a.Role == storage.RoleAdmin }

func (s *Server) issueSession(user *storage.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.sessionTTL)
	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: user.Username,
		Role:     user.Role,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	return token, expiresAt, err
}

func (s *Server) parseSession(token string) (*authContext, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, errUnauthorized
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, errUnauthorized
	}
	return &authContext{UserID: id, Username: claims.Username, Role: claims.Role}, nil
}

// authenticateRequest resolves the session cookie. A Bearer token is also
// accepted for scripted clients.
func (s *Server) authenticateRequest(r *http.Request) (*authContext, error) {
	var token string
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		token = cookie.Value
	} else if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		token = h[7:]
	}
	if token == "" {
		return nil, errUnauthorized
	}
	return s.parseSession(token)
}

// authStatus maps an authentication failure to its HTTP status.
func authStatus(err error) int {
	switch {
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// currentUser loads the authenticated user. The stored role wins over the
// one in the token.
func (s *Server) currentUser(r *http.Request) (*authContext, *storage.User, error) {
	authCtx, err := s.authenticateRequest(r)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.store.GetUserByID(r.Context(), authCtx.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, errUnauthorized
	}
	authCtx.Role = user.Role
	return authCtx, user, nil
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, _, err := s.currentUser(r)
		if err != nil {
			writeError(w, authStatus(err), err)
			return
		}
		if !authCtx.IsAdmin() {
			writeError(w, http.StatusForbidden, errForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAuth(r.Context(), authCtx)))
	})
}
