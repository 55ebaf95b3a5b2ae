package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/supabase-community/supabase-go"

	"github.com/Jovicsi/flowminds.ai/application/session"
)

var (
	ErrMissingToken  = errors.New("missing authentication token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
)

// Authenticator resolves a bearer token to the user it was issued to
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (session.User, error)
}

// tokenFromRequest reads the token from the query string, then the
// Authorization header, then the auth_token cookie.
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie("auth_token"); err == nil {
		return cookie.Value
	}
	return ""
}

// Claims are the parts of a Supabase access token the relay reads
type Claims struct {
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

func metadataString(md map[string]interface{}, key string) string {
	if v, ok := md[key].(string); ok {
		return v
	}
	return ""
}

func userFromMetadata(id, email string, md map[string]interface{}) session.User {
	return session.User{
		ID:          id,
		Email:       email,
		DisplayName: metadataString(md, "display_name"),
		FullName:    metadataString(md, "full_name"),
	}
}

// JWTAuthenticator verifies HS256 tokens signed with the project's JWT secret
type JWTAuthenticator struct {
	secret []byte
}

// NewJWTAuthenticator creates a verifier for secret
func NewJWTAuthenticator(secret string) (*JWTAuthenticator, error) {
	if secret == "" {
		return nil, errors.New("secret key required for HS256")
	}
	return &JWTAuthenticator{secret: []byte(secret)}, nil
}

// Authenticate implements Authenticator
func (a *JWTAuthenticator) Authenticate(_ context.Context, tokenString string) (session.User, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return session.User{}, ErrMissingToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Method)
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return session.User{}, ErrExpiredToken
		}
		return session.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return session.User{}, ErrInvalidClaims
	}
	return userFromMetadata(claims.Subject, claims.Email, claims.UserMetadata), nil
}

// SupabaseAuthenticator asks the Supabase auth service who owns a token.
// It is used when the JWT secret is not available to the relay.
type SupabaseAuthenticator struct {
	client *supabase.Client
}

// NewSupabaseAuthenticator creates an authenticator over client
func NewSupabaseAuthenticator(client *supabase.Client) *SupabaseAuthenticator {
	return &SupabaseAuthenticator{client: client}
}

// Authenticate implements Authenticator
func (a *SupabaseAuthenticator) Authenticate(_ context.Context, token string) (session.User, error) {
	if token == "" {
		return session.User{}, ErrMissingToken
	}
	user, err := a.client.Auth.WithToken(token).GetUser()
	if err != nil {
		return session.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return userFromMetadata(user.ID.String(), user.Email, user.UserMetadata), nil
}
