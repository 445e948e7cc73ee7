package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"golang.org/x/crypto/bcrypt"

	"github.com/linesmerrill/camp-cad-api/config"
	"github.com/linesmerrill/camp-cad-api/databases"
	"github.com/linesmerrill/camp-cad-api/logging"
	"github.com/linesmerrill/camp-cad-api/models"
)

const tokenIssuer = "camp-cad-api"

// MiddlewareDB authenticates dispatchers against the users collection and
// signs the bearer tokens they use afterwards
type MiddlewareDB struct {
	DB     databases.UserDatabase
	Secret []byte
	TTL    time.Duration
}

var authenticator auth.Authenticator
var cache store.Cache

type tokenClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Middleware authenticates the request with basic credentials or a bearer
// token and puts the actor on the request context
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		user, err := authenticator.Authenticate(r)
		if err != nil {
			logging.FromContext(r.Context()).Infow("unauthorized", "url", r.URL.String())
			config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, err)
			return
		}
		actor := models.Actor{ID: user.ID(), Name: user.UserName()}
		if groups := user.Groups(); len(groups) > 0 {
			actor.Role = groups[0]
		}
		logging.FromContext(r.Context()).Debugw("authenticated", "actorID", actor.ID)
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// CreateToken returns a signed bearer token for the authenticated actor
func (m MiddlewareDB) CreateToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		config.ErrorStatus("unauthorized", http.StatusUnauthorized, w, errors.New("no authenticated actor"))
		return
	}

	expires := time.Now().Add(m.TTL)
	token, err := m.signToken(actor, expires)
	if err != nil {
		config.ErrorStatus("failed to sign token", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(map[string]string{
		"token":      token,
		"_id":        actor.ID,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// SetupGoGuardian sets up the go-guardian strategies. Cached identities
// expire with the token TTL or when ctx is done.
func (m MiddlewareDB) SetupGoGuardian(ctx context.Context) {
	authenticator = auth.New()
	cache = store.NewFIFO(ctx, m.TTL)
	basicStrategy := basic.New(m.ValidateUser, cache)
	tokenStrategy := bearer.New(m.VerifyToken, cache)

	authenticator.EnableStrategy(basic.StrategyKey, basicStrategy)
	authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
}

// ValidateUser checks a username and password against the stored bcrypt hash
func (m MiddlewareDB) ValidateUser(ctx context.Context, r *http.Request, username, password string) (auth.Info, error) {
	user, err := m.DB.FindByUsername(ctx, username)
	if errors.Is(err, databases.ErrNotFound) {
		return nil, fmt.Errorf("invalid credentials")
	}
	if err != nil {
		logging.FromContext(ctx).Errorw("failed to load user", "username", username, "error", err)
		return nil, fmt.Errorf("failed to get user")
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user is disabled")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return auth.NewDefaultUser(user.Username, user.ID, []string{user.Role}, nil), nil
}

// VerifyToken checks the signature and expiry of a bearer token
func (m MiddlewareDB) VerifyToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return auth.NewDefaultUser(claims.Name, claims.Subject, []string{claims.Role}, nil), nil
}

func (m MiddlewareDB) signToken(actor models.Actor, expires time.Time) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		Name: actor.Name,
		Role: actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
}
