// Package token implements session authentication by signed JWT tokens.
package token

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// authenticator is a singleton instance of the authenticator.
type authenticator struct {
	name     string
	hmacSalt []byte
	lifetime time.Duration
}

// tokenClaims is the JWT payload.
type tokenClaims struct {
	// UserId of the token owner, e.g. "usrFsk73jXRbsbE".
	User string `json:"usr"`
	// Authentication level of the token owner.
	AuthLevel string `json:"lvl"`
	// Feature bits of the record the token was issued from.
	Features int `json:"fs,omitempty"`

	jwt.RegisteredClaims
}

// Init initializes the authenticator: parses the config and sets signing
// key and token lifetime.
func (a *authenticator) Init(jsonconf json.RawMessage, name string) error {
	if name == "" {
		return types.ErrMalformed
	}
	if a.name != "" {
		return types.ErrInternal
	}

	type configType struct {
		// Key for signing tokens, base64 decoded by the JSON unmarshaller.
		Key []byte `json:"key"`
		// Token expiration time in seconds.
		ExpireIn int `json:"expire_in"`
	}
	var config configType
	if err := json.Unmarshal(jsonconf, &config); err != nil {
		return types.ErrMalformed
	}

	if len(config.Key) < 32 {
		return types.ErrMalformed
	}
	if config.ExpireIn <= 0 {
		return types.ErrMalformed
	}

	a.name = name
	a.hmacSalt = config.Key
	a.lifetime = time.Duration(config.ExpireIn) * time.Second
	return nil
}

// IsInitialized returns true if the handler is initialized.
func (a *authenticator) IsInitialized() bool {
	return a.name != ""
}

// AddRecord is not supported, tokens are stateless.
func (a *authenticator) AddRecord(rec *auth.Rec, secret []byte, remoteAddr string) (*auth.Rec, error) {
	return nil, types.ErrUnsupported
}

// UpdateRecord is not supported, tokens are stateless.
func (a *authenticator) UpdateRecord(rec *auth.Rec, secret []byte, remoteAddr string) (*auth.Rec, error) {
	return nil, types.ErrUnsupported
}

// Authenticate checks the token signature and expiration time.
func (a *authenticator) Authenticate(secret []byte, remoteAddr string) (*auth.Rec, []byte, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(string(secret), &claims,
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, types.ErrUnsupported
			}
			return a.hmacSalt, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, nil, types.ErrExpired
		}
		return nil, nil, types.ErrFailed
	}
	if !token.Valid {
		return nil, nil, types.ErrFailed
	}

	uid := types.ParseUserId(claims.User)
	if uid.IsZero() {
		return nil, nil, types.ErrMalformed
	}
	lvl := auth.ParseAuthLevel(claims.AuthLevel)
	if lvl == auth.LevelNone {
		return nil, nil, types.ErrMalformed
	}

	var lifetime auth.Duration
	if claims.ExpiresAt != nil {
		lifetime = auth.Duration(time.Until(claims.ExpiresAt.Time))
	}

	return &auth.Rec{
		Uid:       uid,
		AuthLevel: lvl,
		Lifetime:  lifetime,
		Features:  auth.Feature(claims.Features)}, nil, nil
}

// AsTag is not supported, will produce an empty string.
func (authenticator) AsTag(token string) string {
	return ""
}

// IsUnique is not supported, tokens are non-unique.
func (authenticator) IsUnique(secret []byte, remoteAddr string) (bool, error) {
	return false, types.ErrUnsupported
}

// GenSecret generates a new token.
func (a *authenticator) GenSecret(rec *auth.Rec) ([]byte, time.Time, error) {
	if rec.AuthLevel == auth.LevelNone || rec.Uid.IsZero() {
		return nil, time.Time{}, types.ErrFailed
	}

	lifetime := a.lifetime
	if rec.Lifetime > 0 && time.Duration(rec.Lifetime) < lifetime {
		lifetime = time.Duration(rec.Lifetime)
	}
	expires := time.Now().Add(lifetime).UTC().Round(time.Millisecond)

	claims := tokenClaims{
		User:      rec.Uid.UserId(),
		AuthLevel: rec.AuthLevel.String(),
		Features:  int(rec.Features),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.hmacSalt)
	if err != nil {
		return nil, time.Time{}, types.ErrInternal
	}

	return []byte(signed), expires, nil
}

// DelRecords is a noop which always succeeds.
func (authenticator) DelRecords(uid types.Uid) error {
	return nil
}

func init() {
	store.RegisterAuthScheme("token", &authenticator{})
}
