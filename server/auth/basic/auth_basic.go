// Package basic is an authenticator by login:password.
package basic

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/RinKhimera/fantribe-messenger/server/auth"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// Constraints on login length.
const (
	minLoginLength = 2
	maxLoginLength = 32
)

// authenticator is the type to map authentication methods to.
type authenticator struct {
	name      string
	addToTags bool
}

func parseSecret(bsecret []byte) (uname, password string, err error) {
	secret := string(bsecret)

	splitAt := strings.Index(secret, ":")
	if splitAt < 0 {
		err = types.ErrMalformed
		return
	}

	uname = strings.ToLower(secret[:splitAt])
	password = secret[splitAt+1:]

	return
}

// Init initializes the basic authenticator.
func (a *authenticator) Init(jsonconf json.RawMessage, name string) error {
	if name == "" {
		return types.ErrMalformed
	}
	if a.name != "" {
		return types.ErrInternal
	}

	type configType struct {
		AddToTags bool `json:"add_to_tags"`
	}
	var config configType
	if len(jsonconf) > 0 {
		if err := json.Unmarshal(jsonconf, &config); err != nil {
			return types.ErrMalformed
		}
	}
	a.name = name
	a.addToTags = config.AddToTags
	return nil
}

// IsInitialized returns true if the handler is initialized.
func (a *authenticator) IsInitialized() bool {
	return a.name != ""
}

func checkLoginPolicy(uname string) error {
	if len(uname) < minLoginLength || len(uname) > maxLoginLength {
		return types.ErrPolicy
	}
	return nil
}

func checkPasswordPolicy(password string) error {
	if len(password) < 4 {
		return types.ErrPolicy
	}
	return nil
}

// AddRecord adds a basic authentication record to DB.
func (a *authenticator) AddRecord(rec *auth.Rec, secret []byte, remoteAddr string) (*auth.Rec, error) {
	uname, password, err := parseSecret(secret)
	if err != nil {
		return nil, err
	}

	if err := checkLoginPolicy(uname); err != nil {
		return nil, err
	}
	if err := checkPasswordPolicy(password); err != nil {
		return nil, err
	}

	passhash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, types.ErrInternal
	}

	var expires time.Time
	if rec.Lifetime > 0 {
		expires = types.TimeNow().Add(time.Duration(rec.Lifetime)).UTC().Round(time.Millisecond)
	}

	if err = store.Users.AddAuthRecord(rec.Uid, rec.AuthLevel, a.name, uname, passhash, expires); err != nil {
		return nil, err
	}

	rec.Features = 0
	return rec, nil
}

// UpdateRecord updates password for basic authentication.
func (a *authenticator) UpdateRecord(rec *auth.Rec, secret []byte, remoteAddr string) (*auth.Rec, error) {
	uname, password, err := parseSecret(secret)
	if err != nil {
		return nil, err
	}

	login, authLvl, _, _, err := store.Users.GetAuthRecord(rec.Uid, a.name)
	if err != nil {
		return nil, err
	}
	if login == "" {
		return nil, types.ErrNotFound
	}

	// User cannot change the login.
	if uname != "" && uname != login {
		return nil, types.ErrDuplicate
	}

	if err := checkPasswordPolicy(password); err != nil {
		return nil, err
	}

	passhash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, types.ErrInternal
	}

	var expires time.Time
	if rec.Lifetime > 0 {
		expires = types.TimeNow().Add(time.Duration(rec.Lifetime))
	}

	if err = store.Users.UpdateAuthRecord(rec.Uid, authLvl, a.name, login, passhash, expires); err != nil {
		return nil, err
	}

	return rec, nil
}

// Authenticate checks login and password.
func (a *authenticator) Authenticate(secret []byte, remoteAddr string) (*auth.Rec, []byte, error) {
	uname, password, err := parseSecret(secret)
	if err != nil {
		return nil, nil, err
	}

	if err := checkLoginPolicy(uname); err != nil {
		return nil, nil, types.ErrFailed
	}

	uid, authLvl, passhash, expires, err := store.Users.GetAuthUniqueRecord(a.name, uname)
	if err != nil {
		return nil, nil, err
	}
	if uid.IsZero() {
		// Invalid login.
		return nil, nil, types.ErrFailed
	}
	if !expires.IsZero() && expires.Before(time.Now()) {
		// The record has expired.
		return nil, nil, types.ErrExpired
	}

	if err = bcrypt.CompareHashAndPassword(passhash, []byte(password)); err != nil {
		// Invalid password.
		return nil, nil, types.ErrFailed
	}

	var lifetime auth.Duration
	if !expires.IsZero() {
		lifetime = auth.Duration(time.Until(expires))
	}
	return &auth.Rec{
		Uid:       uid,
		AuthLevel: authLvl,
		Lifetime:  lifetime,
		Features:  0}, nil, nil
}

// AsTag convert search token into a prefixed tag, if possible.
func (a *authenticator) AsTag(token string) string {
	if !a.addToTags {
		return ""
	}
	if err := checkLoginPolicy(token); err != nil {
		return ""
	}
	return a.name + ":" + strings.ToLower(token)
}

// IsUnique checks login uniqueness.
func (a *authenticator) IsUnique(secret []byte, remoteAddr string) (bool, error) {
	uname, _, err := parseSecret(secret)
	if err != nil {
		return false, err
	}

	if err := checkLoginPolicy(uname); err != nil {
		return false, err
	}

	uid, _, _, _, err := store.Users.GetAuthUniqueRecord(a.name, uname)
	if err != nil {
		return false, err
	}
	if uid.IsZero() {
		return true, nil
	}
	return false, types.ErrDuplicate
}

// GenSecret is not supported, generates an error.
func (authenticator) GenSecret(rec *auth.Rec) ([]byte, time.Time, error) {
	return nil, time.Time{}, types.ErrUnsupported
}

// DelRecords deletes all basic authentication records of the given user.
func (a *authenticator) DelRecords(uid types.Uid) error {
	return store.Users.DelAuthRecords(uid, a.name)
}

func init() {
	store.RegisterAuthScheme("basic", &authenticator{})
}
