// Package auth provides interfaces and types for implementing authentication
// schemes.
package auth

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// Level is the type for authentication levels.
type Level int

// Authentication levels.
const (
	// LevelNone is undefined or not authenticated.
	LevelNone Level = iota * 10
	// LevelAnon is anonymous or light authentication.
	LevelAnon
	// LevelAuth is fully authenticated.
	LevelAuth
	// LevelRoot is a superuser, e.g. a moderation backend.
	LevelRoot
)

// String implements Stringer interface: gets human-readable name for a
// numeric authentication level.
func (a Level) String() string {
	s, err := a.MarshalText()
	if err != nil {
		return "unkn"
	}
	return string(s)
}

// ParseAuthLevel parses authentication level from a string.
func ParseAuthLevel(name string) Level {
	switch name {
	case "anon", "ANON":
		return LevelAnon
	case "auth", "AUTH":
		return LevelAuth
	case "root", "ROOT":
		return LevelRoot
	default:
		return LevelNone
	}
}

// MarshalText converts Level to a slice of bytes with the name of the level.
func (a Level) MarshalText() ([]byte, error) {
	switch a {
	case LevelNone:
		return []byte(""), nil
	case LevelAnon:
		return []byte("anon"), nil
	case LevelAuth:
		return []byte("auth"), nil
	case LevelRoot:
		return []byte("root"), nil
	default:
		return nil, errors.New("auth.Level: invalid level value")
	}
}

// UnmarshalText parses authentication level from a string.
func (a *Level) UnmarshalText(b []byte) error {
	switch string(b) {
	case "", "none", "NONE":
		*a = LevelNone
	case "anon", "ANON":
		*a = LevelAnon
	case "auth", "AUTH":
		*a = LevelAuth
	case "root", "ROOT":
		*a = LevelRoot
	default:
		return errors.New("auth.Level: unrecognized")
	}
	return nil
}

// MarshalJSON converts Level to a quoted string.
func (a Level) MarshalJSON() ([]byte, error) {
	res, err := a.MarshalText()
	if err != nil {
		return nil, err
	}
	return append(append([]byte{'"'}, res...), '"'), nil
}

// UnmarshalJSON reads Level from a quoted string.
func (a *Level) UnmarshalJSON(b []byte) error {
	if b[0] != '"' || b[len(b)-1] != '"' {
		return errors.New("syntax error")
	}
	return a.UnmarshalText(b[1 : len(b)-1])
}

// Rec is an authentication record.
type Rec struct {
	// Uid of the authenticated user.
	Uid types.Uid `json:"uid,omitempty"`
	// AuthLevel is the authentication level.
	AuthLevel Level `json:"authlvl,omitempty"`
	// Lifetime of this record. ZeroValue = unlimited.
	Lifetime Duration `json:"lifetime,omitempty"`
	// Features is a bitmap of features such as validated.
	Features Feature `json:"features,omitempty"`
	// Account state at the time of authentication.
	State types.ObjState `json:"state,omitempty"`
}

// Duration is identical to time.Duration except it can be sanely
// unmarshallend from JSON.
type Duration time.Duration

// UnmarshalJSON handles the cases where duration is specified in JSON as a
// "5000s" string or just plain seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value) * time.Second)
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	default:
		return errors.New("invalid duration")
	}
}

// Feature is a bitmap of authenticated features, such as validated/not
// validated.
type Feature uint16

const (
	// FeatureValidated bit is set if user's credentials are already validated.
	FeatureValidated Feature = 1 << iota
	// FeatureNoLogin is set if the token should not be used to permanently
	// authenticate a session.
	FeatureNoLogin
)

// AuthHandler is the interface which auth providers must implement.
type AuthHandler interface {
	// Init initializes the handler taking config string and logical name as
	// parameters.
	Init(jsonconf json.RawMessage, name string) error

	// IsInitialized returns true if the handler is initialized.
	IsInitialized() bool

	// AddRecord adds persistent authentication record to the database.
	// Returns: updated auth record, error.
	AddRecord(rec *Rec, secret []byte, remoteAddr string) (*Rec, error)

	// UpdateRecord updates existing record with new credentials.
	// Returns updated auth record, error.
	UpdateRecord(rec *Rec, secret []byte, remoteAddr string) (*Rec, error)

	// Authenticate: given a user-provided authentication secret (such as
	// "login:password"), either return user's record (ID, time when the
	// secret expires, etc), or issue a challenge to continue the
	// authentication process, or return an error code.
	Authenticate(secret []byte, remoteAddr string) (*Rec, []byte, error)

	// AsTag converts search token into prefixed tag or an empty string if
	// conversion is not possible.
	AsTag(token string) string

	// IsUnique verifies if the provided secret can be considered unique by
	// the auth scheme, e.g. if the login is unique.
	IsUnique(secret []byte, remoteAddr string) (bool, error)

	// GenSecret generates a new secret, if appropriate.
	GenSecret(rec *Rec) ([]byte, time.Time, error)

	// DelRecords deletes (or disables) all authentication records for the
	// given user.
	DelRecords(uid types.Uid) error
}
