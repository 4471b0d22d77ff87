package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"testing"
)

const testSalt = "EBvoButzRPK6KQKHFWKd8bUtDzLcL2TeA71gxawpmBU="

func TestGenerateRandomSalt(t *testing.T) {
	if code := generate(1, 0, ""); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestGenerateInvalidSalt(t *testing.T) {
	if code := generate(1, 0, "not base64!"); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
	// Valid base64, wrong length.
	if code := generate(1, 0, "c2hvcnQ="); code != 1 {
		t.Errorf("expected exit code 1 for short salt, got %d", code)
	}
}

func TestValidateRoundTrip(t *testing.T) {
	salt, err := base64.StdEncoding.DecodeString(testSalt)
	if err != nil {
		t.Fatal(err)
	}

	var data [apikeyLength]byte
	data[0] = 1
	data[apikeyVersion+apikeyAppID] = 2 // sequence
	data[apikeyVersion+apikeyAppID+apikeySequence] = 1

	hasher := hmac.New(md5.New, salt)
	hasher.Write(data[:apikeyVersion+apikeyAppID+apikeySequence+apikeyWho])
	copy(data[apikeyVersion+apikeyAppID+apikeySequence+apikeyWho:], hasher.Sum(nil))

	key := base64.URLEncoding.EncodeToString(data[:])
	if code := validate(key, testSalt); code != 0 {
		t.Errorf("expected a valid key, got exit code %d", code)
	}

	// Flip a signature byte.
	tampered := []byte(nil)
	tampered = append(tampered, data[:]...)
	tampered[apikeyLength-1] ^= 0xff
	if code := validate(base64.URLEncoding.EncodeToString(tampered), testSalt); code != 1 {
		t.Error("expected a tampered key to be rejected")
	}
}

func TestValidateMalformed(t *testing.T) {
	if code := validate("tooshort", testSalt); code != 1 {
		t.Error("expected a short key to be rejected")
	}
	if code := validate("anything", ""); code != 1 {
		t.Error("expected validation without salt to fail")
	}
}

func TestSignatureStability(t *testing.T) {
	// Two keys signed with the same salt and payload must be identical.
	salt := bytes.Repeat([]byte{7}, saltLength)

	sign := func() []byte {
		var data [apikeyLength]byte
		data[0] = 1
		hasher := hmac.New(md5.New, salt)
		hasher.Write(data[:apikeyVersion+apikeyAppID+apikeySequence+apikeyWho])
		return hasher.Sum(nil)
	}
	if !bytes.Equal(sign(), sign()) {
		t.Error("signature is not deterministic")
	}
}
