// Generator of API keys for the messaging server.
//
// Key composition:
//
//	[1:algorithm version][4:appid][2:key sequence][1:isRoot][16:signature]
//
// 24 bytes convertible to base64 without padding. All integers are
// little-endian. The appid field is unused, kept for compatibility with
// older keys.
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
)

const (
	apikeyVersion   = 1
	apikeyAppID     = 4
	apikeySequence  = 2
	apikeyWho       = 1
	apikeySignature = 16
	apikeyLength    = apikeyVersion + apikeyAppID + apikeySequence + apikeyWho + apikeySignature

	// Size of the HMAC salt expected by the server.
	saltLength = 32
)

func main() {
	sequence := flag.Int("sequence", 1, "Sequential number of the API key.")
	isRoot := flag.Int("isroot", 0, "Generate a root key, 0 or 1.")
	salt := flag.String("salt", "", "Base64-encoded 32-byte HMAC salt. A random salt is generated when blank.")
	apikey := flag.String("validate", "", "API key to validate against the provided salt.")
	flag.Parse()

	if *apikey != "" {
		os.Exit(validate(*apikey, *salt))
	}
	os.Exit(generate(*sequence, *isRoot, *salt))
}

// decodeSalt parses the base64 salt or generates a random one when the
// input is blank.
func decodeSalt(b64 string) ([]byte, error) {
	if b64 == "" {
		salt := make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, err
		}
		return salt, nil
	}

	salt, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(salt) != saltLength {
		return nil, fmt.Errorf("salt must be exactly %d bytes, got %d", saltLength, len(salt))
	}
	return salt, nil
}

func generate(sequence, isRoot int, b64salt string) int {
	salt, err := decodeSalt(b64salt)
	if err != nil {
		fmt.Println("invalid salt:", err)
		return 1
	}

	var data [apikeyLength]byte
	data[0] = 1 // default algorithm
	// The appid bytes stay zero.
	binary.LittleEndian.PutUint16(data[apikeyVersion+apikeyAppID:], uint16(sequence))
	data[apikeyVersion+apikeyAppID+apikeySequence] = uint8(isRoot)

	hasher := hmac.New(md5.New, salt)
	hasher.Write(data[:apikeyVersion+apikeyAppID+apikeySequence+apikeyWho])
	copy(data[apikeyVersion+apikeyAppID+apikeySequence+apikeyWho:], hasher.Sum(nil))

	kind := "ordinary"
	if isRoot == 1 {
		kind = "ROOT"
	}

	fmt.Printf("API key v1 seq%d %s: %s\n", sequence, kind,
		base64.URLEncoding.EncodeToString(data[:]))
	fmt.Printf("Salt: %s\n", base64.StdEncoding.EncodeToString(salt))

	return 0
}

func validate(apikey, b64salt string) int {
	if b64salt == "" {
		fmt.Println("salt is required for validation")
		return 1
	}
	salt, err := decodeSalt(b64salt)
	if err != nil {
		fmt.Println("invalid salt:", err)
		return 1
	}

	if declen := base64.URLEncoding.DecodedLen(len(apikey)); declen != apikeyLength {
		fmt.Println("INVALID: wrong key length")
		return 1
	}
	data, err := base64.URLEncoding.DecodeString(apikey)
	if err != nil {
		fmt.Println("INVALID: failed to decode base64:", err)
		return 1
	}
	if data[0] != 1 {
		fmt.Println("INVALID: unknown signature algorithm", data[0])
		return 1
	}

	hasher := hmac.New(md5.New, salt)
	hasher.Write(data[:apikeyVersion+apikeyAppID+apikeySequence+apikeyWho])
	if !bytes.Equal(data[apikeyVersion+apikeyAppID+apikeySequence+apikeyWho:], hasher.Sum(nil)) {
		fmt.Println("INVALID: signature mismatch")
		return 1
	}

	sequence := binary.LittleEndian.Uint16(data[apikeyVersion+apikeyAppID:])
	kind := "ordinary"
	if data[apikeyVersion+apikeyAppID+apikeySequence] == 1 {
		kind = "ROOT"
	}
	fmt.Printf("Valid v1 seq%d, %s\n", sequence, kind)

	return 0
}
