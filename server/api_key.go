/******************************************************************************
 *
 *  Description :
 *
 *    Validation of client application API keys.
 *
 *****************************************************************************/

package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"net/http"

	"github.com/RinKhimera/fantribe-messenger/server/logs"
)

// Signed API key. Composition:
//   [1:algorithm version][4:appid][2:key sequence][1:isRoot][16:signature]
// 24 bytes convertible to base64 without padding. All integers are
// little-endian. The appid field is ignored, kept for compatibility.
const (
	apikeyVersion   = 1
	apikeyAppID     = 4
	apikeySequence  = 2
	apikeyWho       = 1
	apikeySignature = 16
	apikeyLength    = apikeyVersion + apikeyAppID + apikeySequence + apikeyWho + apikeySignature
)

// checkAPIKey validates an API key signature against the configured salt.
func checkAPIKey(apikey string) (isValid, isRoot bool) {
	if declen := base64.URLEncoding.DecodedLen(len(apikey)); declen != apikeyLength {
		return
	}

	data, err := base64.URLEncoding.DecodeString(apikey)
	if err != nil {
		logs.Warn.Println("failed to decode.base64 apikey", err)
		return
	}
	if data[0] != 1 {
		logs.Warn.Println("unknown apikey signature algorithm", data[0])
		return
	}

	hasher := hmac.New(md5.New, globals.apiKeySalt)
	hasher.Write(data[:apikeyVersion+apikeyAppID+apikeySequence+apikeyWho])
	check := hasher.Sum(nil)
	if !bytes.Equal(data[apikeyVersion+apikeyAppID+apikeySequence+apikeyWho:], check) {
		logs.Warn.Println("invalid apikey signature")
		return
	}

	isRoot = data[apikeyVersion+apikeyAppID+apikeySequence] == 1
	isValid = true
	return
}

// getAPIKey extracts the API key from the request, either from the HTTP
// header or from the URL.
func getAPIKey(req *http.Request) string {
	var apikey string
	authhdr := req.Header.Get("X-Fantribe-APIKey")
	if authhdr != "" {
		apikey = authhdr
	} else {
		apikey = req.FormValue("apikey")
	}
	return apikey
}
