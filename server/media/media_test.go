package media

import (
	"net/http"
	"testing"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

func TestMatchCORSOrigin(t *testing.T) {
	cases := []struct {
		allowed  []string
		origin   string
		expected string
	}{
		{[]string{"https://example.com"}, "https://example.com", "https://example.com"},
		{[]string{"https://other.com", "https://example.com"}, "https://example.com", "https://example.com"},
		{[]string{"*"}, "https://example.com", "*"},
		{[]string{"https://Example.com"}, "https://example.com", "https://example.com"},
		{[]string{"https://example.com"}, "", ""},
		{[]string{}, "https://example.com", ""},
		{[]string{"http://example.com"}, "https://example.com", ""},
		{[]string{"http://example.com:8000"}, "http://example.com:8000", "http://example.com:8000"},
	}

	for i, tc := range cases {
		if got := matchCORSOrigin(tc.allowed, tc.origin); got != tc.expected {
			t.Errorf("case %d: matchCORSOrigin(%v, %q) = %q, want %q",
				i, tc.allowed, tc.origin, got, tc.expected)
		}
	}
}

func TestCORSHandlerPreflight(t *testing.T) {
	reqHeader := http.Header{}
	reqHeader.Set("Origin", "https://example.com")
	reqHeader.Set("Access-Control-Request-Method", "GET")

	header, status := CORSHandler(http.MethodOptions, reqHeader, []string{"https://example.com"}, true)
	if status != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", status, http.StatusNoContent)
	}
	if got := header["Access-Control-Allow-Origin"]; len(got) != 1 || got[0] != "https://example.com" {
		t.Errorf("Allow-Origin = %v", got)
	}

	// POST is not allowed on the serving endpoint.
	reqHeader.Set("Access-Control-Request-Method", "POST")
	header, _ = CORSHandler(http.MethodOptions, reqHeader, []string{"https://example.com"}, true)
	if _, ok := header["Access-Control-Allow-Methods"]; ok {
		t.Error("POST preflight on serving endpoint got Allow-Methods")
	}
}

func TestGetIdFromUrl(t *testing.T) {
	uid := types.Uid(12345678901)
	serveURL := "/v0/file/s/"

	if got := GetIdFromUrl(serveURL+uid.String(), serveURL); got != uid {
		t.Errorf("GetIdFromUrl = %d, want %d", got, uid)
	}
	if got := GetIdFromUrl(serveURL+uid.String()+".jpg", serveURL); got != uid {
		t.Errorf("GetIdFromUrl with extension = %d, want %d", got, uid)
	}
	if got := GetIdFromUrl("/elsewhere/"+uid.String(), serveURL); !got.IsZero() {
		t.Errorf("GetIdFromUrl with wrong dir = %d, want zero", got)
	}
}
