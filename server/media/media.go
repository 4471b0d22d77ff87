// Package media defines the pluggable storage behind attachment uploads
// and downloads, plus helpers shared by the handlers.
package media

import (
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// ReadSeekCloser is what a handler returns for a stored attachment. Seeking
// is required for HTTP range requests.
type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

// Handler is implemented by attachment storage backends: local filesystem
// or S3.
type Handler interface {
	// Init accepts the handler section of the config as raw JSON.
	Init(jsconf string) error

	// Headers is called first on every upload or serve request. The handler
	// may add response headers (CORS, cache control, a redirect to storage
	// that serves the file directly). A non-zero status code stops further
	// processing of the request.
	Headers(method string, url *url.URL, headers http.Header, serve bool) (http.Header, int, error)

	// Upload stores the file and returns its serving URL and size.
	Upload(fdef *types.FileDef, file io.Reader) (string, int64, error)

	// Download resolves a serving URL to the stored file.
	Download(url string) (*types.FileDef, ReadSeekCloser, error)

	// Delete removes files at the given storage locations, used by the
	// garbage collector of abandoned uploads.
	Delete(locations []string) error

	// GetIdFromUrl extracts the file upload id from a serving URL.
	GetIdFromUrl(url string) types.Uid
}

// File names are upload ids, optionally followed by an extension.
var fileNamePattern = regexp.MustCompile(`^[-_A-Za-z0-9]+`)

// GetIdFromUrl extracts the file upload id from a URL served under
// serveUrl. Returns ZeroUid when the URL points elsewhere.
func GetIdFromUrl(url, serveUrl string) types.Uid {
	dir, fname := path.Split(path.Clean(url))

	if dir != "" && dir != serveUrl {
		return types.ZeroUid
	}

	return types.ParseUid(fileNamePattern.FindString(fname))
}

// matchCORSOrigin checks the request's Origin against the configured list.
// Returns the value to put into Access-Control-Allow-Origin, "" when the
// origin is not allowed.
func matchCORSOrigin(allowed []string, origin string) string {
	if origin == "" || len(allowed) == 0 {
		return ""
	}

	if allowed[0] == "*" {
		return "*"
	}

	origin = strings.ToLower(origin)
	for _, val := range allowed {
		if strings.ToLower(val) == origin {
			return origin
		}
	}

	return ""
}

func matchCORSMethod(allowMethods []string, method string) bool {
	if method == "" {
		return false
	}

	return slices.Contains(allowMethods, strings.ToUpper(method))
}

// CORSHandler implements the CORS processing shared by the storage
// backends: full header set on preflight OPTIONS, Vary and
// Access-Control-Allow-Origin on everything else. The serve flag selects
// the method set of the download endpoint over that of the upload endpoint.
func CORSHandler(method string, reqHeader http.Header, allowedOrigins []string, serve bool) (http.Header, int) {
	respHeader := map[string][]string{
		// Intermediate caches must not mix responses to different origins.
		"Vary": {"Origin", "Access-Control-Request-Method, Access-Control-Request-Headers"},
	}

	origin := reqHeader.Get("Origin")
	allowedOrigin := matchCORSOrigin(allowedOrigins, origin)

	if acMethod := reqHeader.Get("Access-Control-Request-Method"); method == http.MethodOptions && acMethod != "" {
		// Preflight.
		if allowedOrigin == "" {
			return respHeader, http.StatusNoContent
		}

		var allowMethods []string
		if serve {
			allowMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
		} else {
			allowMethods = []string{http.MethodPost, http.MethodPut, http.MethodHead, http.MethodOptions}
		}

		if !matchCORSMethod(allowMethods, acMethod) {
			return respHeader, http.StatusNoContent
		}

		respHeader["Access-Control-Allow-Headers"] = []string{"*"}
		respHeader["Access-Control-Allow-Credentials"] = []string{"true"}
		respHeader["Access-Control-Allow-Methods"] = []string{strings.Join(allowMethods, ", ")}
		respHeader["Access-Control-Max-Age"] = []string{"86400"}
		respHeader["Access-Control-Allow-Origin"] = []string{allowedOrigin}

		return respHeader, http.StatusNoContent
	}

	if allowedOrigin != "" {
		// Echo the actual origin rather than '*': a wildcard is rejected
		// by browsers when credentials are included.
		respHeader["Access-Control-Allow-Origin"] = []string{origin}
	}

	return respHeader, 0
}
