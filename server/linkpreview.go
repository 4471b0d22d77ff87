/******************************************************************************
 *
 *  Description :
 *
 *    Fetches a URL pasted into a message and extracts Open Graph metadata
 *    for rendering an inline preview.
 *
 *****************************************************************************/

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Only this much of the remote page is read.
const previewMaxBody = 2 * 1024

type linkPreview struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

var previewClient = &http.Client{
	Timeout: time.Second * 2,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return validatePreviewURL(req.URL.String())
	},
}

// previewLink handles the HTTP request, fetches the remote URL and returns
// the extracted link preview as JSON.
func previewLink(wrt http.ResponseWriter, req *http.Request) {
	uid, challenge, err := authHttpRequest(req)
	if err != nil {
		http.Error(wrt, "invalid auth secret", http.StatusBadRequest)
		return
	}
	if challenge != nil {
		http.Error(wrt, "login challenge not done", http.StatusMultipleChoices)
		return
	}
	if uid.IsZero() {
		http.Error(wrt, "user not authenticated", http.StatusUnauthorized)
		return
	}

	u := req.URL.Query().Get("url")
	if u == "" {
		http.Error(wrt, "missing 'url' query parameter", http.StatusBadRequest)
		return
	}

	if err = validatePreviewURL(u); err != nil {
		http.Error(wrt, err.Error(), http.StatusBadRequest)
		return
	}

	outreq, err := http.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		http.Error(wrt, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := previewClient.Do(outreq)
	if err != nil {
		http.Error(wrt, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		http.Error(wrt, "non-OK HTTP status", http.StatusBadGateway)
		return
	}

	body := http.MaxBytesReader(nil, resp.Body, previewMaxBody)

	wrt.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(wrt).Encode(extractLinkMetadata(body)); err != nil {
		http.Error(wrt, "failed to encode response", http.StatusInternalServerError)
	}
}

// extractLinkMetadata pulls the og: tags, the plain description meta tag and
// the page title out of an HTML document.
func extractLinkMetadata(body io.Reader) linkPreview {
	var preview linkPreview
	var gotTitle, gotDesc, gotImg, inTitleTag bool

	tokenizer := html.NewTokenizer(body)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return preview

		case html.StartTagToken, html.SelfClosingTagToken:
			token := tokenizer.Token()
			data := strings.ToLower(token.Data)
			if data == "meta" {
				var name, property, content string
				for _, attr := range token.Attr {
					switch strings.ToLower(attr.Key) {
					case "name":
						name = attr.Val
					case "property":
						property = attr.Val
					case "content":
						content = attr.Val
					}
				}

				if strings.HasPrefix(property, "og:") && content != "" {
					switch property {
					case "og:title":
						preview.Title = content
						gotTitle = true
					case "og:description":
						preview.Description = content
						gotDesc = true
					case "og:image":
						preview.ImageURL = content
						gotImg = true
					}
				} else if name == "description" && preview.Description == "" {
					preview.Description = content
					gotDesc = true
				}
			} else if data == "title" {
				inTitleTag = true
			}

		case html.TextToken:
			if !gotTitle && inTitleTag {
				preview.Title = strings.TrimSpace(tokenizer.Token().Data)
				gotTitle = true
				inTitleTag = false
			}
		}
		if gotTitle && gotDesc && gotImg {
			break
		}
	}
	return preview
}

// validatePreviewURL rejects anything which could be used to probe the
// internal network.
func validatePreviewURL(u string) error {
	parsedURL, err := url.Parse(u)
	if err != nil {
		return err
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &url.Error{Op: "validate", Err: errors.New("invalid scheme")}
	}

	ips, err := net.LookupIP(parsedURL.Hostname())
	if err != nil {
		return &url.Error{Op: "validate", Err: errors.New("invalid host")}
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return &url.Error{Op: "validate", Err: errors.New("non-routable IP address")}
		}
	}

	return nil
}
