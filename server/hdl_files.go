/******************************************************************************
 *
 *  Description :
 *
 *    Handlers for large file uploads and downloads. The storage itself is
 *    behind a media handler: local file system or S3.
 *
 *****************************************************************************/

package main

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/RinKhimera/fantribe-messenger/server/logs"
	"github.com/RinKhimera/fantribe-messenger/server/store"
	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// largeFileServe serves stored media objects to HTTP clients.
func largeFileServe(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()
	enc := json.NewEncoder(wrt)
	mh := store.Store.GetMediaHandler()
	statsInc("FileDownloadsTotal", 1)

	writeHttpResponse := func(msg *ServerComMessage, err error) {
		// Gorilla CompressHandler requires Content-Type to be set.
		wrt.Header().Set("Content-Type", "application/json; charset=utf-8")
		wrt.WriteHeader(msg.Ctrl.Code)
		enc.Encode(msg)
		if err != nil {
			logs.Warn.Println("media serve:", msg.Ctrl.Code, msg.Ctrl.Text, "/", err)
		}
	}

	// Check for API key presence.
	if isValid, _ := checkAPIKey(getAPIKey(req)); !isValid {
		writeHttpResponse(ErrAPIKeyRequired(now), nil)
		return
	}

	// Check authorization: either the token or SID must be present.
	uid, challenge, err := authHttpRequest(req)
	if err != nil {
		writeHttpResponse(decodeStoreError(err, "", "", now), err)
		return
	}
	if challenge != nil {
		writeHttpResponse(InfoChallenge("", now, challenge), nil)
		return
	}
	if uid.IsZero() {
		// Not authenticated.
		writeHttpResponse(ErrAuthRequired("", "", now), nil)
		return
	}

	// Check if media handler redirects or adds headers.
	headers, statusCode, err := mh.Headers(req.Method, req.URL, req.Header, true)
	if err != nil {
		writeHttpResponse(decodeStoreError(err, "", "", now), err)
		return
	}

	for name, values := range headers {
		for _, value := range values {
			wrt.Header().Add(name, value)
		}
	}

	if statusCode != 0 {
		// The handler requested to terminate further processing.
		wrt.WriteHeader(statusCode)
		if req.Method == http.MethodGet {
			enc.Encode(&ServerComMessage{Ctrl: &MsgServerCtrl{
				Code:      statusCode,
				Text:      http.StatusText(statusCode),
				Timestamp: now,
			}})
		}
		logs.Info.Println("media serve: completed with status", statusCode)
		return
	}

	if req.Method == http.MethodHead || req.Method == http.MethodOptions {
		wrt.WriteHeader(http.StatusOK)
		logs.Info.Println("media serve: completed", req.Method)
		return
	}

	fd, rsc, err := mh.Download(req.URL.String())
	if err != nil {
		writeHttpResponse(decodeStoreError(err, "", "", now), err)
		return
	}
	defer rsc.Close()

	wrt.Header().Set("Content-Type", fd.MimeType)
	asAttachment, _ := strconv.ParseBool(req.URL.Query().Get("asatt"))
	if asAttachment {
		wrt.Header().Set("Content-Disposition", "attachment")
	}
	http.ServeContent(wrt, req, "", fd.UpdatedAt, rsc)

	logs.Info.Println("media serve: OK, uid=", uid)
}

// largeFileReceive receives files from HTTP(S) and passes them to the
// configured media handler.
func largeFileReceive(wrt http.ResponseWriter, req *http.Request) {
	now := types.TimeNow()
	enc := json.NewEncoder(wrt)
	mh := store.Store.GetMediaHandler()
	statsInc("FileUploadsTotal", 1)

	writeHttpResponse := func(msg *ServerComMessage, err error) {
		// Gorilla CompressHandler requires Content-Type to be set.
		wrt.Header().Set("Content-Type", "application/json; charset=utf-8")
		wrt.WriteHeader(msg.Ctrl.Code)
		enc.Encode(msg)
		if err != nil {
			logs.Warn.Println("media upload:", msg.Ctrl.Code, msg.Ctrl.Text, "/", err)
		}
	}

	// Check if this is a POST/PUT/OPTIONS/HEAD request.
	if req.Method != http.MethodPost && req.Method != http.MethodPut &&
		req.Method != http.MethodHead && req.Method != http.MethodOptions {
		writeHttpResponse(ErrOperationNotAllowed("", "", now), nil)
		return
	}

	if globals.maxFileUploadSize > 0 {
		// Enforce maximum upload size.
		req.Body = http.MaxBytesReader(wrt, req.Body, globals.maxFileUploadSize)
	}

	// Check for API key presence.
	if isValid, _ := checkAPIKey(getAPIKey(req)); !isValid {
		writeHttpResponse(ErrAPIKeyRequired(now), nil)
		return
	}

	// Check authorization: either the token or SID must be present.
	uid, challenge, err := authHttpRequest(req)
	if err != nil {
		writeHttpResponse(decodeStoreError(err, "", "", now), err)
		return
	}
	if challenge != nil {
		writeHttpResponse(InfoChallenge("", now, challenge), nil)
		return
	}
	if uid.IsZero() {
		// Not authenticated.
		writeHttpResponse(ErrAuthRequired("", "", now), nil)
		return
	}

	// Check if media handler wants to stop processing, e.g. to redirect
	// uploads elsewhere.
	headers, statusCode, err := mh.Headers(req.Method, req.URL, req.Header, false)
	if err != nil {
		writeHttpResponse(decodeStoreError(err, "", "", now), err)
		return
	}

	for name, values := range headers {
		for _, value := range values {
			wrt.Header().Add(name, value)
		}
	}

	if statusCode != 0 {
		// The handler requested to terminate further processing.
		wrt.WriteHeader(statusCode)
		logs.Info.Println("media upload: completed with status", statusCode, "uid=", uid)
		return
	}

	if req.Method == http.MethodHead || req.Method == http.MethodOptions {
		wrt.WriteHeader(http.StatusOK)
		logs.Info.Println("media upload: completed", req.Method, "uid=", uid)
		return
	}

	msgID := req.FormValue("id")
	file, _, err := req.FormFile("file")
	if err != nil {
		logs.Info.Println("media upload: invalid multipart form", err)
		if strings.Contains(err.Error(), "request body too large") {
			writeHttpResponse(ErrTooLarge(msgID, "", now), err)
		} else {
			writeHttpResponse(ErrMalformed(msgID, "", now), err)
		}
		return
	}
	defer file.Close()

	mimeType := http.DetectContentType(make([]byte, 0))
	buff := make([]byte, 512)
	if n, _ := file.Read(buff); n > 0 {
		mimeType = http.DetectContentType(buff[:n])
	}
	// Rewind: the sniffed bytes are part of the payload.
	if _, err = file.Seek(0, io.SeekStart); err != nil {
		writeHttpResponse(ErrUnknown(msgID, "", now), err)
		return
	}

	fdef := types.FileDef{
		ObjHeader: types.ObjHeader{Id: store.Store.GetUidString()},
		User:      uid.String(),
		MimeType:  mimeType,
	}
	fdef.InitTimes()

	url, size, err := mh.Upload(&fdef, file)
	if err != nil {
		logs.Info.Println("media upload: failed", "/", err)
		writeHttpResponse(decodeStoreError(err, msgID, "", now), err)
		return
	}

	resp := NoErrParams(msgID, "", now, map[string]string{"url": url})
	writeHttpResponse(resp, nil)
	logs.Info.Println("media upload: ok", size, "bytes, uid=", uid)
}

// authHttpRequest authenticates an HTTP request by the auth token or by the
// session ID. Returns the user, an optional auth challenge, error.
func authHttpRequest(req *http.Request) (types.Uid, []byte, error) {
	var uid types.Uid
	if authMethod, secret := getHttpAuth(req); authMethod != "" {
		decodedSecret := make([]byte, base64.StdEncoding.DecodedLen(len(secret)))
		n, err := base64.StdEncoding.Decode(decodedSecret, []byte(secret))
		if err != nil {
			return uid, nil, types.ErrMalformed
		}

		authhdl := store.Store.GetLogicalAuthHandler(authMethod)
		if authhdl == nil {
			// Unknown authentication method.
			return uid, nil, types.ErrUnsupported
		}

		rec, challenge, err := authhdl.Authenticate(decodedSecret[:n], getRemoteAddr(req))
		if err != nil {
			return uid, nil, err
		}
		if challenge != nil {
			return uid, challenge, nil
		}
		uid = rec.Uid
	} else {
		// Find the session, make sure it's appropriately authenticated.
		sess := globals.sessionStore.Get(req.FormValue("sid"))
		if sess != nil {
			uid = sess.uid
		}
	}
	return uid, nil, nil
}

// getHttpAuth returns the auth method and secret of an HTTP request.
func getHttpAuth(req *http.Request) (method, secret string) {
	if parts := strings.Split(req.Header.Get("Authorization"), " "); len(parts) == 2 {
		return strings.ToLower(parts[0]), parts[1]
	}

	if token := req.FormValue("token"); token != "" {
		return "token", token
	}
	return "", ""
}

// getRemoteAddr returns the IP address of the client making the request.
func getRemoteAddr(req *http.Request) string {
	var addr string
	if globals.useXForwardedFor {
		addr = req.Header.Get("X-Forwarded-For")
	}
	if addr == "" {
		addr = req.RemoteAddr
	}
	return addr
}
