// Generic data manipulation utilities.

package main

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rivo/uniseg"
	"golang.org/x/text/unicode/norm"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

// Maximum length of the conversation preview in grapheme clusters.
const maxPreviewLen = 80

// Placeholders shown instead of content.
const (
	previewPhoto   = "[Photo]"
	previewVideo   = "[Vidéo]"
	previewAudio   = "[Audio]"
	previewDeleted = "Message supprimé"
)

// messagePreview produces the short conversation-list preview of a message:
// the first attachment wins over text, deleted messages show a placeholder.
func messagePreview(msg *types.Message) string {
	if msg.Deleted {
		return previewDeleted
	}

	if len(msg.Attachments) > 0 {
		switch msg.Attachments[0].Type {
		case types.MediaImage:
			return previewPhoto
		case types.MediaVideo:
			return previewVideo
		case types.MediaAudio:
			return previewAudio
		}
	}

	return truncateText(msg.Text, maxPreviewLen)
}

// truncateText normalizes the string to NFC and cuts it to at most maxLen
// grapheme clusters, appending an ellipsis when cut. Cutting by grapheme
// cluster instead of bytes or runes keeps emoji and combining marks intact.
func truncateText(s string, maxLen int) string {
	s = norm.NFC.String(strings.TrimSpace(s))
	if uniseg.GraphemeClusterCount(s) <= maxLen {
		return s
	}

	gr := uniseg.NewGraphemes(s)
	end := 0
	for i := 0; i < maxLen && gr.Next(); i++ {
		_, end = gr.Positions()
	}
	return s[:end] + "…"
}

// textLength returns the length of the string in grapheme clusters.
func textLength(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// Message cursors. A cursor names a message position as
// "<unix millis>-<message id>"; pagination resumes strictly before it.

func encodeCursor(ts time.Time, id types.Uid) string {
	return strconv.FormatInt(ts.UnixMilli(), 10) + "-" + id.String()
}

func parseCursor(cursor string) (time.Time, types.Uid, error) {
	millis, idstr, found := strings.Cut(cursor, "-")
	if !found {
		return time.Time{}, types.ZeroUid, errors.New("invalid cursor")
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return time.Time{}, types.ZeroUid, errors.New("invalid cursor timestamp")
	}
	id := types.ParseUid(idstr)
	if id.IsZero() {
		return time.Time{}, types.ZeroUid, errors.New("invalid cursor id")
	}
	return time.UnixMilli(ms).UTC(), id, nil
}

// msgOpts2storeOpts converts get.msgs query parameters to database query
// parameters.
func msgOpts2storeOpts(req *MsgBrowseOpts) (*types.BrowseOpt, error) {
	var opts types.BrowseOpt
	if req == nil {
		return &opts, nil
	}

	if req.Before != "" {
		ts, id, err := parseCursor(req.Before)
		if err != nil {
			return nil, types.ErrMalformed
		}
		opts.Before = ts
		opts.BeforeId = id
	}
	opts.Limit = req.Limit
	return &opts, nil
}

// Supported version of the client protocol.
const (
	minSupportedVersionValue = 1 << 16
	currentVersion           = "1.0"
)

// parseVersion parses version of the form "1.2.3" or "1.2" into a numeric
// value 0xMMNNPP.
func parseVersion(vers string) int {
	var major, minor, patch int

	dot := strings.Index(vers, ".")
	if dot >= 0 {
		major, _ = strconv.Atoi(vers[:dot])
		vers = vers[dot+1:]
	} else {
		major, _ = strconv.Atoi(vers)
		vers = ""
	}

	dot2 := strings.Index(vers, ".")
	if dot2 > 0 {
		minor, _ = strconv.Atoi(vers[:dot2])
		patch, _ = strconv.Atoi(vers[dot2+1:])
	} else if vers != "" {
		minor, _ = strconv.Atoi(vers)
	}

	if major < 0 || minor < 0 || minor >= 0xff || patch < 0 || patch >= 0xff {
		return 0
	}

	return (major << 16) | (minor << 8) | patch
}

// versionToString converts numeric version to a string.
func versionToString(vers int) string {
	str := strconv.Itoa(vers>>16) + "." + strconv.Itoa((vers>>8)&0xff)
	if patch := vers & 0xff; patch > 0 {
		str += "." + strconv.Itoa(patch)
	}
	return str
}

// decodeAuthError converts an authentication error to a {ctrl} response.
func decodeAuthError(err error, id string, timestamp time.Time) *ServerComMessage {
	if err == nil {
		return NoErr(id, "", timestamp)
	}

	storeErr, ok := err.(types.StoreError)
	if !ok {
		return ErrUnknown(id, "", timestamp)
	}

	switch storeErr {
	case types.ErrMalformed:
		return ErrMalformed(id, "", timestamp)
	case types.ErrFailed, types.ErrExpired, types.ErrNotFound:
		return ErrAuthFailed(id, "", timestamp)
	case types.ErrDuplicate:
		return ErrDuplicateCredential(id, "", timestamp)
	case types.ErrUnsupported:
		return ErrNotImplemented(id, "", timestamp)
	case types.ErrPolicy:
		return ErrMalformed(id, "", timestamp)
	default:
		return ErrUnknown(id, "", timestamp)
	}
}
