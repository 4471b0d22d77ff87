package main

import (
	"strings"
	"testing"

	"github.com/RinKhimera/fantribe-messenger/server/store/types"
)

func TestMessagePreview(t *testing.T) {
	msg := &types.Message{Text: "Salut, ça va ?"}
	if got := messagePreview(msg); got != "Salut, ça va ?" {
		t.Errorf("text preview = %q", got)
	}

	// The first attachment wins over text.
	msg.Attachments = []types.Attachment{{Type: types.MediaImage, Url: "/v0/file/s/abc"}}
	if got := messagePreview(msg); got != "[Photo]" {
		t.Errorf("image preview = %q, want [Photo]", got)
	}

	msg.Attachments[0].Type = types.MediaVideo
	if got := messagePreview(msg); got != "[Vidéo]" {
		t.Errorf("video preview = %q, want [Vidéo]", got)
	}

	msg.Attachments[0].Type = types.MediaAudio
	if got := messagePreview(msg); got != "[Audio]" {
		t.Errorf("audio preview = %q, want [Audio]", got)
	}

	msg.Deleted = true
	if got := messagePreview(msg); got != "Message supprimé" {
		t.Errorf("deleted preview = %q, want Message supprimé", got)
	}
}

func TestTruncateText(t *testing.T) {
	if got := truncateText("short", 10); got != "short" {
		t.Errorf("short text = %q", got)
	}

	long := strings.Repeat("x", 100)
	got := truncateText(long, 80)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated text lacks ellipsis: %q", got)
	}
	if textLength(got) != 81 {
		t.Errorf("truncated length = %d, want 81", textLength(got))
	}

	// Emoji must not be cut mid-cluster.
	flags := strings.Repeat("🇫🇷", 50)
	got = truncateText(flags, 10)
	if textLength(got) != 11 {
		t.Errorf("emoji truncation length = %d, want 11", textLength(got))
	}
	if strings.Count(got, "🇫🇷") != 10 {
		t.Errorf("emoji truncation clusters = %d, want 10", strings.Count(got, "🇫🇷"))
	}
}

func TestCursorRoundTrip(t *testing.T) {
	ts := types.TimeNow()
	id := types.Uid(987654321)

	cursor := encodeCursor(ts, id)
	gotTs, gotId, err := parseCursor(cursor)
	if err != nil {
		t.Fatalf("parseCursor(%q): %v", cursor, err)
	}
	if !gotTs.Equal(ts) {
		t.Errorf("cursor ts = %v, want %v", gotTs, ts)
	}
	if gotId != id {
		t.Errorf("cursor id = %d, want %d", gotId, id)
	}

	for _, bad := range []string{"", "12345", "abc-def", "-" + id.String(), "12345-"} {
		if _, _, err := parseCursor(bad); err == nil {
			t.Errorf("parseCursor(%q): expected error", bad)
		}
	}
}

func TestParseVersion(t *testing.T) {
	cases := map[string]int{
		"1.0":    0x010000,
		"1.2.3":  0x010203,
		"0.15":   0x000f00,
		"2":      0x020000,
		"banana": 0,
	}
	for in, want := range cases {
		if got := parseVersion(in); got != want {
			t.Errorf("parseVersion(%q) = 0x%x, want 0x%x", in, got, want)
		}
	}

	if got := versionToString(0x010203); got != "1.2.3" {
		t.Errorf("versionToString = %q, want 1.2.3", got)
	}
	if got := versionToString(0x010000); got != "1.0" {
		t.Errorf("versionToString = %q, want 1.0", got)
	}
}

func TestBase10Version(t *testing.T) {
	cases := map[string]int64{
		"1.0":   100,
		"1.2":   102,
		"1.2.3": 102,
		"0.15":  15,
	}
	for in, want := range cases {
		if got := base10Version(parseVersion(in)); got != want {
			t.Errorf("base10Version(parseVersion(%q)) = %d, want %d", in, got, want)
		}
	}
}
