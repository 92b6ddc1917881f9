package pages

import (
	"errors"
	"testing"
)

func TestTokenRoundTrip(t *testing.T) {
	cases := []struct {
		url     string
		session string
		page    int
	}{
		{"https://example.com/page", "sess-1", 2},
		{"https://example.com:8443/a:b:c", "sess-2", 7},               // delimiters in the url
		{"http://host/a:1", "0b894d3e-4f63-4a47-9f00-1a2b3c4d5e6f", 3}, // generated session id shape
		{"http://localhost", "s", 1},
	}

	for _, c := range cases {
		token := EncodeToken(c.url, c.session, c.page)
		url, session, page, err := DecodeToken(token)
		if err != nil {
			t.Fatalf("DecodeToken(%q/%q/%d): %v", c.url, c.session, c.page, err)
		}
		if url != c.url || session != c.session || page != c.page {
			t.Errorf("round trip = (%q, %q, %d), want (%q, %q, %d)",
				url, session, page, c.url, c.session, c.page)
		}
	}
}

func TestDecodeTokenMalformed(t *testing.T) {
	cases := []string{
		"not base64 at all!!!",
		"aGVsbG8=",     // "hello": no delimiters
		"YTpiOng=",     // "a:b:x": non-numeric page
		"MTIzNDU2Nzg=", // "12345678": no delimiters
	}
	for _, token := range cases {
		if _, _, _, err := DecodeToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("DecodeToken(%q) err = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestDecodeTokenRejectsPageBelowOne(t *testing.T) {
	for _, page := range []int{0, -2} {
		token := EncodeToken("https://example.com", "sess-1", page)
		if _, _, _, err := DecodeToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("page %d: err = %v, want ErrInvalidToken", page, err)
		}
	}
}

func TestDecodeTokenForSession(t *testing.T) {
	session := NewSession("live-session")
	token := EncodeToken("https://example.com", "live-session", 3)

	url, page, err := DecodeTokenForSession(token, session)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://example.com" || page != 3 {
		t.Errorf("got (%q, %d)", url, page)
	}
}

func TestDecodeTokenSessionMismatch(t *testing.T) {
	token := EncodeToken("https://example.com", "old-session", 2)
	_, _, err := DecodeTokenForSession(token, NewSession("new-session"))
	if !errors.Is(err, ErrSessionMismatch) {
		t.Errorf("err = %v, want ErrSessionMismatch", err)
	}
}
