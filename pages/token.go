package pages

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Continuation token errors.
var (
	// ErrInvalidToken marks a continuation token that cannot be decoded.
	ErrInvalidToken = errors.New("invalid continuation token")
	// ErrSessionMismatch marks a token minted under a different session.
	ErrSessionMismatch = errors.New("continuation token session mismatch")
)

const tokenDelimiter = ":"

// EncodeToken mints an opaque continuation token for (url, session, page).
func EncodeToken(url, sessionID string, page int) string {
	raw := url + tokenDelimiter + sessionID + tokenDelimiter + strconv.Itoa(page)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeToken reverses EncodeToken. The url may itself contain the
// delimiter, so the session id and page are split off from the right.
func DecodeToken(token string) (url, sessionID string, page int, err error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	s := string(raw)
	pageSep := strings.LastIndex(s, tokenDelimiter)
	if pageSep < 0 {
		return "", "", 0, ErrInvalidToken
	}
	page, err = strconv.Atoi(s[pageSep+1:])
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: bad page number", ErrInvalidToken)
	}
	if page < 1 {
		return "", "", 0, fmt.Errorf("%w: page %d out of range", ErrInvalidToken, page)
	}

	rest := s[:pageSep]
	sessionSep := strings.LastIndex(rest, tokenDelimiter)
	if sessionSep < 0 {
		return "", "", 0, ErrInvalidToken
	}

	return rest[:sessionSep], rest[sessionSep+1:], page, nil
}

// DecodeTokenForSession decodes a token and validates it against the
// caller's live session.
func DecodeTokenForSession(token string, session Session) (url string, page int, err error) {
	url, tokenSession, page, err := DecodeToken(token)
	if err != nil {
		return "", 0, err
	}
	if tokenSession != session.ID {
		return "", 0, fmt.Errorf("%w: token session %q", ErrSessionMismatch, tokenSession)
	}
	return url, page, nil
}
