package selection

import (
	"crypto/sha1"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

const guestCookieName = "sp_guest"

// guestCookieTTL keeps the guest id stable across visits; it is the anchor
// for the keyed transient store.
const guestCookieTTL = 30 * 24 * time.Hour

// EnsureGuestID returns a stable per-guest identifier. Preference order:
// the persistent guest cookie (created here when missing), the session
// token, and as a last resort a hash of IP, user agent and the current hour.
// The hash is not stable across hours and exists only so a selection can
// survive within a single browsing session with no cookies at all.
func EnsureGuestID(cookies CookieCarrier, sessionToken, ip, userAgent string) string {
	if cookies != nil {
		if id, ok := cookies.GetCookie(guestCookieName); ok && id != "" {
			return id
		}
		id := uuid.New().String()
		cookies.SetCookie(guestCookieName, id, guestCookieTTL)
		return id
	}

	if sessionToken != "" {
		return "sess:" + sessionToken
	}

	sum := sha1.Sum([]byte(ip + "|" + userAgent + "|" + time.Now().Format("2006010215")))
	return "anon:" + hex.EncodeToString(sum[:])
}
