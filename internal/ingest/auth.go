package ingest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"stockpoint/internal/models"

	"gorm.io/gorm"
)

// Actor labels who performed an external stock write. This is provenance for
// the ledger entry, not an access-control decision; permissions belong to
// the host platform.
type Actor struct {
	Who    string
	Source string
}

var anonymousActor = Actor{Who: "anonymous", Source: models.SourceAPIStockUpdate}

// IdentifyActor extracts a credential hint from the request (Basic auth user,
// Bearer token, api_key or oauth_consumer_key query param) and resolves it
// against the credentials table. Unknown callers stay anonymous rather than
// being rejected.
func IdentifyActor(ctx context.Context, db *gorm.DB, r *http.Request) Actor {
	for _, key := range credentialHints(r) {
		if cred := lookupCredential(ctx, db, key); cred != nil {
			touchCredential(ctx, db, cred)
			return Actor{
				Who:    cred.Description,
				Source: "oauth_" + slug(cred.Description),
			}
		}
	}
	return anonymousActor
}

func credentialHints(r *http.Request) []string {
	var hints []string

	if user, _, ok := r.BasicAuth(); ok && user != "" {
		hints = append(hints, user)
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		hints = append(hints, strings.TrimPrefix(auth, "Bearer "))
	}
	if key := r.URL.Query().Get("api_key"); key != "" {
		hints = append(hints, key)
	}
	if key := r.URL.Query().Get("oauth_consumer_key"); key != "" {
		hints = append(hints, key)
	}
	return hints
}

func lookupCredential(ctx context.Context, db *gorm.DB, key string) *models.APICredential {
	var cred models.APICredential

	err := db.WithContext(ctx).Where("consumer_key = ?", key).First(&cred).Error
	if err == nil {
		return &cred
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}

	// Some clients only transmit the tail of the key; fall back to the
	// stored truncated form.
	if len(key) >= 7 {
		err = db.WithContext(ctx).Where("truncated_key = ?", key[len(key)-7:]).First(&cred).Error
		if err == nil {
			return &cred
		}
	}
	return nil
}

func touchCredential(ctx context.Context, db *gorm.DB, cred *models.APICredential) {
	now := time.Now()
	db.WithContext(ctx).
		Model(&models.APICredential{}).
		Where("id = ?", cred.ID).
		UpdateColumn("last_access", now)
}

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "api"
	}
	return b.String()
}
