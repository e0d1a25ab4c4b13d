package ingest

import (
	"context"
	"net/http/httptest"
	"testing"

	"stockpoint/internal/models"
)

func TestIdentifyActorExactKey(t *testing.T) {
	db := testDB(t)
	cred := models.APICredential{
		Description:    "Feed Importer",
		ConsumerKey:    "ck_1234567890abcdef",
		ConsumerSecret: "cs_secret",
		TruncatedKey:   "0abcdef",
	}
	if err := db.Create(&cred).Error; err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	req := httptest.NewRequest("PUT", "/api/v1/products/1/stock?api_key=ck_1234567890abcdef", nil)
	actor := IdentifyActor(context.Background(), db, req)

	if actor.Who != "Feed Importer" {
		t.Fatalf("who mismatch: %q", actor.Who)
	}
	if actor.Source != "oauth_feed_importer" {
		t.Fatalf("source mismatch: %q", actor.Source)
	}

	var reloaded models.APICredential
	db.First(&reloaded, "id = ?", cred.ID)
	if reloaded.LastAccess == nil {
		t.Fatalf("last_access must be touched on a match")
	}
}

func TestIdentifyActorTruncatedKey(t *testing.T) {
	db := testDB(t)
	cred := models.APICredential{
		Description:    "Warehouse Sync",
		ConsumerKey:    "ck_1234567890abcdef",
		ConsumerSecret: "cs_secret",
		TruncatedKey:   "0abcdef",
	}
	if err := db.Create(&cred).Error; err != nil {
		t.Fatalf("seed credential: %v", err)
	}

	// Client sends only the tail of the key.
	req := httptest.NewRequest("PUT", "/api/v1/products/1/stock", nil)
	req.SetBasicAuth("xxx0abcdef", "")
	actor := IdentifyActor(context.Background(), db, req)

	if actor.Who != "Warehouse Sync" {
		t.Fatalf("truncated lookup failed: %q", actor.Who)
	}
}

func TestIdentifyActorUnknownStaysAnonymous(t *testing.T) {
	db := testDB(t)

	req := httptest.NewRequest("PUT", "/api/v1/products/1/stock?api_key=ck_nobody", nil)
	actor := IdentifyActor(context.Background(), db, req)

	if actor.Who != "anonymous" || actor.Source != models.SourceAPIStockUpdate {
		t.Fatalf("unknown caller must be anonymous, got %+v", actor)
	}
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Feed Importer": "feed_importer",
		"ACME-2 sync":   "acme_2_sync",
		"!!!":           "api",
	}
	for in, want := range cases {
		if got := slug(in); got != want {
			t.Fatalf("slug(%q): got %q want %q", in, got, want)
		}
	}
}
