package arya

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/eringen/arya/credentials"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettingsRoundTrip(t *testing.T) {
	s := setupTestStore(t)

	got, err := s.GetSetting("missing")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty value for missing key, got %q", got)
	}

	if err := s.SetSetting("k", "one"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SetSetting("k", "two"); err != nil {
		t.Fatalf("SetSetting upsert failed: %v", err)
	}
	got, err = s.GetSetting("k")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got != "two" {
		t.Fatalf("expected upserted value two, got %q", got)
	}
}

func TestStoreBacksCredentials(t *testing.T) {
	s := setupTestStore(t)
	creds := credentials.NewStore(s)

	if creds.IsConfigured(credentials.Image) {
		t.Fatalf("expected empty store to be unconfigured")
	}
	if !creds.Set(credentials.Image, credentials.Credentials{Token: "t", Owner: "o", Repo: "r"}) {
		t.Fatalf("expected Set to succeed")
	}
	got := creds.Get(credentials.Image)
	if got == nil {
		t.Fatalf("expected credentials after Set")
	}
	if got.Branch != "main" || got.Directory != "images" {
		t.Fatalf("expected defaults main/images, got %q/%q", got.Branch, got.Directory)
	}
	if creds.IsConfigured(credentials.Content) {
		t.Fatalf("targets must be independent")
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	s := setupTestStore(t)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, name := range []string{"first", "second", "third"} {
		kind, failure := HistoryUpload, ""
		if i == 1 {
			kind = HistoryPublish
		}
		if i == 2 {
			failure = "boom"
		}
		e, err := s.RecordHistory(HistoryEntry{
			Kind:      kind,
			Name:      name,
			Success:   failure == "",
			Error:     failure,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordHistory failed: %v", err)
		}
		if e.ID == "" {
			t.Fatalf("expected generated id")
		}
	}

	all, err := s.ListHistory("", 0)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Name != "third" || all[2].Name != "first" {
		t.Fatalf("expected newest first, got %s..%s", all[0].Name, all[2].Name)
	}
	if all[0].Success || all[0].Error != "boom" {
		t.Fatalf("expected failed third entry, got %+v", all[0])
	}
	if !all[0].CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("unexpected created at %v", all[0].CreatedAt)
	}

	uploads, err := s.ListHistory(HistoryUpload, 1)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(uploads) != 1 || uploads[0].Name != "third" {
		t.Fatalf("expected latest upload only, got %+v", uploads)
	}
}
