package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartlinks/smartlinks/internal/model"
	"github.com/smartlinks/smartlinks/internal/testutil"
)

func TestRepository_CreateAndFindLink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueSlug("app"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	bySlug, err := repo.FindEnabledBySlug(ctx, link.Slug, link.SiteID)
	if err != nil {
		t.Fatalf("find link by slug: %v", err)
	}
	assertLinkEqual(t, link, bySlug)

	byID, err := repo.FindByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("find link by ID: %v", err)
	}
	assertLinkEqual(t, link, byID)

	if _, err := repo.FindEnabledBySlug(ctx, link.Slug, link.SiteID+1); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound for another site, got %v", err)
	}

	duplicate := testutil.NewTestLink(t, link.Slug)
	if err := repo.CreateLink(ctx, duplicate); !errors.Is(err, ErrSlugExists) {
		t.Fatalf("expected ErrSlugExists, got %v", err)
	}

	otherSite := testutil.NewTestLink(t, link.Slug)
	otherSite.SiteID = 2
	if err := repo.CreateLink(ctx, otherSite); err != nil {
		t.Fatalf("same slug on another site: %v", err)
	}
}

func TestRepository_DisabledLinkIsNotFoundBySlug(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueSlug("off"))
	link.Enabled = false
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	if _, err := repo.FindEnabledBySlug(ctx, link.Slug, link.SiteID); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}

	byID, err := repo.FindByID(ctx, link.ID)
	if err != nil {
		t.Fatalf("FindByID is status agnostic: %v", err)
	}
	if byID.Enabled {
		t.Fatalf("expected disabled link")
	}

	if err := repo.SetLinkEnabled(ctx, link.ID, true); err != nil {
		t.Fatalf("enable link: %v", err)
	}
	if _, err := repo.FindEnabledBySlug(ctx, link.Slug, link.SiteID); err != nil {
		t.Fatalf("expected enabled link to be found, got %v", err)
	}
}

func TestRepository_DeleteLink(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	link := testutil.NewTestLink(t, testutil.UniqueSlug("gone"))
	if err := repo.CreateLink(ctx, link); err != nil {
		t.Fatalf("create link: %v", err)
	}

	if err := repo.DeleteLink(ctx, link.ID); err != nil {
		t.Fatalf("delete link: %v", err)
	}

	if _, err := repo.FindByID(ctx, link.ID); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound, got %v", err)
	}
	if err := repo.DeleteLink(ctx, link.ID); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("expected ErrLinkNotFound on second delete, got %v", err)
	}
}

func TestRepository_Settings(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t, ctx)

	data, err := repo.LoadSettingsJSON(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if data != nil {
		t.Fatalf("expected no stored settings, got %s", data)
	}

	if err := repo.SaveSettingsJSON(ctx, []byte(`{"analyticsRetention": 30}`)); err != nil {
		t.Fatalf("save settings: %v", err)
	}
	if err := repo.SaveSettingsJSON(ctx, []byte(`{"analyticsRetention": 60}`)); err != nil {
		t.Fatalf("overwrite settings: %v", err)
	}

	data, err = repo.LoadSettingsJSON(ctx)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if string(data) != `{"analyticsRetention": 60}` {
		t.Fatalf("unexpected settings document %s", data)
	}
}

func newTestRepository(t *testing.T, ctx context.Context) *Repository {
	t.Helper()

	dbURL := testutil.RequireEnv(t, "TEST_DATABASE_URL")
	repo, err := New(ctx, dbURL)
	if err != nil {
		t.Fatalf("create repository: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(ctx, repo.Pool())
	if err != nil {
		t.Fatalf("acquire db lock: %v", err)
	}
	t.Cleanup(func() {
		_ = unlock()
	})

	if err := ResetSchema(dbURL); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return repo
}

func assertLinkEqual(t *testing.T, expected, actual *model.Link) {
	t.Helper()

	if expected.Slug != actual.Slug {
		t.Fatalf("slug mismatch: %q vs %q", expected.Slug, actual.Slug)
	}
	if expected.SiteID != actual.SiteID {
		t.Fatalf("site_id mismatch: %d vs %d", expected.SiteID, actual.SiteID)
	}
	if expected.URLs != actual.URLs {
		t.Fatalf("urls mismatch: %+v vs %+v", expected.URLs, actual.URLs)
	}
	if expected.QR != actual.QR {
		t.Fatalf("qr mismatch: %+v vs %+v", expected.QR, actual.QR)
	}
	if expected.Enabled != actual.Enabled || expected.TrackAnalytics != actual.TrackAnalytics {
		t.Fatalf("flags mismatch: %+v vs %+v", expected, actual)
	}
	if actual.CreatedAt.Sub(expected.CreatedAt).Abs() > time.Second {
		t.Fatalf("created_at mismatch: %v vs %v", expected.CreatedAt, actual.CreatedAt)
	}
}
