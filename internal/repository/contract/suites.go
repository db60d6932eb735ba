// Package contract holds behavior suites every repository implementation must pass.
package contract

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gvafram3/parcel-console/internal/model"
	"github.com/gvafram3/parcel-console/internal/repository"
)

type ParcelFactory func(t *testing.T) (repository.ParcelRepository, func())

type UserFactory func(t *testing.T) (repository.UserRepository, func())

type TokenFactory func(t *testing.T) (tokens repository.TokenRepository, users repository.UserRepository, advance func(time.Duration), cleanup func())

type PingerFactory func(t *testing.T) (repository.Pinger, func())

var base = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func RunParcelRepositoryContract(t *testing.T, makeRepo ParcelFactory) {
	t.Helper()

	t.Run("create_and_get", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		created, err := repo.Create(ctx, model.Parcel{TrackingNumber: "TRK-1", OfficeID: "office-1", CreatedAt: base})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if created.ID == "" || created.Status != model.StatusRegistered {
			t.Fatalf("expected id and default status, got %+v", created)
		}
		got, err := repo.GetByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.TrackingNumber != "TRK-1" {
			t.Fatalf("mismatch: %+v", got)
		}
	})

	t.Run("get_not_found", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		_, err := repo.GetByID(context.Background(), "missing")
		if !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("duplicate_tracking_number", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		if _, err := repo.Create(ctx, model.Parcel{TrackingNumber: "TRK-9"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
		_, err := repo.Create(ctx, model.Parcel{TrackingNumber: "trk-9"})
		if !errors.Is(err, repository.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("search_pagination_filter_order", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		for i := 0; i < 7; i++ {
			office := "office-1"
			if i%2 == 1 {
				office = "office-2"
			}
			p := model.Parcel{TrackingNumber: fmt.Sprintf("TRK-%d", i), OfficeID: office, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
			if _, err := repo.Create(ctx, p); err != nil {
				t.Fatalf("seed: %v", err)
			}
		}
		res, err := repo.Search(ctx, repository.ParcelFilter{OfficeID: "office-1"}, repository.PageOf(0, 3))
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(res.Items) != 3 || res.Total != 4 {
			t.Fatalf("unexpected page: len=%d total=%d", len(res.Items), res.Total)
		}
		if res.Items[0].TrackingNumber != "TRK-6" {
			t.Fatalf("expected newest first, got %s", res.Items[0].TrackingNumber)
		}
		res2, err := repo.Search(ctx, repository.ParcelFilter{OfficeID: "office-1"}, repository.PageOf(1, 3))
		if err != nil {
			t.Fatalf("search2: %v", err)
		}
		if len(res2.Items) != 1 || res2.Items[0].TrackingNumber != "TRK-0" {
			t.Fatalf("unexpected page2: %+v", res2.Items)
		}
		res3, err := repo.Search(ctx, repository.ParcelFilter{}, repository.PageOf(5, 3))
		if err != nil {
			t.Fatalf("search3: %v", err)
		}
		if len(res3.Items) != 0 || res3.Total != 7 {
			t.Fatalf("out of range page should be empty with total, got len=%d total=%d", len(res3.Items), res3.Total)
		}
	})

	t.Run("mark_delivered", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		p, err := repo.Create(ctx, model.Parcel{TrackingNumber: "TRK-D", CreatedAt: base})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		at := base.Add(3 * time.Hour)
		out, err := repo.MarkDelivered(ctx, p.ID, at)
		if err != nil {
			t.Fatalf("deliver: %v", err)
		}
		if !out.Delivered || out.Status != model.StatusDelivered || !out.UpdatedAt.Equal(at) {
			t.Fatalf("unexpected: %+v", out)
		}
		delivered := true
		res, err := repo.Search(ctx, repository.ParcelFilter{Delivered: &delivered}, repository.PageOf(0, 10))
		if err != nil || res.Total != 1 {
			t.Fatalf("delivered filter: total=%d err=%v", res.Total, err)
		}
		if _, err := repo.MarkDelivered(ctx, p.ID, at); !errors.Is(err, repository.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if _, err := repo.MarkDelivered(ctx, "missing", at); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func RunUserRepositoryContract(t *testing.T, makeRepo UserFactory) {
	t.Helper()

	t.Run("create_and_authenticate", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		u, err := repo.Create(ctx, model.User{Name: "Ama", Email: "Ama@Example.com", Role: model.RoleFrontdesk, Active: true}, "pw")
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := repo.Authenticate(ctx, "ama@example.com", "pw")
		if err != nil {
			t.Fatalf("authenticate: %v", err)
		}
		if got.ID != u.ID {
			t.Fatalf("mismatch: %+v", got)
		}
		for _, tc := range []struct{ email, pw string }{{"ama@example.com", "nope"}, {"nobody@example.com", "pw"}} {
			if _, err := repo.Authenticate(ctx, tc.email, tc.pw); !errors.Is(err, repository.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials for %s, got %v", tc.email, err)
			}
		}
	})

	t.Run("duplicate_email", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		if _, err := repo.Create(ctx, model.User{Email: "dup@example.com", Active: true}, "a"); err != nil {
			t.Fatalf("seed: %v", err)
		}
		_, err := repo.Create(ctx, model.User{Email: " DUP@example.com", Active: true}, "b")
		if !errors.Is(err, repository.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("search_and_deactivate", func(t *testing.T) {
		repo, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		var riderID string
		for i, role := range []model.Role{model.RoleAdmin, model.RoleRider, model.RoleFrontdesk} {
			u, err := repo.Create(ctx, model.User{Name: fmt.Sprintf("User %d", i), Email: fmt.Sprintf("u%d@example.com", i), Role: role, OfficeID: "office-1", Active: true}, "pw")
			if err != nil {
				t.Fatalf("seed: %v", err)
			}
			if role == model.RoleRider {
				riderID = u.ID
			}
		}
		res, err := repo.Search(ctx, repository.UserFilter{Role: model.RoleRider}, repository.PageOf(0, 10))
		if err != nil || res.Total != 1 || res.Items[0].ID != riderID {
			t.Fatalf("role filter: %+v err=%v", res, err)
		}
		if _, err := repo.Deactivate(ctx, riderID); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		active := true
		res, err = repo.Search(ctx, repository.UserFilter{Active: &active}, repository.PageOf(0, 10))
		if err != nil || res.Total != 2 {
			t.Fatalf("active filter: total=%d err=%v", res.Total, err)
		}
		if _, err := repo.Deactivate(ctx, riderID); !errors.Is(err, repository.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
		if _, err := repo.Authenticate(ctx, "u1@example.com", "pw"); !errors.Is(err, repository.ErrInvalidCredentials) {
			t.Fatalf("deactivated account signed in: %v", err)
		}
	})
}

func RunTokenRepositoryContract(t *testing.T, makeRepo TokenFactory) {
	t.Helper()

	t.Run("issue_resolve_expire", func(t *testing.T) {
		tokens, users, advance, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		u, err := users.Create(ctx, model.User{Email: "t@example.com", Active: true}, "pw")
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		tok, exp, err := tokens.Issue(ctx, u.ID, time.Hour)
		if err != nil || tok == "" || exp.IsZero() {
			t.Fatalf("issue: tok=%q exp=%v err=%v", tok, exp, err)
		}
		id, err := tokens.Resolve(ctx, tok)
		if err != nil || id != u.ID {
			t.Fatalf("resolve: id=%q err=%v", id, err)
		}
		advance(time.Hour)
		if _, err := tokens.Resolve(ctx, tok); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected expired token to be ErrNotFound, got %v", err)
		}
	})

	t.Run("revoke_and_deactivate", func(t *testing.T) {
		tokens, users, _, cleanup := makeRepo(t)
		t.Cleanup(cleanup)
		ctx := context.Background()
		u, err := users.Create(ctx, model.User{Email: "r@example.com", Active: true}, "pw")
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		t1, _, _ := tokens.Issue(ctx, u.ID, time.Hour)
		t2, _, _ := tokens.Issue(ctx, u.ID, time.Hour)
		if err := tokens.Revoke(ctx, t1); err != nil {
			t.Fatalf("revoke: %v", err)
		}
		if _, err := tokens.Resolve(ctx, t1); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("revoked token resolved: %v", err)
		}
		if _, err := users.Deactivate(ctx, u.ID); err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		if _, err := tokens.Resolve(ctx, t2); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("token of deactivated user resolved: %v", err)
		}
		if _, _, err := tokens.Issue(ctx, "missing", time.Hour); !errors.Is(err, repository.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
		}
	})
}

func RunPingerContract(t *testing.T, makePinger PingerFactory) {
	t.Helper()
	p, cleanup := makePinger(t)
	t.Cleanup(cleanup)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Ping(ctx); err == nil {
		t.Fatalf("ping with canceled context should fail")
	}
}
