package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/port"
)

// runSweetRepositoryContract checks the behavior every SweetRepository
// adapter shares. fresh must return an empty store.
func runSweetRepositoryContract(t *testing.T, fresh func() port.SweetRepository) {
	ctx := context.Background()

	insert := func(t *testing.T, repo port.SweetRepository, name string, category domain.Category, price float64, qty int) *domain.Sweet {
		t.Helper()
		s, err := repo.Insert(ctx, domain.Sweet{
			Name: name, Category: category, Price: price, Quantity: qty, CreatedBy: "admin-1",
		})
		if err != nil {
			t.Fatalf("insert %s: %v", name, err)
		}
		return s
	}

	t.Run("InsertAndFind", func(t *testing.T) {
		repo := fresh()
		created := insert(t, repo, "Dark Chocolate", domain.CategoryChocolate, 4.99, 25)
		if created.ID == "" {
			t.Fatal("expected id to be assigned")
		}
		if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
			t.Error("expected timestamps to be set")
		}

		got, err := repo.FindByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected sweet, got nil")
		}
		if got.Name != "Dark Chocolate" || got.Quantity != 25 || got.CreatedBy != "admin-1" {
			t.Errorf("unexpected record: %+v", got)
		}
	})

	t.Run("InsertRejectsInvalid", func(t *testing.T) {
		repo := fresh()
		_, err := repo.Insert(ctx, domain.Sweet{
			Name: "Mystery", Category: "Fruit", Price: 2, CreatedBy: "admin-1",
		})
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}

		all, _ := repo.FindAll(ctx)
		if len(all) != 0 {
			t.Errorf("expected nothing persisted, got %d records", len(all))
		}
	})

	t.Run("FindByID_NotFound", func(t *testing.T) {
		repo := fresh()
		got, err := repo.FindByID(ctx, "64b7f0c2a1b2c3d4e5f60718")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != nil {
			t.Error("expected nil for unknown id")
		}

		got, err = repo.FindByID(ctx, "not-an-id")
		if err != nil || got != nil {
			t.Errorf("expected nil, nil for malformed id, got %v, %v", got, err)
		}
	})

	t.Run("FindAllNewestFirst", func(t *testing.T) {
		repo := fresh()
		insert(t, repo, "First", domain.CategoryCandy, 1, 1)
		insert(t, repo, "Second", domain.CategoryCandy, 1, 1)
		last := insert(t, repo, "Third", domain.CategoryCandy, 1, 1)

		all, err := repo.FindAll(ctx)
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 sweets, got %d", len(all))
		}
		if all[0].ID != last.ID {
			t.Errorf("expected %s first, got %s", last.Name, all[0].Name)
		}
	})

	t.Run("FindByFilter", func(t *testing.T) {
		repo := fresh()
		insert(t, repo, "Milk Chocolate Bar", domain.CategoryChocolate, 2.50, 10)
		insert(t, repo, "Gummy Bears", domain.CategoryGummy, 3.00, 10)
		insert(t, repo, "Sour Worms", domain.CategoryGummy, 5.00, 10)
		insert(t, repo, "Rainbow Lollipop", domain.CategoryLollipop, 6.00, 10)
		insert(t, repo, "100% Cocoa", domain.CategoryChocolate, 9.00, 10)

		gummy := domain.CategoryGummy
		three, five := 3.0, 5.0

		cases := []struct {
			name   string
			filter domain.SweetFilter
			want   int
		}{
			{"empty", domain.SweetFilter{}, 5},
			{"name case-insensitive", domain.SweetFilter{NameContains: "CHOCOLATE"}, 1},
			{"name literal", domain.SweetFilter{NameContains: "0%"}, 1},
			{"name regex chars", domain.SweetFilter{NameContains: ".*"}, 0},
			{"category", domain.SweetFilter{Category: &gummy}, 2},
			{"price range inclusive", domain.SweetFilter{MinPrice: &three, MaxPrice: &five}, 2},
			{"min only", domain.SweetFilter{MinPrice: &five}, 3},
			{"inverted range", domain.SweetFilter{MinPrice: &five, MaxPrice: &three}, 0},
		}
		for _, tc := range cases {
			got, err := repo.FindByFilter(ctx, tc.filter)
			if err != nil {
				t.Fatalf("%s: FindByFilter failed: %v", tc.name, err)
			}
			if len(got) != tc.want {
				t.Errorf("%s: expected %d results, got %d", tc.name, tc.want, len(got))
			}
		}
	})

	t.Run("Update", func(t *testing.T) {
		repo := fresh()
		s := insert(t, repo, "Toffee", domain.CategoryCandy, 1.25, 3)

		price := 1.75
		updated, err := repo.Update(ctx, s.ID, domain.SweetPatch{Price: &price})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.Price != 1.75 || updated.Name != "Toffee" || updated.Quantity != 3 {
			t.Errorf("unexpected record after update: %+v", updated)
		}

		negative := -1
		_, err = repo.Update(ctx, s.ID, domain.SweetPatch{Quantity: &negative})
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Errorf("expected ValidationError, got %v", err)
		}

		got, _ := repo.FindByID(ctx, s.ID)
		if got.Quantity != 3 {
			t.Errorf("expected quantity unchanged at 3, got %d", got.Quantity)
		}

		_, err = repo.Update(ctx, "64b7f0c2a1b2c3d4e5f60718", domain.SweetPatch{Price: &price})
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		repo := fresh()
		s := insert(t, repo, "Fudge", domain.CategoryOther, 2, 1)

		if err := repo.Remove(ctx, s.ID); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
		if err := repo.Remove(ctx, s.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second remove, got %v", err)
		}
		if got, _ := repo.FindByID(ctx, s.ID); got != nil {
			t.Error("expected record to be gone")
		}
	})

	t.Run("DecrementQuantity", func(t *testing.T) {
		repo := fresh()
		s := insert(t, repo, "Gummy Bears", domain.CategoryGummy, 3, 10)

		updated, err := repo.DecrementQuantity(ctx, s.ID, 3)
		if err != nil {
			t.Fatalf("DecrementQuantity failed: %v", err)
		}
		if updated.Quantity != 7 {
			t.Errorf("expected quantity 7, got %d", updated.Quantity)
		}

		_, err = repo.DecrementQuantity(ctx, s.ID, 8)
		var stockErr *domain.InsufficientStockError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if stockErr.Available != 7 {
			t.Errorf("expected available 7, got %d", stockErr.Available)
		}

		_, err = repo.DecrementQuantity(ctx, "64b7f0c2a1b2c3d4e5f60718", 1)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("IncrementQuantity", func(t *testing.T) {
		repo := fresh()
		s := insert(t, repo, "Hard Mints", domain.CategoryHardCandy, 0.5, 0)

		updated, err := repo.IncrementQuantity(ctx, s.ID, 20)
		if err != nil {
			t.Fatalf("IncrementQuantity failed: %v", err)
		}
		if updated.Quantity != 20 {
			t.Errorf("expected quantity 20, got %d", updated.Quantity)
		}

		_, err = repo.IncrementQuantity(ctx, "64b7f0c2a1b2c3d4e5f60718", 1)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("IncrementQuantity_Overflow", func(t *testing.T) {
		repo := fresh()
		s := insert(t, repo, "Butterscotch", domain.CategoryHardCandy, 0.5, 10)

		for _, n := range []int{domain.MaxQuantity, domain.MaxQuantity - 9, int(^uint(0) >> 1)} {
			_, err := repo.IncrementQuantity(ctx, s.ID, n)
			if !errors.Is(err, domain.ErrInvalidQuantity) {
				t.Errorf("increment by %d: expected ErrInvalidQuantity, got %v", n, err)
			}
		}

		stored, err := repo.FindByID(ctx, s.ID)
		if err != nil || stored == nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if stored.Quantity != 10 {
			t.Errorf("expected quantity unchanged at 10, got %d", stored.Quantity)
		}

		updated, err := repo.IncrementQuantity(ctx, s.ID, domain.MaxQuantity-10)
		if err != nil {
			t.Fatalf("increment to the limit failed: %v", err)
		}
		if updated.Quantity != domain.MaxQuantity {
			t.Errorf("expected quantity %d, got %d", domain.MaxQuantity, updated.Quantity)
		}
	})

	t.Run("InsertRejectsQuantityAboveLimit", func(t *testing.T) {
		repo := fresh()
		_, err := repo.Insert(ctx, domain.Sweet{
			Name: "Bulk Bag", Category: domain.CategoryCandy, Price: 2, Quantity: domain.MaxQuantity + 1, CreatedBy: "admin-1",
		})
		var vErr *domain.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("DecrementQuantity_Concurrent", func(t *testing.T) {
		repo := fresh()
		initialStock := 20
		totalRequests := 50
		s := insert(t, repo, "Flash Sale Fudge", domain.CategoryOther, 1, initialStock)

		var successCount atomic.Int32
		var wg sync.WaitGroup

		for i := 0; i < totalRequests; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.DecrementQuantity(ctx, s.ID, 1)
				var stockErr *domain.InsufficientStockError
				switch {
				case err == nil:
					successCount.Add(1)
				case errors.As(err, &stockErr):
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}

		wg.Wait()

		if successCount.Load() != int32(initialStock) {
			t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
		}

		got, _ := repo.FindByID(ctx, s.ID)
		if got.Quantity != 0 {
			t.Errorf("expected stock 0, got %d", got.Quantity)
		}
	})
}

func runUserRepositoryContract(t *testing.T, repo port.UserRepository) {
	ctx := context.Background()
	email := "contract-" + t.Name() + "@example.com"

	created, err := repo.CreateUser(ctx, domain.User{
		Name: "Contract", Email: email, PasswordHash: "hash", Role: domain.RoleUser,
	})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected id to be assigned")
	}

	_, err = repo.CreateUser(ctx, domain.User{Name: "Again", Email: email, PasswordHash: "hash", Role: domain.RoleUser})
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}

	byEmail, err := repo.FindUserByEmail(ctx, email)
	if err != nil || byEmail == nil || byEmail.ID != created.ID {
		t.Errorf("FindUserByEmail: got %v, %v", byEmail, err)
	}
	if byEmail != nil && byEmail.PasswordHash != "hash" {
		t.Errorf("expected password hash to round-trip, got %q", byEmail.PasswordHash)
	}

	byID, err := repo.FindUserByID(ctx, created.ID)
	if err != nil || byID == nil || byID.Email != email {
		t.Errorf("FindUserByID: got %v, %v", byID, err)
	}

	missing, err := repo.FindUserByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown email, got %v, %v", missing, err)
	}
}
