package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/adapter/storage"
	"github.com/rl1809/sweet-shop/internal/config"
	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
	"github.com/rl1809/sweet-shop/internal/observability"
	"github.com/rl1809/sweet-shop/internal/port"
)

type demoSweet struct {
	name     string
	category domain.Category
	price    float64
	quantity int
}

var demoSweets = []demoSweet{
	{"Milk Chocolate Bar", domain.CategoryChocolate, 2.49, 120},
	{"Dark Chocolate Truffle", domain.CategoryChocolate, 3.99, 60},
	{"Gummy Bears", domain.CategoryGummy, 1.25, 200},
	{"Sour Worms", domain.CategoryGummy, 1.5, 150},
	{"Rainbow Swirl Pop", domain.CategoryLollipop, 0.99, 80},
	{"Butterscotch Drops", domain.CategoryHardCandy, 1.1, 90},
	{"Peppermint Twist", domain.CategoryCandy, 0.5, 300},
	{"Cotton Candy Tub", domain.CategoryOther, 4.25, 0},
}

// Seeds an admin account and the demo catalogue into the configured store.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	stores, err := storage.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.Close(context.Background())

	auth := service.NewAuthService(stores.Users, service.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), true, logger)
	adminEmail := envOr("SEED_ADMIN_EMAIL", "admin@sweetshop.local")

	var adminID string
	session, err := auth.Register(ctx, domain.RegisterInput{
		Name:     "Shop Admin",
		Email:    adminEmail,
		Password: envOr("SEED_ADMIN_PASSWORD", "admin123"),
		Role:     domain.RoleAdmin,
	})
	switch {
	case err == nil:
		adminID = session.User.ID
		logger.Info("admin created", zap.String("email", adminEmail))
	case errors.Is(err, domain.ErrEmailTaken):
		if adminID, err = existingUserID(ctx, stores.Users, adminEmail); err != nil {
			return err
		}
		logger.Info("admin already exists", zap.String("email", adminEmail))
	default:
		return fmt.Errorf("create admin: %w", err)
	}

	inventory := service.NewInventoryService(stores.Sweets, nil, nil, logger, nil)
	existing, err := inventory.List(ctx)
	if err != nil {
		return err
	}
	present := make(map[string]bool, len(existing))
	for _, s := range existing {
		present[s.Name] = true
	}

	created := 0
	for _, d := range demoSweets {
		if present[d.name] {
			continue
		}
		price, quantity := d.price, d.quantity
		if _, err := inventory.Create(ctx, domain.SweetDraft{
			Name:     d.name,
			Category: d.category,
			Price:    &price,
			Quantity: &quantity,
		}, adminID); err != nil {
			return fmt.Errorf("create %q: %w", d.name, err)
		}
		created++
	}

	logger.Info("seed complete", zap.Int("created", created), zap.Int("skipped", len(demoSweets)-created))
	return nil
}

// existingUserID looks up an account whose registration was rejected as a
// duplicate.
func existingUserID(ctx context.Context, users port.UserRepository, email string) (string, error) {
	existing, err := users.FindUserByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return "", fmt.Errorf("find existing admin: %w", err)
	}
	if existing == nil {
		return "", fmt.Errorf("admin %s reported as taken but not found", email)
	}
	return existing.ID, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
