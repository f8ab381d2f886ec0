package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/sweet-shop/internal/adapter/storage"
	"github.com/rl1809/sweet-shop/internal/config"
	"github.com/rl1809/sweet-shop/internal/core/domain"
	"github.com/rl1809/sweet-shop/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// Fires concurrent single-item purchases at one record and checks that
// exactly initialStock of them succeed. STORE_DRIVER picks the backend.
func main() {
	ctx := context.Background()

	cfg := &config.Config{
		StoreDriver: envOr("STORE_DRIVER", "memory"),
		MongoURI:    envOr("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:     envOr("MONGO_DB", "sweetshop_stress"),
		MySQLDSN:    envOr("MYSQL_DSN", "root:root@tcp(localhost:3306)/sweetshop?parseTime=true"),
	}

	stores, err := storage.Open(ctx, cfg, zap.NewNop())
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer stores.Close(ctx)

	sweet, err := stores.Sweets.Insert(ctx, domain.Sweet{
		Name:      fmt.Sprintf("Stress Fudge %d", time.Now().UnixNano()),
		Category:  domain.CategoryChocolate,
		Price:     1,
		Quantity:  initialStock,
		CreatedBy: "stress-test",
	})
	if err != nil {
		log.Fatalf("failed to seed sweet: %v", err)
	}
	defer stores.Sweets.Remove(ctx, sweet.ID)

	inventory := service.NewInventoryService(stores.Sweets, nil, nil, nil, nil)

	// Counters
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()

			_, err := inventory.Purchase(ctx, service.PurchaseRequest{
				SweetID: sweet.ID,
				BuyerID: fmt.Sprintf("buyer-%d", buyer),
			})
			var stockErr *domain.InsufficientStockError
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.As(err, &stockErr):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("buyer %d: %v", buyer, err)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	// Results
	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Store:            %s\n", cfg.StoreDriver)
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOut)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	// Assertions
	if success == initialStock && soldOut == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d purchases succeeded, %d sold out\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	final, err := stores.Sweets.FindByID(ctx, sweet.ID)
	if err != nil || final == nil {
		log.Fatalf("failed to read final stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", final.Quantity)

	if final.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected stock 0, got %d\n", final.Quantity)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
