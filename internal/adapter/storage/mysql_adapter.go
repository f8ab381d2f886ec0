package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rl1809/sweet-shop/internal/core/domain"
)

var ErrOptimisticLock = errors.New("optimistic lock conflict")

const (
	maxUpdateAttempts = 3
	mysqlErrDupEntry  = 1062
)

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS sweets (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		category VARCHAR(32) NOT NULL,
		price DECIMAL(10,2) NOT NULL,
		quantity INT NOT NULL DEFAULT 0,
		created_by VARCHAR(64) NOT NULL,
		version INT NOT NULL DEFAULT 1,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_sweets_category (category),
		INDEX idx_sweets_price (price),
		INDEX idx_sweets_created_at (created_at),
		CONSTRAINT chk_sweets_quantity CHECK (quantity >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(50) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(16) NOT NULL,
		created_at DATETIME(6) NOT NULL
	)`,
}

const sweetColumns = `id, name, category, price, quantity, created_by, version, created_at, updated_at`

type sweetRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Category  string    `db:"category"`
	Price     float64   `db:"price"`
	Quantity  int       `db:"quantity"`
	CreatedBy string    `db:"created_by"`
	Version   int       `db:"version"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r sweetRow) toDomain() domain.Sweet {
	return domain.Sweet{
		ID:        r.ID,
		Name:      r.Name,
		Category:  domain.Category(r.Category),
		Price:     r.Price,
		Quantity:  r.Quantity,
		CreatedBy: r.CreatedBy,
		Version:   r.Version,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type userRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	CreatedAt    time.Time `db:"created_at"`
}

// MySQLAdapter stores sweets and users in MySQL. It expects a DSN with
// parseTime=true.
type MySQLAdapter struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewMySQLAdapter(db *sqlx.DB) *MySQLAdapter {
	return &MySQLAdapter{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *MySQLAdapter) Migrate(ctx context.Context) error {
	for _, stmt := range mysqlSchema {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) FindAll(ctx context.Context) ([]domain.Sweet, error) {
	return m.FindByFilter(ctx, domain.SweetFilter{})
}

func (m *MySQLAdapter) FindByID(ctx context.Context, id string) (*domain.Sweet, error) {
	return findSweet(ctx, m.db, id)
}

func findSweet(ctx context.Context, q sqlx.QueryerContext, id string) (*domain.Sweet, error) {
	var row sweetRow
	err := sqlx.GetContext(ctx, q, &row, `SELECT `+sweetColumns+` FROM sweets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query sweet: %w", err)
	}

	s := row.toDomain()
	return &s, nil
}

func (m *MySQLAdapter) FindByFilter(ctx context.Context, filter domain.SweetFilter) ([]domain.Sweet, error) {
	where, args := mysqlWhere(filter)
	query := `SELECT ` + sweetColumns + ` FROM sweets` + where + ` ORDER BY created_at DESC, id DESC`

	var rows []sweetRow
	if err := m.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query sweets: %w", err)
	}

	sweets := make([]domain.Sweet, 0, len(rows))
	for _, r := range rows {
		sweets = append(sweets, r.toDomain())
	}
	return sweets, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func mysqlWhere(f domain.SweetFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.NameContains != "" {
		clauses = append(clauses, `LOWER(name) LIKE ?`)
		args = append(args, "%"+likeEscaper.Replace(strings.ToLower(f.NameContains))+"%")
	}
	if f.Category != nil {
		clauses = append(clauses, `category = ?`)
		args = append(args, string(*f.Category))
	}
	if f.MinPrice != nil {
		clauses = append(clauses, `price >= ?`)
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		clauses = append(clauses, `price <= ?`)
		args = append(args, *f.MaxPrice)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args
}

func (m *MySQLAdapter) Insert(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error) {
	if err := sweet.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	sweet.ID = uuid.NewString()
	sweet.Version = 1
	sweet.CreatedAt = now
	sweet.UpdatedAt = now

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sweets (`+sweetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sweet.ID, sweet.Name, sweet.Category, sweet.Price, sweet.Quantity,
		sweet.CreatedBy, sweet.Version, sweet.CreatedAt, sweet.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert sweet: %w", err)
	}
	return &sweet, nil
}

// Update applies the patch under the version check, retrying when another
// writer bumped the version in between.
func (m *MySQLAdapter) Update(ctx context.Context, id string, patch domain.SweetPatch) (*domain.Sweet, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		updated, err := m.updateOnce(ctx, id, patch)
		if errors.Is(err, ErrOptimisticLock) {
			continue
		}
		return updated, err
	}
	return nil, ErrOptimisticLock
}

func (m *MySQLAdapter) updateOnce(ctx context.Context, id string, patch domain.SweetPatch) (*domain.Sweet, error) {
	current, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}

	merged := patch.Apply(*current)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	merged.UpdatedAt = m.now()

	result, err := m.db.ExecContext(ctx, `
		UPDATE sweets
		SET name = ?, category = ?, price = ?, quantity = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		merged.Name, merged.Category, merged.Price, merged.Quantity, merged.UpdatedAt,
		id, current.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("update sweet: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrOptimisticLock
	}

	merged.Version = current.Version + 1
	return &merged, nil
}

func (m *MySQLAdapter) Remove(ctx context.Context, id string) error {
	result, err := m.db.ExecContext(ctx, `DELETE FROM sweets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (m *MySQLAdapter) DecrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error) {
	short := func(current *domain.Sweet) error {
		return &domain.InsufficientStockError{Available: current.Quantity}
	}
	return m.adjustQuantity(ctx, id, short, `
		UPDATE sweets
		SET quantity = quantity - ?, version = version + 1, updated_at = ?
		WHERE id = ? AND quantity >= ?`,
		n, m.now(), id, n,
	)
}

func (m *MySQLAdapter) IncrementQuantity(ctx context.Context, id string, n int) (*domain.Sweet, error) {
	full := func(*domain.Sweet) error { return domain.ErrInvalidQuantity }
	return m.adjustQuantity(ctx, id, full, `
		UPDATE sweets
		SET quantity = quantity + ?, version = version + 1, updated_at = ?
		WHERE id = ? AND quantity <= ?`,
		n, m.now(), id, domain.MaxQuantity-n,
	)
}

// adjustQuantity runs a conditional quantity update and reads the row back in
// the same transaction. When nothing matched, the row is inspected to tell a
// missing record from one that failed the condition, reported by onMiss.
func (m *MySQLAdapter) adjustQuantity(ctx context.Context, id string, onMiss func(*domain.Sweet) error, stmt string, args ...any) (*domain.Sweet, error) {
	tx, err := m.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("update quantity: %w", err)
	}

	rows, _ := result.RowsAffected()
	current, err := findSweet(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	if rows == 0 {
		return nil, onMiss(current)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return current, nil
}

func (m *MySQLAdapter) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.ID = uuid.NewString()
	user.CreatedAt = m.now()

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.CreatedAt,
	)
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlErrDupEntry {
		return nil, domain.ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

func (m *MySQLAdapter) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.findUser(ctx, `email = ?`, email)
}

func (m *MySQLAdapter) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	return m.findUser(ctx, `id = ?`, id)
}

func (m *MySQLAdapter) findUser(ctx context.Context, cond string, arg any) (*domain.User, error) {
	var row userRow
	err := m.db.GetContext(ctx, &row, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users WHERE `+cond, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &domain.User{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		Role:         domain.Role(row.Role),
		CreatedAt:    row.CreatedAt,
	}, nil
}
