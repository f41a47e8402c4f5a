package catalog

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrProductNotFound = errors.New("product not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Repository reads products from SQLite or PostgreSQL; the queries are
// written in the dialect both accept.
type Repository struct {
	db     *sql.DB
	driver string
}

func NewRepository(driver, dsn string) (*Repository, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported catalog driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db, driver: driver}, nil
}

func (r *Repository) RunMigrations() error {
	var (
		driver database.Driver
		err    error
	)
	switch r.driver {
	case DriverPostgres:
		driver, err = postgres.WithInstance(r.db, &postgres.Config{})
	default:
		driver, err = sqlite.WithInstance(r.db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, r.driver, driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) AllProducts(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT id, name, price, original_price, image_url, in_stock
		FROM products
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) Product(ctx context.Context, id string) (domain.Product, error) {
	query := `
		SELECT id, name, price, original_price, image_url, in_stock
		FROM products
		WHERE id = $1
	`

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// Upsert inserts or replaces a product; used for seeding and admin edits.
func (r *Repository) Upsert(ctx context.Context, p domain.Product) error {
	query := `
		INSERT INTO products (id, name, price, original_price, image_url, in_stock, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			original_price = excluded.original_price,
			image_url = excluded.image_url,
			in_stock = excluded.in_stock
	`

	var original sql.NullFloat64
	if p.OriginalPrice != nil {
		original = sql.NullFloat64{Float64: *p.OriginalPrice, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.Price, original, p.Image, p.InStock, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

// Seed upserts every product of a JSON array read from src.
func (r *Repository) Seed(ctx context.Context, src io.Reader) (int, error) {
	var products []domain.Product
	if err := json.NewDecoder(src).Decode(&products); err != nil {
		return 0, fmt.Errorf("failed to decode seed: %w", err)
	}

	for i, p := range products {
		if p.ID == "" {
			return i, fmt.Errorf("seed product %d has no id", i)
		}
		if p.Price < 0 || (p.OriginalPrice != nil && *p.OriginalPrice < 0) {
			return i, fmt.Errorf("seed product %s has a negative price", p.ID)
		}
		if err := r.Upsert(ctx, p); err != nil {
			return i, err
		}
	}
	return len(products), nil
}

func (r *Repository) Snapshot(ctx context.Context) (Snapshot, error) {
	products, err := r.AllProducts(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(products), nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (domain.Product, error) {
	var (
		p        domain.Product
		original sql.NullFloat64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Price, &original, &p.Image, &p.InStock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, err
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("failed to scan product: %w", err)
	}
	if original.Valid {
		v := original.Float64
		p.OriginalPrice = &v
	}
	return p, nil
}
