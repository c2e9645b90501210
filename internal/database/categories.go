package database

import (
	"context"
	"errors"
	"fmt"

	"dailyjokes/internal/models"

	"github.com/jackc/pgx/v5"
)

type CategoryRepository struct {
	db *DB
}

func NewCategoryRepository(db *DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

func (r *CategoryRepository) Create(ctx context.Context, category *models.Category) error {
	query := `
		INSERT INTO categories (name, description)
		VALUES ($1, $2)
		RETURNING id, is_active, created_at
	`
	err := r.db.Pool.QueryRow(ctx, query, category.Name, category.Description).
		Scan(&category.ID, &category.IsActive, &category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateCategory, category.Name)
		}
		return err
	}
	return nil
}

func (r *CategoryRepository) GetByName(ctx context.Context, name string) (*models.Category, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM categories
		WHERE name = $1
	`
	var category models.Category
	err := r.db.Pool.QueryRow(ctx, query, name).Scan(
		&category.ID, &category.Name, &category.Description,
		&category.IsActive, &category.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, name)
		}
		return nil, err
	}
	return &category, nil
}

func (r *CategoryRepository) List(ctx context.Context, activeOnly bool) ([]models.Category, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM categories
		WHERE ($1 = false OR is_active = true)
		ORDER BY name
	`
	rows, err := r.db.Pool.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// SetActive toggles a category without ever deleting it.
func (r *CategoryRepository) SetActive(ctx context.Context, name string, active bool) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE categories SET is_active = $1 WHERE name = $2", active, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCategoryNotFound, name)
	}
	return nil
}

func (r *CategoryRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM categories").Scan(&count)
	return count, err
}
