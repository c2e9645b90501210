package database

import (
	"context"
	"errors"
	"fmt"

	"dailyjokes/internal/models"

	"github.com/jackc/pgx/v5"
)

type JokeRepository struct {
	db *DB
}

func NewJokeRepository(db *DB) *JokeRepository {
	return &JokeRepository{db: db}
}

// CreateInCategory stores a joke under the named category.
func (r *JokeRepository) CreateInCategory(ctx context.Context, content, categoryName string) (*models.Joke, error) {
	query := `
		INSERT INTO jokes (content, category_id)
		SELECT $1, id FROM categories WHERE name = $2
		RETURNING id, content, category_id, created_at, last_sent, rating, times_sent
	`
	var joke models.Joke
	err := r.db.Pool.QueryRow(ctx, query, content, categoryName).Scan(
		&joke.ID, &joke.Content, &joke.CategoryID,
		&joke.CreatedAt, &joke.LastSent, &joke.Rating, &joke.TimesSent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCategoryNotFound, categoryName)
		}
		return nil, err
	}
	return &joke, nil
}

// ListByCategory returns the jokes belonging to the named active category.
// An unknown or deactivated name yields an empty result, not an error.
func (r *JokeRepository) ListByCategory(ctx context.Context, categoryName string) ([]models.Joke, error) {
	query := `
		SELECT j.id, j.content, j.category_id, j.created_at, j.last_sent, j.rating, j.times_sent
		FROM jokes j
		JOIN categories c ON c.id = j.category_id
		WHERE c.name = $1 AND c.is_active = true
		ORDER BY j.last_sent ASC NULLS FIRST, j.id
	`
	rows, err := r.db.Pool.Query(ctx, query, categoryName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jokes []models.Joke
	for rows.Next() {
		var j models.Joke
		if err := rows.Scan(&j.ID, &j.Content, &j.CategoryID, &j.CreatedAt, &j.LastSent, &j.Rating, &j.TimesSent); err != nil {
			return nil, err
		}
		jokes = append(jokes, j)
	}
	return jokes, rows.Err()
}

// AddVote folds one reader vote into the joke's running weighted mean under a
// row lock, so concurrent votes cannot lose an update.
func (r *JokeRepository) AddVote(ctx context.Context, jokeID int64, vote int) (*models.Joke, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin vote: %w", err)
	}
	defer tx.Rollback(ctx)

	var rating float64
	var timesSent int
	err = tx.QueryRow(ctx,
		"SELECT rating, times_sent FROM jokes WHERE id = $1 FOR UPDATE", jokeID).
		Scan(&rating, &timesSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %d", ErrJokeNotFound, jokeID)
		}
		return nil, err
	}

	rating, timesSent = models.NextRating(rating, timesSent, vote)

	var joke models.Joke
	err = tx.QueryRow(ctx, `
		UPDATE jokes SET rating = $1, times_sent = $2
		WHERE id = $3
		RETURNING id, content, category_id, created_at, last_sent, rating, times_sent`,
		rating, timesSent, jokeID).Scan(
		&joke.ID, &joke.Content, &joke.CategoryID,
		&joke.CreatedAt, &joke.LastSent, &joke.Rating, &joke.TimesSent,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit vote: %w", err)
	}
	return &joke, nil
}

func (r *JokeRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM jokes").Scan(&count)
	return count, err
}

func (r *JokeRepository) CountByCategory(ctx context.Context, categoryName string) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM jokes j
		JOIN categories c ON c.id = j.category_id
		WHERE c.name = $1`, categoryName).Scan(&count)
	return count, err
}
