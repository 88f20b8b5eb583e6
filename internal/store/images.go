package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/illegalcall/imaginify/internal/models"
)

const imageColumns = `id, title, transformation_type, public_id, secure_url, width, height, config,
	transformation_url, aspect_ratio, color, prompt, author_id, created_at, updated_at`

const imageWithAuthorSelect = `SELECT
	i.id, i.title, i.transformation_type, i.public_id, i.secure_url, i.width, i.height, i.config,
	i.transformation_url, i.aspect_ratio, i.color, i.prompt, i.author_id, i.created_at, i.updated_at,
	u.id AS "author.id", u.first_name AS "author.first_name", u.last_name AS "author.last_name",
	u.external_id AS "author.external_id", u.username AS "author.username"
FROM images i
LEFT JOIN users u ON u.id = i.author_id`

// authorRow holds the nullable side of the images/users outer join.
type authorRow struct {
	ID         *string `db:"id"`
	FirstName  *string `db:"first_name"`
	LastName   *string `db:"last_name"`
	ExternalID *string `db:"external_id"`
	Username   *string `db:"username"`
}

type imageRow struct {
	models.Image
	Author authorRow `db:"author"`
}

func (r imageRow) toModel() models.ImageWithAuthor {
	out := models.ImageWithAuthor{Image: r.Image}
	if r.Author.ID != nil {
		out.Author = &models.AuthorSummary{
			ID:         *r.Author.ID,
			FirstName:  r.Author.FirstName,
			LastName:   r.Author.LastName,
			ExternalID: deref(r.Author.ExternalID),
			Username:   deref(r.Author.Username),
		}
	}
	return out
}

// ImageFilter narrows list and count queries. When ByPublicID is set, only
// rows whose public_id is in PublicIDs match (an empty set matches nothing).
type ImageFilter struct {
	AuthorID   string
	PublicIDs  []string
	ByPublicID bool
}

func (f ImageFilter) where() (string, []interface{}) {
	var clauses []string
	var args []interface{}
	if f.AuthorID != "" {
		args = append(args, f.AuthorID)
		clauses = append(clauses, fmt.Sprintf("i.author_id = $%d", len(args)))
	}
	if f.ByPublicID {
		args = append(args, pq.Array(f.PublicIDs))
		clauses = append(clauses, fmt.Sprintf("i.public_id = ANY($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type Images struct {
	db sqlx.ExtContext
}

func NewImages(db sqlx.ExtContext) *Images {
	return &Images{db: db}
}

func (s *Images) Insert(ctx context.Context, fields models.ImageFields, authorID string) (*models.Image, error) {
	var image models.Image
	err := sqlx.GetContext(ctx, s.db, &image,
		`INSERT INTO images (title, transformation_type, public_id, secure_url, width, height, config,
			transformation_url, aspect_ratio, color, prompt, author_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+imageColumns,
		fields.Title, fields.TransformationType, fields.PublicID, fields.SecureURL,
		fields.Width, fields.Height, fields.ConfigJSON(),
		fields.TransformationURL, fields.AspectRatio, fields.Color, fields.Prompt, authorID)
	if err != nil {
		return nil, persistenceErr("insert image", err)
	}
	return &image, nil
}

// Get returns the bare image row, or (nil, nil) when absent.
func (s *Images) Get(ctx context.Context, id string) (*models.Image, error) {
	var image models.Image
	err := sqlx.GetContext(ctx, s.db, &image, `SELECT `+imageColumns+` FROM images WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceErr("get image", err)
	}
	return &image, nil
}

// GetWithAuthor returns the image joined with its author summary, or (nil, nil).
func (s *Images) GetWithAuthor(ctx context.Context, id string) (*models.ImageWithAuthor, error) {
	var row imageRow
	err := sqlx.GetContext(ctx, s.db, &row, imageWithAuthorSelect+` WHERE i.id = $1 LIMIT 1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceErr("get image with author", err)
	}
	image := row.toModel()
	return &image, nil
}

// Replace overwrites every writable field of the image owned by authorID.
// It returns (nil, nil) when no row with that id and author exists.
func (s *Images) Replace(ctx context.Context, fields models.ImageFields, authorID string) (*models.Image, error) {
	var image models.Image
	err := sqlx.GetContext(ctx, s.db, &image,
		`UPDATE images SET
			title = $1, transformation_type = $2, public_id = $3, secure_url = $4,
			width = $5, height = $6, config = $7, transformation_url = $8,
			aspect_ratio = $9, color = $10, prompt = $11, updated_at = NOW()
		WHERE id = $12 AND author_id = $13
		RETURNING `+imageColumns,
		fields.Title, fields.TransformationType, fields.PublicID, fields.SecureURL,
		fields.Width, fields.Height, fields.ConfigJSON(), fields.TransformationURL,
		fields.AspectRatio, fields.Color, fields.Prompt, fields.ID, authorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, persistenceErr("replace image", err)
	}
	return &image, nil
}

// Delete removes the image owned by authorID and reports whether a row went away.
func (s *Images) Delete(ctx context.Context, id, authorID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = $1 AND author_id = $2`, id, authorID)
	if err != nil {
		return false, persistenceErr("delete image", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, persistenceErr("delete image", err)
	}
	return n > 0, nil
}

// List returns one page of images, newest update first.
func (s *Images) List(ctx context.Context, filter ImageFilter, limit, offset int) ([]models.ImageWithAuthor, error) {
	where, args := filter.where()
	args = append(args, limit, offset)
	query := fmt.Sprintf("%s%s ORDER BY i.updated_at DESC LIMIT $%d OFFSET $%d",
		imageWithAuthorSelect, where, len(args)-1, len(args))

	var rows []imageRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, persistenceErr("list images", err)
	}

	images := make([]models.ImageWithAuthor, 0, len(rows))
	for _, row := range rows {
		images = append(images, row.toModel())
	}
	return images, nil
}

func (s *Images) Count(ctx context.Context, filter ImageFilter) (int, error) {
	where, args := filter.where()
	var count int
	if err := sqlx.GetContext(ctx, s.db, &count, `SELECT COUNT(*) FROM images i`+where, args...); err != nil {
		return 0, persistenceErr("count images", err)
	}
	return count, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
