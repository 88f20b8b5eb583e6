// Package images manages transformed image records and the credit fee charged
// for each transformation.
package images

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/illegalcall/imaginify/internal/cache"
	"github.com/illegalcall/imaginify/internal/ledger"
	"github.com/illegalcall/imaginify/internal/media"
	"github.com/illegalcall/imaginify/internal/models"
	"github.com/illegalcall/imaginify/internal/store"
)

const DefaultPageSize = 9

type Options struct {
	Folder            string
	TransformationFee int
	PageSize          int
}

type Service struct {
	images      *store.Images
	users       *store.Users
	ledger      *ledger.Ledger
	index       media.Index
	invalidator cache.Invalidator
	opts        Options
	logger      *slog.Logger
}

func NewService(db sqlx.ExtContext, l *ledger.Ledger, index media.Index, invalidator cache.Invalidator, opts Options, logger *slog.Logger) *Service {
	if invalidator == nil {
		invalidator = cache.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize < 1 {
		opts.PageSize = DefaultPageSize
	}
	return &Service{
		images:      store.NewImages(db),
		users:       store.NewUsers(db),
		ledger:      l,
		index:       index,
		invalidator: invalidator,
		opts:        opts,
		logger:      logger,
	}
}

// PageSize is the size used when callers pass none.
func (s *Service) PageSize() int {
	return s.opts.PageSize
}

// Create stores a new image authored by userID and invalidates path.
func (s *Service) Create(ctx context.Context, fields models.ImageFields, userID, path string) (*models.Image, error) {
	if !models.IsValidTransformationType(fields.TransformationType) {
		return nil, fmt.Errorf("%w: unknown transformation type %q", models.ErrInvalidInput, fields.TransformationType)
	}

	author, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	image, err := s.images.Insert(ctx, fields, author.ID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("🖼️ Image created", "imageID", image.ID, "authorID", author.ID, "type", image.TransformationType)
	s.invalidate(ctx, path)
	return image, nil
}

// Update replaces every writable field of an image owned by userID.
func (s *Service) Update(ctx context.Context, fields models.ImageFields, userID, path string) (*models.Image, error) {
	if !models.IsValidTransformationType(fields.TransformationType) {
		return nil, fmt.Errorf("%w: unknown transformation type %q", models.ErrInvalidInput, fields.TransformationType)
	}
	if err := s.checkOwner(ctx, fields.ID, userID); err != nil {
		return nil, err
	}

	image, err := s.images.Replace(ctx, fields, userID)
	if err != nil {
		return nil, err
	}
	if image == nil {
		// removed or reassigned between the ownership check and the write
		return nil, models.ErrImageNotFound
	}

	s.logger.Info("✏️ Image updated", "imageID", image.ID, "authorID", userID)
	s.invalidate(ctx, path)
	return image, nil
}

// Delete removes an image owned by userID and invalidates "/".
func (s *Service) Delete(ctx context.Context, imageID, userID string) error {
	if err := s.checkOwner(ctx, imageID, userID); err != nil {
		return err
	}

	deleted, err := s.images.Delete(ctx, imageID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return models.ErrImageNotFound
	}

	s.logger.Info("🗑️ Image deleted", "imageID", imageID, "authorID", userID)
	s.invalidate(ctx, "/")
	return nil
}

// invalidate signals path and, unless path already covers it, the gallery,
// whose pages list every image whatever page the caller came from.
func (s *Service) invalidate(ctx context.Context, path string) {
	if path == "" {
		path = "/"
	}
	s.invalidator.Invalidate(ctx, path)
	if !strings.HasPrefix(cache.GalleryPath, path) {
		s.invalidator.Invalidate(ctx, cache.GalleryPath)
	}
}

func (s *Service) checkOwner(ctx context.Context, imageID, userID string) error {
	if imageID == "" {
		return fmt.Errorf("%w: image id is required", models.ErrInvalidInput)
	}
	if !isUUID(imageID) {
		return models.ErrImageNotFound
	}
	existing, err := s.images.Get(ctx, imageID)
	if err != nil {
		return err
	}
	if existing == nil {
		return models.ErrImageNotFound
	}
	if existing.AuthorID == nil || *existing.AuthorID != userID {
		s.logger.Warn("Rejected change to image owned by another user", "imageID", imageID, "userID", userID)
		return models.ErrUnauthorized
	}
	return nil
}

// FetchByID returns the image joined with a summary of its author.
func (s *Service) FetchByID(ctx context.Context, imageID string) (*models.ImageWithAuthor, error) {
	if !isUUID(imageID) {
		return nil, models.ErrImageNotFound
	}
	image, err := s.images.GetWithAuthor(ctx, imageID)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, models.ErrImageNotFound
	}
	return image, nil
}

// ListAll pages through every image. A non-empty query is resolved through
// the media index first and limits the page to the matching public ids.
func (s *Service) ListAll(ctx context.Context, page, pageSize int, query string) (*models.ImagePage, error) {
	page, pageSize = s.normalize(page, pageSize)

	filter := store.ImageFilter{}
	if q := strings.TrimSpace(query); q != "" {
		if s.index == nil {
			return nil, fmt.Errorf("%w: media index is not configured", models.ErrExternalService)
		}
		ids, err := s.index.Search(ctx, media.BuildExpression(s.opts.Folder, q))
		if err != nil {
			return nil, err
		}
		filter = store.ImageFilter{PublicIDs: ids, ByPublicID: true}
	}

	result, err := s.page(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}

	total, err := s.images.Count(ctx, store.ImageFilter{})
	if err != nil {
		return nil, err
	}
	result.TotalCount = total
	return result, nil
}

// ListByAuthor pages through the images authored by userID.
func (s *Service) ListByAuthor(ctx context.Context, page, pageSize int, userID string) (*models.ImagePage, error) {
	page, pageSize = s.normalize(page, pageSize)

	result, err := s.page(ctx, store.ImageFilter{AuthorID: userID}, page, pageSize)
	if err != nil {
		return nil, err
	}
	result.TotalCount = result.MatchedCount
	return result, nil
}

func (s *Service) page(ctx context.Context, filter store.ImageFilter, page, pageSize int) (*models.ImagePage, error) {
	data, err := s.images.List(ctx, filter, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	matched, err := s.images.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.ImagePage{
		Data:         data,
		Page:         page,
		TotalPages:   TotalPages(matched, pageSize),
		MatchedCount: matched,
	}, nil
}

func (s *Service) normalize(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.opts.PageSize
	}
	return page, pageSize
}

// TotalPages is ceil(matched / pageSize).
func TotalPages(matched, pageSize int) int {
	if matched <= 0 || pageSize <= 0 {
		return 0
	}
	return (matched + pageSize - 1) / pageSize
}

// ChargeTransformation debits the transformation fee from userID. It refuses
// with ErrInsufficientCredits when the balance cannot cover the fee.
func (s *Service) ChargeTransformation(ctx context.Context, userID string) (*models.User, error) {
	fee := s.opts.TransformationFee
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.CreditBalance < fee {
		return nil, fmt.Errorf("%w: balance %d, fee %d", models.ErrInsufficientCredits, user.CreditBalance, fee)
	}
	// the balance may have moved since the read; the debit re-checks it
	return s.ledger.Debit(ctx, userID, fee)
}

func (s *Service) findUser(ctx context.Context, userID string) (*models.User, error) {
	if !isUUID(userID) {
		return nil, models.ErrUserNotFound
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.ErrUserNotFound
	}
	return user, nil
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
