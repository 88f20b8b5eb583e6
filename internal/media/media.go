// Package media queries the hosted media service for assets matching a search.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/admin/search"

	"github.com/illegalcall/imaginify/internal/models"
)

const maxResultsPerPage = 500

// Index resolves a search expression to the public ids of matching assets.
type Index interface {
	Search(ctx context.Context, expression string) ([]string, error)
}

// BuildExpression scopes a free-text query to folder.
func BuildExpression(folder, query string) string {
	query = strings.TrimSpace(query)
	if folder == "" {
		return query
	}
	return fmt.Sprintf("folder=%s AND %s", folder, query)
}

// CloudinaryIndex searches assets through the Cloudinary Admin API.
type CloudinaryIndex struct {
	cld    *cloudinary.Cloudinary
	logger *slog.Logger
}

func NewCloudinaryIndex(cloudName, apiKey, apiSecret string, logger *slog.Logger) (*CloudinaryIndex, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudinaryIndex{cld: cld, logger: logger}, nil
}

// Search follows result cursors until every matching public id is collected.
func (c *CloudinaryIndex) Search(ctx context.Context, expression string) ([]string, error) {
	var ids []string
	cursor := ""
	for {
		res, err := c.cld.Admin.Search(ctx, search.Query{
			Expression: expression,
			MaxResults: maxResultsPerPage,
			NextCursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: media search: %w", models.ErrExternalService, err)
		}
		if res.Error.Message != "" {
			return nil, fmt.Errorf("%w: media search: %s", models.ErrExternalService, res.Error.Message)
		}
		for _, asset := range res.Assets {
			ids = append(ids, asset.PublicID)
		}
		if res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	c.logger.Debug("Media search complete", "expression", expression, "matches", len(ids))
	return ids, nil
}
