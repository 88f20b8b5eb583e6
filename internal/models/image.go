package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Transformation kinds supported by the media service.
const (
	TransformationRestore          = "restore"
	TransformationRemoveBackground = "removeBackground"
	TransformationFill             = "fill"
	TransformationRemove           = "remove"
	TransformationRecolor          = "recolor"
)

// IsValidTransformationType reports whether kind is one of the supported transformations.
func IsValidTransformationType(kind string) bool {
	switch kind {
	case TransformationRestore, TransformationRemoveBackground, TransformationFill,
		TransformationRemove, TransformationRecolor:
		return true
	}
	return false
}

type Image struct {
	ID                 string         `json:"id" db:"id"`
	Title              string         `json:"title" db:"title"`
	TransformationType string         `json:"transformationType" db:"transformation_type"`
	PublicID           string         `json:"publicId" db:"public_id"`
	SecureURL          string         `json:"secureURL" db:"secure_url"`
	Width              *int           `json:"width,omitempty" db:"width"`
	Height             *int           `json:"height,omitempty" db:"height"`
	Config             types.JSONText `json:"config" db:"config"`
	TransformationURL  *string        `json:"transformationUrl,omitempty" db:"transformation_url"`
	AspectRatio        *string        `json:"aspectRatio,omitempty" db:"aspect_ratio"`
	Color              *string        `json:"color,omitempty" db:"color"`
	Prompt             *string        `json:"prompt,omitempty" db:"prompt"`
	AuthorID           *string        `json:"authorId,omitempty" db:"author_id"`
	CreatedAt          time.Time      `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time      `json:"updatedAt" db:"updated_at"`
}

// AuthorSummary is the slice of a User exposed next to an image.
type AuthorSummary struct {
	ID         string  `json:"id"`
	FirstName  *string `json:"firstName,omitempty"`
	LastName   *string `json:"lastName,omitempty"`
	ExternalID string  `json:"externalId"`
	Username   string  `json:"username"`
}

type ImageWithAuthor struct {
	Image
	Author *AuthorSummary `json:"author,omitempty"`
}

// ImageFields is the writable part of an Image, used for both create and full replacement.
type ImageFields struct {
	ID                 string          `json:"id,omitempty"`
	Title              string          `json:"title" validate:"required,max=200"`
	TransformationType string          `json:"transformationType" validate:"required,oneof=restore removeBackground fill remove recolor"`
	PublicID           string          `json:"publicId" validate:"required"`
	SecureURL          string          `json:"secureURL" validate:"required,url"`
	Width              *int            `json:"width,omitempty" validate:"omitempty,min=0"`
	Height             *int            `json:"height,omitempty" validate:"omitempty,min=0"`
	Config             json.RawMessage `json:"config,omitempty"`
	TransformationURL  *string         `json:"transformationUrl,omitempty" validate:"omitempty,url"`
	AspectRatio        *string         `json:"aspectRatio,omitempty" validate:"omitempty,max=10"`
	Color              *string         `json:"color,omitempty" validate:"omitempty,max=20"`
	Prompt             *string         `json:"prompt,omitempty"`
}

// ConfigJSON returns the transformation config, defaulting to an empty object.
func (f ImageFields) ConfigJSON() types.JSONText {
	if len(f.Config) == 0 || string(f.Config) == "null" {
		return types.JSONText("{}")
	}
	return types.JSONText(f.Config)
}

// ImagePage is one page of a listing. TotalPages is derived from MatchedCount;
// TotalCount is the size of the unfiltered collection.
type ImagePage struct {
	Data         []ImageWithAuthor `json:"data"`
	Page         int               `json:"page"`
	TotalPages   int               `json:"totalPages"`
	MatchedCount int               `json:"matchedCount"`
	TotalCount   int               `json:"totalCount"`
}
