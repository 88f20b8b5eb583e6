package api

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/imaginify/internal/cache"
	"github.com/illegalcall/imaginify/internal/models"
)

// ImageRequest carries the image fields and the view path to invalidate.
type ImageRequest struct {
	Image models.ImageFields `json:"image"`
	Path  string             `json:"path"`
}

func (s *Server) handleCreateImage(c *fiber.Ctx) error {
	var req ImageRequest
	if err := s.bindAndValidate(c, &req); err != nil {
		return s.writeError(c, err)
	}

	image, err := s.images.Create(c.UserContext(), req.Image, currentUser(c).ID, req.Path)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"image": image})
}

func (s *Server) handleUpdateImage(c *fiber.Ctx) error {
	var req ImageRequest
	if err := s.bindAndValidate(c, &req); err != nil {
		return s.writeError(c, err)
	}
	req.Image.ID = c.Params("id")

	image, err := s.images.Update(c.UserContext(), req.Image, currentUser(c).ID, req.Path)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"image": image})
}

func (s *Server) handleDeleteImage(c *fiber.Ctx) error {
	if err := s.images.Delete(c.UserContext(), c.Params("id"), currentUser(c).ID); err != nil {
		return s.writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetImage(c *fiber.Ctx) error {
	image, err := s.images.FetchByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"image": image})
}

// handleListImages serves the public gallery, cached per query string under
// cache.GalleryPath until an image mutation invalidates it.
func (s *Server) handleListImages(c *fiber.Ctx) error {
	key := cache.GalleryPath
	if q := c.Request().URI().QueryString(); len(q) > 0 {
		key += "?" + string(q)
	}
	if s.views != nil {
		if body, ok := s.views.Get(c.UserContext(), key); ok {
			c.Set("X-Cache", "HIT")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(body)
		}
	}

	page, err := s.images.ListAll(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("pageSize", 0), c.Query("query"))
	if err != nil {
		return s.writeError(c, err)
	}

	body, err := json.Marshal(page)
	if err != nil {
		return s.writeError(c, err)
	}
	if s.views != nil {
		s.views.Set(c.UserContext(), key, body)
	}
	c.Set("X-Cache", "MISS")
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

func (s *Server) handleChargeTransformation(c *fiber.Ctx) error {
	user, err := s.images.ChargeTransformation(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(models.TransformResponse{
		CreditBalance: user.CreditBalance,
		Fee:           s.cfg.Credits.TransformationFee,
	})
}
