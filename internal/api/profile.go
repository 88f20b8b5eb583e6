package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/illegalcall/imaginify/internal/models"
)

func (s *Server) handleGetMe(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"user": currentUser(c)})
}

func (s *Server) handleUpdateMe(c *fiber.Ctx) error {
	var req models.UserUpdate
	if err := s.bindAndValidate(c, &req); err != nil {
		return s.writeError(c, err)
	}

	user, err := s.users.Update(c.UserContext(), currentUser(c).ExternalID, req)
	if err != nil {
		return s.writeError(c, err)
	}
	if user == nil {
		return s.writeError(c, models.ErrUserNotFound)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (s *Server) handleDeleteMe(c *fiber.Ctx) error {
	user, err := s.users.Delete(c.UserContext(), currentUser(c).ExternalID)
	if err != nil {
		return s.writeError(c, err)
	}
	if user == nil {
		return s.writeError(c, models.ErrUserNotFound)
	}
	return c.JSON(fiber.Map{"user": user})
}

func (s *Server) handleListMyImages(c *fiber.Ctx) error {
	page, err := s.images.ListByAuthor(c.UserContext(), c.QueryInt("page", 1), c.QueryInt("pageSize", 0), currentUser(c).ID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(page)
}

func (s *Server) handleListMyTransactions(c *fiber.Ctx) error {
	txs, err := s.checkout.ListByBuyer(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"transactions": txs})
}
