package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/illegalcall/imaginify/internal/checkout"
	"github.com/illegalcall/imaginify/internal/models"
)

func (s *Server) handleCheckout(c *fiber.Ctx) error {
	var req models.CheckoutRequest
	if err := s.bindAndValidate(c, &req); err != nil {
		return s.writeError(c, err)
	}

	plan, err := checkout.LookupPlan(req.Plan)
	if err != nil {
		return s.writeError(c, err)
	}

	url, err := s.checkout.InitiateCheckout(c.UserContext(), plan.Name, plan.Price, plan.Credits, currentUser(c).ID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(models.CheckoutResponse{URL: url})
}

func (s *Server) handleCheckoutStatus(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	status, err := s.redis.Get(c.UserContext(), models.PaymentStatusKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return s.writeError(c, fmt.Errorf("%w: no payment recorded for session %s", models.ErrNotFound, sessionID))
	}
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"sessionId": sessionID, "status": status})
}

// handleStripeWebhook verifies the notification and queues completed
// payments for the worker.
func (s *Server) handleStripeWebhook(c *fiber.Ctx) error {
	event, err := s.checkout.ParseWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, models.ErrUnauthorized) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid webhook signature"})
		}
		return s.writeError(c, err)
	}
	if event == nil {
		return c.JSON(fiber.Map{"received": true})
	}

	key := models.PaymentStatusKey(event.SessionID)
	if err := s.redis.Set(c.UserContext(), key, models.PaymentPending, s.cfg.Redis.StatusTTL).Err(); err != nil {
		s.logger.Error("Failed to record payment status", "sessionID", event.SessionID, "error", err)
	}

	if err := s.publisher.Publish(event.SessionID, event); err != nil {
		return s.writeError(c, fmt.Errorf("%w: %w", models.ErrExternalService, err))
	}

	s.logger.Info("📨 Payment confirmation queued", "sessionID", event.SessionID, "buyerID", event.BuyerID, "credits", event.Credits)
	return c.JSON(fiber.Map{"received": true})
}
