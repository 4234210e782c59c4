// Package service implements the session directory over the message log.
package service

import (
	"log/slog"

	"github.com/xiaot623/gogo/chatrelay/internal/hub"
	"github.com/xiaot623/gogo/chatrelay/internal/repository"
)

type Service struct {
	store  repository.Store
	hub    *hub.Hub
	logger *slog.Logger
}

func New(store repository.Store, h *hub.Hub, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		hub:    h,
		logger: logger,
	}
}
