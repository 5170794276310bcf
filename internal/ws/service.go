package ws

import (
	"go.uber.org/zap"
)

// Service bundles the WebSocket registry and handler for the composition root.
type Service struct {
	registry *Registry
	handler  *Handler
}

// NewService creates a new WebSocket service.
func NewService(registry *Registry, dispatcher CommandDispatcher, log *zap.Logger) *Service {
	return &Service{
		registry: registry,
		handler:  NewHandler(registry, dispatcher, log),
	}
}

// Registry returns the client registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Handler returns the connection handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// Close closes all client connections.
func (s *Service) Close() {
	s.registry.Close()
}
