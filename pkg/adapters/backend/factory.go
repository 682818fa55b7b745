package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/apperrors"
	"github.com/Mongkii/x-chat-with-your-data-fabric-PowerBI/pkg/models"
)

// Factory creates backends for connection identities. Implementations
// are injected into the orchestrator so tests can substitute fixtures.
type Factory interface {
	Create(ctx context.Context, identity models.ConnectionIdentity) (Backend, error)
}

// Constructor builds one kind of backend.
type Constructor func(ctx context.Context, identity models.ConnectionIdentity, logger *zap.Logger) (Backend, error)

// Registry maps backend kinds to constructors.
type Registry struct {
	constructors map[models.BackendKind]Constructor
	logger       *zap.Logger
}

var _ Factory = (*Registry)(nil)

// NewRegistry creates an empty backend registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		constructors: map[models.BackendKind]Constructor{},
		logger:       logger,
	}
}

// Register adds a constructor for a backend kind.
func (r *Registry) Register(kind models.BackendKind, ctor Constructor) {
	r.constructors[kind] = ctor
}

// Create implements Factory.
func (r *Registry) Create(ctx context.Context, identity models.ConnectionIdentity) (Backend, error) {
	ctor, ok := r.constructors[identity.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrUnknownBackend, identity.Kind)
	}
	return ctor(ctx, identity, r.logger)
}
