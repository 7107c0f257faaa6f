package testutil

import (
	"context"
	"net/http"

	"dealflow/internal/domain"
	"dealflow/pkg/requestcontext"
)

// Broker returns a broker actor for tests.
func Broker(id, name string) domain.Actor {
	return domain.Actor{ID: id, Type: domain.ActorBroker, Name: name}
}

// Client returns a client actor for tests.
func Client(id, name string) domain.Actor {
	return domain.Actor{ID: id, Type: domain.ActorClient, Name: name}
}

// Admin returns an admin actor for tests.
func Admin(id, name string) domain.Actor {
	return domain.Actor{ID: id, Type: domain.ActorAdmin, Name: name}
}

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actor domain.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
