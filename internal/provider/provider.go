package provider

import (
	"context"

	"github.com/kursadbilgin/notification-service/internal/domain"
)

// Provider is the outbound delivery port for a single channel.
//
// Send returns a Response with Accepted=false when the provider answered but
// refused the message, and an error only for transport-level failures.
type Provider interface {
	Name() string
	Channel() domain.Channel
	Send(ctx context.Context, req domain.DeliveryRequest) (*Response, error)
}

// Response stores provider call metadata for the audit trail.
type Response struct {
	Accepted   bool
	StatusCode int
	Body       string
	MessageID  string
}

// Registry selects providers by channel.
type Registry map[domain.Channel]Provider

func NewRegistry(providers ...Provider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		r[p.Channel()] = p
	}
	return r
}

func (r Registry) Lookup(channel domain.Channel) (Provider, bool) {
	p, ok := r[channel]
	return p, ok
}
