// Package identity verifies that the caller controls a party reference.
// The engine never interprets party identifiers itself; it delegates every
// authorization decision to a Verifier supplied by the host.
package identity

import (
	"context"

	"github.com/Tidemark-Labs/covenant/pkg/contracts"
)

// Verifier proves control of a party reference for the current invocation.
type Verifier interface {
	// RequireAuthorized returns nil when the invocation carries proof of
	// control over party, contracts.ErrUnauthorized otherwise. It must be
	// side-effect-free.
	RequireAuthorized(ctx context.Context, party contracts.Party) error
}

// ValidateParty performs the structural check every workflow applies
// before consulting the Verifier: a party reference must be non-empty.
func ValidateParty(party contracts.Party) error {
	if party == "" {
		return contracts.ErrInvalidAddress
	}
	return nil
}

// Static authorizes a fixed set of parties. Used by tests and by hosts
// whose outer transport already authenticated the caller.
type Static struct {
	allowAll bool
	allowed  map[contracts.Party]bool
}

// AllowAll authorizes every well-formed party.
func AllowAll() *Static {
	return &Static{allowAll: true}
}

// Allow authorizes exactly the given parties.
func Allow(parties ...contracts.Party) *Static {
	s := &Static{allowed: make(map[contracts.Party]bool, len(parties))}
	for _, p := range parties {
		s.allowed[p] = true
	}
	return s
}

func (s *Static) RequireAuthorized(_ context.Context, party contracts.Party) error {
	if err := ValidateParty(party); err != nil {
		return err
	}
	if s.allowAll || s.allowed[party] {
		return nil
	}
	return contracts.ErrUnauthorized
}
