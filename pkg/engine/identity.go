package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/itellico/mono-access/pkg/access"
	"github.com/itellico/mono-access/pkg/store"
)

// Identity resolves an authenticated user id to a principal. The
// session layer that produces the user id is external; this interface
// covers only the lookup of tenant membership and emergency state.
type Identity interface {
	Resolve(ctx context.Context, userID int64) (*access.Principal, error)
}

// StoreIdentity resolves principals from the account store.
type StoreIdentity struct {
	store store.Store
}

// NewStoreIdentity creates a store-backed identity resolver.
func NewStoreIdentity(st store.Store) *StoreIdentity {
	return &StoreIdentity{store: st}
}

// Resolve loads the account row for the user. An unknown user resolves
// to a nil principal without error, which the engine treats as an
// unauthenticated caller.
func (i *StoreIdentity) Resolve(ctx context.Context, userID int64) (*access.Principal, error) {
	account, err := i.store.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve principal %d: %w", userID, err)
	}
	return &access.Principal{
		ID:             account.ID,
		TenantID:       account.TenantID,
		EmergencyUntil: account.EmergencyUntil,
	}, nil
}
