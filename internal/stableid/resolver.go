package stableid

import "github.com/google/uuid"

// Resolver assigns and recalls stable ids, generating a fresh one the first
// time a signature is seen and persisting it thereafter.
type Resolver struct {
	store *Store
}

// NewResolver wraps store with stable-id generation.
func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the stable id for signature, assigning and persisting a
// new one (a uuid) the first time signature is seen.
func (r *Resolver) Resolve(signature string) (string, error) {
	if id, ok, err := r.store.Lookup(signature); err != nil {
		return "", err
	} else if ok {
		return id, nil
	}
	id := uuid.New().String()
	if err := r.store.Assign(signature, id); err != nil {
		return "", err
	}
	return id, nil
}
