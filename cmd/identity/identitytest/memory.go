// Package identitytest provides map-backed user and user type lookups for
// tests that need identity data without Postgres.
package identitytest

import (
	"context"
	"sync"

	"worksite/cmd/identity"
)

var (
	_ identity.UserLookup     = (*Users)(nil)
	_ identity.UserTypeLookup = (*UserTypes)(nil)
)

// Users is an identity.UserLookup over a map.
type Users struct {
	mu      sync.RWMutex
	byID    map[string]identity.User
	byEmail map[string]string
}

// NewUsers returns a Users holding users.
func NewUsers(users ...identity.User) *Users {
	m := &Users{byID: map[string]identity.User{}, byEmail: map[string]string{}}
	for _, u := range users {
		m.Put(u)
	}
	return m
}

// Put inserts or replaces u, indexed by id and normalized email.
func (m *Users) Put(u identity.User) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byID[u.ID]; ok {
		delete(m.byEmail, identity.NormalizeEmail(prev.Email))
	}
	m.byID[u.ID] = u
	m.byEmail[identity.NormalizeEmail(u.Email)] = u.ID
}

// Delete removes the user with id.
func (m *Users) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[id]; ok {
		delete(m.byEmail, identity.NormalizeEmail(u.Email))
		delete(m.byID, id)
	}
}

func (m *Users) FindByEmail(_ context.Context, email string) (identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return identity.User{}, identity.OpError{Op: "identity.FindByEmail", Kind: identity.ErrNotFound, Msg: "user"}
	}
	return m.byID[id], nil
}

func (m *Users) FindByID(_ context.Context, id string) (identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return identity.User{}, identity.OpError{Op: "identity.FindByID", Kind: identity.ErrNotFound, Msg: "user"}
	}
	return u, nil
}

// UserTypes is an identity.UserTypeLookup over a map.
type UserTypes struct {
	mu    sync.RWMutex
	types map[int64]identity.UserType
}

// NewUserTypes returns a UserTypes holding types.
func NewUserTypes(types ...identity.UserType) *UserTypes {
	m := &UserTypes{types: map[int64]identity.UserType{}}
	for _, ut := range types {
		m.Put(ut)
	}
	return m
}

// Put inserts or replaces ut.
func (m *UserTypes) Put(ut identity.UserType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types[ut.ID] = ut
}

// Delete removes the user type with id.
func (m *UserTypes) Delete(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.types, id)
}

func (m *UserTypes) FindByID(_ context.Context, id int64) (identity.UserType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ut, ok := m.types[id]
	if !ok {
		return identity.UserType{}, identity.OpError{Op: "identity.FindUserTypeByID", Kind: identity.ErrNotFound, Msg: "user type"}
	}
	return ut, nil
}
