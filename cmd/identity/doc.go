// Package identity owns the read side of worksite principals: users, their
// user types, and the credential check performed at login.
//
// Users and user types are maintained by the back-office CRUD; this package
// only reads them. Lookups report absence with ErrNotFound.
package identity
