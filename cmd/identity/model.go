package identity

import (
	"context"
	"time"
)

// User is a back-office account as seen by authentication.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	UserTypeID   int64
	CreatedAt    time.Time
}

// UserType is a role with its permission flags.
type UserType struct {
	ID                 int64
	Name               string
	ApproveMeasurement bool
}

// UserLookup finds users. Implementations return ErrNotFound when absent.
type UserLookup interface {
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
}

// UserTypeLookup finds user types. Implementations return ErrNotFound when absent.
type UserTypeLookup interface {
	FindByID(ctx context.Context, id int64) (UserType, error)
}
