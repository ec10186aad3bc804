package session

import "time"

// Permissions is the permission set granted by a user type.
type Permissions struct {
	ApproveMeasurement bool `json:"approveMeasurement"`
}

// Claims is the identity snapshot embedded in an access token. It is taken
// at issuance and not re-read from storage per request.
type Claims struct {
	UserID       string      `json:"userId"`
	Email        string      `json:"email"`
	UserType     int64       `json:"userType"`
	UserTypeName string      `json:"userTypeName"`
	Permissions  Permissions `json:"permissions"`
}

// Codec issues and verifies signed, time-limited tokens.
//
// Verification failures are ErrTokenExpired or ErrTokenInvalid.
type Codec interface {
	IssueAccessToken(c Claims, now time.Time) (token string, exp time.Time, err error)
	IssueRefreshToken(userID string, now time.Time) (token string, exp time.Time, err error)
	VerifyAccessToken(token string, now time.Time) (Claims, error)
	VerifyRefreshToken(token string, now time.Time) (userID string, err error)
}
