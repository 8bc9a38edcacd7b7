// Package authclient is the consuming side of the auth service: a transport
// boundary that classifies responses, a coordinator that refreshes an expired
// access token exactly once for any number of concurrent callers, and a
// session manager that owns the signed-in identity.
package authclient

import "time"

// Roles accepted by the auth service.
const (
	RoleLearner    = "learner"
	RoleTrainer    = "trainer"
	RoleOperations = "operations"
)

// Identity is the public view of a signed-in user.
type Identity struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Credentials is the login payload.
type Credentials struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
}

// SignupData is the registration payload.
type SignupData struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// AuthSession is returned by signup and login.
type AuthSession struct {
	User        Identity `json:"user"`
	AccessToken string   `json:"accessToken"`
	ExpiresIn   int      `json:"expiresIn"`
}

type tokenGrant struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

type userEnvelope struct {
	User Identity `json:"user"`
}
