package auth

import (
	"context"

	"github.com/chetanft/courier-integration-sub002/internal/reqspec"
)

// Credentials is the stored secret material for one courier.
type Credentials struct {
	Username string
	Password string
	Token    string
	APIKey   string
}

func (c Credentials) IsZero() bool {
	return c.Username == "" && c.Password == "" && c.Token == "" && c.APIKey == ""
}

// CredentialSource looks up stored credentials by courier. A miss is
// reported through the bool; the error is reserved for store failures.
type CredentialSource interface {
	Lookup(ctx context.Context, courierID string) (Credentials, bool, error)
}

// fillFromStored copies stored values into empty auth fields. Inline values
// always win so a pasted command can override saved secrets.
func fillFromStored(spec *reqspec.AuthSpec, creds Credentials) {
	switch spec.Type {
	case reqspec.AuthBasic, reqspec.AuthJWTMint:
		if spec.Username == "" {
			spec.Username = creds.Username
		}
		if spec.Password == "" {
			spec.Password = creds.Password
		}
	case reqspec.AuthBearer, reqspec.AuthJWT:
		if spec.Token == "" {
			spec.Token = creds.Token
		}
	case reqspec.AuthAPIKey:
		if spec.Key == "" {
			spec.Key = creds.APIKey
		}
	}
}
