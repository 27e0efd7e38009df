package docker

import (
	"github.com/docker/docker/api/types/registry"

	"github.com/mmr-tortoise/dockstack/internal/model"
)

// PasswordAuth authenticates to a registry with a username and password.
type PasswordAuth struct {
	Username      string
	Password      string
	Email         string
	ServerAddress string
}

// TokenAuth authenticates to a registry with an identity token obtained
// from a previous login.
type TokenAuth struct {
	IdentityToken string
	ServerAddress string
}

// RegistryAuth carries at most one of the two credential forms. Supplying
// both is a validation error.
type RegistryAuth struct {
	Password *PasswordAuth
	Token    *TokenAuth
}

// Validate checks that at most one form is set and that the set form is
// complete.
func (a RegistryAuth) Validate() error {
	switch {
	case a.Password != nil && a.Token != nil:
		return model.NewError(model.KindValidation,
			"got both password and identity-token authentication; only one of these options is allowed")
	case a.Password != nil:
		if a.Password.Username == "" || a.Password.Password == "" {
			return model.NewError(model.KindValidation, "password authentication requires a username and a password")
		}
	case a.Token != nil:
		if a.Token.IdentityToken == "" {
			return model.NewError(model.KindValidation, "token authentication requires a non-empty identity token")
		}
	}
	return nil
}

// IsZero reports whether no credentials are set.
func (a RegistryAuth) IsZero() bool {
	return a.Password == nil && a.Token == nil
}

// encode returns the base64url JSON payload of the X-Registry-Auth header,
// or "" when no credentials are set.
func (a RegistryAuth) encode() (string, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}

	var cfg registry.AuthConfig
	switch {
	case a.Password != nil:
		cfg = registry.AuthConfig{
			Username:      a.Password.Username,
			Password:      a.Password.Password,
			Email:         a.Password.Email,
			ServerAddress: a.Password.ServerAddress,
		}
	case a.Token != nil:
		cfg = registry.AuthConfig{
			IdentityToken: a.Token.IdentityToken,
			ServerAddress: a.Token.ServerAddress,
		}
	default:
		return "", nil
	}

	encoded, err := registry.EncodeAuthConfig(cfg)
	if err != nil {
		return "", model.WrapError(model.KindValidation, "failed to encode registry credentials", err)
	}
	return encoded, nil
}
