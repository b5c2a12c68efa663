package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// CredentialProvider выдаёт токен, с которым worker обращается к API.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticCredentials — токен из конфигурации (REST_TOKEN).
type StaticCredentials struct {
	Value string
}

// Token возвращает заданный токен.
func (s StaticCredentials) Token(_ context.Context) (string, error) {
	if s.Value == "" {
		return "", errors.New("rest token is not configured")
	}
	return s.Value, nil
}

// KeyringCredentials читает токен из системного keyring.
type KeyringCredentials struct {
	Service string
	User    string
}

// Token читает токен из keyring при каждом вызове.
func (k KeyringCredentials) Token(_ context.Context) (string, error) {
	token, err := keyring.Get(k.Service, k.User)
	if err != nil {
		return "", fmt.Errorf("read rest token from keyring %s/%s: %w", k.Service, k.User, err)
	}
	return token, nil
}
