package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsClient resolves Secrets Manager values once per process. Rotation requires a restart.
type SecretsClient struct {
	api secretsAPI

	mu     sync.Mutex
	values map[string]string
}

func NewSecretsClient(cfg sdkaws.Config) *SecretsClient {
	return newSecretsClient(secretsmanager.NewFromConfig(cfg))
}

func newSecretsClient(api secretsAPI) *SecretsClient {
	return &SecretsClient{api: api, values: make(map[string]string)}
}

// GetSecret returns the SecretString of name.
func (s *SecretsClient) GetSecret(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.values[name]; ok {
		return v, nil
	}
	out, err := s.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: sdkaws.String(name)})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	v := sdkaws.ToString(out.SecretString)
	if v == "" {
		return "", fmt.Errorf("secret %s has no string value", name)
	}
	s.values[name] = v
	return v, nil
}

// PostgresSecret is the JSON layout RDS writes for managed database credentials.
type PostgresSecret struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Host     string      `json:"host"`
	Port     json.Number `json:"port"`
	DBName   string      `json:"dbname"`
}

// GetPostgresDSN reads name and returns a libpq DSN. The secret may hold a DSN or URL as plain
// text, or RDS-style JSON credentials; sslmode applies to the JSON form only.
func (s *SecretsClient) GetPostgresDSN(ctx context.Context, name, sslmode string) (string, error) {
	raw, err := s.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		return raw, nil
	}

	var sec PostgresSecret
	if err := json.Unmarshal([]byte(raw), &sec); err != nil {
		return "", fmt.Errorf("secret %s: %w", name, err)
	}
	if sec.Username == "" || sec.Host == "" || sec.DBName == "" {
		return "", fmt.Errorf("secret %s is missing username, host or dbname", name)
	}
	port := sec.Port.String()
	if port == "" {
		port = "5432"
	}
	if sslmode == "" {
		sslmode = "require"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		sec.Host, sec.Username, sec.Password, sec.DBName, port, sslmode), nil
}
