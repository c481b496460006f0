package config

import (
	"os"
	"path/filepath"
)

type StoreBackend string

const (
	StoreBackendFile   StoreBackend = "file"
	StoreBackendMemory StoreBackend = "memory"
	StoreBackendRedis  StoreBackend = "redis"
)

type StoreConfig interface {
	GetStoreBackend() StoreBackend
	GetCredentialFile() string
	GetCredentialPassphrase() string
	GetRedisAddr() string
	GetRedisPrefix() string
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetStoreBackend() StoreBackend {
	return StoreBackend(GetEnv("CREDENTIAL_STORE", string(StoreBackendFile)))
}

// GetCredentialFile defaults to a file in the user's config directory so
// tokens survive between runs.
func (Store) GetCredentialFile() string {
	if path := os.Getenv("CREDENTIAL_FILE"); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "./credentials.json"
	}
	return filepath.Join(dir, "auth-client", "credentials.json")
}

// GetCredentialPassphrase enables at-rest sealing of the credential file when set.
func (Store) GetCredentialPassphrase() string {
	return GetEnv("CREDENTIAL_PASSPHRASE", "")
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPrefix() string {
	return GetEnv("REDIS_PREFIX", "authclient")
}
