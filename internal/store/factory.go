package store

import (
	"gymgate/internal/types"

	"github.com/sirupsen/logrus"
)

// NewStore creates a Store based on configuration: Redis when a DSN is
// provided, otherwise the in-process memory store.
func NewStore(configManager types.ConfigManager) (Store, error) {
	redisDSN := configManager.GetRedisDSN()
	if redisDSN == "" {
		logrus.Info("No REDIS_DSN configured, using in-memory store")
		return NewMemoryStore(), nil
	}

	logrus.Info("Using Redis store")
	return NewRedisStore(redisDSN)
}
