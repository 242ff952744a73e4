package cmd

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/careloop/careloop/pkg/subjects"
)

// NewSubjectStore builds the clinic record system client. When redisURL is
// non-empty reads are served through a redis cache.
func NewSubjectStore(logger *slog.Logger, baseURL, apiKey, redisURL string) (subjects.Store, error) {
	store := subjects.NewHTTPStore(baseURL, apiKey, subjects.DefaultRequestTimeout, logger)

	if redisURL == "" {
		return store, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	return subjects.NewCachedStore(store, client, subjects.DefaultCacheTTL, logger), nil
}
