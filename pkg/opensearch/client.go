// Package opensearch wraps the catalog's full-text search index.
package opensearch

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensearch-project/opensearch-go/v2"
)

// New builds a client from cfg and pings the cluster once.
func New(ctx context.Context, cfg Config) (*opensearch.Client, error) {
	osCfg := opensearch.Config{
		Addresses:    cfg.Addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DisableRetry: cfg.DisableRetry,
	}
	if !cfg.DisableRetry {
		osCfg.MaxRetries = cfg.MaxRetries
	}
	client, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	if err := Ping(client)(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

// Ping returns a readiness probe for the cluster.
func Ping(client *opensearch.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		res, err := client.Ping(client.Ping.WithContext(ctx))
		if err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		res.Body.Close()
		if res.IsError() {
			return errors.Join(ErrHealthcheckFailed, fmt.Errorf("ping: %s", res.Status()))
		}
		return nil
	}
}
