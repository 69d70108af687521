package qdrant

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/kailas-cloud/matchdex/internal/db"
)

// ClientConfig holds connection settings for the gRPC API.
type ClientConfig struct {
	Host      string
	Port      int
	APIKey    string
	UseTLS    bool
	UserAgent string
}

// Connect dials Qdrant and waits until its health check passes, retrying per policy.
func Connect(ctx context.Context, cfg ClientConfig, policy db.ConnectPolicy, logger *zap.Logger) (*qdrant.Client, error) {
	var opts []grpc.DialOption
	if cfg.UserAgent != "" {
		opts = append(opts, grpc.WithUserAgent(cfg.UserAgent))
	}

	dial := func(ctx context.Context) (*qdrant.Client, error) {
		client, err := qdrant.NewClient(&qdrant.Config{
			Host:        cfg.Host,
			Port:        cfg.Port,
			APIKey:      cfg.APIKey,
			UseTLS:      cfg.UseTLS,
			GrpcOptions: opts,
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant client: %w", err)
		}
		if _, err := client.HealthCheck(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("qdrant health: %w", err)
		}
		return client, nil
	}

	onRetry := func(err error, wait time.Duration) {
		logger.Warn("qdrant not ready, retrying",
			zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}
	return db.Connect(ctx, policy, dial, onRetry)
}
