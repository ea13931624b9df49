package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"

	"postviews/api/config"
)

type ClickHouseClient struct {
	Conn clickhouse.Conn
	log  *zap.Logger
}

func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, log *zap.Logger) (*ClickHouseClient, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("clickhouse is not configured")
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.NativePort)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "postviews-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Info("connected to ClickHouse", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return &ClickHouseClient{Conn: conn, log: log}, nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			c.log.Error("error closing ClickHouse connection", zap.Error(err))
			return
		}
		c.log.Info("ClickHouse connection closed")
	}
}
