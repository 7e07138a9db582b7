package data

import (
	"context"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/ajitpratap0/optibot/internal/config"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseSource reads candles from a ClickHouse table over the native
// protocol. The table needs the columns symbol, timestamp, high, low, close
// and volume.
type ClickHouseSource struct {
	conn  driver.Conn
	table string
}

// NewClickHouseSource connects and verifies the connection.
func NewClickHouseSource(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseSource, error) {
	if !identPattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("clickhouse: invalid table name %q", cfg.Table)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}
	return &ClickHouseSource{conn: conn, table: cfg.Table}, nil
}

// Candles retrieves one symbol's full history, oldest first.
func (s *ClickHouseSource) Candles(ctx context.Context, symbol string) ([]Candle, error) {
	query := fmt.Sprintf(`
		SELECT toInt64(timestamp), toFloat64(high), toFloat64(low), toFloat64(close), toFloat64(volume)
		FROM %s
		WHERE symbol = ?
		ORDER BY timestamp ASC
	`, s.table)

	rows, err := s.conn.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Timestamp, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candles: %w", err)
	}
	return candles, nil
}

// Close closes the connection.
func (s *ClickHouseSource) Close() error {
	return s.conn.Close()
}
