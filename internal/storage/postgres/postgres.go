// Package postgres persists process events of ORLE workers.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"

	"github.com/AaronLay10/orle/internal/config"
	"github.com/AaronLay10/orle/internal/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventRow represents an event stored in Postgres.
type EventRow struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	WorldID   int                    `json:"world_id"`
	WorkerID  string                 `json:"worker_id"`
	Job       *string                `json:"job,omitempty"`
}

// Config holds connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Database string
	Password string
}

// ConfigFromEnv reads PGHOST, PGPORT, PGUSER, PGDATABASE and PGPASSWORD (or
// PGPASSWORD_FILE).
func ConfigFromEnv() (Config, error) {
	password, err := config.ResolveSecret("PGPASSWORD")
	if err != nil {
		return Config{}, err
	}
	return Config{
		Host:     config.EnvOr("PGHOST", "127.0.0.1"),
		Port:     config.EnvOr("PGPORT", "5432"),
		User:     config.EnvOr("PGUSER", "orle"),
		Database: config.EnvOr("PGDATABASE", "orle"),
		Password: password,
	}, nil
}

// DSN returns the lib/pq connection string.
func (c Config) DSN() string {
	parts := []string{
		"host=" + c.Host,
		"port=" + c.Port,
		"user=" + c.User,
	}
	if c.Password != "" {
		parts = append(parts, "password="+c.Password)
	}
	parts = append(parts, "dbname="+c.Database, "sslmode=disable")
	return strings.Join(parts, " ")
}

// Client manages the Postgres connection for event storage.
type Client struct {
	db       *sql.DB
	worldID  int
	workerID string
}

// New connects and creates the job_events table if needed.
func New(ctx context.Context, cfg Config, worldID int, workerID string) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db, worldID: worldID, workerID: workerID}
	if err := client.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create job_events table: %w", err)
	}
	return client, nil
}

func (c *Client) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS job_events (
			event_id   BIGSERIAL PRIMARY KEY,
			ts         TIMESTAMPTZ NOT NULL,
			level      TEXT NOT NULL,
			event      TEXT NOT NULL,
			msg        TEXT,
			fields     JSONB,
			world_id   INTEGER NOT NULL,
			worker_id  TEXT NOT NULL,
			job        TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_job_events_ts ON job_events(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_job_events_world ON job_events(world_id);
		CREATE INDEX IF NOT EXISTS idx_job_events_job ON job_events(job);
	`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

// Write stores e. It satisfies events.Sink.
func (c *Client) Write(e events.Event) error {
	args, err := rowArgs(e)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO job_events (ts, level, event, msg, fields, job, world_id, worker_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = c.db.Exec(query, append(args, c.worldID, c.workerID)...)
	return err
}

// rowArgs converts e into the ts, level, event, msg, fields and job columns.
func rowArgs(e events.Event) ([]interface{}, error) {
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid event timestamp %q: %w", e.Timestamp, err)
	}

	var fieldsJSON []byte
	if e.Fields != nil {
		fieldsJSON, err = json.Marshal(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal fields: %w", err)
		}
	}

	var msgPtr *string
	if e.Message != "" {
		msg := e.Message
		msgPtr = &msg
	}

	var jobPtr *string
	if job, ok := e.Fields["job"].(string); ok && job != "" {
		jobPtr = &job
	}

	return []interface{}{ts, e.Level, e.Name, msgPtr, fieldsJSON, jobPtr}, nil
}

// Query returns the last limit events of this world, newest first. A non-empty job
// restricts the result to that job document.
func (c *Client) Query(ctx context.Context, limit int, job string) ([]EventRow, error) {
	if limit <= 0 {
		limit = 200
	}
	if limit > 10000 {
		limit = 10000
	}

	query := `
		SELECT event_id, ts, level, event, msg, fields, world_id, worker_id, job
		FROM job_events
		WHERE world_id = $1 AND ($2::text = '' OR job = $2::text)
		ORDER BY ts DESC
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, query, c.worldID, job, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var fieldsJSON []byte
		var msg, jobName sql.NullString

		if err := rows.Scan(&e.EventID, &e.Timestamp, &e.Level, &e.Event, &msg, &fieldsJSON, &e.WorldID, &e.WorkerID, &jobName); err != nil {
			return nil, err
		}
		if msg.Valid {
			e.Message = &msg.String
		}
		if jobName.Valid {
			e.Job = &jobName.String
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &e.Fields); err != nil {
				return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
