package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"evacroute/internal/graph"
	"evacroute/internal/model"
)

// SQL implements Store on database/sql. The schema is shared between
// Postgres (pgx) and SQLite; timestamps are unix milliseconds and JSON
// bodies are TEXT so both dialects read the same rows.
type SQL struct {
	db       *sql.DB
	postgres bool
	now      func() time.Time
}

func NewPostgres(dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return openSQL(db, true)
}

func NewSQLite(path string) (*SQL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; avoids SQLITE_BUSY between the API and the webhook worker
	db.SetMaxOpenConns(1)
	return openSQL(db, false)
}

func openSQL(db *sql.DB, postgres bool) (*SQL, error) {
	s := &SQL{db: db, postgres: postgres, now: time.Now}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS graphs (
  city TEXT NOT NULL,
  version INTEGER NOT NULL,
  doc TEXT NOT NULL,
  node_count INTEGER NOT NULL,
  edge_count INTEGER NOT NULL,
  safe_zones INTEGER NOT NULL,
  created_at BIGINT NOT NULL,
  PRIMARY KEY (city, version)
)`,
	`CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  city TEXT NOT NULL,
  body TEXT NOT NULL,
  created_at BIGINT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS plans_city_idx ON plans (city, id)`,
	`CREATE TABLE IF NOT EXISTS optimizer_config (
  city TEXT PRIMARY KEY,
  config TEXT NOT NULL,
  updated_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  city TEXT NOT NULL,
  url TEXT NOT NULL,
  events TEXT NOT NULL,
  secret TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS webhook_deliveries (
  id TEXT PRIMARY KEY,
  city TEXT NOT NULL,
  subscription_id TEXT NOT NULL DEFAULT '',
  event_type TEXT NOT NULL,
  url TEXT NOT NULL,
  secret TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  status TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  next_attempt_at BIGINT NOT NULL,
  last_error TEXT NOT NULL DEFAULT '',
  response_code INTEGER NOT NULL DEFAULT 0,
  latency_ms INTEGER NOT NULL DEFAULT 0,
  dedup_key TEXT NOT NULL,
  UNIQUE (city, event_type, url, dedup_key)
)`,
	`CREATE TABLE IF NOT EXISTS webhook_dlq (
  id TEXT PRIMARY KEY,
  city TEXT NOT NULL,
  delivery_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  url TEXT NOT NULL,
  attempts INTEGER NOT NULL,
  last_error TEXT NOT NULL DEFAULT '',
  response_code INTEGER NOT NULL DEFAULT 0,
  latency_ms INTEGER NOT NULL DEFAULT 0,
  created_at BIGINT NOT NULL
)`,
}

func (s *SQL) ensureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// q rewrites ? placeholders to $n for Postgres.
func (s *SQL) q(query string) string {
	if !s.postgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *SQL) millis() int64 { return s.now().UnixMilli() }

func (s *SQL) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *SQL) Close() error                   { return s.db.Close() }

// Graphs

func (s *SQL) SaveGraph(ctx context.Context, doc graph.Document) (int, error) {
	if doc.City == "" {
		return 0, fmt.Errorf("%w: city required", graph.ErrInvalidInput)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return 0, err
	}
	info := graphInfo(doc, 0, time.Time{})
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	var version int
	if err := tx.QueryRowContext(ctx, s.q(`SELECT COALESCE(MAX(version),0) FROM graphs WHERE city=?`), doc.City).Scan(&version); err != nil {
		return 0, err
	}
	version++
	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO graphs (city, version, doc, node_count, edge_count, safe_zones, created_at) VALUES (?,?,?,?,?,?,?)`),
		doc.City, version, string(body), info.Nodes, info.Edges, info.SafeZones, s.millis())
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return version, nil
}

func (s *SQL) LoadGraph(ctx context.Context, city string) (graph.Document, int, error) {
	var body string
	var version int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT doc, version FROM graphs WHERE city=? ORDER BY version DESC LIMIT 1`), city).Scan(&body, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return graph.Document{}, 0, ErrNotFound
		}
		return graph.Document{}, 0, err
	}
	var doc graph.Document
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return graph.Document{}, 0, err
	}
	return doc, version, nil
}

func (s *SQL) ListGraphs(ctx context.Context) ([]model.GraphInfo, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT g.city, g.version, g.node_count, g.edge_count, g.safe_zones, g.created_at FROM graphs g
        JOIN (SELECT city, MAX(version) AS version FROM graphs GROUP BY city) latest ON latest.city = g.city AND latest.version = g.version
        ORDER BY g.city`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.GraphInfo{}
	for rows.Next() {
		var gi model.GraphInfo
		var at int64
		if err := rows.Scan(&gi.City, &gi.Version, &gi.Nodes, &gi.Edges, &gi.SafeZones, &at); err != nil {
			return nil, err
		}
		gi.UpdatedAt = time.UnixMilli(at).UTC()
		out = append(out, gi)
	}
	return out, rows.Err()
}

// Plans

func (s *SQL) SavePlan(ctx context.Context, p model.Plan) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO plans (id, city, body, created_at) VALUES (?,?,?,?)
        ON CONFLICT (id) DO UPDATE SET body=excluded.body`), p.ID, p.City, string(body), p.CreatedAt.UnixMilli())
	return err
}

func (s *SQL) GetPlan(ctx context.Context, id string) (model.Plan, error) {
	var body string
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT body FROM plans WHERE id=?`), id).Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Plan{}, ErrNotFound
		}
		return model.Plan{}, err
	}
	var p model.Plan
	err := json.Unmarshal([]byte(body), &p)
	return p, err
}

// ListPlans pages by plan id; the cursor is the last id returned.
func (s *SQL) ListPlans(ctx context.Context, city, cursor string, limit int) ([]model.Plan, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, body FROM plans WHERE city=? AND id > ? ORDER BY id LIMIT ?`), city, cursor, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, s.q(`SELECT id, body FROM plans WHERE city=? ORDER BY id LIMIT ?`), city, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Plan{}
	var last string
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, "", err
		}
		var p model.Plan
		if err := json.Unmarshal([]byte(body), &p); err != nil {
			return nil, "", err
		}
		out = append(out, p)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

// Optimizer config

func (s *SQL) GetOptimizerConfig(ctx context.Context, city string) (map[string]any, error) {
	var js string
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT config FROM optimizer_config WHERE city=?`), city).Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SQL) SaveOptimizerConfig(ctx context.Context, city string, cfg map[string]any) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO optimizer_config (city, config, updated_at) VALUES (?,?,?)
        ON CONFLICT (city) DO UPDATE SET config=excluded.config, updated_at=excluded.updated_at`), city, string(js), s.millis())
	return err
}

// Subscriptions

func (s *SQL) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := s.db.ExecContext(ctx, s.q(`INSERT INTO subscriptions (id, city, url, events, secret) VALUES (?,?,?,?,?)`), id, req.City, req.URL, string(ev), req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, City: req.City, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (s *SQL) GetSubscriptionsForEvent(ctx context.Context, city, eventType string) ([]model.Subscription, error) {
	all, err := s.querySubscriptions(ctx, s.q(`SELECT id, url, secret, events FROM subscriptions WHERE city=? ORDER BY id`), city)
	if err != nil {
		return nil, err
	}
	out := []model.Subscription{}
	for _, sub := range all {
		if subscribed(sub.Events, eventType) {
			sub.City = city
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *SQL) ListSubscriptions(ctx context.Context, city, cursor string, limit int) ([]model.Subscription, string, error) {
	limit = clampLimit(limit)
	var out []model.Subscription
	var err error
	if cursor != "" {
		out, err = s.querySubscriptions(ctx, s.q(`SELECT id, url, secret, events FROM subscriptions WHERE city=? AND id > ? ORDER BY id LIMIT ?`), city, cursor, limit)
	} else {
		out, err = s.querySubscriptions(ctx, s.q(`SELECT id, url, secret, events FROM subscriptions WHERE city=? ORDER BY id LIMIT ?`), city, limit)
	}
	if err != nil {
		return nil, "", err
	}
	for i := range out {
		out[i].City = city
	}
	next := ""
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (s *SQL) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var sub model.Subscription
		var ev string
		if err := rows.Scan(&sub.ID, &sub.URL, &sub.Secret, &ev); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(ev), &sub.Events)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQL) DeleteSubscription(ctx context.Context, city, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE city=? AND id=?`), city, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Webhook deliveries

func (s *SQL) EnqueueWebhook(ctx context.Context, city, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO webhook_deliveries (id, city, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES (?,?,?,?,?,?,?,'pending',0,?,?)
        ON CONFLICT (city, event_type, url, dedup_key) DO NOTHING`), id, city, subscriptionID, eventType, url, secret, string(payload), s.millis(), dk)
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var existing string
		err := s.db.QueryRowContext(ctx, s.q(`SELECT id FROM webhook_deliveries WHERE city=? AND event_type=? AND url=? AND dedup_key=?`), city, eventType, url, dk).Scan(&existing)
		return existing, err
	}
	return id, nil
}

func (s *SQL) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT id, city, subscription_id, event_type, url, secret, payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= ? ORDER BY next_attempt_at ASC LIMIT ?`), s.millis(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload string
		if err := rows.Scan(&d.ID, &d.City, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		d.Payload = []byte(payload)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQL) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', response_code=?, latency_ms=? WHERE id=?`), responseCode, latencyMs, id)
		return err
	}
	next := s.now().Add(time.Minute)
	if nextAttemptAt != nil {
		next = *nextAttemptAt
	}
	_, err := s.db.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=?, next_attempt_at=?, response_code=?, latency_ms=? WHERE id=?`),
		lastError, next.UnixMilli(), responseCode, latencyMs, id)
	return err
}

func (s *SQL) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=?, response_code=?, latency_ms=? WHERE id=?`),
		lastError, responseCode, latencyMs, id); err != nil {
		return err
	}
	// move to DLQ
	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO webhook_dlq (id, city, delivery_id, event_type, url, attempts, last_error, response_code, latency_ms, created_at)
        SELECT CAST(? AS TEXT), city, id, event_type, url, attempts, CAST(? AS TEXT), CAST(? AS INTEGER), CAST(? AS INTEGER), CAST(? AS BIGINT) FROM webhook_deliveries WHERE id=?`),
		uuid.New().String(), lastError, responseCode, latencyMs, s.millis(), id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQL) ListWebhookDeliveries(ctx context.Context, city, status, cursor string, limit int) ([]map[string]any, string, error) {
	limit = clampLimit(limit)
	query := `SELECT id, event_type, status, attempts, next_attempt_at, last_error, url, response_code FROM webhook_deliveries WHERE city=?`
	args := []any{city}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	if cursor != "" {
		query += ` AND id > ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts, code int
		var nextAt int64
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url, &code); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url, "responseCode": code}
		if st == "pending" || st == "retry" {
			m["nextAttemptAt"] = time.UnixMilli(nextAt).UTC()
		}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

func (s *SQL) ListWebhookDLQ(ctx context.Context, city, cursor string, limit int) ([]map[string]any, string, error) {
	limit = clampLimit(limit)
	query := `SELECT id, delivery_id, event_type, url, last_error, attempts, created_at, response_code, latency_ms FROM webhook_dlq WHERE city=?`
	args := []any{city}
	if cursor != "" {
		query += ` AND id > ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, delID, et, url, errStr string
		var attempts, code, latency int
		var created int64
		if err := rows.Scan(&id, &delID, &et, &url, &errStr, &attempts, &created, &code, &latency); err != nil {
			return nil, "", err
		}
		out = append(out, map[string]any{"id": id, "deliveryId": delID, "eventType": et, "url": url, "lastError": errStr, "attempts": attempts, "createdAt": time.UnixMilli(created).UTC(), "responseCode": code, "latencyMs": latency})
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, rows.Err()
}

// RequeueWebhookDLQ resets the original delivery to pending and drops the
// DLQ entry.
func (s *SQL) RequeueWebhookDLQ(ctx context.Context, city, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	var delID string
	if err := tx.QueryRowContext(ctx, s.q(`SELECT delivery_id FROM webhook_dlq WHERE city=? AND id=?`), city, id).Scan(&delID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`UPDATE webhook_deliveries SET status='pending', attempts=0, next_attempt_at=? WHERE id=?`), s.millis(), delID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM webhook_dlq WHERE city=? AND id=?`), city, id); err != nil {
		return err
	}
	return tx.Commit()
}
