package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sentinel-labs/network-behavior-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the Docker runtime image, which does not copy internal/db/schema.sql
// into the final stage.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore persists analysis runs, cluster findings, and attack
// patterns. The analysis core itself never touches this store; persistence
// happens only at the API and batch-runner boundaries.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("Successfully connected to PostgreSQL for Network Behavior Engine")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Network Behavior Engine schema initialized")
	return nil
}

// SaveAnalysis persists one analysis run: the summary row, the full result as
// JSONB, plus one row per cluster finding and attack pattern. Rerunning the
// same run ID replaces the previous rows.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, runID, centerAddress string, maxDepth int, result models.NetworkAnalysisResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis result: %v", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertRunSQL := `
		INSERT INTO network_analyses
			(run_id, analyzed_at, center_address, max_depth, total_addresses,
			 total_transactions, cluster_count, suspicious_count, total_value_flow, result)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id) DO UPDATE SET
			analyzed_at = EXCLUDED.analyzed_at,
			total_addresses = EXCLUDED.total_addresses,
			total_transactions = EXCLUDED.total_transactions,
			cluster_count = EXCLUDED.cluster_count,
			suspicious_count = EXCLUDED.suspicious_count,
			total_value_flow = EXCLUDED.total_value_flow,
			result = EXCLUDED.result;
	`
	_, err = tx.Exec(ctx, insertRunSQL,
		runID, result.AnalysisTimestamp, centerAddress, maxDepth,
		result.Overview.TotalAddresses, result.Overview.TotalTransactions,
		result.Overview.ClusterCount, result.Overview.SuspiciousClusterCount,
		result.Metrics.TotalValueFlow, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert network_analyses: %v", err)
	}

	// Pattern IDs are regenerated per analysis, so the prior run's rows must
	// be cleared explicitly; the pattern_id conflict clause never matches.
	if _, err := tx.Exec(ctx, `DELETE FROM cluster_findings WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear prior cluster findings: %v", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM attack_patterns WHERE run_id = $1`, runID); err != nil {
		return fmt.Errorf("failed to clear prior attack patterns: %v", err)
	}

	insertFindingSQL := `
		INSERT INTO cluster_findings (run_id, cluster_id, cluster_type, risk_score, risk_level, size, degraded)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	for _, cluster := range result.Clusters {
		_, err = tx.Exec(ctx, insertFindingSQL,
			runID, cluster.ClusterID, string(cluster.ClusterType),
			cluster.RiskScore, string(cluster.RiskLevel), cluster.Size, cluster.Degraded)
		if err != nil {
			return fmt.Errorf("failed to insert cluster finding: %v", err)
		}
	}

	insertPatternSQL := `
		INSERT INTO attack_patterns (pattern_id, run_id, pattern_type, description, risk_level, evidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pattern_id) DO NOTHING;
	`
	for _, pattern := range result.AttackPatterns {
		_, err = tx.Exec(ctx, insertPatternSQL,
			pattern.PatternID, runID, pattern.PatternType,
			pattern.Description, string(pattern.RiskLevel), pattern.Evidence)
		if err != nil {
			return fmt.Errorf("failed to insert attack pattern: %v", err)
		}
	}

	return tx.Commit(ctx)
}

// AnalysisSummary is one persisted run in the paginated history listing.
type AnalysisSummary struct {
	RunID             string    `json:"runId"`
	AnalyzedAt        time.Time `json:"analyzedAt"`
	CenterAddress     string    `json:"centerAddress,omitempty"`
	TotalAddresses    int       `json:"totalAddresses"`
	TotalTransactions int       `json:"totalTransactions"`
	ClusterCount      int       `json:"clusterCount"`
	SuspiciousCount   int       `json:"suspiciousClusterCount"`
	TotalValueFlow    float64   `json:"totalValueFlow"`
}

// GetRecentAnalyses returns persisted run summaries, newest first.
func (s *PostgresStore) GetRecentAnalyses(ctx context.Context, page, limit int) ([]AnalysisSummary, int, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * limit

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM network_analyses`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT run_id, analyzed_at, COALESCE(center_address, ''), total_addresses,
		       total_transactions, cluster_count, suspicious_count, total_value_flow
		FROM network_analyses
		ORDER BY analyzed_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, dataSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	summaries := make([]AnalysisSummary, 0)
	for rows.Next() {
		var sum AnalysisSummary
		if err := rows.Scan(&sum.RunID, &sum.AnalyzedAt, &sum.CenterAddress, &sum.TotalAddresses,
			&sum.TotalTransactions, &sum.ClusterCount, &sum.SuspiciousCount, &sum.TotalValueFlow); err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, sum)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return summaries, totalCount, nil
}

// GetAnalysis loads one persisted run's full result payload.
func (s *PostgresStore) GetAnalysis(ctx context.Context, runID string) (*models.NetworkAnalysisResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT result FROM network_analyses WHERE run_id = $1`, runID).Scan(&payload)
	if err != nil {
		return nil, err
	}

	var result models.NetworkAnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored result: %v", err)
	}
	return &result, nil
}
