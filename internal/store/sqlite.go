package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)

	"github.com/kkrriders/airra/internal/models"
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS incidents (
    id                  TEXT PRIMARY KEY,
    service             TEXT NOT NULL,
    severity            TEXT NOT NULL,
    status              TEXT NOT NULL,
    status_reason       TEXT NOT NULL DEFAULT '',
    detected_at         TEXT NOT NULL,
    resolved_at         TEXT,
    detection_source    TEXT NOT NULL DEFAULT '',
    affected_components TEXT NOT NULL DEFAULT '[]',
    metrics_snapshot    TEXT NOT NULL DEFAULT '{}',
    context             TEXT NOT NULL DEFAULT '{}',
    fingerprint         TEXT NOT NULL DEFAULT '',
    duplicate_count     INTEGER NOT NULL DEFAULT 0,
    reasoning_degraded  INTEGER NOT NULL DEFAULT 0,
    signals             TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_incidents_status      ON incidents(status);
CREATE INDEX IF NOT EXISTS idx_incidents_fingerprint ON incidents(fingerprint);
CREATE INDEX IF NOT EXISTS idx_incidents_detected_at ON incidents(detected_at DESC);

CREATE TABLE IF NOT EXISTS hypotheses (
    incident_id           TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
    rank                  INTEGER NOT NULL,
    description           TEXT NOT NULL,
    category              TEXT NOT NULL,
    confidence            REAL NOT NULL,
    base_confidence       REAL NOT NULL,
    evidence_quality      REAL NOT NULL,
    anomaly_strength      REAL NOT NULL,
    dependency_boost      REAL NOT NULL,
    supporting_signals    TEXT NOT NULL DEFAULT '[]',
    reasoning             TEXT NOT NULL DEFAULT '',
    model_suggested_score REAL,
    PRIMARY KEY (incident_id, rank)
);

CREATE TABLE IF NOT EXISTS actions (
    id               TEXT PRIMARY KEY,
    incident_id      TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
    hypothesis_rank  INTEGER NOT NULL DEFAULT 0,
    action_type      TEXT NOT NULL,
    parameters       TEXT NOT NULL DEFAULT '{}',
    risk_profile     TEXT NOT NULL DEFAULT '{}',
    status           TEXT NOT NULL,
    status_reason    TEXT NOT NULL DEFAULT '',
    approval_required INTEGER NOT NULL DEFAULT 0,
    approval_mode    TEXT NOT NULL DEFAULT '',
    requested_at     TEXT NOT NULL,
    approved_at      TEXT,
    approved_by      TEXT NOT NULL DEFAULT '',
    executed_at      TEXT,
    execution_mode   TEXT NOT NULL DEFAULT 'dry_run',
    attempt_id       INTEGER NOT NULL DEFAULT 0,
    pre_metrics      TEXT NOT NULL DEFAULT '{}',
    post_metrics     TEXT NOT NULL DEFAULT '{}',
    verification     TEXT NOT NULL DEFAULT '',
    expected_cost    REAL NOT NULL DEFAULT 0,
    worst_case_cost  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_actions_incident ON actions(incident_id);
CREATE INDEX IF NOT EXISTS idx_actions_status   ON actions(status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_actions_open_incident
    ON actions(incident_id)
    WHERE status IN ('PROPOSED','PENDING_APPROVAL','APPROVED','EXECUTING');

CREATE TABLE IF NOT EXISTS timeline_events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    incident_id TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
    stage       TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    timestamp   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_timeline_incident ON timeline_events(incident_id, id ASC);
`,
	},
}

type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations.
func NewSQLiteStore(path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}
	for _, m := range migrations {
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Incidents ────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveIncident(ctx context.Context, inc *models.Incident) error {
	affected := mustJSON(inc.AffectedComponents)
	snapshot := mustJSON(inc.MetricsSnapshot)
	context_ := mustJSON(inc.Context)
	signals := mustJSON(inc.Signals)

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO incidents(id, service, severity, status, status_reason, detected_at,
            resolved_at, detection_source, affected_components, metrics_snapshot,
            context, fingerprint, duplicate_count, reasoning_degraded, signals)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET
            severity            = excluded.severity,
            status_reason       = excluded.status_reason,
            resolved_at         = excluded.resolved_at,
            affected_components = excluded.affected_components,
            metrics_snapshot    = excluded.metrics_snapshot,
            context             = excluded.context,
            duplicate_count     = excluded.duplicate_count,
            reasoning_degraded  = excluded.reasoning_degraded,
            signals             = excluded.signals
    `,
		inc.ID, inc.Service, inc.Severity, inc.Status, inc.StatusReason,
		formatTime(inc.DetectedAt), formatTimePtr(inc.ResolvedAt), inc.DetectionSource,
		affected, snapshot, context_, inc.Fingerprint, inc.DuplicateCount,
		boolInt(inc.ReasoningDegraded), signals)
	return err
}

func (s *sqliteStore) GetIncident(ctx context.Context, id string) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx, incidentSelect+` WHERE id = ?`, id)
	return scanIncident(row)
}

func (s *sqliteStore) ListIncidents(ctx context.Context, limit, offset int) ([]*models.Incident, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, incidentSelect+` ORDER BY detected_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) FindLiveByFingerprint(ctx context.Context, fingerprint string) (*models.Incident, error) {
	row := s.db.QueryRowContext(ctx,
		incidentSelect+` WHERE fingerprint = ? AND status NOT IN ('RESOLVED','ESCALATED','FAILED')
         ORDER BY detected_at DESC LIMIT 1`, fingerprint)
	return scanIncident(row)
}

func (s *sqliteStore) TransitionIncident(ctx context.Context, id string, from, to models.IncidentStatus, reason string) error {
	if err := from.ValidateTransition(to); err != nil {
		return err
	}
	var resolvedAt any
	if to.Terminal() {
		resolvedAt = formatTime(time.Now().UTC())
	}
	res, err := s.db.ExecContext(ctx, `
        UPDATE incidents SET status = ?, status_reason = ?,
            resolved_at = COALESCE(?, resolved_at)
        WHERE id = ? AND status = ?`,
		to, reason, resolvedAt, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetIncident(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("incident %s: transition %s -> %s: %w", id, from, to, ErrStaleState)
	}
	return nil
}

func (s *sqliteStore) LiveServices(ctx context.Context, excludeIncidentID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT DISTINCT service FROM incidents
        WHERE status NOT IN ('RESOLVED','ESCALATED','FAILED') AND id != ?`,
		excludeIncidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var svc string
		if err := rows.Scan(&svc); err != nil {
			return nil, err
		}
		out[svc] = true
	}
	return out, rows.Err()
}

const incidentSelect = `
    SELECT id, service, severity, status, status_reason, detected_at, resolved_at,
           detection_source, affected_components, metrics_snapshot, context,
           fingerprint, duplicate_count, reasoning_degraded, signals
    FROM incidents`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var inc models.Incident
	var detectedAt string
	var resolvedAt sql.NullString
	var affected, snapshot, context_, signals string
	var degraded int

	err := row.Scan(&inc.ID, &inc.Service, &inc.Severity, &inc.Status, &inc.StatusReason,
		&detectedAt, &resolvedAt, &inc.DetectionSource, &affected, &snapshot,
		&context_, &inc.Fingerprint, &inc.DuplicateCount, &degraded, &signals)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	inc.DetectedAt, _ = time.Parse(time.RFC3339Nano, detectedAt)
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, resolvedAt.String)
		inc.ResolvedAt = &t
	}
	inc.ReasoningDegraded = degraded != 0
	_ = json.Unmarshal([]byte(affected), &inc.AffectedComponents)
	_ = json.Unmarshal([]byte(snapshot), &inc.MetricsSnapshot)
	_ = json.Unmarshal([]byte(context_), &inc.Context)
	_ = json.Unmarshal([]byte(signals), &inc.Signals)
	return &inc, nil
}

// ─── Hypotheses ───────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveHypotheses(ctx context.Context, incidentID string, hyps []*models.Hypothesis) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM hypotheses WHERE incident_id = ?`, incidentID); err != nil {
		return err
	}
	for _, h := range hyps {
		var score any
		if h.ModelSuggestedScore != nil {
			score = *h.ModelSuggestedScore
		}
		_, err := tx.ExecContext(ctx, `
            INSERT INTO hypotheses(incident_id, rank, description, category, confidence,
                base_confidence, evidence_quality, anomaly_strength, dependency_boost,
                supporting_signals, reasoning, model_suggested_score)
            VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
			incidentID, h.Rank, h.Description, h.Category, h.Confidence,
			h.BaseConfidence, h.EvidenceQuality, h.AnomalyStrength, h.DependencyBoost,
			mustJSON(h.SupportingSignals), h.Reasoning, score)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) HypothesesFor(ctx context.Context, incidentID string) ([]*models.Hypothesis, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT incident_id, rank, description, category, confidence, base_confidence,
               evidence_quality, anomaly_strength, dependency_boost, supporting_signals,
               reasoning, model_suggested_score
        FROM hypotheses WHERE incident_id = ? ORDER BY rank ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Hypothesis
	for rows.Next() {
		var h models.Hypothesis
		var supporting string
		var score sql.NullFloat64
		err := rows.Scan(&h.IncidentID, &h.Rank, &h.Description, &h.Category, &h.Confidence,
			&h.BaseConfidence, &h.EvidenceQuality, &h.AnomalyStrength, &h.DependencyBoost,
			&supporting, &h.Reasoning, &score)
		if err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(supporting), &h.SupportingSignals)
		if score.Valid {
			v := score.Float64
			h.ModelSuggestedScore = &v
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// ─── Actions ──────────────────────────────────────────────────────────────────

func (s *sqliteStore) ProposeAction(ctx context.Context, action *models.Action) error {
	err := s.insertAction(ctx, action)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("incident %s: %w", action.IncidentID, ErrAlreadyProposed)
	}
	return err
}

func (s *sqliteStore) insertAction(ctx context.Context, a *models.Action) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO actions(id, incident_id, hypothesis_rank, action_type, parameters,
            risk_profile, status, status_reason, approval_required, approval_mode,
            requested_at, approved_at, approved_by, executed_at, execution_mode,
            attempt_id, pre_metrics, post_metrics, verification, expected_cost, worst_case_cost)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.IncidentID, a.HypothesisRank, a.Type, mustJSON(a.Parameters),
		mustJSON(a.Risk), a.Status, a.StatusReason, boolInt(a.ApprovalRequired), a.ApprovalMode,
		formatTime(a.RequestedAt), formatTimePtr(a.ApprovedAt), a.ApprovedBy,
		formatTimePtr(a.ExecutedAt), a.ExecutionMode, a.AttemptID,
		mustJSON(a.PreMetrics), mustJSON(a.PostMetrics), a.Verification,
		a.ExpectedCost, a.WorstCaseCost)
	return err
}

func (s *sqliteStore) SaveAction(ctx context.Context, a *models.Action) error {
	_, err := s.db.ExecContext(ctx, `
        UPDATE actions SET status = ?, status_reason = ?, approval_mode = ?,
            approved_at = ?, approved_by = ?, executed_at = ?, execution_mode = ?,
            attempt_id = ?, pre_metrics = ?, post_metrics = ?, verification = ?,
            expected_cost = ?, worst_case_cost = ?
        WHERE id = ?`,
		a.Status, a.StatusReason, a.ApprovalMode,
		formatTimePtr(a.ApprovedAt), a.ApprovedBy, formatTimePtr(a.ExecutedAt), a.ExecutionMode,
		a.AttemptID, mustJSON(a.PreMetrics), mustJSON(a.PostMetrics), a.Verification,
		a.ExpectedCost, a.WorstCaseCost, a.ID)
	return err
}

func (s *sqliteStore) GetAction(ctx context.Context, id string) (*models.Action, error) {
	row := s.db.QueryRowContext(ctx, actionSelect+` WHERE id = ?`, id)
	return scanAction(row)
}

func (s *sqliteStore) ActionsFor(ctx context.Context, incidentID string) ([]*models.Action, error) {
	return s.queryActions(ctx, actionSelect+` WHERE incident_id = ? ORDER BY requested_at ASC`, incidentID)
}

func (s *sqliteStore) ListPendingActions(ctx context.Context) ([]*models.Action, error) {
	return s.queryActions(ctx, actionSelect+` WHERE status = 'PENDING_APPROVAL' ORDER BY requested_at ASC`)
}

func (s *sqliteStore) queryActions(ctx context.Context, query string, args ...any) ([]*models.Action, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TransitionAction(ctx context.Context, id string, from, to models.ActionStatus, reason string) error {
	if err := from.ValidateTransition(to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
        UPDATE actions SET status = ?, status_reason = ? WHERE id = ? AND status = ?`,
		to, reason, id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetAction(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("action %s: transition %s -> %s: %w", id, from, to, ErrStaleState)
	}
	return nil
}

func (s *sqliteStore) ApproveAction(ctx context.Context, actionID, by string, mode models.ExecutionMode) (*models.Action, error) {
	// An identical repeat of a recorded approval is idempotent, even after
	// execution has started.
	if a, err := s.GetAction(ctx, actionID); err == nil &&
		a.ApprovedAt != nil && a.Status != models.ActionRejected &&
		a.ApprovedBy == by && a.ExecutionMode == mode {
		return a, nil
	}
	return s.resolveApproval(ctx, actionID, func(a *models.Action) {
		now := time.Now().UTC()
		a.Status = models.ActionApproved
		a.ApprovedAt = &now
		a.ApprovedBy = by
		a.ApprovalMode = "operator"
		a.ExecutionMode = mode
	}, models.ActionApproved)
}

func (s *sqliteStore) RejectAction(ctx context.Context, actionID, by, reason string) (*models.Action, error) {
	return s.resolveApproval(ctx, actionID, func(a *models.Action) {
		a.Status = models.ActionRejected
		a.StatusReason = reason
		a.ApprovedBy = by
	}, models.ActionRejected)
}

// resolveApproval applies an operator verdict to a pending action. A
// terminal incident or a non-pending action yields ErrStaleState.
func (s *sqliteStore) resolveApproval(ctx context.Context, actionID string, apply func(*models.Action), to models.ActionStatus) (*models.Action, error) {
	a, err := s.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if a.Status != models.ActionPendingApproval {
		return nil, fmt.Errorf("action %s is %s: %w", actionID, a.Status, ErrStaleState)
	}
	inc, err := s.GetIncident(ctx, a.IncidentID)
	if err != nil {
		return nil, err
	}
	if inc.Status.Terminal() {
		return nil, fmt.Errorf("incident %s is %s: %w", inc.ID, inc.Status, ErrStaleState)
	}

	apply(a)
	res, err := s.db.ExecContext(ctx, `
        UPDATE actions SET status = ?, status_reason = ?, approval_mode = ?,
            approved_at = ?, approved_by = ?, execution_mode = ?
        WHERE id = ? AND status = 'PENDING_APPROVAL'`,
		a.Status, a.StatusReason, a.ApprovalMode,
		formatTimePtr(a.ApprovedAt), a.ApprovedBy, a.ExecutionMode, actionID)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("action %s: concurrent approval: %w", actionID, ErrStaleState)
	}
	return a, nil
}

const actionSelect = `
    SELECT id, incident_id, hypothesis_rank, action_type, parameters, risk_profile,
           status, status_reason, approval_required, approval_mode, requested_at,
           approved_at, approved_by, executed_at, execution_mode, attempt_id,
           pre_metrics, post_metrics, verification, expected_cost, worst_case_cost
    FROM actions`

func scanAction(row rowScanner) (*models.Action, error) {
	var a models.Action
	var params, risk, pre, post string
	var approvalRequired int
	var requestedAt string
	var approvedAt, executedAt sql.NullString

	err := row.Scan(&a.ID, &a.IncidentID, &a.HypothesisRank, &a.Type, &params, &risk,
		&a.Status, &a.StatusReason, &approvalRequired, &a.ApprovalMode, &requestedAt,
		&approvedAt, &a.ApprovedBy, &executedAt, &a.ExecutionMode, &a.AttemptID,
		&pre, &post, &a.Verification, &a.ExpectedCost, &a.WorstCaseCost)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.ApprovalRequired = approvalRequired != 0
	a.RequestedAt, _ = time.Parse(time.RFC3339Nano, requestedAt)
	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, approvedAt.String)
		a.ApprovedAt = &t
	}
	if executedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, executedAt.String)
		a.ExecutedAt = &t
	}
	_ = json.Unmarshal([]byte(params), &a.Parameters)
	_ = json.Unmarshal([]byte(risk), &a.Risk)
	_ = json.Unmarshal([]byte(pre), &a.PreMetrics)
	_ = json.Unmarshal([]byte(post), &a.PostMetrics)
	return &a, nil
}

// ─── Timeline ─────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendTimeline(ctx context.Context, ev *models.TimelineEvent) error {
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO timeline_events(incident_id, stage, event_type, detail, timestamp)
        VALUES(?,?,?,?,?)`,
		ev.IncidentID, ev.Stage, ev.EventType, ev.Detail, formatTime(ev.Timestamp))
	if err != nil {
		return err
	}
	ev.ID, _ = res.LastInsertId()
	return nil
}

func (s *sqliteStore) TimelineFor(ctx context.Context, incidentID string) ([]*models.TimelineEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, incident_id, stage, event_type, detail, timestamp
        FROM timeline_events WHERE incident_id = ? ORDER BY id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TimelineEvent
	for rows.Next() {
		var ev models.TimelineEvent
		var ts string
		if err := rows.Scan(&ev.ID, &ev.IncidentID, &ev.Stage, &ev.EventType, &ev.Detail, &ts); err != nil {
			return nil, err
		}
		ev.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func mustJSON(v any) string {
	if v == nil {
		return "null"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
