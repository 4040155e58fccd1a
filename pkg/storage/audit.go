package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// AuditAction is the canonical log entry written for every attempted side
// effect the injector performs.
type AuditAction struct {
	ID                   string
	TS                   time.Time
	ActorKind            string
	ActorID              string
	CorrelationID        string
	PaneID               string
	Domain               string
	ActionKind           string
	PolicyDecision       string
	DecisionReason       string
	RuleID               string
	InputSummary         string // already redacted
	VerificationSummary  string
	DecisionContext      string
	Result               string
}

// RecordAuditAction inserts a redacted audit record and returns its ID.
// Storage failures here are intentionally never fatal to the caller's
// action: the action itself, not the audit trail, is the source of truth
// (see the injector, which logs-and-continues on error).
func (s *Store) RecordAuditAction(a *AuditAction) (string, error) {
	if s.db == nil {
		return "", ErrStoreClosed
	}
	_, err := s.db.Exec(`
		INSERT INTO audit_actions (
			id, ts, actor_kind, actor_id, correlation_id, pane_id, domain,
			action_kind, policy_decision, decision_reason, rule_id,
			input_summary, verification_summary, decision_context, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TS, a.ActorKind, nullableString(a.ActorID), nullableString(a.CorrelationID),
		nullableString(a.PaneID), nullableString(a.Domain), a.ActionKind, a.PolicyDecision,
		nullableString(a.DecisionReason), nullableString(a.RuleID), a.InputSummary,
		nullableString(a.VerificationSummary), nullableString(a.DecisionContext), a.Result)
	if err != nil {
		return "", fmt.Errorf("record audit action: %w", err)
	}
	s.notify(Event{Type: EventAuditRecorded, PaneID: a.PaneID, ID: a.ID})
	return a.ID, nil
}

// GetAuditLog returns audit records for a pane in strictly increasing ts
// order, oldest first.
func (s *Store) GetAuditLog(paneID string, limit int) ([]AuditAction, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, ts, actor_kind, actor_id, correlation_id, pane_id, domain,
		       action_kind, policy_decision, decision_reason, rule_id,
		       input_summary, verification_summary, decision_context, result
		FROM audit_actions
		WHERE pane_id = ?
		ORDER BY ts ASC
		LIMIT ?
	`, paneID, limit)
	if err != nil {
		return nil, fmt.Errorf("get audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditAction
	for rows.Next() {
		var a AuditAction
		var actorID, correlationID, paneIDVal, domain, decisionReason, ruleID, verification, decisionContext sql.NullString
		if err := rows.Scan(&a.ID, &a.TS, &a.ActorKind, &actorID, &correlationID, &paneIDVal, &domain,
			&a.ActionKind, &a.PolicyDecision, &decisionReason, &ruleID, &a.InputSummary,
			&verification, &decisionContext, &a.Result); err != nil {
			return nil, fmt.Errorf("scan audit action: %w", err)
		}
		a.ActorID, a.CorrelationID, a.PaneID, a.Domain = actorID.String, correlationID.String, paneIDVal.String, domain.String
		a.DecisionReason, a.RuleID, a.VerificationSummary, a.DecisionContext =
			decisionReason.String, ruleID.String, verification.String, decisionContext.String
		out = append(out, a)
	}
	return out, rows.Err()
}
