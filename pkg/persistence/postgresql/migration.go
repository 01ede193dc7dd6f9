package postgresql

// migrations returns the schema migrations keyed by version.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				type TEXT NOT NULL,
				status TEXT NOT NULL,
				is_active BOOLEAN NOT NULL DEFAULT FALSE,
				owner TEXT NOT NULL DEFAULT '',
				scope TEXT NOT NULL DEFAULT '',
				execution_count BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE TABLE IF NOT EXISTS workflow_triggers (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				event_type TEXT NOT NULL,
				conditions JSONB,
				priority INTEGER NOT NULL DEFAULT 0,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_workflow_triggers_event
				ON workflow_triggers (event_type) WHERE is_active;

			CREATE TABLE IF NOT EXISTS workflow_actions (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				action_type TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				payload JSONB,
				ordering INTEGER NOT NULL DEFAULT 0,
				allow_failure BOOLEAN NOT NULL DEFAULT FALSE,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				depends_on JSONB,
				queue_hint TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_workflow_actions_workflow
				ON workflow_actions (workflow_id, ordering, id);

			CREATE TABLE IF NOT EXISTS workflow_runs (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				trigger_id TEXT,
				trigger_data JSONB,
				status TEXT NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				success BOOLEAN NOT NULL DEFAULT FALSE,
				error_message TEXT NOT NULL DEFAULT '',
				error_details JSONB,
				actor_id TEXT NOT NULL DEFAULT '',
				cancel_requested BOOLEAN NOT NULL DEFAULT FALSE
			);
			CREATE INDEX IF NOT EXISTS idx_workflow_runs_workflow
				ON workflow_runs (workflow_id, started_at DESC);

			CREATE TABLE IF NOT EXISTS workflow_action_runs (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES workflow_runs(id),
				action_id TEXT NOT NULL,
				action_type TEXT NOT NULL,
				ordering INTEGER NOT NULL DEFAULT 0,
				status TEXT NOT NULL,
				success BOOLEAN NOT NULL DEFAULT FALSE,
				result_data JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				retry_count INTEGER NOT NULL DEFAULT 0,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_workflow_action_runs_run
				ON workflow_action_runs (run_id, ordering, id);

			CREATE TABLE IF NOT EXISTS workflow_approvals (
				id TEXT PRIMARY KEY,
				run_id TEXT NOT NULL REFERENCES workflow_runs(id),
				action_run_id TEXT NOT NULL,
				status TEXT NOT NULL,
				approver_role TEXT NOT NULL DEFAULT '',
				escalate_role TEXT NOT NULL DEFAULT '',
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				resolved_at TIMESTAMP WITH TIME ZONE,
				actor_id TEXT NOT NULL DEFAULT '',
				comments TEXT NOT NULL DEFAULT '',
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_workflow_approvals_pending
				ON workflow_approvals (expires_at) WHERE status = 'pending';

			CREATE TABLE IF NOT EXISTS workflow_slas (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				name TEXT NOT NULL DEFAULT '',
				target_duration_seconds DOUBLE PRECISION NOT NULL,
				warning_threshold_seconds DOUBLE PRECISION NOT NULL,
				critical_threshold_seconds DOUBLE PRECISION NOT NULL,
				sla_window_hours INTEGER NOT NULL DEFAULT 24,
				slo_target_percentage DOUBLE PRECISION NOT NULL DEFAULT 99,
				total_executions BIGINT NOT NULL DEFAULT 0,
				breached_executions BIGINT NOT NULL DEFAULT 0,
				current_slo_percentage DOUBLE PRECISION NOT NULL DEFAULT 100,
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_workflow_slas_workflow
				ON workflow_slas (workflow_id) WHERE is_active;

			CREATE TABLE IF NOT EXISTS sla_breaches (
				id TEXT PRIMARY KEY,
				sla_id TEXT NOT NULL REFERENCES workflow_slas(id),
				run_id TEXT NOT NULL,
				workflow_id TEXT NOT NULL,
				severity TEXT NOT NULL,
				actual_duration_seconds DOUBLE PRECISION NOT NULL,
				target_duration_seconds DOUBLE PRECISION NOT NULL,
				breach_margin_seconds DOUBLE PRECISION NOT NULL,
				alert_sent BOOLEAN NOT NULL DEFAULT FALSE,
				alert_sent_at TIMESTAMP WITH TIME ZONE,
				acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
				acknowledged_by TEXT NOT NULL DEFAULT '',
				acknowledged_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sla_breaches_sla
				ON sla_breaches (sla_id, created_at DESC);
		`,
	}
}
