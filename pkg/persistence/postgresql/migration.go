package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				trigger_config JSONB DEFAULT '{}',
				conditions JSONB DEFAULT '[]',
				actions JSONB DEFAULT '[]',
				active BOOLEAN NOT NULL DEFAULT true,
				max_runs_per_subject INT NOT NULL DEFAULT 0,
				total_runs BIGINT NOT NULL DEFAULT 0,
				successful_runs BIGINT NOT NULL DEFAULT 0,
				failed_runs BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_workflows_tenant ON workflows(tenant_id);
			CREATE INDEX idx_workflows_trigger ON workflows(tenant_id, trigger_type, active);

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				workflow_id UUID NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				subject_id VARCHAR(255) NOT NULL,
				related_id VARCHAR(255),
				trigger_type VARCHAR(50) NOT NULL,
				trigger_data JSONB DEFAULT '{}',
				status VARCHAR(50) NOT NULL,
				total_steps INT NOT NULL DEFAULT 0,
				current_step INT NOT NULL DEFAULT 0,
				steps JSONB DEFAULT '[]',
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow ON executions(tenant_id, workflow_id);
			CREATE INDEX idx_executions_run_limit ON executions(tenant_id, workflow_id, subject_id, status);

			CREATE TABLE scheduled_actions (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				execution_id UUID NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				subject_id VARCHAR(255) NOT NULL,
				action_type VARCHAR(50) NOT NULL,
				params JSONB DEFAULT '{}',
				scheduled_for TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_scheduled_actions_due ON scheduled_actions(status, scheduled_for);
			CREATE INDEX idx_scheduled_actions_execution ON scheduled_actions(tenant_id, execution_id);

			CREATE TABLE sweep_schedules (
				tenant_id VARCHAR(255) PRIMARY KEY,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_sweep_schedules_due ON sweep_schedules(active, next_due_at);
		`,
	}
}
