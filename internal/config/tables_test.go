package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const validWorkflows = `
workflows:
  default:
    "OPEN:IN_PROGRESS":
      guards: [not_deleted]
      label: Start progress
      triggers_automation: true
    "CLOSED:OPEN":
      guards: [can_reopen]
      requires_comment: true
`

const validSLA = `
priorities:
  URGENT:
    first_response_minutes: 30
    resolution_minutes: 240
type_overrides:
  COMMERCIAL:
    URGENT:
      first_response_minutes: 15
      resolution_minutes: 120
`

const validTemplates = `
rule_templates:
  - name: escalate-stale
    trigger: sla_breached
    conditions:
      - field: priority
        operator: equals
        value: URGENT
    actions:
      - type: escalate
    priority: 100
    stop_processing: true
response_templates:
  acknowledgement: Thanks for reaching out.
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConfig(t *testing.T) TablesConfig {
	t.Helper()
	dir := t.TempDir()
	return TablesConfig{
		WorkflowFile:  writeFile(t, dir, "workflows.yaml", validWorkflows),
		SLAFile:       writeFile(t, dir, "sla.yaml", validSLA),
		TemplatesFile: writeFile(t, dir, "templates.yaml", validTemplates),
	}
}

func TestLoadTables(t *testing.T) {
	tables, err := LoadTables(validConfig(t))
	require.NoError(t, err)

	require.Len(t, tables.Workflows, 1)
	def := tables.Workflows[0]
	assert.Equal(t, "default", def.Name)
	require.Len(t, def.Transitions, 2)

	target, ok := tables.SLA.Resolve(domain.TicketTypeCommercial, domain.TicketPriorityUrgent)
	require.True(t, ok)
	assert.Equal(t, 15, target.FirstResponseMinutes)
	target, ok = tables.SLA.Resolve(domain.TicketTypeGeneral, domain.TicketPriorityUrgent)
	require.True(t, ok)
	assert.Equal(t, 30, target.FirstResponseMinutes)

	require.Len(t, tables.RuleTemplates, 1)
	template := tables.RuleTemplates[0]
	assert.Equal(t, "escalate-stale", template.Name)
	assert.True(t, template.StopProcessing)
	assert.Equal(t, "Thanks for reaching out.", tables.ResponseTemplates["acknowledgement"])
}

func TestLoadTablesMissingTemplatesTolerated(t *testing.T) {
	cfg := validConfig(t)
	cfg.TemplatesFile = filepath.Join(t.TempDir(), "absent.yaml")

	tables, err := LoadTables(cfg)
	require.NoError(t, err)
	assert.Empty(t, tables.RuleTemplates)
	assert.Empty(t, tables.ResponseTemplates)
}

func TestLoadTablesMissingWorkflowFile(t *testing.T) {
	cfg := validConfig(t)
	cfg.WorkflowFile = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := LoadTables(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read workflow file")
}

func TestLoadTablesUnknownStatus(t *testing.T) {
	cfg := validConfig(t)
	dir := t.TempDir()
	cfg.WorkflowFile = writeFile(t, dir, "workflows.yaml", `
workflows:
  default:
    "OPEN:ARCHIVED": {}
`)

	_, err := LoadTables(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown status "ARCHIVED"`)
}

func TestLoadTablesSLAValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"unknown priority",
			"priorities:\n  EXTREME:\n    first_response_minutes: 30\n    resolution_minutes: 60\n",
			`unknown priority "EXTREME"`,
		},
		{
			"non-positive minutes",
			"priorities:\n  HIGH:\n    first_response_minutes: 0\n    resolution_minutes: 60\n",
			"minutes must be positive",
		},
		{
			"unknown override type",
			validSLA + "  PETTING_ZOO:\n    URGENT:\n      first_response_minutes: 5\n      resolution_minutes: 10\n",
			`unknown ticket type "PETTING_ZOO"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.SLAFile = writeFile(t, t.TempDir(), "sla.yaml", tc.yaml)
			_, err := LoadTables(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadTablesTemplateValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			"unknown trigger",
			"rule_templates:\n  - name: t\n    trigger: on_full_moon\n    actions:\n      - type: escalate\n",
			`unknown trigger "on_full_moon"`,
		},
		{
			"unknown operator",
			"rule_templates:\n  - name: t\n    trigger: manual\n    conditions:\n      - field: status\n        operator: matches\n    actions:\n      - type: escalate\n",
			`unknown operator "matches"`,
		},
		{
			"unknown action type",
			"rule_templates:\n  - name: t\n    trigger: manual\n    actions:\n      - type: transmogrify\n",
			`unknown action type "transmogrify"`,
		},
		{
			"no actions",
			"rule_templates:\n  - name: t\n    trigger: manual\n",
			"at least one action required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.TemplatesFile = writeFile(t, t.TempDir(), "templates.yaml", tc.yaml)
			_, err := LoadTables(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
