package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-service/internal/automation"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/sla"
	"github.com/spec-kit/helpdesk-service/internal/workflow"
)

// Tables bundles the declarative definitions loaded from YAML files at
// startup: workflow transition graphs, SLA targets, and templates.
type Tables struct {
	Workflows         []*workflow.Definition
	SLA               sla.RuleTable
	RuleTemplates     []automation.RuleTemplate
	ResponseTemplates map[string]string
}

type workflowsFile struct {
	Workflows map[string]map[string]transitionYAML `yaml:"workflows"`
}

type transitionYAML struct {
	Guards             []string `yaml:"guards"`
	Before             []string `yaml:"before"`
	After              []string `yaml:"after"`
	Label              string   `yaml:"label"`
	Description        string   `yaml:"description"`
	RequiresComment    bool     `yaml:"requires_comment"`
	RequiresResolution bool     `yaml:"requires_resolution"`
	TriggersAutomation bool     `yaml:"triggers_automation"`
}

type slaFile struct {
	Priorities    map[string]targetYAML            `yaml:"priorities"`
	TypeOverrides map[string]map[string]targetYAML `yaml:"type_overrides"`
}

type targetYAML struct {
	FirstResponseMinutes int `yaml:"first_response_minutes"`
	ResolutionMinutes    int `yaml:"resolution_minutes"`
}

type templatesFile struct {
	RuleTemplates []ruleTemplateYAML `yaml:"rule_templates"`
	Responses     map[string]string  `yaml:"response_templates"`
}

type ruleTemplateYAML struct {
	Name           string          `yaml:"name"`
	Description    string          `yaml:"description"`
	Trigger        string          `yaml:"trigger"`
	Conditions     []conditionYAML `yaml:"conditions"`
	Actions        []actionYAML    `yaml:"actions"`
	Priority       int             `yaml:"priority"`
	StopProcessing bool            `yaml:"stop_processing"`
}

type conditionYAML struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

type actionYAML struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// LoadTables reads and validates every definition file. A missing templates
// file is tolerated; workflow and SLA files are required.
func LoadTables(cfg TablesConfig) (*Tables, error) {
	workflows, err := loadWorkflows(cfg.WorkflowFile)
	if err != nil {
		return nil, err
	}
	table, err := loadSLATable(cfg.SLAFile)
	if err != nil {
		return nil, err
	}
	tables := &Tables{
		Workflows:         workflows,
		SLA:               table,
		ResponseTemplates: map[string]string{},
	}
	if cfg.TemplatesFile != "" {
		ruleTemplates, responses, err := loadTemplates(cfg.TemplatesFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else {
			tables.RuleTemplates = ruleTemplates
			tables.ResponseTemplates = responses
		}
	}
	return tables, nil
}

func loadWorkflows(path string) ([]*workflow.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	var file workflowsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse workflow file %s: %w", path, err)
	}
	if len(file.Workflows) == 0 {
		return nil, fmt.Errorf("workflow file %s: no workflows defined", path)
	}

	var definitions []*workflow.Definition
	for name, transitions := range file.Workflows {
		specs := make(map[string]workflow.TransitionSpec, len(transitions))
		for key, t := range transitions {
			specs[key] = workflow.TransitionSpec{
				Guards:             t.Guards,
				Before:             t.Before,
				After:              t.After,
				Label:              t.Label,
				Description:        t.Description,
				RequiresComment:    t.RequiresComment,
				RequiresResolution: t.RequiresResolution,
				TriggersAutomation: t.TriggersAutomation,
			}
		}
		definition, err := workflow.NewDefinition(name, specs)
		if err != nil {
			return nil, err
		}
		definitions = append(definitions, definition)
	}
	return definitions, nil
}

func loadSLATable(path string) (sla.RuleTable, error) {
	var table sla.RuleTable

	raw, err := os.ReadFile(path)
	if err != nil {
		return table, fmt.Errorf("read sla file: %w", err)
	}
	var file slaFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return table, fmt.Errorf("parse sla file %s: %w", path, err)
	}

	table.Priorities = make(map[domain.TicketPriority]sla.Target, len(file.Priorities))
	for name, t := range file.Priorities {
		priority := domain.TicketPriority(name)
		if !domain.IsValidPriority(priority) {
			return table, fmt.Errorf("sla file %s: unknown priority %q", path, name)
		}
		if t.FirstResponseMinutes <= 0 || t.ResolutionMinutes <= 0 {
			return table, fmt.Errorf("sla file %s: priority %q: minutes must be positive", path, name)
		}
		table.Priorities[priority] = sla.Target{
			FirstResponseMinutes: t.FirstResponseMinutes,
			ResolutionMinutes:    t.ResolutionMinutes,
		}
	}

	if len(file.TypeOverrides) > 0 {
		table.TypeOverrides = make(map[domain.TicketType]map[domain.TicketPriority]sla.Target, len(file.TypeOverrides))
		for typeName, overrides := range file.TypeOverrides {
			ticketType := domain.TicketType(typeName)
			if !domain.IsValidTicketType(ticketType) {
				return table, fmt.Errorf("sla file %s: unknown ticket type %q", path, typeName)
			}
			byPriority := make(map[domain.TicketPriority]sla.Target, len(overrides))
			for name, t := range overrides {
				priority := domain.TicketPriority(name)
				if !domain.IsValidPriority(priority) {
					return table, fmt.Errorf("sla file %s: type %q: unknown priority %q", path, typeName, name)
				}
				if t.FirstResponseMinutes <= 0 || t.ResolutionMinutes <= 0 {
					return table, fmt.Errorf("sla file %s: type %q priority %q: minutes must be positive", path, typeName, name)
				}
				byPriority[priority] = sla.Target{
					FirstResponseMinutes: t.FirstResponseMinutes,
					ResolutionMinutes:    t.ResolutionMinutes,
				}
			}
			table.TypeOverrides[ticketType] = byPriority
		}
	}

	return table, nil
}

func loadTemplates(path string) ([]automation.RuleTemplate, map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var file templatesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse templates file %s: %w", path, err)
	}

	templates := make([]automation.RuleTemplate, 0, len(file.RuleTemplates))
	for _, t := range file.RuleTemplates {
		if t.Name == "" {
			return nil, nil, fmt.Errorf("templates file %s: rule template without name", path)
		}
		if !domain.IsValidTrigger(t.Trigger) {
			return nil, nil, fmt.Errorf("templates file %s: template %q: unknown trigger %q", path, t.Name, t.Trigger)
		}
		conditions := make([]domain.ConditionClause, 0, len(t.Conditions))
		for _, c := range t.Conditions {
			operator := domain.ConditionOperator(c.Operator)
			if !domain.IsValidOperator(operator) {
				return nil, nil, fmt.Errorf("templates file %s: template %q: unknown operator %q", path, t.Name, c.Operator)
			}
			conditions = append(conditions, domain.ConditionClause{Field: c.Field, Operator: operator, Value: c.Value})
		}
		actions := make([]domain.ActionSpec, 0, len(t.Actions))
		for _, a := range t.Actions {
			actionType := domain.ActionType(a.Type)
			if !domain.IsValidActionType(actionType) {
				return nil, nil, fmt.Errorf("templates file %s: template %q: unknown action type %q", path, t.Name, a.Type)
			}
			actions = append(actions, domain.ActionSpec{Type: actionType, Params: a.Params})
		}
		if len(actions) == 0 {
			return nil, nil, fmt.Errorf("templates file %s: template %q: at least one action required", path, t.Name)
		}
		templates = append(templates, automation.RuleTemplate{
			Name:           t.Name,
			Description:    t.Description,
			Trigger:        t.Trigger,
			Conditions:     conditions,
			Actions:        actions,
			Priority:       t.Priority,
			StopProcessing: t.StopProcessing,
		})
	}

	responses := file.Responses
	if responses == nil {
		responses = map[string]string{}
	}
	return templates, responses, nil
}
