package types

// Severity grades an impact report.
type Severity string

// Severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FieldChange is a proposed modification of one field.
type FieldChange struct {
	Old FieldDefinition `json:"old"`
	New FieldDefinition `json:"new"`
}

// ProposedChanges is the input to impact analysis.
type ProposedChanges struct {
	NewFields      map[string]FieldDefinition `json:"new_fields,omitempty"`
	RemovedFields  []string                   `json:"removed_fields,omitempty"`
	ModifiedFields map[string]FieldChange     `json:"modified_fields,omitempty"`
}

// Empty reports whether no change is proposed.
func (p ProposedChanges) Empty() bool {
	return len(p.NewFields) == 0 && len(p.RemovedFields) == 0 && len(p.ModifiedFields) == 0
}

// ImpactReport is the read-only assessment of a proposed change.
type ImpactReport struct {
	CategoryID       string   `json:"category_id"`
	CurrentVersion   string   `json:"current_version"`
	AffectedDevices  int      `json:"affected_devices"`
	AffectedRecords  int      `json:"affected_records"`
	BreakingChanges  []string `json:"breaking_changes"`
	Warnings         []string `json:"warnings"`
	Info             []string `json:"info"`
	Severity         Severity `json:"severity"`
	CanAutoMigrate   bool     `json:"can_auto_migrate"`
	AffectedRules    []string `json:"affected_rules,omitempty"` // rules reading a removed field
	EstimatedSeconds int      `json:"estimated_seconds"`
}
