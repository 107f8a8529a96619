package schemas

// -- Finding Schemas --

// RiskLevel represents the risk rating the pipeline assigns to a finding,
// ranging from critical to informational. The values are lowercase to align
// with the platform's wire format.
type RiskLevel string

// Constants defining the standard risk levels for findings.
const (
	RiskCritical RiskLevel = "critical" // Immediate action required.
	RiskHigh     RiskLevel = "high"     // High-impact issue.
	RiskMedium   RiskLevel = "medium"   // Moderate-impact issue.
	RiskLow      RiskLevel = "low"      // Low-impact issue.
	RiskInfo     RiskLevel = "info"     // Informational observation.
)

// riskPriority orders risk levels for comparison; higher is more severe.
var riskPriority = map[RiskLevel]int{
	RiskCritical: 5,
	RiskHigh:     4,
	RiskMedium:   3,
	RiskLow:      2,
	RiskInfo:     1,
}

// Priority returns the numeric rank of the risk level. Unknown levels rank
// below info.
func (r RiskLevel) Priority() int {
	return riskPriority[r]
}

// IsHigherThan reports whether r outranks other.
func (r RiskLevel) IsHigherThan(other RiskLevel) bool {
	return r.Priority() > other.Priority()
}

// Valid reports whether r is one of the defined risk levels.
func (r RiskLevel) Valid() bool {
	_, ok := riskPriority[r]
	return ok
}

// RiskLevels returns all defined levels ordered from most to least severe.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskCritical, RiskHigh, RiskMedium, RiskLow, RiskInfo}
}

// Finding encapsulates a single issue surfaced by the remote analysis
// pipeline, including the pipeline-assigned triage metadata. Findings are
// immutable by replacement: analyst overrides produce a new value via
// FindingPatch.Apply.
type Finding struct {
	ID   string `json:"id"`             // Unique within one pipeline run.
	Type string `json:"type,omitempty"` // Category tag (e.g. "credential_stuffing").

	Risk   RiskLevel `json:"risk"`             // Pipeline- or analyst-assigned risk level.
	Status string    `json:"status,omitempty"` // Pipeline- or analyst-assigned status label.

	Description string `json:"description,omitempty"` // Human-readable summary.
	Source      string `json:"source,omitempty"`      // Origin address or asset.

	// Pipeline-assigned enrichment.
	MitreTechnique      string `json:"mitre_technique,omitempty"`
	BusinessImpact      string `json:"business_impact,omitempty"`
	RemediationPriority string `json:"remediation_priority,omitempty"`
}

// FindingPatch carries analyst overrides merged into an active finding.
// Nil fields are left untouched.
type FindingPatch struct {
	Risk   *RiskLevel `json:"risk,omitempty"`
	Status *string    `json:"status,omitempty"`
}

// IsZero reports whether the patch changes nothing.
func (p FindingPatch) IsZero() bool {
	return p.Risk == nil && p.Status == nil
}

// Apply returns a copy of f with the patch fields merged in.
func (p FindingPatch) Apply(f Finding) Finding {
	if p.Risk != nil {
		f.Risk = *p.Risk
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	return f
}

// CountByRisk tallies findings per risk level.
func CountByRisk(findings []Finding) map[RiskLevel]int {
	counts := make(map[RiskLevel]int, len(riskPriority))
	for _, f := range findings {
		counts[f.Risk]++
	}
	return counts
}
