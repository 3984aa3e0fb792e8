// Package robotics is the os.robotics domain plugin: a budget-and-risk
// digital twin for a hardware build project, gated BOM/procurement/test
// workflow, and a value model that rewards staying inside budget.
//
// Grounded on
// original_source/pce-os/src/pce_os/{models,plugins}.py.
package robotics

import (
	"encoding/json"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Name is the domain dispatch key for this plugin.
const Name = "os.robotics"

// StateKey is the pce_os sub-key the digital twin is persisted under.
const StateKey = "pce_os"
const twinKey = "robotics_twin"

// Supplier is a known parts supplier with lead-time/reliability signals.
type Supplier struct {
	SupplierID       string  `json:"supplier_id"`
	Name             string  `json:"name"`
	ReliabilityScore float64 `json:"reliability_score"`
	AvgLeadTimeDays  int     `json:"avg_lead_time_days"`
}

// Component is one bill-of-materials line item.
type Component struct {
	ComponentID        string  `json:"component_id"`
	Name               string  `json:"name"`
	Category           string  `json:"category"`
	Quantity           int     `json:"quantity"`
	EstimatedUnitCost  float64 `json:"estimated_unit_cost"`
	SelectedSupplierID string  `json:"selected_supplier_id,omitempty"`
	Status             string  `json:"status"`
	RiskLevel          string  `json:"risk_level"`
}

// CostProjection is the twin's rolling cost/confidence estimate.
type CostProjection struct {
	ProjectedTotalCost  float64 `json:"projected_total_cost"`
	ProjectedRiskBuffer float64 `json:"projected_risk_buffer"`
	Confidence          float64 `json:"confidence"`
}

// TestResult is one structured test execution outcome.
type TestResult struct {
	TestID          string             `json:"test_id"`
	ComponentID     string             `json:"component_id"`
	Passed          bool               `json:"passed"`
	MeasuredMetrics map[string]float64 `json:"measured_metrics"`
	Notes           string             `json:"notes"`
}

// PurchaseRecord is one resolved purchase in the twin's audit history.
type PurchaseRecord struct {
	PurchaseID  string  `json:"purchase_id"`
	ComponentID string  `json:"component_id"`
	Cost        float64 `json:"cost"`
	Status      string  `json:"status"`
}

// Twin is the root digital-twin document for one robotics build project,
// persisted at state["pce_os"]["robotics_twin"].
type Twin struct {
	SchemaVersion    string           `json:"schema_version"`
	ProjectID        string           `json:"project_id"`
	Phase            string           `json:"phase"`
	BudgetTotal      float64          `json:"budget_total"`
	BudgetRemaining  float64          `json:"budget_remaining"`
	Risks            []string         `json:"risks"`
	RiskLevel        string           `json:"risk_level"`
	Components       []Component      `json:"components"`
	Suppliers        []Supplier       `json:"suppliers"`
	CostProjection   CostProjection   `json:"cost_projection"`
	Tests            []TestResult     `json:"tests"`
	PurchaseHistory  []PurchaseRecord `json:"purchase_history"`
}

// DefaultTwin builds a fresh digital twin baseline, mirroring
// RobotProjectState's pydantic field defaults.
func DefaultTwin() Twin {
	return Twin{
		SchemaVersion:   "v0",
		ProjectID:       "robotics-v0",
		Phase:           "planning",
		RiskLevel:       "LOW",
		CostProjection:  CostProjection{Confidence: 0.5},
		Components:      []Component{},
		Suppliers:       []Supplier{},
		Tests:           []TestResult{},
		PurchaseHistory: []PurchaseRecord{},
		Risks:           []string{},
	}
}

// TwinFromState loads the digital twin from state, defaulting to a fresh
// baseline when absent or malformed.
func TwinFromState(state pcetypes.State) Twin {
	var osState map[string]any
	if !state.Get(StateKey, &osState) {
		return DefaultTwin()
	}
	raw, ok := osState[twinKey]
	if !ok {
		return DefaultTwin()
	}
	var twin Twin
	raw2, err := json.Marshal(raw)
	if err != nil {
		return DefaultTwin()
	}
	if err := json.Unmarshal(raw2, &twin); err != nil {
		return DefaultTwin()
	}
	return twin
}

// WithTwin returns state with the digital twin written back under
// pce_os.robotics_twin, leaving any other pce_os keys untouched.
func WithTwin(state pcetypes.State, twin Twin) pcetypes.State {
	var osState map[string]any
	if !state.Get(StateKey, &osState) || osState == nil {
		osState = map[string]any{}
	}
	osState[twinKey] = twin
	next := state.Clone()
	next.Set(StateKey, osState)
	return next
}
