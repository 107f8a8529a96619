package schemas

import (
	"fmt"

	json "github.com/json-iterator/go"
)

// -- Cloud Scan Schemas --

// ScanNode names one vertex of the fixed cloud-scan progress graph.
type ScanNode string

const (
	NodeEngine    ScanNode = "engine"    // Scan engine spin-up.
	NodeDiscovery ScanNode = "discovery" // Asset discovery.
	NodeRouting   ScanNode = "routing"   // Attack-surface routing.
	NodeProbing   ScanNode = "probing"   // Active probing.
	NodeAnalysis  ScanNode = "analysis"  // Issue analysis.
	NodeReport    ScanNode = "report"    // Report assembly.
)

// NodeStatus is the derived display state of one scan graph node.
type NodeStatus string

const (
	NodePending   NodeStatus = "pending"
	NodeActive    NodeStatus = "active"
	NodeCompleted NodeStatus = "completed"
	NodeErrored   NodeStatus = "error"
)

// ScanEdge is a directed edge of the fixed scan graph.
type ScanEdge struct {
	From ScanNode `json:"from"`
	To   ScanNode `json:"to"`
}

// ScanMilestone is a coarse progress notification from the cloud-scan
// pipeline. The scanner reports milestones, not per-node events.
type ScanMilestone string

const (
	MilestoneStarting   ScanMilestone = "starting"
	MilestoneDiscovered ScanMilestone = "discovered"
	MilestoneRouting    ScanMilestone = "routing"
	MilestoneScanned    ScanMilestone = "scanned"
	MilestoneComplete   ScanMilestone = "complete"
	MilestoneError      ScanMilestone = "error"
)

// Recognized reports whether m is one of the defined milestones.
// Unrecognized milestones are inert: consumers never record them.
func (m ScanMilestone) Recognized() bool {
	switch m {
	case MilestoneStarting, MilestoneDiscovered, MilestoneRouting,
		MilestoneScanned, MilestoneComplete, MilestoneError:
		return true
	}
	return false
}

// Terminal reports whether m ends the scan stream.
func (m ScanMilestone) Terminal() bool {
	return m == MilestoneComplete || m == MilestoneError
}

// ScanEvent is one milestone notification plus the progress counters the
// scanner had accumulated when it fired.
type ScanEvent struct {
	Milestone ScanMilestone `json:"milestone"`
	Assets    int           `json:"assets,omitempty"`
	Issues    int           `json:"issues,omitempty"`
	Exploits  int           `json:"exploits,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// DecodeScanEvent maps a wire milestone name and its JSON payload to a
// ScanEvent. Unrecognized milestone names decode to (nil, nil).
func DecodeScanEvent(name string, data []byte) (*ScanEvent, error) {
	milestone := ScanMilestone(name)
	if !milestone.Recognized() {
		return nil, nil
	}
	var ev ScanEvent
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decoding %s milestone: %w", name, err)
		}
	}
	ev.Milestone = milestone
	return &ev, nil
}
