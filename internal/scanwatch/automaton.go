// File: internal/scanwatch/automaton.go

// Package scanwatch derives a node status coloring for the cloud scan
// graph from the latest milestone event. The scanner reports coarse
// milestones rather than per-node progress, so each milestone maps to an
// exhaustive set of completed and active nodes via a fixed lookup table.
// Deriving from the latest event alone, instead of folding history, makes
// the coloring idempotent and replay safe.
package scanwatch

import (
	"github.com/nullvane/argus-cli/api/schemas"
)

// graphNodes is the fixed scan pipeline in execution order.
var graphNodes = []schemas.ScanNode{
	schemas.NodeEngine,
	schemas.NodeDiscovery,
	schemas.NodeRouting,
	schemas.NodeProbing,
	schemas.NodeAnalysis,
	schemas.NodeReport,
}

// graphEdges wires the nodes into a straight pipeline.
var graphEdges = []schemas.ScanEdge{
	{From: schemas.NodeEngine, To: schemas.NodeDiscovery},
	{From: schemas.NodeDiscovery, To: schemas.NodeRouting},
	{From: schemas.NodeRouting, To: schemas.NodeProbing},
	{From: schemas.NodeProbing, To: schemas.NodeAnalysis},
	{From: schemas.NodeAnalysis, To: schemas.NodeReport},
}

// coloring is one row of the milestone lookup table.
type coloring struct {
	completed []schemas.ScanNode
	active    []schemas.ScanNode
}

// milestoneTable maps each recognized, non-error milestone to the nodes it
// proves completed and the nodes it shows as active. The sets are
// exhaustive per milestone, never computed from prior events.
var milestoneTable = map[schemas.ScanMilestone]coloring{
	schemas.MilestoneStarting: {
		active: []schemas.ScanNode{schemas.NodeEngine},
	},
	schemas.MilestoneDiscovered: {
		completed: []schemas.ScanNode{schemas.NodeEngine, schemas.NodeDiscovery},
		active:    []schemas.ScanNode{schemas.NodeRouting},
	},
	schemas.MilestoneRouting: {
		completed: []schemas.ScanNode{schemas.NodeEngine, schemas.NodeDiscovery, schemas.NodeRouting},
		active:    []schemas.ScanNode{schemas.NodeProbing},
	},
	schemas.MilestoneScanned: {
		completed: []schemas.ScanNode{schemas.NodeEngine, schemas.NodeDiscovery, schemas.NodeRouting, schemas.NodeProbing},
		active:    []schemas.ScanNode{schemas.NodeAnalysis},
	},
	schemas.MilestoneComplete: {
		completed: graphNodes,
	},
}

// Nodes returns the scan graph nodes in execution order.
func Nodes() []schemas.ScanNode {
	out := make([]schemas.ScanNode, len(graphNodes))
	copy(out, graphNodes)
	return out
}

// Edges returns the scan graph edges.
func Edges() []schemas.ScanEdge {
	out := make([]schemas.ScanEdge, len(graphEdges))
	copy(out, graphEdges)
	return out
}

// Statuses computes the status of every graph node from the latest scan
// event and the in-progress flag. It is a pure function: the same inputs
// always produce the same map.
//
// With no usable event, a running scan shows the first node active and an
// idle scanner shows the graph entirely pending. Unrecognized milestones
// are treated the same as no event.
func Statuses(latest *schemas.ScanEvent, scanning bool) map[schemas.ScanNode]schemas.NodeStatus {
	statuses := make(map[schemas.ScanNode]schemas.NodeStatus, len(graphNodes))
	for _, n := range graphNodes {
		statuses[n] = schemas.NodePending
	}

	if latest == nil || !latest.Milestone.Recognized() {
		if scanning {
			statuses[graphNodes[0]] = schemas.NodeActive
		}
		return statuses
	}

	if latest.Milestone == schemas.MilestoneError {
		applyErrorColoring(statuses, latest)
		return statuses
	}

	row := milestoneTable[latest.Milestone]
	for _, n := range row.completed {
		statuses[n] = schemas.NodeCompleted
	}
	for _, n := range row.active {
		statuses[n] = schemas.NodeActive
	}
	return statuses
}

// applyErrorColoring marks the nodes whose output the failed scan already
// produced, judged from the event's counts. Nothing is shown active: the
// scan is over. Report is never reached on error.
func applyErrorColoring(statuses map[schemas.ScanNode]schemas.NodeStatus, ev *schemas.ScanEvent) {
	statuses[schemas.NodeEngine] = schemas.NodeCompleted
	if ev.Assets > 0 {
		statuses[schemas.NodeDiscovery] = schemas.NodeCompleted
	}
	if ev.Issues > 0 {
		statuses[schemas.NodeRouting] = schemas.NodeCompleted
		statuses[schemas.NodeProbing] = schemas.NodeCompleted
	}
	if ev.Exploits > 0 {
		statuses[schemas.NodeAnalysis] = schemas.NodeCompleted
	}
}
