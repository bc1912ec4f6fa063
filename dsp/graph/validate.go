package graph

import "fmt"

// validateConnections checks that every referenced module exists, the
// count fits the fixed capacity, and every cycle runs through a feedback
// edge. Non-feedback edges must form a DAG; feedback edges are exempt
// because they carry a one-block delay.
func validateConnections(connections []Connection) error {
	if len(connections) > MaxConnections {
		return fmt.Errorf("%w: %d > %d", ErrTooManyConnections, len(connections), MaxConnections)
	}

	for i, conn := range connections {
		if conn.Source < 0 || conn.Source >= moduleCount {
			return fmt.Errorf("%w: connection %d source %d", ErrUnknownModule, i, int(conn.Source))
		}

		if conn.Destination < 0 || conn.Destination >= moduleCount {
			return fmt.Errorf("%w: connection %d destination %d", ErrUnknownModule, i, int(conn.Destination))
		}
	}

	// Kahn's algorithm over the enabled non-feedback edges. Anything left
	// with a nonzero in-degree sits on an unlabeled cycle.
	var inDegree [moduleCount]int
	var adjacency [moduleCount][]ModuleID

	for _, conn := range connections {
		if !conn.Enabled || conn.Mode == ModeFeedback || conn.Mode == ModeBypass {
			continue
		}

		adjacency[conn.Source] = append(adjacency[conn.Source], conn.Destination)
		inDegree[conn.Destination]++
	}

	queue := make([]ModuleID, 0, moduleCount)
	for id := ModuleID(0); id < moduleCount; id++ {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != int(moduleCount) {
		return ErrUnlabeledCycle
	}

	return nil
}

// buildCustomPreset validates and freezes a custom topology into a
// fixed-capacity snapshot.
func buildCustomPreset(name string, connections []Connection, bypassed map[ModuleID]bool) (Preset, error) {
	if err := validateConnections(connections); err != nil {
		return Preset{}, err
	}

	preset := Preset{Name: name, NumConnections: len(connections)}
	copy(preset.Connections[:], connections)

	for id, b := range bypassed {
		if id < 0 || id >= moduleCount {
			return Preset{}, fmt.Errorf("%w: bypass entry %d", ErrUnknownModule, int(id))
		}

		preset.Bypassed[id] = b
	}

	return preset, nil
}
