package pipeline

// topologicalOrder runs Kahn's algorithm over nodes, counting in-degree
// only for edges whose source is another render node in this set — a
// literal "source" input contributes no dependency (§4.7 step 1). If
// the emitted count is short of len(nodes), a cycle exists; the caller
// gets the partial order plus a non-zero warned count, and downstream
// nodes referencing missing producers fail later at render time.
func topologicalOrder(nodes []RenderNode) (order []string, warned int) {
	inDegree := make(map[string]int, len(nodes))
	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		ids[n.ID] = true
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
	}
	dependents := make(map[string][]string)
	for _, n := range nodes {
		for _, in := range n.InputIDs {
			if in == SourceInputID || !ids[in] {
				continue
			}
			inDegree[n.ID]++
			dependents[in] = append(dependents[in], n.ID)
		}
	}

	var queue []string
	for _, n := range nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order = make([]string, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(nodes) {
		warned = len(nodes) - len(order)
	}
	return order, warned
}
