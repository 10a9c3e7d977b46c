package pipeline

import (
	"fmt"
	"strings"
)

// BuildGraph runs the Dependency Analyzer (§4.1) over a set of job
// declarations: it derives the canonical job order, the producer->files
// dependency map for every consumer, and the adjacency matrix, then
// verifies the result is acyclic.
//
// Complexity is O(J^2 * F) on J jobs with mean F files, which the spec
// accepts because J is bounded by user input. Tie-break on equal file
// identifiers is exact string equality after whitespace trimming; paths
// are not canonicalized (§4.1).
func BuildGraph(name string, decls []JobDeclaration) (*Pipeline, error) {
	list := make([]string, 0, len(decls))
	jobs := make(map[string]JobDeclaration, len(decls))
	for _, d := range decls {
		if _, dup := jobs[d.Name]; dup {
			return nil, NewError(KindCycle, "BuildGraph", fmt.Errorf("duplicate job name %q", d.Name))
		}
		jobs[d.Name] = d
		list = append(list, d.Name)
	}

	p := &Pipeline{
		Name:     name,
		ListJobs: list,
		Jobs:     jobs,
		Deps:     make(map[string]map[string][]string, len(list)),
		Graph:    NewBitMatrix(len(list)),
	}

	for _, consumerName := range list {
		p.Deps[consumerName] = make(map[string][]string)
	}

	for ci, consumerName := range list {
		consumer := jobs[consumerName]
		in := setOf(consumer.NormalizedFilesIn())

		for pi, producerName := range list {
			if ci == pi {
				continue
			}
			producer := jobs[producerName]
			var overlap []string
			for _, f := range producer.NormalizedFilesOut() {
				if _, ok := in[f]; ok {
					overlap = append(overlap, f)
				}
			}
			if len(overlap) > 0 {
				p.Deps[consumerName][producerName] = overlap
				p.Graph.Set(pi, ci)
			}
		}
	}

	if cycle := findCycle(p.Graph, list); cycle != nil {
		return nil, NewError(KindCycle, "BuildGraph", fmt.Errorf("cyclic dependency: %s", strings.Join(cycle, " -> ")))
	}

	return p, nil
}

func setOf(files []string) map[string]struct{} {
	m := make(map[string]struct{}, len(files))
	for _, f := range files {
		m[f] = struct{}{}
	}
	return m
}

// findCycle verifies the graph is a DAG via DFS-based topological sort and,
// if it is not, returns a minimal cycle (as a list of job names, first
// repeated at the end) for the ECycle error message.
func findCycle(g *BitMatrix, names []string) []string {
	const (
		white = iota
		gray
		black
	)
	n := g.N()
	color := make([]int, n)
	path := make([]int, 0, n)
	var cycle []int

	var visit func(u int) bool
	visit = func(u int) bool {
		color[u] = gray
		path = append(path, u)

		row := g.Row(u)
		for v := 0; v < n; v++ {
			if !row.Get(v) {
				continue
			}
			switch color[v] {
			case white:
				if visit(v) {
					return true
				}
			case gray:
				// Found the back edge; extract the cycle from path.
				start := 0
				for i, p := range path {
					if p == v {
						start = i
						break
					}
				}
				cycle = append(append([]int{}, path[start:]...), v)
				return true
			}
		}

		path = path[:len(path)-1]
		color[u] = black
		return false
	}

	for u := 0; u < n; u++ {
		if color[u] == white {
			if visit(u) {
				break
			}
		}
	}

	if cycle == nil {
		return nil
	}
	out := make([]string, len(cycle))
	for i, idx := range cycle {
		out[i] = names[idx]
	}
	return out
}

// TopologicalOrder returns ListJobs indices in a valid topological order.
// The graph is assumed acyclic (BuildGraph already verified this).
func TopologicalOrder(g *BitMatrix) []int {
	n := g.N()
	indegree := make([]int, n)
	for i := 0; i < n; i++ {
		row := g.Row(i)
		for j := 0; j < n; j++ {
			if row.Get(j) {
				indegree[j]++
			}
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, n)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)

		row := g.Row(u)
		for v := 0; v < n; v++ {
			if row.Get(v) {
				indegree[v]--
				if indegree[v] == 0 {
					queue = append(queue, v)
				}
			}
		}
	}

	return order
}
