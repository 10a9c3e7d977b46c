package pipeline

import "strings"

// placeholder file identifiers are filtered out before dependency analysis
// and pre-flight existence checks.
const (
	placeholderEmpty   = ""
	placeholderOmitted = "gb_niak_omitted"
)

func isPlaceholder(f string) bool {
	return f == placeholderEmpty || f == placeholderOmitted
}

// JobDeclaration is immutable once a Pipeline has been initialized from it.
type JobDeclaration struct {
	Name     string   `yaml:"name" json:"name"`
	Command  string   `yaml:"command" json:"command"`
	FilesIn  []string `yaml:"files_in" json:"files_in"`
	FilesOut []string `yaml:"files_out" json:"files_out"`
	Opts     string   `yaml:"opts,omitempty" json:"opts,omitempty"`
}

// normalizedFiles returns FilesIn or FilesOut with whitespace trimmed,
// placeholders dropped, and duplicates removed. Order is preserved.
func normalizedFiles(files []string) []string {
	seen := make(map[string]struct{}, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		f = strings.TrimSpace(f)
		if isPlaceholder(f) {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// NormalizedFilesIn returns the normalized (trimmed, deduped, placeholder-free) input set.
func (j JobDeclaration) NormalizedFilesIn() []string { return normalizedFiles(j.FilesIn) }

// NormalizedFilesOut returns the normalized (trimmed, deduped, placeholder-free) output set.
func (j JobDeclaration) NormalizedFilesOut() []string { return normalizedFiles(j.FilesOut) }

// Equal reports structural equality of two declarations, the comparison
// §4.2 step 2 uses to decide whether a job's declaration changed across a
// restart. Equality is on normalized file sets, not raw slices, so
// reordering or re-quoting a path does not itself trigger a restart beyond
// what exact string equality already implies (paths are not canonicalized,
// per §4.1's tie-break rule).
func (j JobDeclaration) Equal(other JobDeclaration) bool {
	if j.Name != other.Name || j.Command != other.Command || j.Opts != other.Opts {
		return false
	}
	return sameSet(j.NormalizedFilesIn(), other.NormalizedFilesIn()) &&
		sameSet(j.NormalizedFilesOut(), other.NormalizedFilesOut())
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, f := range a {
		set[f]++
	}
	for _, f := range b {
		set[f]--
	}
	for _, n := range set {
		if n != 0 {
			return false
		}
	}
	return true
}

// JobStatus is one of the values resolved by the Job Status Reader (§4.3).
type JobStatus string

const (
	StatusNone      JobStatus = "none"
	StatusSubmitted JobStatus = "submitted"
	StatusRunning   JobStatus = "running"
	StatusFinished  JobStatus = "finished"
	StatusFailed    JobStatus = "failed"
	StatusExit      JobStatus = "exit"
)

// Pipeline is the analyzed, in-memory representation of a submitted job
// collection: the job list (canonical order = index space for all masks),
// per-job producer->files dependency map, and the adjacency matrix.
type Pipeline struct {
	Name string

	// ListJobs is the canonical ordering; index i is job ListJobs[i].
	ListJobs []string

	// Jobs maps name -> declaration.
	Jobs map[string]JobDeclaration

	// Deps[consumer][producer] = intersection of consumer.files_in and
	// producer.files_out.
	Deps map[string]map[string][]string

	// Graph is the adjacency matrix: Graph.Get(i, j) iff job j consumes an
	// output of job i.
	Graph *BitMatrix
}

// IndexOf returns the position of name in ListJobs, or -1.
func (p *Pipeline) IndexOf(name string) int {
	for i, n := range p.ListJobs {
		if n == name {
			return i
		}
	}
	return -1
}

// Job returns the declaration for name and whether it exists.
func (p *Pipeline) Job(name string) (JobDeclaration, bool) {
	d, ok := p.Jobs[name]
	return d, ok
}
