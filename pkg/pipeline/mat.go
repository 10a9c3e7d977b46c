package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// matDocument is the on-disk shape of PIPE.mat: the canonical job list plus
// the analyzed graph, serialized so that re-initializing on an unchanged
// declaration produces a byte-identical file modulo the GeneratedAt
// timestamp (§8 property 5).
type matDocument struct {
	Name       string                       `yaml:"name"`
	ListJobs   []string                     `yaml:"list_jobs"`
	Jobs       map[string]JobDeclaration    `yaml:"jobs"`
	Deps       map[string]map[string][]string `yaml:"deps"`
	Edges      []matEdge                    `yaml:"edges"`
	GeneratedAt string                      `yaml:"generated_at"`
}

type matEdge struct {
	Producer string `yaml:"producer"`
	Consumer string `yaml:"consumer"`
}

func toMatDocument(p *Pipeline) matDocument {
	doc := matDocument{
		Name:        p.Name,
		ListJobs:    append([]string(nil), p.ListJobs...),
		Jobs:        p.Jobs,
		Deps:        p.Deps,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for i, producer := range p.ListJobs {
		row := p.Graph.Row(i)
		for j, consumer := range p.ListJobs {
			if row.Get(j) {
				doc.Edges = append(doc.Edges, matEdge{Producer: producer, Consumer: consumer})
			}
		}
	}
	return doc
}

func fromMatDocument(doc matDocument) *Pipeline {
	p := &Pipeline{
		Name:     doc.Name,
		ListJobs: doc.ListJobs,
		Jobs:     doc.Jobs,
		Deps:     doc.Deps,
		Graph:    NewBitMatrix(len(doc.ListJobs)),
	}
	idx := make(map[string]int, len(doc.ListJobs))
	for i, name := range doc.ListJobs {
		idx[name] = i
	}
	for _, e := range doc.Edges {
		pi, ok1 := idx[e.Producer]
		ci, ok2 := idx[e.Consumer]
		if ok1 && ok2 {
			p.Graph.Set(pi, ci)
		}
	}
	return p
}

// WriteMat serializes p as the canonical PIPE.mat file, via atomic
// create-temp + rename (grounded in grove-flow's state.go writeAtomic).
func WriteMat(paths Paths, p *Pipeline) error {
	data, err := yaml.Marshal(toMatDocument(p))
	if err != nil {
		return NewError(KindMissingInput, "WriteMat", err)
	}
	return writeAtomicFile(paths.Mat(), data, 0644)
}

// ReadMat loads a previously-written PIPE.mat, or (nil, nil) if it doesn't
// exist yet (first-time initialization).
func ReadMat(paths Paths) (*Pipeline, error) {
	data, err := os.ReadFile(paths.Mat())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, NewError(KindMissingInput, "ReadMat", err)
	}
	var doc matDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, NewError(KindMissingInput, "ReadMat", err)
	}
	return fromMatDocument(doc), nil
}

func writeAtomicFile(path string, content []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := f.Chmod(perm); err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return err
	}
	success = true
	return nil
}

// InitResult summarizes what Initialize decided.
type InitResult struct {
	Pipeline *Pipeline
	Restart  []string // jobs whose tag files were cleared and must re-run
	Orphaned []string // jobs present previously but absent now
}

// Initialize runs the Pipeline Initializer (§4.2): builds the dependency
// graph from decls, reconciles against any prior PIPE.mat in paths.Root,
// pre-flight-checks missing inputs, deletes tag files for jobs that must
// restart, cleans up orphaned jobs, and writes the new canonical PIPE.mat.
func Initialize(paths Paths, name string, decls []JobDeclaration, forceRestart []string) (*InitResult, error) {
	p, err := BuildGraph(name, decls)
	if err != nil {
		return nil, err
	}

	if err := preflightMissingInputs(p); err != nil {
		return nil, err
	}

	prev, err := ReadMat(paths)
	if err != nil {
		return nil, err
	}

	var restart, orphaned []string
	if prev != nil {
		restart, orphaned = reconcile(prev, p, forceRestart)
	}
	// On first-time initialization nothing is "restart": no prior
	// declaration exists to have changed, and a forced-restart substring
	// has nothing to match against tags that were never written.

	if err := EnsureDir(paths.Root); err != nil {
		return nil, NewError(KindMissingInput, "Initialize", err)
	}
	if err := EnsureDir(paths.TmpDir()); err != nil {
		return nil, NewError(KindMissingInput, "Initialize", err)
	}

	restartSet := make(map[string]struct{}, len(restart))
	for _, job := range restart {
		restartSet[job] = struct{}{}
	}

	// A declaration change (or a forced restart, or being downstream of
	// one) clears every tag including .finished: the job must run again.
	for _, job := range restart {
		if err := clearJobTags(paths, job, true); err != nil {
			return nil, NewError(KindMissingInput, "Initialize", err)
		}
	}
	// Every other job still gets its crash-era tags cleared: a manager
	// that died mid-run leaves .running, .exit and partial .log files
	// behind, and failed jobs are retried by default unless they were
	// already swept into the restart set above (§3 lifecycle rule).
	for _, job := range p.ListJobs {
		if _, inRestart := restartSet[job]; inRestart {
			continue
		}
		if err := clearJobTags(paths, job, false); err != nil {
			return nil, NewError(KindMissingInput, "Initialize", err)
		}
	}
	// Orphaned jobs no longer appear in the pipeline at all; remove every
	// trace of them.
	for _, job := range orphaned {
		if err := clearJobTags(paths, job, true); err != nil {
			return nil, NewError(KindMissingInput, "Initialize", err)
		}
	}

	if err := WriteMat(paths, p); err != nil {
		return nil, err
	}

	return &InitResult{Pipeline: p, Restart: restart, Orphaned: orphaned}, nil
}

// writeJobMat writes the per-job payload a batch/qsub runner reads to learn
// what to execute: <job>.mat, written atomically just before Submit so a
// crash between the write and the runner picking it up leaves status =
// submitted rather than a half-written file (§4.3, §4.5).
func writeJobMat(paths Paths, decl JobDeclaration) error {
	data, err := yaml.Marshal(decl)
	if err != nil {
		return err
	}
	return writeAtomicFile(paths.JobMat(decl.Name), data, 0644)
}

// preflightMissingInputs verifies every required input not produced by an
// upstream job exists on disk, placeholders excluded (§4.2 Pre-flight).
func preflightMissingInputs(p *Pipeline) error {
	for _, name := range p.ListJobs {
		job := p.Jobs[name]
		produced := make(map[string]struct{})
		for _, files := range p.Deps[name] {
			for _, f := range files {
				produced[f] = struct{}{}
			}
		}
		for _, f := range job.NormalizedFilesIn() {
			if _, ok := produced[f]; ok {
				continue
			}
			if !Exists(f) {
				return NewJobError(KindMissingInput, "preflightMissingInputs", name,
					fmt.Errorf("required input %q has no producer and does not exist", f))
			}
		}
	}
	return nil
}

// reconcile implements §4.2's reconciliation algorithm steps 2-6: compare
// declarations, honor the user's restart list (substring match), close
// under descendants, and report orphans.
func reconcile(prev, next *Pipeline, forceRestart []string) (restart, orphaned []string) {
	restartSet := make(map[string]struct{})

	for _, name := range next.ListJobs {
		prevDecl, hadPrev := prev.Jobs[name]
		nextDecl := next.Jobs[name]
		if hadPrev && !prevDecl.Equal(nextDecl) {
			restartSet[name] = struct{}{}
		}
	}

	for _, substr := range forceRestart {
		for _, name := range next.ListJobs {
			if substr != "" && strings.Contains(name, substr) {
				restartSet[name] = struct{}{}
			}
		}
	}

	// Close restart set under descendants via graph_deps (step 4).
	closed := make(map[string]struct{}, len(restartSet))
	for name := range restartSet {
		closed[name] = struct{}{}
		if idx := next.IndexOf(name); idx >= 0 {
			for _, d := range next.Graph.TransitiveDescendants(idx).Indices() {
				closed[next.ListJobs[d]] = struct{}{}
			}
		}
	}

	for name := range closed {
		restart = append(restart, name)
	}

	for name := range prev.Jobs {
		if _, stillPresent := next.Jobs[name]; !stillPresent {
			orphaned = append(orphaned, name)
		}
	}

	return restart, orphaned
}

// clearJobTags deletes stale tag files for job. Crash-era tags (.running,
// .failed, .exit, .log, .eqsub, .oqsub, .kill, .mat) are always removed;
// .finished is only removed when includeFinished is set, which Initialize
// reserves for jobs in the restart/orphan set so that a previously-finished
// job with an unchanged declaration is simply left alone (§3, §4.4 idempotence).
func clearJobTags(paths Paths, job string, includeFinished bool) error {
	tags := []string{
		paths.JobRunning(job),
		paths.JobFailed(job),
		paths.JobExit(job),
		paths.JobLog(job),
		paths.JobEqsub(job),
		paths.JobOqsub(job),
		paths.JobKill(job),
		paths.JobMat(job),
	}
	if includeFinished {
		tags = append(tags, paths.JobFinished(job))
	}
	for _, p := range tags {
		if err := RemoveTag(p); err != nil {
			return err
		}
	}
	return nil
}
