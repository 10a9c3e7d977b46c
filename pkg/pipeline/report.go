package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"time"
)

// Event is one of the news_feed event kinds (§4.7, §5 Ordering guarantees).
type Event string

const (
	EventSubmitted Event = "submitted"
	EventRunning   Event = "running"
	EventFinished  Event = "finished"
	EventFailed    Event = "failed"
)

// NewsFeed is the append-only, authoritative audit trail described in
// §4.7. Append writes each event as a plain CSV record `<job_name>,<event>`
// with no spaces around the comma; ReadAll also accepts the spaced
// `<job_name> , <event>` form. Reads and writes use encoding/csv (stdlib):
// the dependency pack carries no CSV-specific library and the format is a
// trivial two-field line, so stdlib is the idiomatic choice here rather
// than a gap (see DESIGN.md).
type NewsFeed struct {
	paths Paths
}

// NewNewsFeed returns a NewsFeed rooted at paths.
func NewNewsFeed(paths Paths) *NewsFeed { return &NewsFeed{paths: paths} }

// Append writes one event line, creating the file if necessary.
// Within a single manager process, Append calls preserve per-job ordering
// (submitted before finished/failed for the same job) because the
// scheduler only calls Append from its single loop goroutine (§5).
func (n *NewsFeed) Append(job string, event Event) error {
	f, err := os.OpenFile(n.paths.NewsFeed(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = ','
	if err := w.Write([]string{job, string(event)}); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// NewsFeedEntry is one parsed line of the news feed.
type NewsFeedEntry struct {
	Job   string
	Event Event
}

// ReadAll parses every entry written so far. The source's parser is noted
// in §9 as computing its delimiter position on a cell array rather than a
// string in at least one branch; the corrected, specified behavior is
// "line by line split on newline, then field split on ` , `" — which is
// what encoding/csv with Comma=',' gives once the spaces around each field
// are trimmed.
func (n *NewsFeed) ReadAll() ([]NewsFeedEntry, error) {
	f, err := os.Open(n.paths.NewsFeed())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = ','
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var entries []NewsFeedEntry
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		if len(rec) < 2 {
			continue
		}
		entries = append(entries, NewsFeedEntry{
			Job:   strings.TrimSpace(rec[0]),
			Event: Event(strings.TrimSpace(rec[1])),
		})
	}
	return entries, nil
}

// Cursor remembers how many news-feed entries a reader has already been
// given. Since re-reads the whole file on every call and returns only the
// entries past that count; it does not seek to a saved file position.
type Cursor struct {
	offset int
}

// Since returns entries appended after the cursor's last read, advancing it.
func (n *NewsFeed) Since(c *Cursor) ([]NewsFeedEntry, error) {
	all, err := n.ReadAll()
	if err != nil {
		return nil, err
	}
	if c.offset > len(all) {
		c.offset = len(all)
	}
	fresh := all[c.offset:]
	c.offset = len(all)
	return fresh, nil
}

// reportLine formats the one-line human report §4.4(a) requires:
// "<ts> - The job <name> has <verb> (N jobs in queue)."
func reportLine(job string, verb string, queued int) string {
	ts := time.Now().Format("2006-01-02 15:04:05")
	return fmt.Sprintf("%s - The job %s has %s (%d jobs in queue).", ts, job, verb, queued)
}

// Counts summarizes mask sizes for the terminal report.
type Counts struct {
	Finished int
	Failed   int
	Skipped  int
	Total    int
}

// Summary is the human-readable report emitted at termination (§4.7, §7
// User-visible behavior): counts plus, on failure, the log path of the
// first failed job.
type Summary struct {
	Counts       Counts
	FirstFailLog string
	Aborted      bool
	AbortKind    Kind
}

func (s Summary) String() string {
	out := fmt.Sprintf("pipeline finished: %d/%d finished, %d failed, %d skipped",
		s.Counts.Finished, s.Counts.Total, s.Counts.Failed, s.Counts.Skipped)
	if s.Counts.Failed > 0 && s.FirstFailLog != "" {
		out += fmt.Sprintf("\nfirst failure log: %s", s.FirstFailLog)
	}
	if s.Aborted {
		out += fmt.Sprintf("\naborted: %s", s.AbortKind)
	}
	return out
}

// BuildSummary assembles a Summary from the scheduler's final state.
func BuildSummary(paths Paths, total int, finished, failed, skipped []string) Summary {
	s := Summary{Counts: Counts{
		Finished: len(finished),
		Failed:   len(failed),
		Skipped:  len(skipped),
		Total:    total,
	}}
	if len(failed) > 0 {
		s.FirstFailLog = paths.JobLog(failed[0])
	}
	return s
}
