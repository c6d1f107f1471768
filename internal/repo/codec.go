package repo

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/stacklok/repocache/internal/confparse"
)

// keyPrefix qualifies repository attributes in configuration files
const keyPrefix = "repo."

// Encoder writes records in the configuration format. Overrides equal to
// the defaults are omitted, so the output only makes sense when read back
// with the same global settings.
type Encoder struct {
	Defaults Defaults
}

// Encode writes one record block terminated by a blank line. A record that
// is not Encodable writes nothing.
func (e Encoder) Encode(w io.Writer, r *Record) error {
	bw := bufio.NewWriter(w)
	e.write(bw, r)
	return bw.Flush()
}

// EncodeAll writes a block for every record. Records whose url or path
// span lines cannot be read back and are left out.
func (e Encoder) EncodeAll(w io.Writer, records []*Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		e.write(bw, r)
	}
	return bw.Flush()
}

// Encodable reports whether r survives a round trip through the encoder.
// Other multi-line values are cut at the first line break.
func Encodable(r *Record) bool {
	return !strings.ContainsAny(r.URL, "\r\n") && !strings.ContainsAny(r.Path, "\r\n")
}

func (e Encoder) write(w *bufio.Writer, r *Record) {
	if !Encodable(r) {
		return
	}
	line := func(key, value string) {
		// bufio.Writer keeps the first error and Flush reports it
		_, _ = fmt.Fprintf(w, "%s%s=%s\n", keyPrefix, key, firstLine(value))
	}
	optional := func(key, value string) {
		if firstLine(value) != "" {
			line(key, value)
		}
	}
	flag := func(key string, value bool) {
		if value {
			line(key, "1")
		} else {
			line(key, "0")
		}
	}
	override := func(key, value, global string) {
		if firstLine(value) != "" && value != global {
			line(key, value)
		}
	}

	d := e.Defaults

	line("url", r.URL)
	line("name", r.Name)
	line("path", r.Path)
	optional("owner", r.Owner)
	optional("desc", r.Desc)
	for _, readme := range r.Readme {
		line("readme", readme.String())
	}
	optional("defbranch", r.DefBranch)
	optional("module-link", r.ModuleLink)
	optional("section", r.Section)
	optional("clone-url", r.CloneURL)
	flag("enable-commit-graph", r.EnableCommitGraph)
	flag("enable-log-filecount", r.EnableLogFilecount)
	flag("enable-log-linecount", r.EnableLogLinecount)
	override("about-filter", r.AboutFilter, d.AboutFilter)
	override("commit-filter", r.CommitFilter, d.CommitFilter)
	override("source-filter", r.SourceFilter, d.SourceFilter)
	if r.Snapshots != d.Snapshots {
		line("snapshots", r.Snapshots.String())
	}
	if r.MaxStats != d.MaxStats {
		line("max-stats", r.MaxStats.String())
	}
	optional("logo", r.Logo)
	optional("logo-link", r.LogoLink)
	flag("enable-remote-branches", r.EnableRemoteBranches)
	flag("enable-subject-links", r.EnableSubjectLinks)
	if r.BranchSort == BranchSortAge {
		line("branch-sort", "age")
	}
	if r.CommitSort != CommitSortNone {
		line("commit-sort", r.CommitSort.String())
	}
	_ = w.WriteByte('\n')
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// Decode reads records written by Encoder (or hand-written repo.* lines)
// into sink. Entries without the repo. prefix are ignored.
func Decode(r io.Reader, sink Sink) error {
	return confparse.Parse(r, func(e confparse.Entry) error {
		if key, ok := strings.CutPrefix(e.Name, keyPrefix); ok {
			sink.Register(key, e.Value)
		}
		return nil
	})
}

// DecodeFile decodes the records stored at path
func DecodeFile(path string, sink Sink) error {
	return confparse.ParseFile(path, func(e confparse.Entry) error {
		if key, ok := strings.CutPrefix(e.Name, keyPrefix); ok {
			sink.Register(key, e.Value)
		}
		return nil
	})
}
