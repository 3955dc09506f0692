package toolsync

import (
	"path"
	"sort"
	"time"

	"github.com/harun/toolserver/pkg/embedding"
	"github.com/harun/toolserver/pkg/objectstore"
)

// Candidate is a listed script chosen for embedding.
type Candidate struct {
	Name         string
	Key          string
	LastModified time.Time
}

// Diff compares a complete listing with the local state.
//
// Only objects with the script extension take part. A script is added when its
// name is not registered, or when it is tracked and the listed timestamp is
// strictly newer. Registered names that are not tracked are never candidates.
// Tracked names missing from the listing are deleted.
func Diff(objects []objectstore.ObjectSummary, extension string, registered func(string) bool, tracked map[string]time.Time) ([]Candidate, []string) {
	listed := make(map[string]objectstore.ObjectSummary)
	for _, obj := range objects {
		if path.Ext(obj.Key) != extension {
			continue
		}
		name := embedding.ToolName(obj.Key)
		// the newest object wins when two keys share a base name
		if prev, ok := listed[name]; ok && !obj.LastModified.After(prev.LastModified) {
			continue
		}
		listed[name] = obj
	}

	var additions []Candidate
	for name, obj := range listed {
		last, isTracked := tracked[name]
		switch {
		case isTracked && obj.LastModified.After(last):
		case !isTracked && !registered(name):
		default:
			continue
		}
		additions = append(additions, Candidate{Name: name, Key: obj.Key, LastModified: obj.LastModified})
	}
	sort.Slice(additions, func(i, j int) bool { return additions[i].Name < additions[j].Name })

	var deletions []string
	for name := range tracked {
		if _, ok := listed[name]; !ok {
			deletions = append(deletions, name)
		}
	}
	sort.Strings(deletions)

	return additions, deletions
}
