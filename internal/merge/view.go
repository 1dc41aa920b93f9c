// Package merge builds the single display list of server and local records.
package merge

import (
	"sort"
	"strconv"

	"herb-collector/internal/domain"
)

type Source string

const (
	SourceServer Source = "server"
	SourceLocal  Source = "local"
)

const localIDPrefix = "local_"

// Entry is one row of the merged view. DisplayID never collides between
// sources: server ids are used as is, local ids are prefixed.
type Entry struct {
	domain.CollectionRecord
	DisplayID string `json:"id"`
	Source    Source `json:"source"`
}

// LocalDisplayID is the display id of a record that only exists locally.
func LocalDisplayID(localID int64) string {
	return localIDPrefix + strconv.FormatInt(localID, 10)
}

// BuildView merges server and local records, newest first. A local record is
// dropped when a server record shares its batch, collector and species; the
// server copy wins. Equal timestamps keep server entries ahead of local ones.
func BuildView(remote, local []domain.CollectionRecord) []Entry {
	entries := make([]Entry, 0, len(remote)+len(local))
	batches := make(map[string]bool, len(remote))
	keys := make(map[domain.RecordKey]bool, len(remote))

	for _, r := range remote {
		r.Synced = true
		batches[r.BatchID] = true
		keys[r.Key()] = true
		entries = append(entries, Entry{
			CollectionRecord: r,
			DisplayID:        r.ID,
			Source:           SourceServer,
		})
	}

	for _, l := range local {
		if batches[l.BatchID] && keys[l.Key()] {
			continue
		}
		entries = append(entries, Entry{
			CollectionRecord: l,
			DisplayID:        LocalDisplayID(l.LocalID),
			Source:           SourceLocal,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}

// Summary counts the entries of a view.
type Summary struct {
	Total        int `json:"total"`
	Server       int `json:"server"`
	LocalPending int `json:"localPending"`
	LocalSynced  int `json:"localSynced"`
}

func Summarize(entries []Entry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		switch {
		case e.Source == SourceServer:
			s.Server++
		case e.Synced:
			s.LocalSynced++
		default:
			s.LocalPending++
		}
	}
	return s
}
