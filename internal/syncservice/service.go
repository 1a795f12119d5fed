// Package syncservice computes delta snapshots for clients: the set of
// file records changed since a cursor, paired with a server-side cursor
// for the next round.
package syncservice

import (
	"context"
	"time"

	"github.com/tlindqvist/syncbox/internal/metastore"
)

// State is a delta snapshot. ServerTime is the cursor clients pass back
// as since on the next call; Files includes tombstones so deletions
// propagate.
type State struct {
	ServerTime int64                `json:"server_time"`
	Files      []metastore.FileMeta `json:"files"`
}

// Service answers delta queries against the metadata index.
type Service struct {
	meta *metastore.Store
}

// NewService creates a new sync service.
func NewService(meta *metastore.Store) *Service {
	return &Service{meta: meta}
}

// GetState returns all file records changed strictly after since (Unix
// ms); nil since means everything. ServerTime is captured before the
// query, so a record written mid-call reappears in the next delta
// rather than being skipped.
func (s *Service) GetState(_ context.Context, since *int64) (*State, error) {
	serverTime := time.Now().UnixMilli()
	files, err := s.meta.ListFiles(since)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []metastore.FileMeta{}
	}
	return &State{ServerTime: serverTime, Files: files}, nil
}
