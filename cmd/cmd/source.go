// Copyright © 2021 Jonathan Whitaker <jonathan@whitaker.io>

package cmd

import (
	"context"
	"path/filepath"
	"sort"

	"github.com/whitaker-io/machine/message"
)

// globSource emits one ExtractionRequest per file matching Glob, sorted for
// deterministic ordering, the Go stand-in for the directory walk
// hpc_pipeline.py's ventilator iterable performs over its input files.
type globSource struct {
	files []string
	i     int
}

// newGlobSource lists every file under dir matching pattern.
func newGlobSource(dir, pattern string) (*globSource, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return &globSource{files: matches}, nil
}

// Next implements scaffold.RequestSource.
func (s *globSource) Next(ctx context.Context) (*message.Message, bool, error) {
	if s.i >= len(s.files) {
		return nil, false, nil
	}
	path := s.files[s.i]
	s.i++
	return message.New(message.ExtractionRequest, path, nil), true, nil
}
