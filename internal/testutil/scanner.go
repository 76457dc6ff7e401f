package testutil

import "dotkeep/internal/dot"

// StaticScanner returns a fixed tracked set, or a fixed error.
type StaticScanner struct {
	Paths []dot.TrackedPath
	Err   error
}

var _ dot.Scanner = (*StaticScanner)(nil)

// NewStaticScanner creates a StaticScanner over the given paths with the
// default mode.
func NewStaticScanner(paths ...string) *StaticScanner {
	s := &StaticScanner{}
	for _, p := range paths {
		s.Paths = append(s.Paths, dot.TrackedPath{Path: p})
	}
	return s
}

// Add appends a tracked path with an explicit mode.
func (s *StaticScanner) Add(path string, mode dot.Mode) {
	s.Paths = append(s.Paths, dot.TrackedPath{Path: path, Mode: mode})
}

func (s *StaticScanner) Scan() ([]dot.TrackedPath, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Paths, nil
}
