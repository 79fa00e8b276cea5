package engine

import (
	"context"
	"errors"
)

// Stack manages the SortContexts of nested sort levels. A level keeps its
// context, and with it its buffers, between uses until Clear.
type Stack struct {
	configure func(Kind) Config
	levels    []*SortContext
	depth     int
}

// NewStack returns an empty stack. configure supplies the configuration of
// a new level; nil means DefaultConfig.
func NewStack(configure func(Kind) Config) *Stack {
	if configure == nil {
		configure = DefaultConfig
	}

	return &Stack{configure: configure}
}

// Open enters a new nesting level and returns its context, reusing the
// context left at this depth when it has the same kind.
func (s *Stack) Open(ctx context.Context, kind Kind) (*SortContext, error) {
	if s.depth < len(s.levels) {
		sc := s.levels[s.depth]
		if sc.Kind() == kind && sc.failed == nil {
			if err := sc.Reset(); err != nil {
				return nil, err
			}
			s.depth++
			return sc, nil
		}
		// Every kept level from this depth on is released.
		var errs []error
		for _, deeper := range s.levels[s.depth:] {
			errs = append(errs, deeper.Close())
		}
		s.levels = s.levels[:s.depth]
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}

	sc, err := New(ctx, s.configure(kind))
	if err != nil {
		return nil, err
	}
	s.levels = append(s.levels, sc)
	s.depth++

	return sc, nil
}

// Current returns the context of the innermost open level, or nil.
func (s *Stack) Current() *SortContext {
	if s.depth == 0 {
		return nil
	}

	return s.levels[s.depth-1]
}

// Depth returns the number of open levels.
func (s *Stack) Depth() int { return s.depth }

// End leaves the innermost level and returns its sorted output.
func (s *Stack) End(ctx context.Context) (*Stream, error) {
	if s.depth == 0 {
		return nil, errors.New("engine: End without open sort level")
	}
	s.depth--

	return s.levels[s.depth].Finish(ctx)
}

// Clear closes every context, open or kept for reuse.
func (s *Stack) Clear() error {
	var errs []error
	for _, sc := range s.levels {
		errs = append(errs, sc.Close())
	}
	s.levels = nil
	s.depth = 0

	return errors.Join(errs...)
}
