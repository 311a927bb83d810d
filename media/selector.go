package media

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"auto_xhs_publisher/logger"
	"auto_xhs_publisher/search"
)

// ErrInsufficientMedia reports fewer valid candidates than the minimum
// even after the widened re-query. Terminal for the current run:
// publishing without enough imagery is disallowed.
var ErrInsufficientMedia = errors.New("insufficient valid media")

// oversampleFloor is the smallest candidate pool requested from the
// search collaborator regardless of maxCount.
const oversampleFloor = 10

// Selector reduces an oversampled candidate pool to a bounded valid set,
// preserving the collaborator's relevance ordering.
type Selector struct {
	search    search.Client
	validator *Validator
	workers   int
	log       *logger.Logger
}

func NewSelector(sc search.Client, v *Validator, workers int, log *logger.Logger) (*Selector, error) {
	if sc == nil {
		return nil, errors.New("search client is required")
	}
	if v == nil {
		return nil, errors.New("validator is required")
	}
	if workers < 1 {
		workers = 4
	}
	if log == nil {
		log = logger.New("info")
	}
	return &Selector{search: sc, validator: v, workers: workers, log: log}, nil
}

// Select returns between minCount and maxCount valid candidates for the
// query. Below minCount after one widened re-query it fails with
// ErrInsufficientMedia.
func (s *Selector) Select(ctx context.Context, query string, minCount, maxCount int) ([]Candidate, error) {
	if minCount < 1 || minCount > maxCount {
		return nil, fmt.Errorf("invalid media bounds [%d,%d]", minCount, maxCount)
	}

	oversample := 2 * maxCount
	if oversample < oversampleFloor {
		oversample = oversampleFloor
	}

	valid, err := s.fetchAndValidate(ctx, query, oversample, nil)
	if err != nil {
		return nil, err
	}

	if len(valid) < minCount {
		widened := widenQuery(query)
		s.log.Warn("valid media below minimum, widening query",
			"valid", len(valid), "min", minCount, "widened", widened)

		valid, err = s.fetchAndValidate(ctx, widened, oversample, valid)
		if err != nil {
			return nil, err
		}
	}

	if len(valid) < minCount {
		return nil, fmt.Errorf("%w: %d valid of %d required", ErrInsufficientMedia, len(valid), minCount)
	}

	if len(valid) > maxCount {
		valid = valid[:maxCount]
	}
	s.log.Info("media selection complete", "selected", len(valid))
	return valid, nil
}

// fetchAndValidate queries the collaborator and validates the pool on
// the worker pool. Previously accepted candidates keep their position
// ahead of new ones; duplicates are skipped.
func (s *Selector) fetchAndValidate(ctx context.Context, query string, count int, keep []Candidate) ([]Candidate, error) {
	images, err := s.search.SearchImages(ctx, query, count)
	if err != nil {
		return nil, fmt.Errorf("image search: %w", err)
	}

	seen := make(map[string]struct{}, len(keep))
	for _, c := range keep {
		seen[c.URL] = struct{}{}
	}

	candidates := make([]Candidate, 0, len(images))
	for _, img := range images {
		if _, dup := seen[img.URL]; dup {
			continue
		}
		seen[img.URL] = struct{}{}
		candidates = append(candidates, Candidate{URL: img.URL, Width: img.Width, Height: img.Height})
	}

	s.validateAll(ctx, candidates)

	valid := keep
	for _, c := range candidates {
		if c.Valid {
			valid = append(valid, c)
		} else {
			s.log.Debug("candidate rejected", "url", c.URL, "reason", c.Reason)
		}
	}
	s.log.Info("candidate validation complete", "valid", len(valid), "checked", len(candidates))
	return valid, nil
}

// validateAll runs the validator concurrently over candidates and joins
// before returning. Tasks write only their own slot.
func (s *Selector) validateAll(ctx context.Context, candidates []Candidate) {
	p := newPool(s.workers)
	for i := range candidates {
		c := &candidates[i]
		p.submit(func() {
			s.validator.Validate(ctx, c)
		})
	}
	p.stop()
}

// widenQuery relaxes the query to its leading terms so a sparse topic
// still yields imagery.
func widenQuery(query string) string {
	fields := strings.Fields(query)
	if len(fields) > 2 {
		fields = fields[:2]
	}
	if len(fields) == 0 {
		return query
	}
	// 中文查询往往没有空格，退而取前几个字。
	if len(fields) == 1 {
		r := []rune(fields[0])
		if len(r) > 6 {
			return string(r[:6])
		}
		return fields[0]
	}
	return strings.Join(fields, " ")
}
