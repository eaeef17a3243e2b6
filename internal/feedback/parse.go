package feedback

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidReport wraps every reason a model reply is rejected.
var ErrInvalidReport = errors.New("feedback: invalid report")

// Parse decodes and validates a model reply. The reply must match [Schema],
// every pronunciation score must lie in 0..100 and the wpm estimate must not
// be negative.
func Parse(raw []byte) (Report, error) {
	if err := Schema().ValidateJSON(raw); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}
	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidReport, err)
	}

	var errs []error
	for i, p := range r.Pronunciation {
		if p.Score < 0 || p.Score > 100 {
			errs = append(errs, fmt.Errorf("pronunciation[%d].score %d outside 0..100", i, p.Score))
		}
	}
	if r.SpeakingRate.WPM < 0 {
		errs = append(errs, fmt.Errorf("speakingRate.wpm %d is negative", r.SpeakingRate.WPM))
	}
	if len(errs) > 0 {
		return Report{}, fmt.Errorf("%w: %w", ErrInvalidReport, errors.Join(errs...))
	}
	return r, nil
}
