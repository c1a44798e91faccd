package pipeline

import "errors"

// The pipeline fails in exactly three terminal ways; each maps to a
// distinct status at the request boundary. Comparison never fails
// terminally, it degrades to a zero-score result instead.
var (
	// ErrRateLimited: the active tier's daily cap is spent. Retryable by
	// the caller tomorrow, or by upgrading the tier.
	ErrRateLimited = errors.New("daily generation limit reached")

	// ErrAnalysisFailed: the structural analysis call failed. Fatal, no
	// retry: without the analysis the constitution has nothing to anchor.
	ErrAnalysisFailed = errors.New("floor plan analysis failed")

	// ErrGenerationFailed: no image payload after the one allowed
	// fallback. The wrapped message names the model that came up empty.
	ErrGenerationFailed = errors.New("image generation failed")
)
