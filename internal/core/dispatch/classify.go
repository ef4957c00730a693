package dispatch

import "strings"

// Class is the retry classification of a failed call.
type Class string

const (
	// ClassRateLimited marks quota/429-style failures. Retried, with a floor
	// on the retry delay so the provider window has time to recover.
	ClassRateLimited Class = "rate_limited"

	// ClassTransient marks failures expected to clear on their own (5xx,
	// timeouts). Retried with plain exponential backoff.
	ClassTransient Class = "transient"

	// ClassFatal marks everything else (bad requests, auth failures,
	// validation errors). Never retried.
	ClassFatal Class = "fatal"
)

// Classifier maps a call error to a retry class.
//
// Implementations must be pure: no side effects, same answer for the same
// error. The scheduler calls it once per failed attempt.
type Classifier interface {
	Classify(err error) Class
}

// Default keyword sets, matching the error strings the OpenAI-compatible
// providers actually emit. Unrecognized conditions classify as fatal.
var (
	DefaultRateLimitKeywords = []string{"429", "quota", "rate limit", "RATE_LIMIT_EXCEEDED"}
	DefaultTransientKeywords = []string{"503", "502", "timeout"}
)

// KeywordClassifier classifies by substring match against the error message.
// Rate-limit keywords are checked first; first match wins.
//
// String matching works against any transport that only exposes error text.
// Callers with structured errors should implement Classifier directly instead
// of flattening status codes into strings.
type KeywordClassifier struct {
	RateLimited []string
	Transient   []string
}

// NewKeywordClassifier returns a classifier with the default keyword sets
// where the provided lists are empty.
func NewKeywordClassifier(rateLimited, transient []string) *KeywordClassifier {
	if len(rateLimited) == 0 {
		rateLimited = DefaultRateLimitKeywords
	}
	if len(transient) == 0 {
		transient = DefaultTransientKeywords
	}
	return &KeywordClassifier{RateLimited: rateLimited, Transient: transient}
}

// Classify returns the retry class for err.
func (c *KeywordClassifier) Classify(err error) Class {
	if err == nil {
		return ClassFatal
	}

	message := err.Error()
	for _, keyword := range c.RateLimited {
		if keyword != "" && strings.Contains(message, keyword) {
			return ClassRateLimited
		}
	}
	for _, keyword := range c.Transient {
		if keyword != "" && strings.Contains(message, keyword) {
			return ClassTransient
		}
	}
	return ClassFatal
}
