package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/swhefti/ai-news-intelligence-hub/internal/taxonomy"
)

var (
	// ErrInvalidRequest marks a malformed topic list.
	ErrInvalidRequest = errors.New("selection: invalid request")
	// ErrRepositoryUnavailable wraps any failure of the backing store.
	ErrRepositoryUnavailable = errors.New("selection: repository unavailable")
)

// MaxTopics bounds the topic filter of one request.
const MaxTopics = 10

// Mode controls how much text the generation layer asks for. It does not
// change which chunks are selected.
type Mode string

const (
	ModeConcise  Mode = "concise"
	ModeDetailed Mode = "detailed"
)

// ParseMode maps a user string to a Mode, defaulting to ModeConcise.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeDetailed {
		return ModeDetailed
	}
	return ModeConcise
}

type Request struct {
	WindowDays int
	Topics     []string
	Mode       Mode
}

// normalize clamps the window, validates and canonicalises topics, and
// reports whether the window was clamped.
func (r Request) normalize() (Request, bool, error) {
	out := Request{WindowDays: r.WindowDays, Mode: ParseMode(string(r.Mode))}

	clamped := false
	if !ValidWindow(out.WindowDays) {
		out.WindowDays = DefaultWindowDays
		clamped = true
	}

	topics, err := normalizeTopics(r.Topics)
	if err != nil {
		return Request{}, clamped, err
	}
	out.Topics = topics
	return out, clamped, nil
}

// normalizeTopics trims, canonicalises known taxonomy keywords and removes
// duplicates. Unknown topics are kept verbatim; they simply match nothing.
func normalizeTopics(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(in))
	var out []string
	for i, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			return nil, fmt.Errorf("%w: topic %d is blank", ErrInvalidRequest, i)
		}
		if kw, err := taxonomy.Canonical(t); err == nil {
			t = kw
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > MaxTopics {
		return nil, fmt.Errorf("%w: %d topics (max %d)", ErrInvalidRequest, len(out), MaxTopics)
	}
	return out, nil
}
