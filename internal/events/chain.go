package events

import "errors"

// ErrDrop is returned by a Preprocessor to signal the event must be
// discarded without further processing (§4.2: "If any step returns drop,
// the event is discarded").
var ErrDrop = errors.New("drop event")

// Preprocessor is a pure transform: event in, event out, or ErrDrop, or any
// other error (which the indexer logs and skips, per §4.2 / §7).
type Preprocessor func(Event) (Event, error)

// Chain is an ordered, finite list of Preprocessor steps.
type Chain []Preprocessor

// Apply runs every step in order against a clone of in. It returns
// (event, false, nil) on success, (nil, true, nil) if any step requested a
// drop, or (nil, false, err) if a step failed for any other reason.
func (c Chain) Apply(in Event) (out Event, dropped bool, err error) {
	cur := in.Clone()
	for _, step := range c {
		cur, err = step(cur)
		if err != nil {
			if errors.Is(err, ErrDrop) {
				return nil, true, nil
			}
			return nil, false, err
		}
	}
	return cur, false, nil
}
