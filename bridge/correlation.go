package bridge

import (
	"github.com/bytedance/sonic"
)

// EvalResult is the completion record for one EvaluateJS call, decoded from
// the callback envelope's params object.
type EvalResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result"`
	Error   string `json:"error"`
}

// EvalCallback receives the result of one script evaluation.
type EvalCallback func(EvalResult)

// Correlation maps call ids to pending evaluation callbacks.
//
// The table is owned by the UI goroutine: Put and Pop must only run there,
// so no locking is needed. A callback whose result never arrives (page
// navigated away mid-evaluation) stays in the table for the lifetime of the
// widget; this leak is a documented limitation.
type Correlation struct {
	pending map[string]EvalCallback
}

// NewCorrelation creates an empty table.
func NewCorrelation() *Correlation {
	return &Correlation{pending: make(map[string]EvalCallback)}
}

// Put registers a callback for the given call id.
func (c *Correlation) Put(callID string, cb EvalCallback) {
	c.pending[callID] = cb
}

// Pop removes and returns the callback for callID. The second return is
// false when no callback is registered; results for unknown ids are
// silently discarded by the caller.
func (c *Correlation) Pop(callID string) (EvalCallback, bool) {
	cb, ok := c.pending[callID]
	if ok {
		delete(c.pending, callID)
	}
	return cb, ok
}

// Len reports the number of pending callbacks.
func (c *Correlation) Len() int {
	return len(c.pending)
}

// DecodeEvalResult parses the params object of a callback envelope.
func DecodeEvalResult(paramsJSON string) (EvalResult, error) {
	var res EvalResult
	if err := sonic.UnmarshalString(paramsJSON, &res); err != nil {
		return EvalResult{}, err
	}
	return res, nil
}
