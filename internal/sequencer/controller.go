package sequencer

import (
	"context"
	"errors"
	"sync"

	"city-raid/internal/api"
)

var (
	// ErrBusy is returned while a preview or execute request is in flight.
	ErrBusy = errors.New("sequencer: request already in flight")
	// ErrWrongPhase is returned when a request does not fit the current phase.
	ErrWrongPhase = errors.New("sequencer: request not allowed in current phase")
)

// RaidAPI is the server contract the controller drives.
type RaidAPI interface {
	Preview(ctx context.Context, targetLogin string) (*api.PreviewResponse, error)
	Execute(ctx context.Context, req api.ExecuteRequest) (*api.ExecuteResponse, error)
}

// Controller issues preview and execute requests and feeds their results to
// the Sequencer. A loading flag rejects a second request while one is in
// flight; the first request is never cancelled.
type Controller struct {
	api RaidAPI
	seq *Sequencer

	mu      sync.Mutex
	loading bool
	preview *api.PreviewResponse
	result  *api.ExecuteResponse
}

// NewController creates a Controller.
func NewController(client RaidAPI, seq *Sequencer) *Controller {
	return &Controller{api: client, seq: seq}
}

// Loading reports whether a request is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// LastPreview returns the most recent successful preview.
func (c *Controller) LastPreview() *api.PreviewResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview
}

// LastResult returns the most recent successful execute result.
func (c *Controller) LastResult() *api.ExecuteResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Preview requests a preview of target. It is allowed from idle, or from
// preview to switch targets.
func (c *Controller) Preview(ctx context.Context, target string) (*api.PreviewResponse, error) {
	if p := c.seq.State().Phase; p != PhaseIdle && p != PhasePreview {
		return nil, ErrWrongPhase
	}
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	resp, err := c.api.Preview(context.WithoutCancel(ctx), target)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.preview = resp
	c.result = nil
	c.mu.Unlock()

	c.seq.Dispatch(PreviewLoaded{})
	return resp, nil
}

// Execute runs the previewed raid and starts the animated sequence.
func (c *Controller) Execute(ctx context.Context, req api.ExecuteRequest) (*api.ExecuteResponse, error) {
	if c.seq.State().Phase != PhasePreview {
		return nil, ErrWrongPhase
	}
	if err := c.begin(); err != nil {
		return nil, err
	}
	defer c.end()

	resp, err := c.api.Execute(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.result = resp
	c.mu.Unlock()

	c.seq.Dispatch(Executed{Success: resp.Success})
	return resp, nil
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading {
		return ErrBusy
	}
	c.loading = true
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}
