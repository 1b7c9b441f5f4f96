// Package approval implements the human-in-the-loop gate: content is
// submitted for review, an external actor posts the decision, and the
// pipeline blocks on Wait until the decision lands or the wait times
// out. The UI/notification channel rendering the request is an external
// collaborator; this package owns only state transitions and the
// blocking-wait semantics.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/crewflow/types"
)

// Status is the lifecycle state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Decision is the human's verdict on a request.
type Decision struct {
	Approved  bool      `json:"approved"`
	Feedback  string    `json:"feedback,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Request is one submission awaiting human review.
type Request struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Diagrams    []string  `json:"diagrams,omitempty"`
	Status      Status    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	Decision    *Decision `json:"decision,omitempty"`
}

// Store persists approval requests. The redis-backed implementation
// lets decisions arrive from a separate process.
type Store interface {
	Save(ctx context.Context, req *Request) error
	Load(ctx context.Context, id string) (*Request, error)
	Update(ctx context.Context, req *Request) error
	List(ctx context.Context, status Status) ([]*Request, error)
}

// pollInterval is the store re-check cadence while blocked in Wait. It
// catches decisions recorded by another process, which never signal the
// local waiter channel.
const pollInterval = 500 * time.Millisecond

// Client submits content for human review and blocks until a decision
// is recorded.
type Client struct {
	store      Store
	onDecision func(status string)
	logger     *zap.Logger

	mu      sync.Mutex
	waiters map[string]chan Decision
}

// NewClient creates an approval client over the given store. onDecision
// (optional) observes decisions for metrics.
func NewClient(store Store, onDecision func(status string), logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		store:      store,
		onDecision: onDecision,
		logger:     logger.With(zap.String("component", "approval")),
		waiters:    make(map[string]chan Decision),
	}
}

// Submit registers a pending request and returns its id immediately.
func (c *Client) Submit(ctx context.Context, title, content string, diagrams []string) (string, error) {
	req := &Request{
		ID:          uuid.NewString(),
		Title:       title,
		Content:     content,
		Diagrams:    diagrams,
		Status:      StatusPending,
		SubmittedAt: time.Now(),
	}

	if err := c.store.Save(ctx, req); err != nil {
		return "", fmt.Errorf("save approval request: %w", err)
	}

	c.mu.Lock()
	c.waiters[req.ID] = make(chan Decision, 1)
	c.mu.Unlock()

	c.logger.Info("approval requested",
		zap.String("approval_id", req.ID),
		zap.String("title", title),
		zap.Int("diagrams", len(diagrams)))

	return req.ID, nil
}

// Wait blocks until the request leaves pending, the timeout elapses, or
// ctx is cancelled. Timeout surfaces as an ErrCodeApprovalTimeout error.
func (c *Client) Wait(ctx context.Context, approvalID string, timeout time.Duration) (Decision, error) {
	// A decision may already be recorded, possibly by another process.
	if decision, decided, err := c.lookupDecision(ctx, approvalID); err != nil || decided {
		return decision, err
	}

	c.mu.Lock()
	ch, ok := c.waiters[approvalID]
	if !ok {
		ch = make(chan Decision, 1)
		c.waiters[approvalID] = ch
	}
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()

	for {
		select {
		case decision := <-ch:
			return decision, nil

		case <-poll.C:
			if decision, decided, err := c.lookupDecision(ctx, approvalID); err != nil || decided {
				return decision, err
			}

		case <-timer.C:
			c.logger.Warn("approval wait timed out",
				zap.String("approval_id", approvalID),
				zap.Duration("timeout", timeout))
			return Decision{}, types.NewError(types.ErrCodeApprovalTimeout,
				fmt.Sprintf("no decision on approval %s within %v", approvalID, timeout))

		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}
}

// Respond records the human decision and wakes the waiter. Only pending
// requests accept a decision; the transition is terminal.
func (c *Client) Respond(ctx context.Context, approvalID string, approved bool, feedback string) error {
	req, err := c.store.Load(ctx, approvalID)
	if err != nil {
		return err
	}
	if req.Status != StatusPending {
		return types.NewInvalidInputError(
			fmt.Sprintf("approval %s is no longer pending (status: %s)", approvalID, req.Status))
	}

	decision := Decision{
		Approved:  approved,
		Feedback:  feedback,
		DecidedAt: time.Now(),
	}
	if approved {
		req.Status = StatusApproved
	} else {
		req.Status = StatusRejected
	}
	req.Decision = &decision

	if err := c.store.Update(ctx, req); err != nil {
		return fmt.Errorf("update approval request: %w", err)
	}

	c.mu.Lock()
	ch, ok := c.waiters[approvalID]
	delete(c.waiters, approvalID)
	c.mu.Unlock()

	if ok {
		// Buffered; never blocks even when nobody is waiting yet.
		select {
		case ch <- decision:
		default:
		}
	}

	c.logger.Info("approval decided",
		zap.String("approval_id", approvalID),
		zap.Bool("approved", approved))

	if c.onDecision != nil {
		c.onDecision(string(req.Status))
	}
	return nil
}

// Get returns an approval request by id.
func (c *Client) Get(ctx context.Context, approvalID string) (*Request, error) {
	return c.store.Load(ctx, approvalID)
}

// Pending lists requests still awaiting a decision.
func (c *Client) Pending(ctx context.Context) ([]*Request, error) {
	return c.store.List(ctx, StatusPending)
}

// List returns requests filtered by status; an empty status returns
// everything.
func (c *Client) List(ctx context.Context, status Status) ([]*Request, error) {
	return c.store.List(ctx, status)
}

// lookupDecision loads the request and reports whether it has been
// decided.
func (c *Client) lookupDecision(ctx context.Context, approvalID string) (Decision, bool, error) {
	req, err := c.store.Load(ctx, approvalID)
	if err != nil {
		return Decision{}, false, err
	}
	if req.Status == StatusPending || req.Decision == nil {
		return Decision{}, false, nil
	}
	return *req.Decision, true, nil
}
