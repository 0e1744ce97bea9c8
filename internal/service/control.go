package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Strob0t/AgentForge/internal/port/messagequeue"
)

// TaskController is the subset of TaskManager driven by remote control
// messages.
type TaskController interface {
	StartTask(ctx context.Context, req StartRequest) (string, error)
	Interrupt(ctx context.Context, id, message string) error
	Cancel(ctx context.Context, id, reason string) error
}

// ControlSubscriber applies task control messages received on the bus.
type ControlSubscriber struct {
	queue messagequeue.Queue
	tasks TaskController

	mu      sync.Mutex
	cancels []func()
}

// NewControlSubscriber creates a subscriber; call Start to begin consuming.
func NewControlSubscriber(queue messagequeue.Queue, tasks TaskController) *ControlSubscriber {
	return &ControlSubscriber{queue: queue, tasks: tasks}
}

// Start subscribes to the control subjects.
func (c *ControlSubscriber) Start(ctx context.Context) error {
	handlers := map[string]messagequeue.Handler{
		messagequeue.SubjectTaskInterrupt: c.handleInterrupt,
		messagequeue.SubjectTaskCancel:    c.handleCancel,
		messagequeue.SubjectTaskStart:     c.handleStart,
	}
	for subject, h := range handlers {
		cancel, err := c.queue.Subscribe(ctx, subject, h)
		if err != nil {
			c.Stop()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		c.mu.Lock()
		c.cancels = append(c.cancels, cancel)
		c.mu.Unlock()
	}
	return nil
}

// Stop removes all subscriptions.
func (c *ControlSubscriber) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cancel := range c.cancels {
		cancel()
	}
	c.cancels = nil
}

func (c *ControlSubscriber) handleInterrupt(ctx context.Context, subject string, data []byte) error {
	var p messagequeue.TaskInterruptPayload
	if err := decodeControl(subject, data, &p); err != nil {
		return err
	}
	return c.tasks.Interrupt(ctx, p.TaskID, p.Message)
}

func (c *ControlSubscriber) handleCancel(ctx context.Context, subject string, data []byte) error {
	var p messagequeue.TaskCancelPayload
	if err := decodeControl(subject, data, &p); err != nil {
		return err
	}
	return c.tasks.Cancel(ctx, p.TaskID, p.Reason)
}

func (c *ControlSubscriber) handleStart(ctx context.Context, subject string, data []byte) error {
	var p messagequeue.TaskStartPayload
	if err := decodeControl(subject, data, &p); err != nil {
		return err
	}
	id, err := c.tasks.StartTask(ctx, StartRequest{
		Prompt:     p.Prompt,
		StepMode:   p.StepMode,
		ResumeFrom: p.ResumeFrom,
		Context:    p.Context,
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "task started from bus", "task_id", id)
	return nil
}

func decodeControl(subject string, data []byte, dst any) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	return nil
}
