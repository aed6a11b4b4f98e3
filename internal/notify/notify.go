package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dev-tams/deployprune/internal/config"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Event summarises one cleanup run for every notifier implementation.
type Event struct {
	RunID      string   `json:"run_id"`
	Bucket     string   `json:"bucket"`
	Status     string   `json:"status"`
	Discovered int      `json:"discovered"`
	Retained   int      `json:"retained"`
	Deleted    []string `json:"deleted"`
	Objects    int      `json:"objects_deleted"`
	Duration   string   `json:"duration"`
	Error      string   `json:"error,omitempty"`
	// FailedPrefix is set when a group delete failed and may have been left partially removed.
	FailedPrefix string `json:"failed_prefix,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// trigger is the set of run statuses a target is sent.
type trigger uint8

const (
	onSuccess trigger = 1 << iota
	onFailure
)

var triggerNames = map[string]trigger{
	StatusSuccess: onSuccess,
	StatusFailure: onFailure,
	"both":        onSuccess | onFailure,
}

func parseTrigger(raw []string) (trigger, error) {
	var t trigger
	for _, v := range raw {
		bits, ok := triggerNames[strings.ToLower(strings.TrimSpace(v))]
		if !ok {
			return 0, fmt.Errorf("on: unknown status %q (want success, failure or both)", v)
		}
		t |= bits
	}
	if t == 0 {
		return 0, errors.New("on: at least one of success, failure or both is required")
	}
	return t, nil
}

func (t trigger) matches(status string) bool {
	switch status {
	case StatusSuccess:
		return t&onSuccess != 0
	case StatusFailure:
		return t&onFailure != 0
	}
	return false
}

var builders = map[string]func(config.NotificationDetails) (Notifier, error){
	"webhook": NewWebhook,
	"email":   NewEmail,
}

type target struct {
	label    string
	when     trigger
	notifier Notifier
}

// Dispatcher fans a run's Event out to every configured target whose trigger matches.
type Dispatcher struct {
	targets []target
}

func NewDispatcher(cfgs []config.NotificationConfig) (*Dispatcher, error) {
	targets := make([]target, 0, len(cfgs))
	for i, n := range cfgs {
		kind := strings.ToLower(strings.TrimSpace(n.Type))
		label := fmt.Sprintf("notifications[%d] %s", i, kind)

		build, ok := builders[kind]
		if !ok {
			return nil, fmt.Errorf("notifications[%d]: unsupported notification type %q", i, n.Type)
		}
		when, err := parseTrigger(n.On)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		nf, err := build(n.Config)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", label, err)
		}
		targets = append(targets, target{label: label, when: when, notifier: nf})
	}
	return &Dispatcher{targets: targets}, nil
}

// Notify delivers to every matching target and joins the failures; one failing target does
// not stop the others.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}

	var errs []error
	for _, t := range d.targets {
		if !t.when.matches(event.Status) {
			continue
		}
		if err := t.notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s (run %s): %w", t.label, event.RunID, err))
		}
	}
	return errors.Join(errs...)
}
