package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/TNG/momo-scheduler-sub000/internal/domain"
)

type fakeRunner struct {
	name   string
	params map[string]any
	delay  time.Duration
	status domain.ExecutionStatus
	err    error
}

func (r *fakeRunner) Run(_ context.Context, name string, params map[string]any, delay time.Duration) (domain.JobResult, error) {
	r.name, r.params, r.delay = name, params, delay
	if r.err != nil {
		return domain.JobResult{}, r.err
	}
	if r.status != "" {
		return domain.JobResult{Status: r.status}, nil
	}
	return domain.JobResult{Status: domain.ExecutionStatusFinished}, nil
}

var errNotDefined = errors.New("job not defined")

func isNotDefined(err error) bool { return errors.Is(err, errNotDefined) }

// roundTrip имитирует доставку: payload проходит через JSON, как в очереди.
func roundTrip(t *testing.T, msg *Message) *Message {
	t.Helper()
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Message
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return &out
}

func TestTriggerHandler_RunsJob(t *testing.T) {
	runner := &fakeRunner{}
	h := TriggerHandler(runner, isNotDefined, nil)

	msg := roundTrip(t, newMessage(MessageTypeJobTrigger, TriggerPayload{
		Job:        "cleanup",
		Parameters: map[string]any{"dry_run": true},
		Delay:      "30s",
	}))
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if runner.name != "cleanup" || runner.delay != 30*time.Second || runner.params["dry_run"] != true {
		t.Errorf("unexpected run: %+v", runner)
	}
}

func TestTriggerHandler_NotAdmittedIsAcked(t *testing.T) {
	runner := &fakeRunner{status: domain.ExecutionStatusMaxRunningReached}
	h := TriggerHandler(runner, isNotDefined, nil)

	msg := roundTrip(t, newMessage(MessageTypeJobTrigger, TriggerPayload{Job: "cleanup"}))
	if err := h(context.Background(), msg); err != nil {
		t.Fatalf("not admitted run must not be requeued: %v", err)
	}
	if runner.name != "cleanup" {
		t.Errorf("expected run of cleanup, got %q", runner.name)
	}
}

func TestTriggerHandler_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		msg       *Message
		runnerErr error
		permanent bool
	}{
		{"wrong type", newMessage(MessageTypeJobExecuted, TriggerPayload{Job: "j"}), nil, true},
		{"missing job", newMessage(MessageTypeJobTrigger, TriggerPayload{}), nil, true},
		{"bad delay", newMessage(MessageTypeJobTrigger, TriggerPayload{Job: "j", Delay: "soon"}), nil, true},
		{"unknown job", newMessage(MessageTypeJobTrigger, TriggerPayload{Job: "j"}), errNotDefined, true},
		{"store outage", newMessage(MessageTypeJobTrigger, TriggerPayload{Job: "j"}), errors.New("connection reset"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := TriggerHandler(&fakeRunner{err: tt.runnerErr}, isNotDefined, nil)
			err := h(context.Background(), roundTrip(t, tt.msg))
			if err == nil {
				t.Fatal("expected error")
			}
			if IsPermanent(err) != tt.permanent {
				t.Errorf("expected permanent=%v, got %v", tt.permanent, err)
			}
		})
	}
}

func TestConsumer_HandleRecoversPanic(t *testing.T) {
	c := NewConsumer(nil, nil, ConsumerConfig{
		Queue: QueueJobsTrigger,
		Handler: func(context.Context, *Message) error {
			panic("boom")
		},
	})

	body, _ := json.Marshal(newMessage(MessageTypeJobTrigger, TriggerPayload{Job: "j"}))
	if err := c.handle(context.Background(), body); !IsPermanent(err) {
		t.Errorf("panic should be reported as permanent failure, got %v", err)
	}
	if err := c.handle(context.Background(), []byte("not json")); !IsPermanent(err) {
		t.Errorf("malformed body should be permanent failure, got %v", err)
	}
}

func TestParsePayload(t *testing.T) {
	event := domain.ExecutionEvent{
		Schedule: "default",
		Job:      "cleanup",
		Result:   domain.JobResult{Status: domain.ExecutionStatusFailed, HandlerResult: "boom"},
	}
	msg := roundTrip(t, newMessage(MessageTypeJobExecuted, event))

	got, err := ParsePayload[domain.ExecutionEvent](msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Job != "cleanup" || got.Result != event.Result {
		t.Errorf("unexpected payload: %+v", got)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Error("message envelope should carry id and timestamp")
	}
}

func TestTopology(t *testing.T) {
	exchanges, queues, bindings := topology()

	declared := make(map[Exchange]bool)
	for _, ex := range exchanges {
		declared[ex.name] = true
	}
	queued := make(map[Queue]bool)
	for _, q := range queues {
		queued[q.name] = true
	}

	for _, b := range bindings {
		if !declared[b.exchange] {
			t.Errorf("binding uses undeclared exchange %s", b.exchange)
		}
		if !queued[b.queue] {
			t.Errorf("binding uses undeclared queue %s", b.queue)
		}
	}
	if !declared[ExchangeEvents] {
		t.Error("events exchange must be declared")
	}
}
