package valuez

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

func TestChange_RunsStagesInOrder(t *testing.T) {
	d := NewDispatcher()
	var seen []Stage
	d.On(Condition{}, func(c *Change) { seen = append(seen, c.Stage()) })

	c := NewChange("next", 1, 0, WithDispatcher(d))
	if err := c.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	want := []Stage{StageBegin, StageProcess, StagePending, StageComplete}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("expected %v, got %v", want, seen)
	}
	if !c.Done() {
		t.Error("expected change to be done")
	}
	if c.ID == "" {
		t.Error("expected change to have an ID")
	}
}

func TestChange_StagesAreBracketed(t *testing.T) {
	c := NewChange("next", 1, 0, WithStages("validate", StageBegin, "validate"), WithDispatcher(NewDispatcher()))
	want := []Stage{StageBegin, "validate", StageComplete}
	if !reflect.DeepEqual(c.Stages(), want) {
		t.Errorf("expected %v, got %v", want, c.Stages())
	}
}

func TestChange_HandlerRewritesValue(t *testing.T) {
	d := NewDispatcher()
	d.On(Condition{Stage: Is(StageProcess)}, func(c *Change) {
		c.Next(c.Value().(int) * 10)
	})

	var committed any
	c := NewChange("next", 2, 0, WithDispatcher(d), WithCommit(func(c *Change) { committed = c.Value() }))
	if err := c.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if committed != 20 {
		t.Errorf("expected 20 committed, got %v", committed)
	}
}

func TestChange_ErrorAbortsAndSkipsCommit(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	var later []Stage
	d.On(Condition{Stage: Is(StageProcess)}, func(c *Change) { c.Error(boom) })
	d.On(Condition{Stage: OneOf(StagePending, StageComplete)}, func(c *Change) {
		later = append(later, c.Stage())
	})

	committed := false
	c := NewChange("next", 1, 0, WithDispatcher(d), WithCommit(func(*Change) { committed = true }))

	var terminal error
	c.Subscribe(Observer[ChangeEvent]{Error: func(err error) { terminal = err }})

	if err := c.Execute(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if c.ThrownAt() != StageProcess {
		t.Errorf("expected error at process, got %s", c.ThrownAt())
	}
	if committed {
		t.Error("errored change must not commit")
	}
	if len(later) != 0 {
		t.Errorf("expected no later stages, got %v", later)
	}
	if !errors.Is(terminal, boom) {
		t.Errorf("expected subscribers to see boom, got %v", terminal)
	}
}

func TestChange_PanickingHandlerErrors(t *testing.T) {
	d := NewDispatcher()
	d.On(Condition{Stage: Is(StagePending)}, func(*Change) { panic("bad handler") })

	c := NewChange("next", 1, 0, WithDispatcher(d))
	if err := c.Execute(); err == nil || err.Error() != "bad handler" {
		t.Errorf("expected recovered panic, got %v", err)
	}
}

func TestChange_PerformRunsAtProcess(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.On(Condition{Stage: Is(StageProcess)}, func(*Change) { order = append(order, "handler") })
	d.On(Condition{Stage: Is(StagePending)}, func(*Change) { order = append(order, "pending") })

	c := NewChange("add", []any{1, 2}, nil, WithDispatcher(d), WithPerform(func(c *Change) (any, error) {
		order = append(order, "perform")
		args := c.Value().([]any)
		return args[0].(int) + args[1].(int), nil
	}))
	if err := c.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if c.Result() != 3 {
		t.Errorf("expected result 3, got %v", c.Result())
	}
	if !reflect.DeepEqual(order, []string{"handler", "perform", "pending"}) {
		t.Errorf("unexpected order %v", order)
	}
}

func TestChange_PerformWithoutProcessStage(t *testing.T) {
	c := NewChange("act", nil, nil,
		WithStages("validate"),
		WithDispatcher(NewDispatcher()),
		WithPerform(func(*Change) (any, error) { return "done", nil }),
	)
	if err := c.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if c.Result() != "done" {
		t.Errorf("expected performer to run before complete, got %v", c.Result())
	}
}

func TestChange_PerformError(t *testing.T) {
	boom := errors.New("boom")
	c := NewChange("act", nil, nil,
		WithDispatcher(NewDispatcher()),
		WithPerform(func(*Change) (any, error) { return nil, boom }),
	)
	if err := c.Execute(); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestChange_Redundant(t *testing.T) {
	same := NewChange("next", []int{1}, []int{1}, WithDispatcher(NewDispatcher()))
	same.Execute()
	if !same.Redundant() {
		t.Error("expected deep-equal values to be redundant")
	}

	different := NewChange("next", 2, 1, WithDispatcher(NewDispatcher()))
	different.Execute()
	if different.Redundant() {
		t.Error("expected different values not to be redundant")
	}

	custom := NewChange("next", "A", "a",
		WithDispatcher(NewDispatcher()),
		WithEqual(func(a, b any) bool { return a.(string)[0]|0x20 == b.(string)[0]|0x20 }),
	)
	custom.Execute()
	if !custom.Redundant() {
		t.Error("expected custom equality to be used")
	}
}

func TestChange_Events(t *testing.T) {
	d := NewDispatcher()
	d.On(Condition{Stage: Is(StageProcess)}, func(c *Change) { c.Next(2) })

	c := NewChange("next", 1, 0, WithDispatcher(d))
	var events []ChangeEvent
	completed := false
	c.Subscribe(Observer[ChangeEvent]{
		Next:     func(e ChangeEvent) { events = append(events, e) },
		Complete: func() { completed = true },
	})
	c.Execute()

	want := []ChangeEvent{
		{Value: 1, Stage: StageBegin, Action: "next"},
		{Value: 1, Stage: StageProcess, Action: "next"},
		{Value: 2, Stage: StageProcess, Action: "next"},
		{Value: 2, Stage: StagePending, Action: "next"},
		{Value: 2, Stage: StageComplete, Action: "next"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("expected %v, got %v", want, events)
	}
	if !completed {
		t.Error("expected completion")
	}
}

func TestChange_NotesAndDiagnostics(t *testing.T) {
	d := NewDispatcher()
	d.On(Condition{Stage: Is(StagePending)}, func(c *Change) {
		c.Note("checked")
		c.AddDiagnostic(Diagnostic{Name: "handler", Message: "looks odd"})
	})

	c := NewChange("next", 1, 0, WithDispatcher(d))
	c.Execute()
	if !reflect.DeepEqual(c.Notes(), []string{"checked"}) {
		t.Errorf("unexpected notes %v", c.Notes())
	}
	if len(c.Errors()) != 1 || c.Errors()[0].Message != "looks odd" {
		t.Errorf("unexpected diagnostics %v", c.Errors())
	}
}

func TestChange_Duration(t *testing.T) {
	clock := clockz.NewFakeClock()
	d := NewDispatcher()
	d.On(Condition{Stage: Is(StageProcess)}, func(*Change) { clock.Advance(50 * time.Millisecond) })

	c := NewChange("next", 1, 0, WithDispatcher(d), WithClock(clock))
	c.Execute()

	if c.Duration() != 50*time.Millisecond {
		t.Errorf("expected 50ms, got %v", c.Duration())
	}
	if !c.Finished().After(c.Started()) {
		t.Error("expected finish after start")
	}
}

func TestChange_TerminalIsFinal(t *testing.T) {
	c := NewChange("next", 1, 0, WithDispatcher(NewDispatcher()))
	c.Execute()
	c.Next(5)
	c.Error(errors.New("late"))
	if c.Value() != 1 || c.Err() != nil {
		t.Errorf("terminated change should ignore updates, got %v %v", c.Value(), c.Err())
	}
}
