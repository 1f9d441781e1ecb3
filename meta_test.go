package valuez

import (
	"errors"
	"testing"
)

func positive(value any, _ []Diagnostic, _ any) *Fault {
	if n, ok := value.(int); ok && n <= 0 {
		return &Fault{Message: "must be positive"}
	}
	return nil
}

func even(value any, _ []Diagnostic, _ any) *Fault {
	if n, ok := value.(int); ok && n%2 != 0 {
		return &Fault{Message: "must be even"}
	}
	return nil
}

func TestMeta_Process(t *testing.T) {
	m, err := NewMeta(Test(positive), WithName("positive"), WithOrder(1), WithConfig("cfg"))
	if err != nil {
		t.Fatalf("NewMeta() error = %v", err)
	}
	if m.Name() != "positive" || m.Order() != 1 || m.Config() != "cfg" {
		t.Errorf("unexpected meta %s/%v/%v", m.Name(), m.Order(), m.Config())
	}

	if d := m.Process(3, nil); d != nil {
		t.Errorf("expected 3 to pass, got %+v", d)
	}
	d := m.Process(-1, nil)
	if d == nil {
		t.Fatal("expected -1 to fail")
	}
	if d.Name != "positive" || d.Message != "must be positive" || d.Level != 1 {
		t.Errorf("unexpected diagnostic %+v", d)
	}
}

func TestMeta_ConfigReachesTest(t *testing.T) {
	var seen any
	m, err := NewMeta(func(_ any, _ []Diagnostic, config any) *Fault {
		seen = config
		return nil
	}, WithConfig(map[string]int{"min": 1}))
	if err != nil {
		t.Fatalf("NewMeta() error = %v", err)
	}
	m.Process(0, nil)
	if cfg, ok := seen.(map[string]int); !ok || cfg["min"] != 1 {
		t.Errorf("expected config to be passed, got %v", seen)
	}
}

func TestRegistry_Meta_FromName(t *testing.T) {
	m, err := NewMeta("integer")
	if err != nil {
		t.Fatalf("NewMeta() error = %v", err)
	}
	if m.Name() != "integer" || m.Order() != "type" {
		t.Errorf("expected integer at order type, got %s at %v", m.Name(), m.Order())
	}
	if d := m.Process("bob", nil); d == nil || d.Message != "must be a integer" {
		t.Errorf("expected integer failure, got %+v", d)
	}
	if d := m.Process(3.0, nil); d != nil {
		t.Errorf("expected integral float to pass, got %+v", d)
	}
}

func TestRegistry_Meta_UnknownName(t *testing.T) {
	m, err := NewMeta("nope")
	if err != nil {
		t.Fatalf("unknown names should not error at construction, got %v", err)
	}
	d := m.Process("anything", nil)
	if d == nil {
		t.Fatal("expected unknown validator to always fail")
	}
	if d.Message != `unknown validator "nope"` {
		t.Errorf("unexpected message %q", d.Message)
	}
}

func TestRegistry_Meta_Passthrough(t *testing.T) {
	m, _ := NewMeta("string")
	got, err := NewMeta(m, WithName("ignored"))
	if err != nil {
		t.Fatalf("NewMeta() error = %v", err)
	}
	if got != m {
		t.Error("expected *Meta to be returned unchanged")
	}
}

func TestRegistry_Meta_Invalid(t *testing.T) {
	if _, err := NewMeta(42); !errors.Is(err, ErrInvalidValidator) {
		t.Errorf("expected ErrInvalidValidator, got %v", err)
	}
	var nilMeta *Meta
	if _, err := NewMeta(nilMeta); !errors.Is(err, ErrInvalidValidator) {
		t.Errorf("expected ErrInvalidValidator for nil meta, got %v", err)
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("positive", positive, 1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("positive", even, 1); !errors.Is(err, ErrDuplicateValidator) {
		t.Errorf("expected ErrDuplicateValidator, got %v", err)
	}
	if err := r.Register("positive", positive, 1); !errors.Is(err, ErrDuplicateValidator) {
		t.Errorf("expected re-registration to be rejected, got %v", err)
	}
	if err := r.Register("integer", Check(func(any) string { return "" }), "type"); !errors.Is(err, ErrDuplicateValidator) {
		t.Errorf("expected built-in redefinition to be rejected, got %v", err)
	}

	if err := r.RegisterTag("email", "email"); err != nil {
		t.Errorf("re-registering the same tag should be a no-op, got %v", err)
	}
	if err := r.RegisterTag("email", "min=100"); !errors.Is(err, ErrDuplicateValidator) {
		t.Errorf("expected ErrDuplicateValidator for tag redefinition, got %v", err)
	}
	m, _ := r.Meta("email")
	if d := m.Process("ada@example.com", nil); d != nil {
		t.Errorf("expected the original email test to be kept, got %q", d.Message)
	}
	if err := r.RegisterTag("short", "max=3"); err != nil {
		t.Fatalf("RegisterTag() error = %v", err)
	}
	if err := r.RegisterTag("short", "max=4"); !errors.Is(err, ErrDuplicateValidator) {
		t.Errorf("expected closures with different tags to be told apart, got %v", err)
	}
	if err := r.Register("short", positive, 0); !errors.Is(err, ErrDuplicateValidator) {
		t.Errorf("expected a plain test over a tag to be rejected, got %v", err)
	}

	test, order, ok := r.Lookup("positive")
	if !ok || test == nil || order != 1 {
		t.Errorf("unexpected lookup %v %v", order, ok)
	}

	if _, _, ok := DefaultRegistry().Lookup("positive"); ok {
		t.Error("registries should not share entries")
	}
}

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name  string
		good  any
		bad   any
		order Order
	}{
		{"string", "a", 1, "type"},
		{"number", 1.5, "1", "type"},
		{"integer", 2, 2.5, "type"},
		{"boolean", true, "true", "type"},
		{"array", []int{1}, map[string]int{}, "type"},
		{"object", map[string]int{}, []int{}, "type"},
		{"function", func() {}, 1, "type"},
		{"required", "x", "", "required"},
		{"email", "ada@example.com", "ada@", 0},
		{"url", "https://example.com", "not a url", 0},
		{"uuid", "3f2504e0-4f89-11d3-9a0c-0305e82c3301", "nope", 0},
		{"ip", "10.0.0.1", "10.0.0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := r.Meta(tt.name)
			if err != nil {
				t.Fatalf("Meta() error = %v", err)
			}
			if m.Order() != tt.order {
				t.Errorf("expected order %v, got %v", tt.order, m.Order())
			}
			if d := m.Process(tt.good, nil); d != nil {
				t.Errorf("expected %v to pass, got %q", tt.good, d.Message)
			}
			if d := m.Process(tt.bad, nil); d == nil {
				t.Errorf("expected %v to fail", tt.bad)
			}
		})
	}
}

func TestRegistry_RegisterTag(t *testing.T) {
	r := NewRegistry()
	if err := r.RegisterTag("port", "min=1,max=65535"); err != nil {
		t.Fatalf("RegisterTag() error = %v", err)
	}
	m, _ := r.Meta("port")
	if d := m.Process(8080, nil); d != nil {
		t.Errorf("expected 8080 to pass, got %q", d.Message)
	}
	if d := m.Process(70000, nil); d == nil || d.Message != "must be a valid port" {
		t.Errorf("expected port failure, got %+v", d)
	}
	if d := m.Process(nil, nil); d == nil {
		t.Error("expected nil to fail")
	}
}
