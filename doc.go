/*
Package valuez provides observable, validated values and stores built from
them.

A Field holds one value. Every update runs as a Change through a sequence of
named stages where registered handlers can rewrite or abort it, is annotated
by the field's validators, and is emitted to subscribers whether or not it
passed. Only values with no diagnostics become the field's LastValid.

A Store groups fields, nested stores, derived virtuals and methods under one
snapshot. Snapshots carry last valid values only; rejected input goes to the
store's error channel.

# Basic Usage

	point := valuez.New("point")
	point.Property("x", 0, "integer")
	point.Property("y", 0, "integer")

	point.Subscribe(func(c valuez.Container) {
	    fmt.Println(valuez.Plain(c))
	})
	point.SubscribeErrors(func(e *valuez.StoreError) {
	    fmt.Println(e.Message) // "x must be a integer"
	})

	point.Do("setX", 3)     // map[x:3 y:0]
	point.Do("setX", "bob") // error channel; snapshot unchanged

# Validators

Filters are resolved by a Registry. A filter may be a registered name
("required", "integer", "email", ...), a Test, a func(any) string returning
an error message, or a prepared *Meta:

	valuez.NewMeta("email")
	valuez.NewMeta(valuez.Check(func(v any) string {
	    if v == "root" {
	        return "is reserved"
	    }
	    return ""
	}), valuez.WithName("reserved"), valuez.WithOrder(1))

Metas run in levels grouped by order. A level that produces diagnostics stops
the levels after it, so a failed "type" check hides range checks that would
only repeat the complaint.

# Stages and Handlers

Handlers are registered on a Dispatcher and matched by action, stage and an
optional predicate:

	valuez.DefaultDispatcher().On(valuez.Condition{
	    Action: valuez.Is(valuez.ActionNext),
	    Stage:  valuez.Is(valuez.StageProcess),
	}, func(c *valuez.Change) {
	    if s, ok := c.Value().(string); ok {
	        c.Next(strings.TrimSpace(s))
	    }
	})

# Virtuals, Methods and Transactions

	point.AddVirtual("norm", func(s *valuez.Store, _ ...any) (any, error) {
	    x, _ := s.Get("x")
	    y, _ := s.Get("y")
	    return math.Hypot(toFloat(x), toFloat(y)), nil
	})

	point.Method("move", func(s *valuez.Store, args ...any) (any, error) {
	    s.Set("x", args[0])
	    s.Set("y", args[1])
	    return nil, nil
	}, valuez.Trans())

A transactional method emits exactly one snapshot when it succeeds and none
when it fails, restoring every field it touched.

# Bindings

A Binding applies documents from a Watcher to a store, one transaction per
document, and reports its health through State and capitan signals:

	b := valuez.Bind(point, valuez.NewFileWatcher("point.yaml")).
	    Codec(valuez.YAMLCodec{})
	b.Start(ctx)

# Observability

Stores and bindings emit capitan signals (FieldRejected, ActionFailed,
BindingStateChanged, ...), record spans through OpenTelemetry, and report to
a MetricsProvider. See pkg/prometheus for a Prometheus provider.

# Concurrency

Subjects are safe for concurrent use. Fields, changes and stores are not:
drive each store from one goroutine, or through Binding.Exec.
*/
package valuez
