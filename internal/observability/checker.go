package observability

import "context"

// Checker is one dependency gating readiness: /readyz on the probe server
// and the per-service status of the gRPC health service.
type Checker interface {
	Name() string
	// Check must honor ctx; probes run it under a deadline.
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to a Checker.
func CheckFunc(name string, check func(context.Context) error) Checker {
	return checkFunc{name: name, check: check}
}

type checkFunc struct {
	name  string
	check func(context.Context) error
}

func (c checkFunc) Name() string                    { return c.name }
func (c checkFunc) Check(ctx context.Context) error { return c.check(ctx) }
