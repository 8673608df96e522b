package policy

import "fmt"

// New constructs a Policy by name. Valid names: "fifo" (default), "sjf",
// "lif", "csa" — all four are runtime-configurable rather than picked at
// compile time as the original scheduler did.
func New(name string, k, numKernels int, predictor Predictor, scheduler Scheduler) (Policy, error) {
	switch name {
	case "", "fifo":
		return FIFO{}, nil
	case "sjf":
		return &SJF{K: k, NumKernels: numKernels, Predictor: predictor}, nil
	case "lif":
		return &LIF{K: k, NumKernels: numKernels, Predictor: predictor}, nil
	case "csa":
		return &CSA{K: k, NumKernels: numKernels, Scheduler: scheduler}, nil
	default:
		return nil, fmt.Errorf("policy: unknown policy %q", name)
	}
}
