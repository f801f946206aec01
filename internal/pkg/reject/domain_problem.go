package reject

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

type registeredProblem struct {
	target  error
	problem Problem
}

var (
	registryMutex      sync.RWMutex
	registeredProblems []registeredProblem
)

// RegisterProblem maps every error matching target to problem. Feature
// packages register their own errors so this package stays free of them.
func RegisterProblem(target error, title string, status int, code string) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	for _, r := range registeredProblems {
		if r.target == target {
			return
		}
	}
	registeredProblems = append(registeredProblems, registeredProblem{
		target: target,
		problem: NewProblem().
			WithTitle(title).
			WithStatus(status).
			WithCode(code).
			Build(),
	})
}

// FromError returns the registered problem for err, or an unexpected error
// problem when nothing matches.
func FromError(err error) *ProblemWithTrace {
	var trace *ProblemWithTrace
	if errors.As(err, &trace) {
		return trace
	}

	registryMutex.RLock()
	defer registryMutex.RUnlock()

	for _, r := range registeredProblems {
		if errors.Is(err, r.target) {
			problem := r.problem
			problem.Detail = err.Error()
			return &ProblemWithTrace{Problem: problem, Cause: err}
		}
	}
	return &ProblemWithTrace{Problem: UnexpectedProblem(err), Cause: err}
}

func init() {
	RegisterProblem(context.DeadlineExceeded, "Upstream timed out", http.StatusGatewayTimeout, "error.generic.timeout")
}
