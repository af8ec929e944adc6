package kernel

import (
	"context"
	"sync"
)

// EchoSession is a stand-in session for environments without a real
// kernel transport: it reflects the submitted code as a stream output
// and keeps a genuine execution counter. The coordination plane treats
// it exactly like a remote kernel, which makes it useful for local
// runs and end-to-end tests.
type EchoSession struct {
	id    string
	mu    sync.Mutex
	count int
}

func NewEchoSession(id string) *EchoSession {
	return &EchoSession{id: id}
}

func (s *EchoSession) ID() string {
	return s.id
}

func (s *EchoSession) Execute(ctx context.Context, code string, progress func(Result)) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	s.count++
	count := s.count
	s.mu.Unlock()

	result := Result{
		Outputs: []Output{{
			OutputType: "stream",
			Name:       "stdout",
			Text:       code + "\n",
		}},
	}
	if progress != nil {
		progress(result)
	}
	result.ExecutionCount = &count
	return result, nil
}
