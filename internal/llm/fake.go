package llm

import (
	"context"
	"sync"
)

// Scripted is a Client that replays canned responses in order. Once the
// script is exhausted the last entry repeats. It records every request.
type Scripted struct {
	mu        sync.Mutex
	responses []ScriptedResponse
	Requests  []Request
}

// ScriptedResponse is one canned reply.
type ScriptedResponse struct {
	Content string
	Tokens  int
	Err     error
}

func NewScripted(responses ...ScriptedResponse) *Scripted {
	return &Scripted{responses: responses}
}

func (s *Scripted) Generate(_ context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Requests = append(s.Requests, req)
	if len(s.responses) == 0 {
		return &Response{Model: req.Model}, nil
	}
	idx := len(s.Requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	r := s.responses[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	return &Response{Content: r.Content, TokensUsed: r.Tokens, Model: req.Model}, nil
}

// Calls returns how many requests were made.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Requests)
}
