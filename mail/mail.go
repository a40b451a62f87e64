// Package mail defines the outbound email contract. The engine only depends
// on Mailer; delivery details (SMTP host, TLS, retries) live behind it.
package mail

import (
	"context"
	"sync"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer attempts delivery of a single message. Implementations must be safe
// for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpMailer discards messages. Useful when running without an SMTP relay.
type NoOpMailer struct{}

func (NoOpMailer) Send(context.Context, Message) error { return nil }

// Recorder captures sent messages for inspection in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message

	// Err, when set, is returned by every Send to simulate transport failure.
	Err error
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent message, if any.
func (r *Recorder) Last() (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}, false
	}
	return r.messages[len(r.messages)-1], true
}
