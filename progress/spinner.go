package progress

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

type Spinner struct {
	message      atomic.Value
	messageWidth int

	frame atomic.Int64

	started  time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewSpinner(message string) *Spinner {
	s := &Spinner{
		started: time.Now(),
		stopped: make(chan struct{}),
	}
	s.message.Store(message)
	go s.run()
	return s
}

func (s *Spinner) SetMessage(message string) {
	s.message.Store(message)
}

func (s *Spinner) String() string {
	var sb strings.Builder

	if message, ok := s.message.Load().(string); ok && len(message) > 0 {
		message = strings.TrimSpace(message)
		if s.messageWidth > 0 && len(message) > s.messageWidth {
			message = message[:s.messageWidth]
		}

		sb.WriteString(message)
		if padding := s.messageWidth - sb.Len(); padding > 0 {
			sb.WriteString(repeat(" ", padding))
		}

		sb.WriteString(" ")
	}

	if s.running() {
		sb.WriteString(spinnerFrames[int(s.frame.Load())%len(spinnerFrames)])
		sb.WriteString(" ")
	}

	return sb.String()
}

func (s *Spinner) running() bool {
	select {
	case <-s.stopped:
		return false
	default:
		return true
	}
}

func (s *Spinner) run() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.frame.Add(1)
		case <-s.stopped:
			return
		}
	}
}

func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
	})
}
