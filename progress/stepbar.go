package progress

import (
	"fmt"
)

const stepBarWidth = 30

// StepBar displays count-based progress (e.g., merge steps toward a
// target vocabulary size).
type StepBar struct {
	message string
	current int
	total   int
}

func NewStepBar(message string, total int) *StepBar {
	return &StepBar{message: message, total: total}
}

func (s *StepBar) Set(current int) {
	if current > s.total {
		current = s.total
	}
	s.current = current
}

func (s *StepBar) String() string {
	var percent float64
	var filled int
	if s.total > 0 {
		percent = float64(s.current) / float64(s.total) * 100
		filled = s.current * stepBarWidth / s.total
	}

	// "training  42% ▕█████     ▏ 420/1000"
	return fmt.Sprintf("%s %3.0f%% ▕%s%s▏ %d/%d",
		s.message, percent,
		repeat("█", filled), repeat(" ", stepBarWidth-filled),
		s.current, s.total)
}
