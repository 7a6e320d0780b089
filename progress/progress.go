package progress

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

const defaultTermHeight = 24

type State interface {
	String() string
}

type Progress struct {
	mu sync.Mutex
	// buffer output to minimize flickering on all terminals
	w *bufio.Writer

	pos int

	ticker *time.Ticker
	done   chan struct{}
	states []State
}

func NewProgress(w io.Writer) *Progress {
	p := &Progress{
		w:      bufio.NewWriter(w),
		ticker: time.NewTicker(100 * time.Millisecond),
		done:   make(chan struct{}),
	}

	go p.run()
	return p
}

func (p *Progress) run() {
	// hide cursor while animating
	fmt.Fprint(p.w, "\033[?25l")

	tick := p.ticker.C
	for {
		select {
		case <-tick:
			p.render()
		case <-p.done:
			return
		}
	}
}

func (p *Progress) stop() bool {
	p.mu.Lock()
	states := p.states
	ticker := p.ticker
	p.ticker = nil
	p.mu.Unlock()

	for _, state := range states {
		if spinner, ok := state.(*Spinner); ok {
			spinner.Stop()
		}
	}

	if ticker == nil {
		return false
	}

	ticker.Stop()
	close(p.done)
	p.render()
	return true
}

func (p *Progress) Stop() bool {
	stopped := p.stop()
	if stopped {
		fmt.Fprintln(p.w)
	}

	// show cursor
	fmt.Fprint(p.w, "\033[?25h")
	p.w.Flush()
	return stopped
}

func (p *Progress) StopAndClear() bool {
	stopped := p.stop()
	if stopped {
		// erase every rendered line, bottom up
		for i := range p.pos {
			if i > 0 {
				fmt.Fprint(p.w, "\033[A")
			}

			fmt.Fprint(p.w, "\033[2K", "\033[1G")
		}
	}

	// show cursor
	fmt.Fprint(p.w, "\033[?25h")
	p.w.Flush()
	return stopped
}

func (p *Progress) Add(key string, state State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.states = append(p.states, state)
}

func (p *Progress) render() {
	_, termHeight, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil {
		termHeight = defaultTermHeight
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprint(p.w, "\033[?2026h")
	defer fmt.Fprint(p.w, "\033[?2026l")

	for range p.pos - 1 {
		fmt.Fprint(p.w, "\033[A")
	}

	fmt.Fprint(p.w, "\033[1G")

	// when there are more states than rows, render the newest
	maxHeight := min(len(p.states), termHeight)
	for i := len(p.states) - maxHeight; i < len(p.states); i++ {
		fmt.Fprint(p.w, p.states[i].String(), "\033[K")
		if i < len(p.states)-1 {
			fmt.Fprint(p.w, "\n")
		}
	}

	p.pos = len(p.states)
	p.w.Flush()
}
