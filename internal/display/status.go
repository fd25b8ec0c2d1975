package display

import (
	"fmt"
	"io"
	"sync"
	"time"
	"unicode/utf8"
)

// StatusSource publishes the latest backup status. Updates counts
// publications so a reader can tell a repeated message from a new one.
type StatusSource interface {
	Current() string
	Updates() uint64
}

var (
	unicodeFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	asciiFrames   = []string{"-", "\\", "|", "/"}
)

// DefaultStatusInterval is how often the status line polls its source
const DefaultStatusInterval = 100 * time.Millisecond

// StatusLine renders a StatusSource while a backup runs. On a terminal the
// line is rewritten in place with a spinner; otherwise every new status is
// printed on its own line.
type StatusLine struct {
	source      StatusSource
	writer      io.Writer
	colorSys    ColorSystem
	theme       ColorTheme
	frames      []string
	interactive bool
	interval    time.Duration
	width       int

	mu       sync.Mutex
	last     uint64
	frame    int
	started  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewStatusLine creates a status line over source
func NewStatusLine(source StatusSource, writer io.Writer, colorSys ColorSystem, icons IconSystem) *StatusLine {
	frames := asciiFrames
	if icons != nil && icons.IsUnicodeSupported() {
		frames = unicodeFrames
	}
	return &StatusLine{
		source:      source,
		writer:      writer,
		colorSys:    colorSys,
		theme:       colorSys.GetTheme(),
		frames:      frames,
		interactive: isTerminal(writer),
		interval:    DefaultStatusInterval,
		width:       terminalWidth(writer),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// SetInteractive overrides terminal detection
func (s *StatusLine) SetInteractive(interactive bool) {
	s.interactive = interactive
}

// SetInterval changes the polling interval; call before Start
func (s *StatusLine) SetInterval(interval time.Duration) {
	s.interval = interval
}

// Start begins polling in the background
func (s *StatusLine) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
}

// Stop renders the last status, ends polling and prints finalMessage when
// it is not empty. It is safe to call more than once.
func (s *StatusLine) Stop(finalMessage string) {
	s.stopOnce.Do(func() {
		close(s.stopCh)

		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.doneCh
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.interactive {
			fmt.Fprint(s.writer, "\r\033[K")
			if status := s.source.Current(); status != "" {
				fmt.Fprintln(s.writer, status)
			}
		} else {
			s.printIfNew()
		}
		if finalMessage != "" {
			fmt.Fprintln(s.writer, finalMessage)
		}
	})
}

func (s *StatusLine) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *StatusLine) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.interactive {
		s.printIfNew()
		return
	}

	frame := s.frames[s.frame%len(s.frames)]
	s.frame++
	status := s.truncate(s.source.Current(), utf8.RuneCountInString(frame)+1)
	fmt.Fprintf(s.writer, "\r\033[K%s %s", s.colorSys.Colorize(frame, s.theme.Primary), status)
}

// printIfNew must be called with mu held
func (s *StatusLine) printIfNew() {
	updates := s.source.Updates()
	if updates == s.last {
		return
	}
	s.last = updates
	if status := s.source.Current(); status != "" {
		fmt.Fprintln(s.writer, status)
	}
}

func (s *StatusLine) truncate(status string, reserved int) string {
	limit := s.width - reserved - 1
	if s.width <= 0 || limit <= 3 || utf8.RuneCountInString(status) <= limit {
		return status
	}
	runes := []rune(status)
	return string(runes[:limit-3]) + "..."
}
