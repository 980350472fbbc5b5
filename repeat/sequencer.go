package repeat

import (
	"sort"

	"github.com/samber/lo"

	"midictl/debug"
	"midictl/midi"
	"midictl/sched"
)

// NoticeRevoked is shown when the wake lock is taken away during playback
const NoticeRevoked = "The playback was paused because the wake lock was released."

// ReleaseVelocity is the note-off velocity
const ReleaseVelocity uint8 = 64

// Sender is the active connection as seen by the sequencer. It is looked up
// on every send, so a reconnect is picked up without restarting.
type Sender interface {
	SendNote(channel, note, velocity uint8) error
	SendNoteOff(channel, note, velocity uint8) error
}

// Lock is a granted wake lock
type Lock interface {
	Release()
}

// Guard keeps the machine awake while playing. onRevoke may be called from
// any goroutine when the lock is lost without Release being called.
type Guard interface {
	Acquire(onRevoke func()) (Lock, error)
}

// Printer receives user-facing status lines
type Printer interface {
	Print(line string)
}

// Sequencer plays a repeating note pattern on the scheduler's thread.
type Sequencer struct {
	sched  sched.Scheduler
	out    Sender
	guard  Guard
	log    Printer
	cfg    Config
	base   Config // restored by Reset
	run    *runState
	notice string
}

type runState struct {
	note    int
	timer   sched.Timer
	pending map[int]pendingOff
	lock    Lock
}

type pendingOff struct {
	timer   sched.Timer
	channel uint8
}

// Option configures a Sequencer
type Option func(*Sequencer)

// WithGuard sets the wake lock provider
func WithGuard(g Guard) Option {
	return func(s *Sequencer) { s.guard = g }
}

// WithPrinter sets where notices are printed
func WithPrinter(p Printer) Option {
	return func(s *Sequencer) { s.log = p }
}

// WithConfig sets the initial configuration, which Reset also returns to
func WithConfig(c Config) Option {
	return func(s *Sequencer) {
		s.cfg = c.Normalize()
		s.base = s.cfg
	}
}

// New creates a stopped sequencer
func New(s sched.Scheduler, out Sender, opts ...Option) *Sequencer {
	seq := &Sequencer{sched: s, out: out, cfg: DefaultConfig(), base: DefaultConfig()}
	for _, opt := range opts {
		opt(seq)
	}
	return seq
}

// Config returns the current configuration
func (s *Sequencer) Config() Config {
	return s.cfg
}

// Configure sets one field. Changes apply from the next note on.
func (s *Sequencer) Configure(f Field, value int) error {
	return s.cfg.Configure(f, value)
}

// Running reports whether playback is active
func (s *Sequencer) Running() bool {
	return s.run != nil
}

// Notice returns the last warning, cleared by Start
func (s *Sequencer) Notice() string {
	return s.notice
}

// Start begins playback at the start note. The first notes are sent before
// Start returns. Calling Start while running does nothing.
func (s *Sequencer) Start() {
	if s.run != nil {
		return
	}
	s.notice = ""

	run := &runState{
		note:    s.cfg.StartNote,
		pending: make(map[int]pendingOff),
	}
	s.run = run

	if s.guard != nil {
		lock, err := s.guard.Acquire(func() {
			sched.Post(s.sched, func() { s.revoked(run) })
		})
		if err != nil {
			debug.Log("repeat", "wake lock unavailable: %v", err)
		} else {
			run.lock = lock
		}
	}

	debug.Log("repeat", "start %s-%s beat=%dms pause=%dms length=%dms",
		midi.NoteName(uint8(s.cfg.StartNote)), midi.NoteName(uint8(s.cfg.End())),
		s.cfg.BeatMsec(), s.cfg.PauseMsec(), s.cfg.LengthMsec())
	s.tick(run)
}

// Stop cancels the cycle and sends note-off for every sounding note.
// Calling Stop while stopped does nothing.
func (s *Sequencer) Stop() {
	run := s.run
	if run == nil {
		return
	}
	s.run = nil

	if run.timer != nil {
		run.timer.Stop()
	}

	notes := lo.Keys(run.pending)
	sort.Ints(notes)
	for _, note := range notes {
		p := run.pending[note]
		p.timer.Stop()
		s.noteOff(p.channel, note)
	}
	run.pending = nil

	if run.lock != nil {
		run.lock.Release()
	}
	debug.Log("repeat", "stop")
}

// Reset stops playback and restores the initial configuration
func (s *Sequencer) Reset() {
	s.Stop()
	s.cfg = s.base
	s.notice = ""
}

func (s *Sequencer) revoked(run *runState) {
	if s.run != run {
		return
	}
	// the lock is already gone
	run.lock = nil
	s.Stop()
	s.notice = NoticeRevoked
	if s.log != nil {
		s.log.Print(NoticeRevoked)
	}
}

// tick plays one step and arms the next. The range is re-read every time
// so edits made while playing take effect immediately.
func (s *Sequencer) tick(run *runState) {
	if s.run != run {
		return
	}
	start, end := s.cfg.StartNote, s.cfg.End()
	next := func() { s.tick(run) }

	if s.cfg.BeatMsec() == 0 {
		for note := start; note <= end; note++ {
			s.play(run, note)
		}
		run.note = start
		run.timer = s.sched.AfterFunc(s.cfg.pause(), next)
		return
	}

	if run.note < start || run.note > end {
		run.note = start
	}
	s.play(run, run.note)
	run.note++

	delay := s.cfg.beat()
	if run.note > end {
		run.note = start
		// a single note has no cycle boundary
		if start != end {
			delay += s.cfg.pause()
		}
	}
	run.timer = s.sched.AfterFunc(delay, next)
}

// play sends one note and arms its note-off. A note still held from an
// earlier step is released first, on the channel it was played on.
func (s *Sequencer) play(run *runState, note int) {
	if p, ok := run.pending[note]; ok {
		p.timer.Stop()
		delete(run.pending, note)
		s.noteOff(p.channel, note)
	}

	ch := uint8(s.cfg.Channel)
	_ = s.out.SendNote(ch, uint8(note), uint8(s.cfg.Velocity))

	var t sched.Timer
	t = s.sched.AfterFunc(s.cfg.length(), func() {
		p, ok := run.pending[note]
		if !ok || p.timer != t {
			return
		}
		delete(run.pending, note)
		s.noteOff(p.channel, note)
	})
	run.pending[note] = pendingOff{timer: t, channel: ch}
}

func (s *Sequencer) noteOff(channel uint8, note int) {
	_ = s.out.SendNoteOff(channel, uint8(note), ReleaseVelocity)
}
