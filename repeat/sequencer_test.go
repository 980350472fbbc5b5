package repeat

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"midictl/sched"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type sent struct {
	at      time.Duration
	on      bool
	channel uint8
	note    uint8
	vel     uint8
}

func (s sent) String() string {
	kind := "off"
	if s.on {
		kind = "on"
	}
	return fmt.Sprintf("%v %s ch%d n%d v%d", s.at, kind, s.channel, s.note, s.vel)
}

type recorder struct {
	clock *sched.Manual
	msgs  []sent
}

func (r *recorder) SendNote(channel, note, velocity uint8) error {
	r.msgs = append(r.msgs, sent{r.clock.Now().Sub(epoch), true, channel, note, velocity})
	return nil
}

func (r *recorder) SendNoteOff(channel, note, velocity uint8) error {
	r.msgs = append(r.msgs, sent{r.clock.Now().Sub(epoch), false, channel, note, velocity})
	return nil
}

func (r *recorder) ons() []sent {
	var out []sent
	for _, m := range r.msgs {
		if m.on {
			out = append(out, m)
		}
	}
	return out
}

// sounding counts note-ons without a matching note-off per channel/pitch
func (r *recorder) sounding() int {
	held := make(map[[2]uint8]int)
	for _, m := range r.msgs {
		k := [2]uint8{m.channel, m.note}
		if m.on {
			held[k]++
		} else {
			held[k]--
		}
	}
	n := 0
	for _, v := range held {
		n += v
	}
	return n
}

type fakeGuard struct {
	err      error
	revoke   func()
	released int
}

func (g *fakeGuard) Acquire(onRevoke func()) (Lock, error) {
	if g.err != nil {
		return nil, g.err
	}
	g.revoke = onRevoke
	return g, nil
}

func (g *fakeGuard) Release() { g.released++ }

type lines []string

func (l *lines) Print(line string) { *l = append(*l, line) }

func newTest(opts ...Option) (*Sequencer, *recorder, *sched.Manual) {
	clock := sched.NewManual(epoch)
	rec := &recorder{clock: clock}
	return New(clock, rec, opts...), rec, clock
}

func configure(t *testing.T, s *Sequencer, kv ...int) {
	t.Helper()
	for i := 0; i+1 < len(kv); i += 2 {
		if err := s.Configure(Field(kv[i]), kv[i+1]); err != nil {
			t.Fatal(err)
		}
	}
}

func TestStartPlaysFirstNoteSynchronously(t *testing.T) {
	s, rec, _ := newTest()
	s.Start()
	if !s.Running() {
		t.Fatal("not running")
	}
	if len(rec.msgs) != 1 || !rec.msgs[0].on || rec.msgs[0].note != 60 || rec.msgs[0].vel != 10 {
		t.Fatalf("msgs=%v", rec.msgs)
	}

	s.Start()
	if len(rec.msgs) != 1 {
		t.Fatalf("second Start sent %v", rec.msgs)
	}
}

func TestDensityModeBurst(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s,
		int(FieldDanger), 1,
		int(FieldCount), 3,
		int(FieldBeat), 127,
		int(FieldPause), 63,
		int(FieldLength), 0,
	)
	if s.Config().BeatMsec() != 0 {
		t.Fatalf("beat=%d", s.Config().BeatMsec())
	}

	s.Start()
	ons := rec.ons()
	if len(ons) != 3 || ons[0].note != 60 || ons[1].note != 61 || ons[2].note != 62 {
		t.Fatalf("burst=%v", ons)
	}

	pause := time.Duration(s.Config().PauseMsec()) * time.Millisecond
	clock.Advance(pause - time.Millisecond)
	if len(rec.ons()) != 3 {
		t.Fatalf("repeated before pause: %v", rec.msgs)
	}
	clock.Advance(time.Millisecond)
	ons = rec.ons()
	if len(ons) != 6 {
		t.Fatalf("second burst missing: %v", rec.msgs)
	}
	for _, m := range ons[3:] {
		if m.at != pause {
			t.Fatalf("second burst at %v want %v", m.at, pause)
		}
	}

	s.Stop()
	if rec.sounding() != 0 {
		t.Fatalf("stuck notes: %v", rec.msgs)
	}
}

func TestSingleNoteRepeatsAtBeat(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s, int(FieldBeat), 90)
	beat := 170 * time.Millisecond

	s.Start()
	clock.Advance(3 * beat)

	ons := rec.ons()
	if len(ons) != 4 {
		t.Fatalf("ons=%v", ons)
	}
	for i, m := range ons {
		if m.note != 60 || m.at != time.Duration(i)*beat {
			t.Fatalf("note %d = %v", i, m)
		}
	}
}

func TestNormalModeCycle(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s,
		int(FieldCount), 3,
		int(FieldBeat), 90,
		int(FieldLength), 0,
	)
	beat := 170 * time.Millisecond
	pause := 1231 * time.Millisecond

	s.Start()
	clock.Advance(2*beat + beat + pause + beat)

	want := []struct {
		note uint8
		at   time.Duration
	}{
		{60, 0},
		{61, beat},
		{62, 2 * beat},
		{60, 3*beat + pause},
		{61, 4*beat + pause},
	}
	ons := rec.ons()
	if len(ons) != len(want) {
		t.Fatalf("ons=%v", ons)
	}
	for i, w := range want {
		if ons[i].note != w.note || ons[i].at != w.at {
			t.Errorf("note %d = %v want n%d at %v", i, ons[i], w.note, w.at)
		}
	}
}

func TestRetriggerSendsNoteOffFirst(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s, int(FieldBeat), 90, int(FieldLength), 127)

	s.Start()
	clock.Advance(170 * time.Millisecond)

	if len(rec.msgs) != 3 {
		t.Fatalf("msgs=%v", rec.msgs)
	}
	first, off, second := rec.msgs[0], rec.msgs[1], rec.msgs[2]
	if !first.on || off.on || !second.on {
		t.Fatalf("order=%v", rec.msgs)
	}
	if off.note != 60 || off.at != 170*time.Millisecond || off.vel != ReleaseVelocity {
		t.Fatalf("off=%v", off)
	}

	clock.Advance(5 * time.Second)
	s.Stop()
	if rec.sounding() != 0 {
		t.Fatalf("stuck notes: %v", rec.msgs)
	}
}

func TestRetriggerReleasesOnOriginalChannel(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s, int(FieldBeat), 90, int(FieldLength), 127)

	s.Start()
	_ = s.Configure(FieldChannel, 5)
	_ = s.Configure(FieldVelocity, 99)
	clock.Advance(170 * time.Millisecond)

	off, on := rec.msgs[1], rec.msgs[2]
	if off.on || off.channel != 0 {
		t.Fatalf("off=%v", off)
	}
	if !on.on || on.channel != 5 || on.vel != 99 {
		t.Fatalf("on=%v", on)
	}
}

func TestNoteOffAfterLength(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s, int(FieldBeat), 0, int(FieldLength), 63)

	s.Start()
	clock.Advance(1231 * time.Millisecond)
	if len(rec.msgs) != 2 || rec.msgs[1].on || rec.msgs[1].at != 1231*time.Millisecond {
		t.Fatalf("msgs=%v", rec.msgs)
	}
}

func TestStopFlushesAndIsIdempotent(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s, int(FieldCount), 4, int(FieldBeat), 110, int(FieldLength), 127)

	s.Start()
	clock.Advance(100 * time.Millisecond)
	if rec.sounding() == 0 {
		t.Fatal("expected sounding notes")
	}

	s.Stop()
	if s.Running() || rec.sounding() != 0 {
		t.Fatalf("running=%v msgs=%v", s.Running(), rec.msgs)
	}
	if clock.Pending() != 0 {
		t.Fatalf("%d timers left", clock.Pending())
	}

	n := len(rec.msgs)
	s.Stop()
	clock.Advance(10 * time.Second)
	if len(rec.msgs) != n {
		t.Fatalf("messages after stop: %v", rec.msgs[n:])
	}
}

func TestNoStuckNotesRandomStartStop(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s, int(FieldCount), 5, int(FieldBeat), 100, int(FieldLength), 100, int(FieldPause), 10)

	for i := 0; i < 20; i++ {
		s.Start()
		clock.Advance(time.Duration(37*i) * time.Millisecond)
		if i%3 == 0 {
			_ = s.Configure(FieldChannel, i%16)
		}
		s.Stop()
		if rec.sounding() != 0 {
			t.Fatalf("iteration %d: stuck notes", i)
		}
	}
}

func TestRangeEditWhilePlaying(t *testing.T) {
	s, rec, clock := newTest()
	configure(t, s, int(FieldCount), 3, int(FieldBeat), 90, int(FieldLength), 0)

	s.Start()
	clock.Advance(170 * time.Millisecond)
	_ = s.Configure(FieldStartNote, 70)
	clock.Advance(170 * time.Millisecond)

	ons := rec.ons()
	if last := ons[len(ons)-1]; last.note != 70 {
		t.Fatalf("note outside new range: %v", ons)
	}
}

func TestRevocationStopsPlayback(t *testing.T) {
	g := &fakeGuard{}
	var out lines
	s, rec, clock := newTest(WithGuard(g), WithPrinter(&out))
	configure(t, s, int(FieldLength), 127)

	s.Start()
	if g.revoke == nil {
		t.Fatal("lock not acquired")
	}
	g.revoke()
	if !s.Running() {
		t.Fatal("revocation must be delivered through the scheduler")
	}
	clock.Flush()

	if s.Running() || s.Notice() != NoticeRevoked {
		t.Fatalf("running=%v notice=%q", s.Running(), s.Notice())
	}
	if len(out) != 1 || out[0] != NoticeRevoked {
		t.Fatalf("printed %v", out)
	}
	if g.released != 0 {
		t.Fatal("revoked lock must not be released again")
	}
	if rec.sounding() != 0 {
		t.Fatalf("stuck notes: %v", rec.msgs)
	}

	s.Start()
	if s.Notice() != "" {
		t.Fatal("Start must clear the notice")
	}
	s.Stop()
	if g.released != 1 {
		t.Fatalf("released=%d", g.released)
	}
}

func TestStaleRevocationIgnored(t *testing.T) {
	g := &fakeGuard{}
	s, _, clock := newTest(WithGuard(g))

	s.Start()
	stale := g.revoke
	s.Stop()
	s.Start()
	stale()
	clock.Flush()
	if !s.Running() {
		t.Fatal("revocation of an earlier run stopped the current one")
	}
}

func TestGuardFailureStillPlays(t *testing.T) {
	g := &fakeGuard{err: errors.New("no logind")}
	s, rec, _ := newTest(WithGuard(g))
	s.Start()
	if !s.Running() || len(rec.msgs) != 1 {
		t.Fatalf("running=%v msgs=%v", s.Running(), rec.msgs)
	}
	s.Stop()
}

func TestResetRestoresDefaults(t *testing.T) {
	s, rec, _ := newTest()
	configure(t, s, int(FieldStartNote), 40, int(FieldVelocity), 100)
	s.Start()
	s.Reset()

	if s.Running() || s.Config() != DefaultConfig() {
		t.Fatalf("running=%v cfg=%+v", s.Running(), s.Config())
	}
	if rec.sounding() != 0 {
		t.Fatalf("stuck notes: %v", rec.msgs)
	}
}

func TestWithConfigNormalizes(t *testing.T) {
	s, _, _ := newTest(WithConfig(Config{StartNote: 127, Count: 5, Velocity: 10, Beat: 127}))
	c := s.Config()
	if c.End() > 127 || c.Beat != SafeBeat {
		t.Fatalf("cfg=%+v", c)
	}
}

func TestResetRestoresInitialConfig(t *testing.T) {
	initial := DefaultConfig()
	initial.StartNote, initial.Count, initial.Velocity = 40, 4, 90
	s, _, _ := newTest(WithConfig(initial))

	configure(t, s, int(FieldStartNote), 70, int(FieldBeat), 10)
	s.Reset()
	if s.Config() != initial.Normalize() {
		t.Fatalf("cfg=%+v", s.Config())
	}
}
