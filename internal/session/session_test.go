package session

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/san-kum/wfslock/internal/bench"
	"github.com/san-kum/wfslock/internal/device"
	"github.com/san-kum/wfslock/internal/device/devicetest"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/stabilize"
	"github.com/san-kum/wfslock/internal/target"
)

type fakes struct {
	sensor *devicetest.Sensor
	act    *devicetest.Actuator
	solver *devicetest.Solver
}

func newFakes(measured ...modal.Vector) fakes {
	return fakes{
		sensor: devicetest.NewSensor(measured...),
		act:    devicetest.NewActuator(),
		solver: devicetest.NewSolver(),
	}
}

func (f fakes) set() device.Set {
	return devicetest.Set(f.sensor, f.act, f.solver)
}

func (f fakes) assertReleasedOnce(t *testing.T) {
	t.Helper()
	if n := f.act.Releases(); n != 1 {
		t.Errorf("actuator released %d times, want 1", n)
	}
	if n := f.sensor.Releases(); n != 1 {
		t.Errorf("sensor released %d times, want 1", n)
	}
}

func specifier(input string, out *bytes.Buffer) *target.Specifier {
	return target.NewSpecifier(operator.NewConsole(strings.NewReader(input), out))
}

func TestNewValidation(t *testing.T) {
	f := newFakes()
	if _, err := New(DefaultConfig(), f.set(), nil, operator.Fixed(operator.Continue)); !errors.Is(err, ErrNoTargetSource) {
		t.Errorf("expected ErrNoTargetSource, got %v", err)
	}
	cfg := DefaultConfig()
	cfg.CharacterizeOrder = 0
	if _, err := New(cfg, f.set(), target.NewScript(), operator.Fixed(operator.Continue)); err == nil {
		t.Error("expected error for zero characterize order")
	}
}

func TestNew_FailureReleasesDevices(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CharacterizeOrder = 0
	tests := []struct {
		name    string
		cfg     Config
		targets target.Source
	}{
		{"no target source", DefaultConfig(), nil},
		{"invalid config", cfg, target.NewScript()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakes()
			if _, err := New(tt.cfg, f.set(), tt.targets, operator.Fixed(operator.Continue)); err == nil {
				t.Fatal("expected error")
			}
			f.assertReleasedOnce(t)
		})
	}
}

func TestNew_FailureJoinsReleaseError(t *testing.T) {
	f := newFakes()
	f.act.ReleaseErr = devicetest.ErrInjected
	_, err := New(DefaultConfig(), f.set(), nil, operator.Fixed(operator.Continue))
	if !errors.Is(err, ErrNoTargetSource) || !errors.Is(err, devicetest.ErrInjected) {
		t.Errorf("expected both errors, got %v", err)
	}
}

type countingSource struct {
	target.Source
	calls int
}

func (c *countingSource) NextTarget(ctx context.Context) (modal.Vector, error) {
	c.calls++
	return c.Source.NextTarget(ctx)
}

func TestOnAchieved_DropsStaleGeneration(t *testing.T) {
	f := newFakes()
	src := &countingSource{Source: target.NewScript(modal.Vector{})}
	s, err := New(DefaultConfig(), f.set(), src, operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.ctrl.SetTarget(modal.Vector{})
	s.ctrl.SetTarget(modal.Vector{})

	if err := s.onAchieved(context.Background(), stabilize.Achievement{Generation: 1}); err != nil {
		t.Fatal(err)
	}
	if src.calls != 0 {
		t.Errorf("superseded convergence requested %d targets", src.calls)
	}
	if g := s.ctrl.Generation(); g != 2 {
		t.Errorf("generation = %d, want 2", g)
	}

	if err := s.onAchieved(context.Background(), stabilize.Achievement{Generation: 2}); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Errorf("current convergence requested %d targets, want 1", src.calls)
	}
	if g := s.ctrl.Generation(); g != 3 {
		t.Errorf("generation = %d, want 3 after the handoff", g)
	}
}

func TestRun_AbortAtFirstTarget(t *testing.T) {
	f := newFakes()
	var out bytes.Buffer
	s, err := New(DefaultConfig(), f.set(), specifier("0.1\ne\n", &out), operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}

	err = s.Run(context.Background())
	if !errors.Is(err, operator.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if f.sensor.Captures() != 0 {
		t.Error("loop must not start without a target")
	}
	f.assertReleasedOnce(t)
}

func TestRun_EndOfInputAborts(t *testing.T) {
	f := newFakes()
	var out bytes.Buffer
	s, err := New(DefaultConfig(), f.set(), specifier("", &out), operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Run(context.Background()); !errors.Is(err, operator.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	f.assertReleasedOnce(t)
}

func TestRun_FatalDeviceError(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(fakes)
		sentinel error
	}{
		{"capture", func(f fakes) { f.sensor.FailCaptureAt = 2 }, device.ErrDevice},
		{"apply", func(f fakes) { f.act.FailApplyAt = 3 }, device.ErrDevice},
		{"solve", func(f fakes) { f.solver.FailAt = 1 }, device.ErrSolver},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var far modal.Vector
			far[6] = 1
			f := newFakes(far)
			tt.setup(f)
			s, err := New(DefaultConfig(), f.set(), target.NewScript(modal.Vector{}), operator.Fixed(operator.Continue))
			if err != nil {
				t.Fatal(err)
			}

			err = s.Run(context.Background())
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
			f.assertReleasedOnce(t)
		})
	}
}

func TestRun_OperatorAbortsEscalation(t *testing.T) {
	var far modal.Vector
	far[10] = 0.5
	f := newFakes(far)
	s, err := New(DefaultConfig(), f.set(), target.NewScript(modal.Vector{}), operator.Fixed(operator.Abort))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background()); !errors.Is(err, operator.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	st := s.Stats()
	if st.Iterations != 11 || st.Escalations != 1 || st.Targets != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
	f.assertReleasedOnce(t)
}

func TestRun_CancelIsCleanShutdown(t *testing.T) {
	f := newFakes()
	f.sensor.Delay = time.Millisecond
	s, err := New(DefaultConfig(), f.set(), target.NewScript(modal.Vector{}), operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("cancellation should end the session cleanly, got %v", err)
	}
	if f.sensor.Captures() == 0 {
		t.Error("loop never ran")
	}
	f.assertReleasedOnce(t)
}

func TestRun_RearmsFromConsole(t *testing.T) {
	f := newFakes()
	var out bytes.Buffer
	// zero target, then a piston-only target, then abort
	s, err := New(DefaultConfig(), f.set(), specifier("0\np\n0.01\np\ne\n", &out), operator.Fixed(operator.Continue),
		WithConsole(operator.NewConsole(strings.NewReader(""), &out)))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background()); !errors.Is(err, operator.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if got := strings.Count(out.String(), achievedMessage); got != 2 {
		t.Errorf("achieved announced %d times, want 2\n%s", got, out.String())
	}
	st := s.Stats()
	if st.Targets != 2 || st.Convergences != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
	f.assertReleasedOnce(t)
}

func TestClose_ReleasesOnce(t *testing.T) {
	f := newFakes()
	f.act.ReleaseErr = devicetest.ErrInjected
	s, err := New(DefaultConfig(), f.set(), target.NewScript(), operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}

	first := s.Close()
	second := s.Close()
	if !errors.Is(first, devicetest.ErrInjected) || !errors.Is(first, device.ErrDevice) {
		t.Errorf("expected wrapped release failure, got %v", first)
	}
	if first != second {
		t.Errorf("Close should return the same error, got %v then %v", first, second)
	}
	f.assertReleasedOnce(t)
}

func TestCharacterize_Sequence(t *testing.T) {
	f := newFakes()
	ch := &devicetest.Characterizer{Steps: 3}
	devs := f.set()
	devs.Characterizer = ch
	var out bytes.Buffer
	s, err := New(DefaultConfig(), devs, specifier("e\n", &out), operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background()); !errors.Is(err, operator.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if diff := cmp.Diff([]bool{true, false, false}, ch.Calls()); diff != "" {
		t.Errorf("characterizer calls mismatch (-want +got):\n%s", diff)
	}
	if n := len(f.act.Applied()); n != 3 {
		t.Errorf("expected 3 applied patterns, got %d", n)
	}
	if diff := cmp.Diff([]int{4, 4, 4}, f.sensor.Orders()); diff != "" {
		t.Errorf("fit orders mismatch (-want +got):\n%s", diff)
	}
}

func TestCharacterize_Disabled(t *testing.T) {
	f := newFakes()
	ch := &devicetest.Characterizer{Steps: 2}
	devs := f.set()
	devs.Characterizer = ch
	cfg := DefaultConfig()
	cfg.Characterize = false
	var out bytes.Buffer
	s, err := New(cfg, devs, specifier("e\n", &out), operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Run(context.Background())
	if len(ch.Calls()) != 0 {
		t.Errorf("characterizer called %d times while disabled", len(ch.Calls()))
	}
}

func TestCharacterize_BenchResponse(t *testing.T) {
	p := bench.DefaultParams()
	p.Response = 0.8
	p.Aberration = modal.VectorFrom(0, 0, 0, 0, 0.2, -0.1)
	b, err := bench.New(p)
	if err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	s, err := New(DefaultConfig(), b.Devices(), specifier("e\n", &out), operator.Fixed(operator.Continue))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Run(context.Background()); !errors.Is(err, operator.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if got := b.ResponseEstimate(); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("response estimate = %v, want 0.8", got)
	}
	if !b.Released() {
		t.Error("bench handles not released")
	}
}
