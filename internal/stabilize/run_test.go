package stabilize_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/wfslock/internal/device/devicetest"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/stabilize"
)

var _ = Describe("Controller.Run", func() {
	var (
		sensor *devicetest.Sensor
		ctrl   *stabilize.Controller
		cancel context.CancelFunc
		done   chan error
	)

	start := func(esc stabilize.Escalator, measured ...modal.Vector) {
		sensor = devicetest.NewSensor(measured...)
		sensor.Delay = time.Millisecond
		var err error
		ctrl, err = stabilize.New(
			devicetest.Set(sensor, devicetest.NewActuator(), devicetest.NewSolver()),
			esc, stabilize.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- ctrl.Run(ctx) }()
	}

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive())
	})

	It("idles until the first target arrives", func() {
		start(operator.Fixed(operator.Continue))
		Consistently(ctrl.Phase, 20*time.Millisecond).Should(Equal(stabilize.Idle))
		Expect(sensor.Captures()).To(BeZero())

		ctrl.SetTarget(modal.Vector{})
		Eventually(sensor.Captures).Should(BeNumerically(">", 0))
	})

	It("signals convergence for the current generation only", func() {
		start(operator.Fixed(operator.Continue), modal.Vector{})
		gen := ctrl.SetTarget(modal.Vector{})

		var a stabilize.Achievement
		Eventually(ctrl.Achieved()).Should(Receive(&a))
		Expect(a.Generation).To(Equal(gen))
		Expect(a.Iteration).To(Equal(1))

		ctrl.ClearAchieved()
		var small modal.Vector
		small[5] = 0.005
		next := ctrl.SetTarget(small)
		Eventually(ctrl.Achieved()).Should(Receive(&a))
		Expect(a.Generation).To(Equal(next))
		Consistently(ctrl.Achieved(), 20*time.Millisecond).ShouldNot(Receive())
	})

	It("stops with the operator's abort", func() {
		var far modal.Vector
		far[8] = 1
		start(operator.Fixed(operator.Abort), far)
		ctrl.SetTarget(modal.Vector{})

		var err error
		Eventually(done).Should(Receive(&err))
		Expect(err).To(MatchError(operator.ErrAborted))
		Expect(ctrl.Stats().Iterations).To(Equal(11))
		Expect(ctrl.Phase()).To(Equal(stabilize.Terminated))
		done <- err
	})

	It("returns promptly once cancelled", func() {
		start(operator.Fixed(operator.Continue), modal.Vector{})
		ctrl.SetTarget(modal.Vector{})
		Eventually(func() int { return ctrl.Stats().Iterations }).Should(BeNumerically(">=", 3))

		cancel()
		var err error
		Eventually(done).Should(Receive(&err))
		Expect(err).To(MatchError(context.Canceled))
		done <- err
	})
})
