package session_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/wfslock/internal/bench"
	"github.com/san-kum/wfslock/internal/modal"
	"github.com/san-kum/wfslock/internal/operator"
	"github.com/san-kum/wfslock/internal/session"
	"github.com/san-kum/wfslock/internal/stabilize"
	"github.com/san-kum/wfslock/internal/target"
)

var _ = Describe("Session on the bench", func() {
	var (
		b      *bench.Bench
		s      *session.Session
		script *target.Script
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		p := bench.DefaultParams()
		p.Aberration = modal.VectorFrom(0.1, 0, 0, 0, 0.3, -0.2, 0, 0.15)
		var err error
		b, err = bench.New(p)
		Expect(err).NotTo(HaveOccurred())

		shifted := modal.VectorFrom(0, 0, 0, 0, 0.05)
		script = target.NewScript(modal.Vector{}, shifted)
		s, err = session.New(session.DefaultConfig(), b.Devices(), script, operator.Fixed(operator.Continue))
		Expect(err).NotTo(HaveOccurred())

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
		go func() { done <- s.Run(ctx) }()
	})

	AfterEach(func() {
		cancel()
	})

	It("locks every scripted target and shuts down cleanly", func() {
		Eventually(func() int { return s.Stats().Convergences }).Should(BeNumerically(">=", 2))
		Expect(s.Stats().Targets).To(Equal(2))
		Expect(script.Remaining()).To(BeZero())

		mirror := b.MirrorModes()
		// the mirror cancels the aberration and adds the shifted target
		Expect(mirror[0]).To(BeNumerically("~", -0.25, 0.02))
		Expect(mirror[1]).To(BeNumerically("~", 0.2, 0.02))
		Expect(mirror[3]).To(BeNumerically("~", -0.15, 0.02))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
		Expect(b.Released()).To(BeTrue())
	})

	It("keeps the loop running after the last target", func() {
		Eventually(func() int { return s.Stats().Convergences }).Should(BeNumerically(">=", 2))
		n := s.Stats().Iterations
		Eventually(func() int { return s.Stats().Iterations }).Should(BeNumerically(">", n+10))
		Expect(s.Controller().Snapshot().State.Stable).To(BeTrue())
		Expect(s.Controller().Phase()).NotTo(Equal(stabilize.Terminated))

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})
