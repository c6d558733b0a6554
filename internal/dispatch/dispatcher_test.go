package dispatch_test

import (
	"context"
	"encoding/json"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/quietcore/runtime/internal/config"
	"github.com/quietcore/runtime/internal/crypto"
	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/envelope"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/store"
)

func TestDispatch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Projection Dispatcher Suite")
}

func newTestHarness(dir string) (store.Store, *dispatch.Dispatcher) {
	ctx := context.Background()

	s, err := store.NewSQLite(ctx, ":memory:")
	Expect(err).NotTo(HaveOccurred())

	r := registry.New()
	r.Register("message", registry.Impl{
		Projector: func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error {
			return s.UpdateNested(ctx, tx, "state", func(current json.RawMessage) (any, error) {
				return map[string]any{"lastMessage": env.Data["text"]}, nil
			})
		},
	})
	r.Register("unknown", registry.Impl{
		Projector: func(ctx context.Context, s store.Store, tx store.Tx, env envelope.Envelope, nowMs int64) error {
			return nil
		},
	})
	Expect(r.Discover(dir)).To(Succeed())

	p := crypto.New(config.CryptoModeDummy)
	d := dispatch.New(s, r, p, obslog.New(true))
	return s, d
}

var _ = Describe("Projection Dispatcher", func() {
	var (
		ctx context.Context
		s   store.Store
		d   *dispatch.Dispatcher
	)

	BeforeEach(func() {
		ctx = context.Background()
		s, d = newTestHarness("testdata/handlers")
	})

	AfterEach(func() {
		Expect(s.Close(ctx)).To(Succeed())
	})

	Describe("dispatching a routable envelope", func() {
		It("applies the projector and appends one event", func() {
			env := envelope.Envelope{Data: map[string]any{"type": "message", "text": "hi"}}
			Expect(d.Dispatch(ctx, nil, env, 1000, true)).To(Succeed())

			raw, ok, err := s.Get(ctx, nil, "state")
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(raw).To(MatchJSON(`{"lastMessage":"hi"}`))

			events, err := store.NewEventLog(s).List(ctx, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
		})

		It("is idempotent for a repeated event id", func() {
			env := envelope.Envelope{
				Data:     map[string]any{"type": "message", "text": "hi"},
				Metadata: envelope.Metadata{EventID: "fixed-id"},
			}
			Expect(d.Dispatch(ctx, nil, env, 1000, true)).To(Succeed())
			Expect(d.Dispatch(ctx, nil, env, 2000, true)).To(Succeed())

			events, err := store.NewEventLog(s).List(ctx, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1), "re-dispatching the same event id must not duplicate the append")
		})
	})

	Describe("dispatching an envelope with no data.type", func() {
		It("routes to the unknown handler", func() {
			env := envelope.Envelope{Data: map[string]any{"payload": "x"}}
			Expect(d.Dispatch(ctx, nil, env, 1000, true)).To(Succeed())

			events, err := store.NewEventLog(s).List(ctx, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].EventType).To(Equal(envelope.TypeUnknown))
		})
	})

	Describe("dispatching a batch", func() {
		It("isolates a failing envelope from the rest of the batch", func() {
			envs := []envelope.Envelope{
				{Data: map[string]any{"type": "message", "text": "ok"}},
				// A channel cannot be JSON-encoded, so deriving this
				// envelope's event ID fails and its transaction rolls back.
				{Data: map[string]any{"type": "message", "text": "bad", "payload": make(chan int)}},
				{Data: map[string]any{"type": "message", "text": "also ok"}},
			}
			result := d.HandleBatch(ctx, envs, 1000)
			Expect(result.Total).To(Equal(3))
			Expect(result.Failed).To(Equal(1))

			events, err := store.NewEventLog(s).List(ctx, nil, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2), "the envelope after the failing one must still be applied")
		})
	})
})

var _ = Describe("Projection Dispatcher with no handlers registered", func() {
	It("drops an envelope with no matching handler rather than erroring", func() {
		ctx := context.Background()
		s, err := store.NewSQLite(ctx, ":memory:")
		Expect(err).NotTo(HaveOccurred())
		defer s.Close(ctx)

		r := registry.New()
		// testdata itself holds only the handlers/ directory and no
		// manifest.yaml, so Discover finds no handlers there.
		Expect(r.Discover("testdata")).To(Succeed())
		p := crypto.New(config.CryptoModeDummy)
		d := dispatch.New(s, r, p, obslog.New(true))

		env := envelope.Envelope{Data: map[string]any{"type": "nope"}}
		Expect(d.Dispatch(ctx, nil, env, 1000, true)).To(Succeed())

		events, err := store.NewEventLog(s).List(ctx, nil, 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(BeEmpty())
	})
})
