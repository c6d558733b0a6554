// Command runtimed is the runtime's process entrypoint: it wires the
// Persistent Store, crypto primitives, Handler Registry, Projection
// Dispatcher, Command Executor, Incoming Decryptor, and Tick Scheduler
// together and drives them on a fixed interval until signaled to stop.
// Grounded on go-crablet's internal/web-app/main.go and
// internal/grpc-app/server/main.go: read configuration from the
// environment once at startup, build every collaborator through an
// explicit constructor, and block on a signal channel for graceful
// shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/quietcore/runtime/internal/command"
	"github.com/quietcore/runtime/internal/config"
	"github.com/quietcore/runtime/internal/crypto"
	"github.com/quietcore/runtime/internal/decrypt"
	"github.com/quietcore/runtime/internal/dispatch"
	"github.com/quietcore/runtime/internal/obslog"
	"github.com/quietcore/runtime/internal/recheck"
	"github.com/quietcore/runtime/internal/registry"
	"github.com/quietcore/runtime/internal/runtimeerr"
	"github.com/quietcore/runtime/internal/schedule"
	"github.com/quietcore/runtime/internal/store"
)

// tickInterval is how often the daemon advances time (§4.6); the spec
// leaves the interval implementation-defined.
const tickInterval = time.Second

func main() {
	if _, err := maxprocs.Set(); err != nil {
		// A container without a CPU quota is the common case; proceed
		// with the Go runtime's own default rather than failing startup.
		_ = err
	}

	cfg := config.FromEnv()
	log := obslog.New(cfg.TestMode)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := store.Open(ctx, cfg)
	if err != nil {
		log.TaxonomyEntry("runtimed.main", runtimeerr.KindOf(err), err)
		os.Exit(1)
	}
	defer func() { _ = s.Close(context.Background()) }()

	r := registry.New()
	registerHandlers(r)
	if err := r.Discover(cfg.HandlerPath); err != nil {
		log.TaxonomyEntry("runtimed.main", runtimeerr.KindOf(err), err)
		os.Exit(1)
	}

	p := crypto.New(cfg.CryptoMode)
	d := dispatch.New(s, r, p, log)
	exec := command.New(s, r, d)
	dec := decrypt.New(s, p, cfg.CryptoMode, d, log)
	sched := schedule.New(r, exec, log)
	drainer := recheck.New(s, d, log)

	log.Info("runtimed: started", nil)
	runLoop(ctx, log, dec, sched, drainer, cfg)
	log.Info("runtimed: stopped", nil)
}

// runLoop advances one tick every tickInterval until ctx is canceled:
// drain incoming traffic, run handler jobs, then replay anything the
// recheck queue has marked as potentially unblocked (§4.1 data flow:
// "Tick scheduler drives both the decryptor job and recheck drainer").
func runLoop(ctx context.Context, log *obslog.Logger, dec *decrypt.Decryptor, sched *schedule.Scheduler, drainer *recheck.Drainer, cfg config.RuntimeConfig) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			nowMs := now.UnixMilli()

			if result, err := dec.Drain(ctx, nowMs, cfg.RecheckBatchSize); err != nil {
				log.TaxonomyEntry("runtimed.tick", runtimeerr.KindOf(err), err)
			} else {
				log.Debug("runtimed: drained incoming", logrus.Fields{
					"processed": result.Processed, "forwarded": result.Forwarded, "dropped": result.Dropped,
				})
			}

			sched.Tick(ctx, nowMs)

			if result, err := drainer.Drain(ctx, nowMs, cfg.RecheckBatchSize, cfg.LeaseTTLMillis); err != nil {
				log.TaxonomyEntry("runtimed.tick", runtimeerr.KindOf(err), err)
			} else if result.LeaseHeld {
				log.Debug("runtimed: recheck drained", logrus.Fields{
					"markers": result.MarkersDrained, "replayed": result.EventsReplayed,
				})
			}
		}
	}
}

// registerHandlers binds every compiled-in handler implementation to its
// manifest name before Discover runs (§4.3, Design Notes §9: "dynamic
// imports... become a compile-time Register-then-Discover API"). The
// runtime ships with no built-in protocol handlers of its own — handler
// packages are expected to call registry.Register from their own init,
// then import this package's registerHandlers hook. Left empty here
// since §1's Non-goals exclude shipping concrete protocol handlers
// (message/identity/peer/etc.) with the runtime itself.
func registerHandlers(r *registry.Registry) {}
