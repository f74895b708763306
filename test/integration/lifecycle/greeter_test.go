// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package lifecycle_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/plugman/internal/command"
	"github.com/holomush/plugman/internal/console"
	"github.com/holomush/plugman/internal/host"
	"github.com/holomush/plugman/internal/journal"
	"github.com/holomush/plugman/internal/plugin"
	"github.com/holomush/plugman/internal/plugin/capability"
	"github.com/holomush/plugman/internal/plugin/hostfunc"
	"github.com/holomush/plugman/internal/plugin/lifecycle"
	"github.com/holomush/plugman/internal/plugin/lookup"
	"github.com/holomush/plugman/internal/plugin/lua"
	"github.com/holomush/plugman/internal/plugin/plugintest"
	"github.com/holomush/plugman/internal/plugin/reclaim"
	"github.com/holomush/plugman/internal/plugin/registry"
)

// recordingEmitter publishes to the bus and remembers what modules emitted.
type recordingEmitter struct {
	bus  *host.Bus
	mu   sync.Mutex
	seen []plugin.Event
}

func (r *recordingEmitter) Publish(e plugin.Event) bool {
	r.mu.Lock()
	r.seen = append(r.seen, e)
	r.mu.Unlock()
	return r.bus.Publish(e)
}

func (r *recordingEmitter) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.seen))
	for _, e := range r.seen {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type env struct {
	ctx        context.Context
	cancel     context.CancelFunc
	registry   *registry.Registry
	bus        *host.Bus
	emitter    *recordingEmitter
	manager    *lifecycle.Manager
	journal    journal.Journal
	reclaimer  *reclaim.Reclaimer
	dispatcher *command.Dispatcher
	operator   console.Operator
}

// packBundled zips plugins/<name> from the repository into dir.
func packBundled(dir, name string) {
	src := filepath.Join("..", "..", "..", "plugins", name)
	entries, err := os.ReadDir(src)
	Expect(err).NotTo(HaveOccurred())
	files := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(src, e.Name()))
		Expect(err).NotTo(HaveOccurred())
		files[e.Name()] = string(data)
	}
	plugintest.WriteArchive(GinkgoT(), dir, name+plugin.DefaultArchiveExt, files)
}

func newEnv(pluginsDir string) *env {
	ctx, cancel := context.WithCancel(context.Background())
	jrnl, err := journal.Open(ctx, journal.DriverMemory, "")
	Expect(err).NotTo(HaveOccurred())

	reg := registry.New(command.NewTable())
	modules := capability.NewEnforcer()
	bus := host.NewBus(reg, host.DefaultQueueSize)
	emitter := &recordingEmitter{bus: bus}
	h := host.New(reg, modules, bus,
		host.WithRuntime(lua.NewRuntime(hostfunc.New(emitter, modules))))
	reclaimer := reclaim.New()
	mgr := lifecycle.New(reg, h, reclaimer, plugin.NewDirectory(pluginsDir, plugin.DefaultArchiveExt),
		lifecycle.WithRecorder(jrnl))

	pm := console.NewPlugman(mgr, lookup.New(reg))
	reg.Table().Register(pm.Entry())
	dispatcher, err := command.NewDispatcher(reg.Table())
	Expect(err).NotTo(HaveOccurred())

	operators := capability.NewEnforcer()
	Expect(operators.SetGrants("console", []string{"plugman.*", "greeter.*"})).To(Succeed())

	bus.Start(ctx)
	return &env{
		ctx:        ctx,
		cancel:     cancel,
		registry:   reg,
		bus:        bus,
		emitter:    emitter,
		manager:    mgr,
		journal:    jrnl,
		reclaimer:  reclaimer,
		dispatcher: dispatcher,
		operator:   console.NewOperator("console", operators),
	}
}

// say runs one console line and returns what the operator would see.
func (e *env) say(line string) string {
	reply, err := e.dispatcher.Dispatch(e.ctx, e.operator, line)
	if err != nil {
		return command.SenderMessage(err)
	}
	return reply
}

func (e *env) close() {
	e.manager.UnloadAll(context.Background())
	e.bus.Stop()
	e.reclaimer.Wait()
	e.cancel()
	Expect(e.journal.Close()).To(Succeed())
}

var _ = Describe("greeter lifecycle", func() {
	var e *env

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		packBundled(dir, "greeter")
		e = newEnv(dir)
		results := e.manager.LoadAll(e.ctx)
		Expect(results).To(HaveLen(1))
		Expect(results[0].OK()).To(BeTrue(), results[0].Reason)
	})

	AfterEach(func() {
		e.close()
	})

	It("answers commands and aliases", func() {
		Expect(e.say("greet Ann")).To(Equal("Hello, Ann!"))
		Expect(e.say("hi Bo")).To(Equal("Hello, Bo!"))
		Expect(e.say("greet")).To(Equal("Usage: /greet <who>"))
		Expect(e.say("gcount")).To(Equal("2 greetings so far"))
	})

	It("counts join events and emits a welcome", func() {
		Expect(e.bus.Publish(plugin.NewEvent("player.join", plugin.SourceHost, `{"player":"Ann"}`))).To(BeTrue())

		Eventually(func() string { return e.say("greetings") }).
			WithTimeout(2 * time.Second).
			Should(Equal("1 greetings so far"))
		Eventually(e.emitter.kinds).Should(ContainElement("greeter.welcomed"))
	})

	It("lists and describes the module", func() {
		Expect(e.say("plugman list")).To(Equal("Plugins (1): greeter"))
		Expect(e.say("plugman info greeter")).To(ContainSubstring("greeter v1.2.0"))
		Expect(e.say("plugman lookup greet")).To(Equal("greet is declared by: greeter"))
	})

	It("stops answering while disabled", func() {
		Expect(e.say("plugman disable greeter")).To(Equal("greeter has been disabled."))
		Expect(e.say("greet Ann")).To(Equal("greeter is disabled."))

		Expect(e.say("plugman enable greeter")).To(Equal("greeter has been enabled."))
		Expect(e.say("greet Ann")).To(Equal("Hello, Ann!"))
	})

	It("starts over after a reload", func() {
		Expect(e.say("greet Ann")).To(Equal("Hello, Ann!"))
		Expect(e.say("greetings")).To(Equal("1 greetings so far"))

		Expect(e.say("plugman reload greeter")).To(Equal("greeter has been reloaded."))
		Expect(e.say("greetings")).To(Equal("0 greetings so far"))
	})

	It("forgets commands on unload and restores them on load", func() {
		Expect(e.say("plugman unload greeter")).To(Equal("greeter has been unloaded."))
		Expect(e.say("greet Ann")).To(Equal(`Unknown command. Type "help" for help.`))
		Expect(e.registry.Modules()).To(BeEmpty())
		e.reclaimer.Wait()

		Expect(e.say("plugman load greeter")).To(Equal("greeter v1.2.0 has been loaded and enabled."))
		Expect(e.say("greet Ann")).To(Equal("Hello, Ann!"))
	})

	It("journals every transition newest first", func() {
		e.say("plugman disable greeter")
		e.say("plugman enable greeter")

		entries, err := e.journal.History(e.ctx, journal.Query{Module: "greeter"})
		Expect(err).NotTo(HaveOccurred())
		ops := make([]string, 0, len(entries))
		for _, entry := range entries {
			ops = append(ops, entry.Op)
			Expect(entry.Outcome).To(Equal(string(lifecycle.OutcomeDone)))
		}
		// Load enables inside its own transition, so that enable lands first.
		Expect(ops).To(HaveExactElements("enable", "disable", "load", "enable"))
	})
})
