package shared_test

import (
	"testing"
	"time"

	. "github.com/onsi/gomega" //nolint:revive // Dot import is idiomatic for Gomega matchers

	"github.com/joe/depot-sync/internal/syncengine"
	"github.com/joe/depot-sync/internal/tui/shared"
)

func TestListenCmdDeliversOneEvent(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	emitter := syncengine.NewChannelEmitter(4)
	defer emitter.Close()

	emitter.Emit(syncengine.StatusUpdate{Header: syncengine.Header{Generation: 2}, Message: "first"})
	emitter.Emit(syncengine.StatusUpdate{Header: syncengine.Header{Generation: 2}, Message: "second"})

	cmd := shared.ListenCmd(emitter)

	msg, ok := cmd().(shared.EngineEventMsg)
	g.Expect(ok).To(BeTrue())
	g.Expect(msg.Event).To(Equal(syncengine.StatusUpdate{Header: syncengine.Header{Generation: 2}, Message: "first"}))

	msg, ok = cmd().(shared.EngineEventMsg)
	g.Expect(ok).To(BeTrue())
	g.Expect(msg.Event.(syncengine.StatusUpdate).Message).To(Equal("second"))
}

func TestListenCmdStopsOnClose(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	emitter := syncengine.NewChannelEmitter(1)
	result := make(chan any, 1)

	go func() { result <- shared.ListenCmd(emitter)() }()

	emitter.Close()
	g.Eventually(result).Should(Receive(Equal(shared.EmitterClosedMsg{})))
}

func TestEmitAfterCloseDoesNotBlock(t *testing.T) {
	t.Parallel()
	g := NewWithT(t)

	emitter := syncengine.NewChannelEmitter(0)
	emitter.Close()

	done := make(chan struct{})

	go func() {
		emitter.Emit(syncengine.DiscoveryComplete{})
		close(done)
	}()

	g.Eventually(done).WithTimeout(time.Second).Should(BeClosed())
}
