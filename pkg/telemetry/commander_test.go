package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/onboardlink/sdk/pkg/link"
)

type fakeCommandSource struct {
	mu      sync.Mutex
	queue   []string
	listKey string
}

func (f *fakeCommandSource) push(cmd string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, cmd)
}

func (f *fakeCommandSource) BRPop(timeout time.Duration, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	cmd := f.queue[0]
	f.queue = f.queue[1:]
	return []string{key, cmd}, nil
}

func TestCommanderSendsKnownCommand(t *testing.T) {
	clock := uint32(0)
	pipeA, pipeB := newFakePipePair(&clock)
	core := link.New(pipeA, link.WithMetricsRegisterer(prometheus.NewRegistry()))

	src := &fakeCommandSource{}
	src.push("advertising-start")

	c := NewCommander(src, "commands", core, map[string]CommandSpec{
		"advertising-start": {CmdSet: 0x05, CmdID: 0x01},
	}, nil)

	go c.Watch()
	defer c.Stop()

	require.Eventually(t, func() bool {
		return len(pipeB.inbox) > 0
	}, time.Second, time.Millisecond)
}

func TestCommanderIgnoresUnknownCommand(t *testing.T) {
	clock := uint32(0)
	pipeA, _ := newFakePipePair(&clock)
	core := link.New(pipeA, link.WithMetricsRegisterer(prometheus.NewRegistry()))

	src := &fakeCommandSource{}
	src.push("not-a-real-command")

	c := NewCommander(src, "commands", core, map[string]CommandSpec{
		"advertising-start": {CmdSet: 0x05, CmdID: 0x01},
	}, nil)

	go c.Watch()
	defer c.Stop()

	require.Never(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.queue) > 0 && src.queue[0] == "not-a-real-command"
	}, 50*time.Millisecond, 5*time.Millisecond)
}
