package telemetry

import (
	"log"
	"time"

	"github.com/onboardlink/sdk/pkg/link"
)

// commandSource is the slice of *onboardredis.Client's API Commander
// depends on: a blocking pop off a Redis list, the same primitive the
// teacher's WatchRedisCommands used to turn a command queue into nRF52
// writes.
type commandSource interface {
	BRPop(timeout time.Duration, key string) ([]string, error)
}

// CommandSpec names the (cmd set, cmd id) pair a queued command string
// maps to.
type CommandSpec struct {
	CmdSet uint8
	CmdID  uint8
}

// Commander watches a Redis list for command names and issues the
// corresponding onboard link Command, ack-once, for each one it
// recognises.
type Commander struct {
	redis    commandSource
	listKey  string
	core     *link.Core
	commands map[string]CommandSpec
	logger   *log.Logger
	stopCh   chan struct{}
}

// NewCommander returns a Commander that maps queued command names in
// commands to outbound sends on core.
func NewCommander(redisClient commandSource, listKey string, core *link.Core, commands map[string]CommandSpec, logger *log.Logger) *Commander {
	if logger == nil {
		logger = log.Default()
	}
	return &Commander{
		redis:    redisClient,
		listKey:  listKey,
		core:     core,
		commands: commands,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Watch blocks, popping command names off the Redis list until Stop is
// called. Run it in its own goroutine.
func (c *Commander) Watch() {
	c.logger.Printf("telemetry: watching command queue %s", c.listKey)
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		result, err := c.redis.BRPop(0, c.listKey)
		if err != nil {
			c.logger.Printf("telemetry: popping command queue %s: %v", c.listKey, err)
			time.Sleep(time.Second)
			continue
		}
		if len(result) != 2 {
			continue
		}

		name := result[1]
		spec, ok := c.commands[name]
		if !ok {
			c.logger.Printf("telemetry: unknown command %q on queue %s", name, c.listKey)
			continue
		}
		if err := c.core.Send(link.Command{Mode: link.ModeAckOnce, CmdSet: spec.CmdSet, CmdID: spec.CmdID}); err != nil {
			c.logger.Printf("telemetry: sending command %q: %v", name, err)
		}
	}
}

// Stop ends a running Watch loop. Safe to call once.
func (c *Commander) Stop() { close(c.stopCh) }
