package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/elect"
	"github.com/ployz-io/zen/internal/state"
)

// joinThread is the single background worker that repeatedly calls
// findMaster and acts on the result (§4.8). Its lifecycle is manipulated
// only from within the state executor, via the task types in tasks.go
// (bootstrapJoinTask, electedSelfTask, finalizeJoinTask, ...), guaranteeing
// serialization with state changes.
type joinThread struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// startJoinThreadLocked starts a new join thread if none is running.
// Callers must hold c.joinMu and must only call this from a state task.
func (c *Controller) startJoinThreadLocked() {
	if c.joinThread != nil {
		return
	}
	ctx, cancel := context.WithCancel(c.bgCtx)
	jt := &joinThread{cancel: cancel, done: make(chan struct{})}
	c.joinThread = jt
	go c.runJoinThread(ctx, jt)
}

// stopJoinThreadLocked halts the join thread, if running. Callers must
// hold c.joinMu and must only call this from a state task.
func (c *Controller) stopJoinThreadLocked() {
	if c.joinThread == nil {
		return
	}
	c.joinThread.cancel()
	c.joinThread = nil
}

// markJoinThreadDoneLocked clears the running thread's slot, marking it
// done without cancelling — used once the candidate has successfully
// joined or elected itself and no longer needs to keep pinging.
func (c *Controller) markJoinThreadDoneLocked(jt *joinThread) {
	if c.joinThread == jt {
		c.joinThread = nil
	}
}

func (c *Controller) runJoinThread(ctx context.Context, jt *joinThread) {
	defer close(jt.done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := c.findMaster(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			c.log.Debug("findMaster round failed", "err", err)
		}

		switch {
		case result.none:
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.currentSettings().PingTimeout / 4):
			}
			continue

		case result.electedSelf:
			c.stateSvc.Submit(&electedSelfTask{controller: c, thread: jt}, state.Immediate)
			return

		default: // elected another node
			c.pursueJoin(ctx, jt, result.masterNode)
			return
		}
	}
}

// pursueJoin connects to the elected master and attempts to join with
// retry, then submits a finalize task regardless of outcome (§4.8
// "elected other").
func (c *Controller) pursueJoin(ctx context.Context, jt *joinThread, master cluster.Node) {
	if c.metrics != nil {
		c.metrics.JoinAttemptsTotal.Inc()
	}
	err := c.membership.Join(ctx, master.Address, c.self)
	c.stateSvc.Submit(&finalizeJoinTask{controller: c, thread: jt, master: master, joinErr: err}, state.Immediate)
}

type findMasterResult struct {
	none        bool
	electedSelf bool
	masterNode  cluster.Node
}

// findMaster implements §4.8's algorithm: one ping round, partition into
// pingMasters/activeNodes, elect among whichever is usable.
func (c *Controller) findMaster(ctx context.Context) (findMasterResult, error) {
	cfg := c.currentSettings()
	filters := cfg.MasterElection.ToFilters()

	if c.metrics != nil {
		c.metrics.PingRoundsTotal.Inc()
	}
	responses, pingErr := c.ping.PingAndWait(ctx, cfg.PingTimeout)

	var pingMasters []cluster.Node
	seen := map[string]cluster.Node{c.self.ID: c.self}
	var freshlyJoined []cluster.Node

	for _, r := range responses {
		seen[r.Responder.ID] = r.Responder
		if r.Master != nil && r.Master.ID != c.self.ID {
			pingMasters = append(pingMasters, *r.Master)
		}
		if r.HasJoinedOnce {
			freshlyJoined = append(freshlyJoined, r.Responder)
		}
	}

	if len(pingMasters) > 0 {
		id, ok := elect.Elect(pingMasters, filters)
		if ok {
			if c.metrics != nil {
				c.metrics.ElectionsTotal.Inc()
			}
			return findMasterResult{masterNode: seen[id], electedSelf: id == c.self.ID}, pingErr
		}
	}

	activeNodes := make([]cluster.Node, 0, len(seen))
	for _, n := range seen {
		activeNodes = append(activeNodes, n)
	}

	if elect.HasEnoughMasterNodes(activeNodes, filters, cfg.MinimumMasterNodes) {
		candidate := activeNodes
		if len(freshlyJoined) > 0 {
			candidate = append([]cluster.Node{c.self}, freshlyJoined...)
			if !elect.HasEnoughMasterNodes(candidate, filters, cfg.MinimumMasterNodes) {
				candidate = activeNodes
			}
		}
		id, ok := elect.Elect(candidate, filters)
		if ok {
			if c.metrics != nil {
				c.metrics.ElectionsTotal.Inc()
			}
			return findMasterResult{masterNode: seen[id], electedSelf: id == c.self.ID}, pingErr
		}
	}

	return findMasterResult{none: true}, pingErr
}
