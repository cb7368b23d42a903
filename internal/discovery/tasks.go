package discovery

import (
	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/elect"
	"github.com/ployz-io/zen/internal/publish"
	"github.com/ployz-io/zen/internal/settings"
	"github.com/ployz-io/zen/internal/state"
)

// noopTaskHooks supplies the Task methods most tasks below don't need to
// customize, so each task only overrides what it actually uses.
type noopTaskHooks struct{}

func (noopTaskHooks) OnNoLongerMaster()                              {}
func (noopTaskHooks) ClusterStateProcessed(old, applied cluster.State) {}

// --- elected self ---

type electedSelfTask struct {
	noopTaskHooks
	controller *Controller
	thread     *joinThread
}

func (t *electedSelfTask) RequiresMaster() bool { return false }

func (t *electedSelfTask) Execute(current cluster.State) (cluster.State, error) {
	if current.Nodes.HasMaster() {
		return current, nil // someone else became master while we were deciding
	}
	newNodes := current.Nodes.WithMaster(t.controller.self.ID)
	newBlocks := current.Blocks.Without(cluster.NoMasterBlockID)
	return current.WithNodes(newNodes).WithBlocks(newBlocks), nil
}

func (t *electedSelfTask) OnFailure(err error) {
	t.controller.log.Error("elected-self task failed", "err", err)
}

func (t *electedSelfTask) ClusterStateProcessed(old, applied cluster.State) {
	c := t.controller
	c.joinMu.Lock()
	c.markJoinThreadDoneLocked(t.thread)
	if applied.Nodes.IsLocalMaster() {
		c.joinCounter++
		c.hasJoined = true
	} else {
		// a concurrent master was published while we were deciding; go
		// back to pinging instead of assuming mastership (§4.8).
		c.startJoinThreadLocked()
	}
	c.joinMu.Unlock()

	if applied.Nodes.IsLocalMaster() {
		c.afterMasterStateChange(applied)
	}
}

// --- elected another node: join RPC outcome ---

type finalizeJoinTask struct {
	noopTaskHooks
	controller *Controller
	thread     *joinThread
	master     cluster.Node
	joinErr    error
}

func (t *finalizeJoinTask) RequiresMaster() bool { return false }

func (t *finalizeJoinTask) Execute(current cluster.State) (cluster.State, error) {
	if t.joinErr != nil {
		return current, t.joinErr
	}
	if current.Nodes.HasMaster() && current.Nodes.MasterID() != t.master.ID {
		return current, cluster.ErrStaleState // master changed during the RPC
	}
	return current, nil
}

func (t *finalizeJoinTask) OnFailure(err error) {
	c := t.controller
	c.log.Warn("join attempt failed, returning to pinging", "master", t.master.ID, "err", err)
	c.joinMu.Lock()
	c.markJoinThreadDoneLocked(t.thread)
	c.startJoinThreadLocked()
	c.joinMu.Unlock()
}

func (t *finalizeJoinTask) ClusterStateProcessed(old, applied cluster.State) {
	c := t.controller
	c.joinMu.Lock()
	c.hasJoined = true
	c.markJoinThreadDoneLocked(t.thread)
	c.joinMu.Unlock()

	c.masterFD.Restart(c.bgCtx, t.master.ID, t.master.Address, func(masterID, reason string) {
		c.handleMasterGone(masterID, reason)
	})
}

// --- master side: accept a joining node ---

type addNodeTask struct {
	noopTaskHooks
	controller *Controller
	node       cluster.Node
	onDone     func(error)
}

func (t *addNodeTask) RequiresMaster() bool { return true }

func (t *addNodeTask) Execute(current cluster.State) (cluster.State, error) {
	newNodes := current.Nodes.WithNode(t.node)
	return current.WithNodes(newNodes).WithVersion(current.NextVersion()), nil
}

func (t *addNodeTask) OnNoLongerMaster() {
	if t.onDone != nil {
		t.onDone(cluster.ErrNotMasterForJoin)
	}
}

func (t *addNodeTask) OnFailure(err error) {
	if t.onDone != nil {
		t.onDone(err)
	}
}

func (t *addNodeTask) ClusterStateProcessed(old, applied cluster.State) {
	if t.onDone != nil {
		t.onDone(nil)
	}
	t.controller.afterMasterStateChange(applied)
}

// --- master side: a node was judged dead ---

type nodeFailureTask struct {
	noopTaskHooks
	controller *Controller
	nodeID     string
	reason     string
}

func (t *nodeFailureTask) RequiresMaster() bool { return true }

func (t *nodeFailureTask) Execute(current cluster.State) (cluster.State, error) {
	newNodes := current.Nodes.WithoutNode(t.nodeID)
	return current.WithNodes(newNodes).WithVersion(current.NextVersion()), nil
}

func (t *nodeFailureTask) OnFailure(err error) {
	t.controller.log.Error("node failure task error", "node", t.nodeID, "err", err)
}

func (t *nodeFailureTask) ClusterStateProcessed(old, applied cluster.State) {
	c := t.controller
	cfg := c.currentSettings()
	filters := cfg.MasterElection.ToFilters()
	if !elect.HasEnoughMasterNodes(applied.Nodes.Nodes(), filters, cfg.MinimumMasterNodes) {
		c.transitionToRejoin("quorum lost after node failure: " + t.reason)
		return
	}
	c.afterMasterStateChange(applied)
}

// --- rejoin (shared by master-gone, quorum-lost, split-brain surrender) ---

type rejoinTask struct {
	noopTaskHooks
	controller *Controller
	reason     string
}

func (t *rejoinTask) RequiresMaster() bool { return false }

func (t *rejoinTask) Execute(current cluster.State) (cluster.State, error) {
	return t.controller.rejoinState(current), nil
}

func (t *rejoinTask) OnFailure(err error) {
	t.controller.log.Error("rejoin task failed", "reason", t.reason, "err", err)
}

func (t *rejoinTask) ClusterStateProcessed(old, applied cluster.State) {
	t.controller.log.Info("rejoining", "reason", t.reason)
	t.controller.afterRejoin()
}

// --- follower side: believed master is gone ---

type masterGoneTask struct {
	noopTaskHooks
	controller *Controller
	masterID   string
	reason     string
}

func (t *masterGoneTask) RequiresMaster() bool { return false }

func (t *masterGoneTask) Execute(current cluster.State) (cluster.State, error) {
	c := t.controller
	if current.Nodes.MasterID() != t.masterID {
		return current, nil // already replaced
	}

	c.discardPendingStatesFrom(t.masterID)

	cfg := c.currentSettings()
	if !cfg.RejoinOnMasterGone {
		filters := cfg.MasterElection.ToFilters()
		remaining := current.Nodes.WithoutNode(t.masterID).Nodes()
		if !elect.HasEnoughMasterNodes(remaining, filters, cfg.MinimumMasterNodes) {
			c.log.Warn("electing from remaining nodes below minimum_master_nodes", "old_master", t.masterID, "minimum_master_nodes", cfg.MinimumMasterNodes)
		}
		if id, ok := elect.Elect(remaining, filters); ok {
			if id == c.self.ID {
				newNodes := current.Nodes.WithoutNode(t.masterID).WithMaster(c.self.ID)
				newBlocks := current.Blocks.Without(cluster.NoMasterBlockID)
				return current.WithNodes(newNodes).WithBlocks(newBlocks).WithVersion(current.NextVersion()), nil
			}
			newNodes := current.Nodes.WithoutNode(t.masterID).WithMaster(id)
			return current.WithNodes(newNodes), nil
		}
	}

	return t.controller.rejoinState(current.WithNodes(current.Nodes.WithoutNode(t.masterID))), nil
}

func (t *masterGoneTask) OnFailure(err error) {
	t.controller.log.Error("master-gone task failed", "master", t.masterID, "err", err)
}

func (t *masterGoneTask) ClusterStateProcessed(old, applied cluster.State) {
	c := t.controller

	if applied.Nodes.IsLocalMaster() {
		c.joinMu.Lock()
		c.stopJoinThreadLocked()
		c.joinMu.Unlock()
		c.afterMasterStateChange(applied)
		return
	}

	if applied.HasNoMasterBlock() {
		c.afterRejoin()
		return
	}

	if m, ok := applied.Nodes.Master(); ok {
		c.masterFD.Restart(c.bgCtx, m.ID, m.Address, func(masterID, reason string) {
			c.handleMasterGone(masterID, reason)
		})
	}
}

// --- follower side: drain pending_states and pick next state to apply ---

type drainPendingTask struct {
	noopTaskHooks
	controller *Controller
}

func (t *drainPendingTask) RequiresMaster() bool { return false }

func (t *drainPendingTask) OnFailure(err error) {
	t.controller.log.Error("drain-pending task failed", "err", err)
}

func (t *drainPendingTask) Execute(current cluster.State) (cluster.State, error) {
	c := t.controller

	c.pendingMu.Lock()
	entries := c.pendingStates
	c.pendingStates = nil
	c.pendingMu.Unlock()

	if len(entries) == 0 {
		return current, nil
	}

	head := entries[0]
	selected := head
	i := 1
	for ; i < len(entries); i++ {
		if entries[i].State.Nodes.MasterID() != head.State.Nodes.MasterID() {
			break
		}
		if entries[i].State.Version > selected.State.Version {
			selected.MarkProcessed() // previously-selected entry, now superseded
			selected = entries[i]
		} else {
			entries[i].MarkProcessed() // not newer; discarded
		}
	}
	// any entries after the first differing-master one are re-queued for
	// the next drain instead of being discarded.
	leftover := entries[i:]
	if len(leftover) > 0 {
		c.pendingMu.Lock()
		c.pendingStates = append(leftover, c.pendingStates...)
		c.pendingMu.Unlock()
	}

	incoming := selected.State

	if current.Nodes.IsLocalMaster() && incoming.Nodes.MasterID() != current.Nodes.MasterID() {
		// split-brain: another master published directly to us.
		if incoming.Version > current.Version {
			selected.MarkProcessed()
			return t.controller.rejoinState(current), nil
		}
		selected.MarkRejected(cluster.ErrStaleState)
		if m, ok := incoming.Nodes.Master(); ok {
			go c.sendRejoinRequest(m.Address)
		}
		return current, nil
	}

	if incoming.Nodes.MasterID() == current.Nodes.MasterID() && incoming.Version <= current.Version {
		selected.MarkProcessed()
		return current, nil // stale, same master
	}

	if current.Nodes.HasMaster() && incoming.Nodes.MasterID() != current.Nodes.MasterID() {
		selected.MarkRejected(cluster.ErrWrongClusterName)
		return current, nil
	}

	selected.MarkProcessed()
	return incoming.WithNodes(incoming.Nodes.WithLocalID(current.Nodes.LocalID())), nil
}

func (t *drainPendingTask) ClusterStateProcessed(old, applied cluster.State) {
	c := t.controller
	if old.HasNoMasterBlock() && !applied.HasNoMasterBlock() {
		c.joinMu.Lock()
		c.joinCounter++
		c.hasJoined = true
		c.joinMu.Unlock()
	}

	if master, ok := applied.Nodes.Master(); ok && applied.Nodes.MasterID() != old.Nodes.MasterID() {
		c.masterFD.Restart(c.bgCtx, master.ID, master.Address, func(masterID, reason string) {
			c.handleMasterGone(masterID, reason)
		})
	}
}

// --- startup ---

// bootstrapJoinTask starts the join thread from within the executor, so
// Controller.Start participates in the same serialization as every other
// join-thread transition (§9) instead of poking joinThread directly.
type bootstrapJoinTask struct {
	noopTaskHooks
	controller *Controller
}

func (t *bootstrapJoinTask) RequiresMaster() bool                          { return false }
func (t *bootstrapJoinTask) Execute(current cluster.State) (cluster.State, error) { return current, nil }
func (t *bootstrapJoinTask) OnFailure(err error)                           {}

func (t *bootstrapJoinTask) ClusterStateProcessed(old, applied cluster.State) {
	c := t.controller
	c.joinMu.Lock()
	c.startJoinThreadLocked()
	c.joinMu.Unlock()
}

// --- reload ---

type reloadTask struct {
	noopTaskHooks
	controller  *Controller
	newSettings settings.Settings
}

func (t *reloadTask) RequiresMaster() bool { return false }

// Execute applies the new settings before the state is touched, so any
// task queued after this one (e.g. a quorum check) already sees them.
func (t *reloadTask) Execute(current cluster.State) (cluster.State, error) {
	t.controller.settingsMu.Lock()
	t.controller.settings = t.newSettings
	t.controller.settingsMu.Unlock()
	return current, nil
}

func (t *reloadTask) OnFailure(err error) {
	t.controller.log.Error("reload task failed", "err", err)
}

func (t *reloadTask) ClusterStateProcessed(old, applied cluster.State) {
	c := t.controller
	if !applied.Nodes.IsLocalMaster() {
		return
	}
	cfg := c.currentSettings()
	filters := cfg.MasterElection.ToFilters()
	if !elect.HasEnoughMasterNodes(applied.Nodes.Nodes(), filters, cfg.MinimumMasterNodes) {
		c.transitionToRejoin("quorum lost after settings reload")
	}
}

// --- helpers on Controller ---

// afterMasterStateChange re-seeds NodesFD and asynchronously broadcasts
// applied to every follower, after the state is already visible. It must
// only be called from ClusterStateProcessed, never from Execute, since
// publishing blocks on network RPCs (§5: "long waits are forbidden inside
// the executor").
func (c *Controller) afterMasterStateChange(applied cluster.State) {
	if !applied.Nodes.IsLocalMaster() {
		return
	}
	c.nodesFD.Reseed(c.bgCtx, applied.Nodes.Nodes(), func(id, reason string) {
		c.handleNodeFailure(id, reason)
	})
	go c.publisher.Publish(c.bgCtx, applied, &loggingAckListener{controller: c, version: applied.Version})
}

// afterRejoin stops both detectors and starts a fresh join thread. Per
// §4.8, the rejoin action must only run from within the state executor;
// every caller here is a ClusterStateProcessed hook, which satisfies that.
func (c *Controller) afterRejoin() {
	c.masterFD.Stop()
	c.nodesFD.StopAll()
	c.joinMu.Lock()
	c.startJoinThreadLocked()
	c.joinMu.Unlock()
}

// rejoinState returns a copy of current with NO_MASTER_BLOCK set and no
// master — the pure half of the rejoin action (§4.8).
func (c *Controller) rejoinState(current cluster.State) cluster.State {
	newNodes := current.Nodes.WithMaster("")
	newBlocks := current.Blocks.With(cluster.NoMasterBlockID)
	return current.WithNodes(newNodes).WithBlocks(newBlocks)
}

// transitionToRejoin submits a rejoinTask; safe to call from any goroutine.
func (c *Controller) transitionToRejoin(reason string) {
	c.stateSvc.Submit(&rejoinTask{controller: c, reason: reason}, state.Immediate)
}

// handleNodeFailure is the master-side entry point fired by NodesFD.
func (c *Controller) handleNodeFailure(nodeID, reason string) {
	if c.metrics != nil {
		c.metrics.NodeFailuresTotal.Inc()
	}
	c.stateSvc.Submit(&nodeFailureTask{controller: c, nodeID: nodeID, reason: reason}, state.Immediate)
}

// handleMasterGone is the follower-side entry point fired by MasterFD (or
// by an explicit leave notice from the master).
func (c *Controller) handleMasterGone(masterID, reason string) {
	if c.metrics != nil {
		c.metrics.MasterFailuresTotal.Inc()
	}
	c.stateSvc.Submit(&masterGoneTask{controller: c, masterID: masterID, reason: reason}, state.Immediate)
}

func (c *Controller) discardPendingStatesFrom(masterID string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	kept := c.pendingStates[:0]
	for _, e := range c.pendingStates {
		if e.State.Nodes.MasterID() == masterID {
			e.MarkRejected(cluster.ErrStaleState)
			continue
		}
		kept = append(kept, e)
	}
	c.pendingStates = kept
}

// loggingAckListener logs publish outcomes and counts them in metrics (when
// attached); it keeps no other ack bookkeeping (§4.6).
type loggingAckListener struct {
	controller *Controller
	version    uint64
}

func (l *loggingAckListener) OnAck(nodeID string) {
	l.controller.log.Debug("publish acked", "node", nodeID, "version", l.version)
	if m := l.controller.metrics; m != nil {
		m.PublishAcksTotal.Inc()
	}
}

func (l *loggingAckListener) OnAckFailure(nodeID string, err error) {
	l.controller.log.Warn("publish rejected", "node", nodeID, "version", l.version, "err", err)
	if m := l.controller.metrics; m != nil {
		m.PublishRejectsTotal.Inc()
	}
}

func (l *loggingAckListener) OnTimeout() {
	l.controller.log.Warn("publish timed out for some follower", "version", l.version)
	if m := l.controller.metrics; m != nil {
		m.PublishTimeoutsTotal.Inc()
	}
}

var _ publish.AckListener = (*loggingAckListener)(nil)
