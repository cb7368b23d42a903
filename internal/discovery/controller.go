// Package discovery implements the controller that orchestrates the join
// thread, master-gone handling, pending-state draining, and rejoin
// described in §4.8. It wires together ping, elect, fd, membership,
// publish, and the state executor behind the narrow interfaces each of
// those packages expects, so none of them holds a back-pointer to this
// controller (§9).
package discovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ployz-io/zen/internal/cluster"
	"github.com/ployz-io/zen/internal/fd"
	"github.com/ployz-io/zen/internal/membership"
	"github.com/ployz-io/zen/internal/metrics"
	"github.com/ployz-io/zen/internal/ping"
	"github.com/ployz-io/zen/internal/publish"
	"github.com/ployz-io/zen/internal/settings"
	"github.com/ployz-io/zen/internal/state"
	"github.com/ployz-io/zen/internal/transport"
)

// ActionRejoin carries a request asking the recipient to surrender
// mastership (§4.8 split-brain resolution, §6 discovery.rejoin).
const ActionRejoin = "discovery.rejoin"

// Controller drives one node's membership in the cluster.
type Controller struct {
	transport transport.Transport
	log       *slog.Logger

	ping        *ping.Service
	membership  *membership.Client
	publisher   *publish.Publisher
	masterFD    *fd.MasterFaultDetection
	nodesFD     *fd.NodesFaultDetection
	fdReceiver  *fd.Receiver
	stateSvc    *state.Service

	self        cluster.Node
	clusterName string

	metrics *metrics.Set

	settingsMu sync.RWMutex
	settings   settings.Settings

	joinMu      sync.Mutex
	joinThread  *joinThread
	hasJoined   bool
	joinCounter int

	pendingMu     sync.Mutex
	pendingStates []*cluster.PendingState

	bgCtx context.Context
}

// Option configures a Controller at construction time.
type Option func(*Controller)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithMetrics attaches a metrics.Set; omitted, the controller runs with
// metrics disabled (every call site nil-checks before recording).
func WithMetrics(m *metrics.Set) Option {
	return func(c *Controller) { c.metrics = m }
}

// New builds a Controller for self in clusterName, wiring every
// collaborator over t. Callers must call Start to begin the join thread.
func New(ctx context.Context, t transport.Transport, self cluster.Node, clusterName string, cfg settings.Settings, opts ...Option) *Controller {
	log := slog.Default()
	c := &Controller{
		transport:   t,
		log:         log.With("component", "discovery"),
		self:        self,
		clusterName: clusterName,
		settings:    cfg,
		bgCtx:       ctx,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("node", self.ID)

	initial := cluster.Fresh(clusterName, self)
	c.stateSvc = state.New(ctx, initial, c.log)
	c.stateSvc.OnApplied(func(applied cluster.State) {
		if c.metrics == nil {
			return
		}
		if applied.HasNoMasterBlock() {
			c.metrics.NoMasterBlock.Set(1)
		} else {
			c.metrics.NoMasterBlock.Set(0)
		}
	})

	c.ping = ping.New(t, c, ping.Config{
		Seeds:              cfg.Unicast.Hosts,
		ConcurrentConnects: cfg.Unicast.ConcurrentConnects,
	}, c.log)
	c.ping.RegisterHandlers(t)

	c.membership = membership.NewClient(t, membership.Config{
		JoinTimeout:       cfg.JoinTimeout,
		JoinRetryAttempts: cfg.JoinRetryAttempts,
		JoinRetryDelay:    cfg.JoinRetryDelay,
	}, c.log)
	c.membership.OnRetry(func(attempt int) {
		if c.metrics != nil {
			c.metrics.JoinRetriesTotal.Inc()
		}
	})
	membership.NewServer(c).RegisterHandlers(t)

	c.publisher = publish.New(t, publish.Config{}, c.log)
	publish.NewReceiver(self.ID, c.onPublishedState).RegisterHandler(t)

	c.masterFD = fd.NewMasterFD(t, self.ID, fd.Config{}, c.log)
	c.nodesFD = fd.NewNodesFD(t, self.ID, func() uint64 { return c.Current().Version }, fd.Config{}, c.log)
	c.fdReceiver = fd.NewReceiver(c, cfg.MaxPingsFromAnotherMaster, c.onAnotherMaster)
	c.fdReceiver.RegisterHandler(t)

	t.RegisterHandler(ActionRejoin, c.handleRejoinRequest)

	return c
}

// Start begins the background join thread. It submits an IMMEDIATE task
// rather than starting the thread inline, so the join thread's lifecycle
// is always manipulated from within the state executor (§9).
func (c *Controller) Start() {
	c.stateSvc.Submit(&bootstrapJoinTask{controller: c}, state.Immediate)
}

// Current returns the current cluster state snapshot.
func (c *Controller) Current() cluster.State {
	return c.stateSvc.Current()
}

// Shutdown notifies the believed master that this node is leaving, if
// send_leave_request is enabled and a master is known (§5: "Node shutdown:
// ... (best-effort) send a leave to master"). It never blocks beyond ctx
// and never returns an error the caller must act on; a failed leave just
// means the master eventually learns about this node via fault detection
// instead.
func (c *Controller) Shutdown(ctx context.Context) {
	if !c.currentSettings().SendLeaveRequest {
		return
	}
	master, ok := c.Current().Nodes.Master()
	if !ok || master.ID == c.self.ID {
		return
	}
	if err := c.membership.Leave(ctx, master.Address, c.self); err != nil {
		c.log.Debug("leave notice failed", "master", master.ID, "err", err)
	}
}

func (c *Controller) currentSettings() settings.Settings {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.settings
}

// Reload applies new settings as an IMMEDIATE state task, so changes to
// minimum_master_nodes serialize against elections (§4.8 "dynamic settings
// + dynamic callback").
func (c *Controller) Reload(newSettings settings.Settings) {
	c.stateSvc.Submit(&reloadTask{controller: c, newSettings: newSettings}, state.Immediate)
}

// --- ping.ContextProvider ---

func (c *Controller) Self() cluster.Node { return c.self }

func (c *Controller) MasterEligibleNodes() []cluster.Node {
	return c.Current().Nodes.MasterEligible()
}

func (c *Controller) Master() (cluster.Node, bool) {
	return c.Current().Nodes.Master()
}

func (c *Controller) ClusterName() string { return c.clusterName }

func (c *Controller) HasJoinedOnce() bool {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()
	return c.hasJoined
}

// --- fd.LocalView ---

func (c *Controller) IsLocalMaster() bool { return c.Current().Nodes.IsLocalMaster() }

func (c *Controller) FollowerOf() string { return c.Current().Nodes.MasterID() }

// --- membership.MasterCallbacks ---

func (c *Controller) HandleJoin(ctx context.Context, n cluster.Node) error {
	if !c.IsLocalMaster() {
		return cluster.ErrNotMasterForJoin
	}
	if err := c.membership.ValidateJoin(ctx, n.Address, c.clusterName); err != nil {
		return err
	}

	result := make(chan error, 1)
	c.stateSvc.Submit(&addNodeTask{node: n, onDone: func(err error) { result <- err }}, state.High)

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) HandleValidateJoin(ctx context.Context, clusterName string) error {
	if clusterName != c.clusterName {
		return cluster.ErrWrongClusterName
	}
	return nil
}

func (c *Controller) HandleLeave(ctx context.Context, n cluster.Node) {
	current := c.Current()
	if current.Nodes.MasterID() == n.ID {
		// our master is leaving; treat exactly as master-gone (§4.8).
		c.handleMasterGone(n.ID, "master sent leave")
		return
	}
	if c.IsLocalMaster() {
		c.handleNodeFailure(n.ID, "node sent leave")
	}
}

// --- split-brain / rejoin wiring ---

// onAnotherMaster implements §4.8's split-brain resolution once the
// pings-from-another-master threshold is crossed: the lower-versioned
// master surrenders. If the peer outranks us we rejoin; otherwise we ask
// it to rejoin us and remain master ourselves.
func (c *Controller) onAnotherMaster(peerID, peerAddr string, peerVersion uint64) {
	current := c.Current()
	if peerVersion > current.Version {
		c.log.Warn("surrendering mastership to higher-versioned peer", "peer", peerID, "peer_version", peerVersion, "local_version", current.Version)
		c.transitionToRejoin("surrendered to higher-versioned master " + peerID)
		return
	}
	c.log.Warn("asking lower-versioned conflicting master to rejoin", "peer", peerID, "peer_version", peerVersion, "local_version", current.Version)
	go c.sendRejoinRequest(peerAddr)
}

func (c *Controller) sendRejoinRequest(addr string) {
	ctx, cancel := context.WithTimeout(c.bgCtx, c.currentSettings().PingTimeout)
	defer cancel()
	if _, err := c.transport.Send(ctx, addr, ActionRejoin, cluster.RejoinRequest{RequesterID: c.self.ID}, c.currentSettings().PingTimeout); err != nil {
		c.log.Debug("rejoin request failed", "addr", addr, "err", err)
	}
}

func (c *Controller) handleRejoinRequest(ctx context.Context, fromAddr string, payload []byte) ([]byte, error) {
	var req cluster.RejoinRequest
	if err := transport.DecodeInto(payload, &req); err != nil {
		return nil, err
	}
	c.stateSvc.Submit(&rejoinTask{controller: c, reason: "asked to rejoin by " + req.RequesterID}, state.Immediate)
	return nil, nil
}

// onPublishedState is the follower-side entry point invoked by
// publish.Receiver for every inbound published state; it enqueues the
// state and submits an URGENT drain task (§4.8).
func (c *Controller) onPublishedState(incoming cluster.State, ack func(error)) {
	entry := &cluster.PendingState{State: incoming, AckCallback: ack, ReceivedAt: time.Now()}

	c.pendingMu.Lock()
	c.pendingStates = append(c.pendingStates, entry)
	c.pendingMu.Unlock()

	c.stateSvc.Submit(&drainPendingTask{controller: c}, state.Urgent)
}
