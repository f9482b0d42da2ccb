// Package coordinator implements C5: it merges Stratum client events and
// solver supervisor events, owns the dispatch precondition and the
// materialized WorkUnit, and drives the periodic stats line.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/silentarmy/stratum-miner/internal/solver"
	"github.com/silentarmy/stratum-miner/internal/stratum"
	"github.com/silentarmy/stratum-miner/internal/workunit"
	"github.com/silentarmy/stratum-miner/pkg/log"
)

// sampleInterval is how often the stats line is computed and printed.
const sampleInterval = 5 * time.Second

// Sink receives a finished stats line for optional external publishing
// (telemetry). The coordinator itself only ever writes stdout; Sinks are
// additive and never block the dispatch/submit path.
type Sink interface {
	Publish(line string)
}

// Coordinator wires a Stratum Client to a Solver Supervisor: pool events
// update pending state, the dispatch precondition fires a WorkUnit at the
// supervisor, and solver solutions are submitted back to the pool.
type Coordinator struct {
	client     *stratum.Client
	supervisor *solver.Supervisor
	logger     *log.Logger
	sinks      []Sink
	stats      *StatsWindow

	// Pending state, merged from Client events. A WorkUnit is materialized
	// only once all four hold simultaneously for the first time; after that
	// it is simply replaced wholesale on every subsequent mining.notify.
	nonceLeft  []byte
	target     chainhash.Hash
	hasTarget  bool
	authorized bool
	notify     *stratum.NotifyParams

	work                     *workunit.WorkUnit
	acceptedShares           int64
	acceptedSharesAtLastTick int64
}

// New constructs a Coordinator. Run starts its event loop.
func New(client *stratum.Client, supervisor *solver.Supervisor, logger *log.Logger, sinks ...Sink) *Coordinator {
	return &Coordinator{
		client:     client,
		supervisor: supervisor,
		logger:     logger.WithComponent("coordinator"),
		sinks:      sinks,
		stats:      NewStatsWindow(),
	}
}

// Run drives the merged event loop until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-c.client.Events():
			if !ok {
				return
			}
			c.handleStratumEvent(ctx, ev)

		case ev, ok := <-c.supervisor.Solutions():
			if !ok {
				return
			}
			c.handleSolution(ev)

		case ev, ok := <-c.supervisor.Statuses():
			if !ok {
				return
			}
			if sols, shares, parsed := ParseStatus(ev.Text); parsed {
				c.stats.RecordStatus(ev.DevID, sols, shares)
			} else {
				c.logger.WithFields("dev_id", ev.DevID, "text", ev.Text).Warn("malformed status line")
			}

		case <-ticker.C:
			if line, ok := c.stats.Sample(); ok {
				fmt.Println(line)
				for _, sink := range c.sinks {
					sink.Publish(line)
				}
			}
			delta := c.acceptedShares - c.acceptedSharesAtLastTick
			c.acceptedSharesAtLastTick = c.acceptedShares
			c.logger.LogThroughput("shares_accepted", delta, sampleInterval.Nanoseconds())
		}
	}
}

func (c *Coordinator) handleStratumEvent(ctx context.Context, ev stratum.Event) {
	switch e := ev.(type) {
	case stratum.Subscribed:
		c.nonceLeft = e.NonceLeft
		c.logger.WithFields("nonce_left_len", len(e.NonceLeft)).Info("subscribed to pool")
		c.tryDispatch(ctx)

	case stratum.Authorized:
		c.authorized = true
		c.logger.Info("authorized with pool")
		c.tryDispatch(ctx)

	case stratum.AuthFailed:
		c.authorized = false
		c.logger.Error("pool rejected authorization")

	case stratum.TargetSet:
		// Only the first target received triggers a dispatch attempt; later
		// updates are stored and take effect with the next mining.notify, not
		// by themselves redispatching the current job under a new target.
		first := !c.hasTarget
		c.target = e.Target
		c.hasTarget = true
		if first {
			c.tryDispatch(ctx)
		}

	case stratum.JobSet:
		c.notify = e.Notify
		c.tryDispatch(ctx)

	case stratum.ShareAccepted:
		c.acceptedShares++
		c.logger.WithFields("accepted_shares", c.acceptedShares).Debug("pool accepted share")

	case stratum.Disconnected:
		c.logger.WithFields("attempt", e.Attempt).Warn("disconnected from pool, pending state cleared")
		c.nonceLeft = nil
		c.hasTarget = false
		c.authorized = false
		c.notify = nil
	}
}

// tryDispatch evaluates the dispatch precondition and, if it now holds,
// materializes (or replaces) the WorkUnit and hands it to the supervisor.
func (c *Coordinator) tryDispatch(ctx context.Context) {
	if len(c.nonceLeft) == 0 || !c.authorized || !c.hasTarget || c.notify == nil {
		return
	}

	prefix, err := workunit.NewHeaderPrefix(
		c.notify.NVersion, c.notify.HashPrevBlock, c.notify.HashMerkleRoot,
		c.notify.HashReserved, c.notify.NTime, c.notify.NBits,
	)
	if err != nil {
		c.logger.WithError(err).Error("rejecting malformed mining.notify, keeping previous job")
		return
	}

	w := &workunit.WorkUnit{
		JobID:        c.notify.JobID,
		HeaderPrefix: prefix,
		NonceLeft:    c.nonceLeft,
		Target:       c.target,
	}
	if !w.Ready() {
		c.logger.Warn("work unit failed readiness check after assembly, dropping")
		return
	}

	c.work = w
	c.stats.RecordJobDispatched()
	c.logger.LogJobDistribution(w.JobID, 0, true, c.supervisor.InstanceCount())
	c.supervisor.Dispatch(ctx, w)
}

// handleSolution forwards a solver's solution exactly as parsed. The
// job_id/ntime come from the sol: line itself, not from the coordinator's
// current job: a solution found against a since-superseded job is still
// submitted under its own stale job_id (the pool decides whether to accept
// it), never rewritten to the coordinator's now-current job.
func (c *Coordinator) handleSolution(ev solver.SolutionEvent) {
	sol := ev.Solution
	status := "submitted"
	err := c.client.Submit(sol.JobID, sol.NTime, sol.NonceRight, sol.Sol)
	if err != nil {
		status = "error"
		c.logger.WithError(err).WithFields("dev_id", ev.DevID, "job_id", sol.JobID).
			Warn("failed to submit share to pool")
	}
	c.logger.LogShareSubmission(c.client.User(), fmt.Sprintf("dev%d", ev.DevID), sol.JobID, 0, status)
}
