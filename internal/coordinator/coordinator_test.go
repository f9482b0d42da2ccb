package coordinator

import (
	"context"
	"strings"
	"testing"

	"github.com/silentarmy/stratum-miner/internal/solver"
	"github.com/silentarmy/stratum-miner/internal/stratum"
	"github.com/silentarmy/stratum-miner/pkg/log"
)

func testCoordinator() *Coordinator {
	client := stratum.NewClient(stratum.ClientConfig{Host: "pool.example.com", Port: 3333, User: "t1Test"}, log.New("t", "0", "error", "text"))
	sup := solver.New(solver.Config{BinaryPath: "/bin/true", DevIDs: []int{0}}, log.New("t", "0", "error", "text"))
	return New(client, sup, log.New("t", "0", "error", "text"))
}

func validJobNotify() *stratum.NotifyParams {
	return &stratum.NotifyParams{
		JobID:          "job1",
		NVersion:       "04000000",
		HashPrevBlock:  strings.Repeat("ab", 32),
		HashMerkleRoot: strings.Repeat("cd", 32),
		HashReserved:   strings.Repeat("0", 64),
		NTime:          "5a000000",
		NBits:          "1d00ffff",
		CleanJobs:      true,
	}
}

func TestCoordinator_DispatchRequiresAllFour(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()

	c.handleStratumEvent(ctx, stratum.Subscribed{NonceLeft: []byte{0x01}})
	if c.work != nil {
		t.Fatal("should not dispatch with only nonce_left set")
	}

	c.handleStratumEvent(ctx, stratum.Authorized{})
	if c.work != nil {
		t.Fatal("should not dispatch without a target")
	}

	c.handleStratumEvent(ctx, stratum.TargetSet{})
	if c.work != nil {
		t.Fatal("should not dispatch without a job")
	}

	c.handleStratumEvent(ctx, stratum.JobSet{Notify: validJobNotify()})
	if c.work == nil {
		t.Fatal("expected work unit once all four prerequisites hold")
	}
	if c.work.JobID != "job1" {
		t.Errorf("got job id %q", c.work.JobID)
	}
}

func TestCoordinator_DisconnectClearsPendingState(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()

	c.handleStratumEvent(ctx, stratum.Subscribed{NonceLeft: []byte{0x01}})
	c.handleStratumEvent(ctx, stratum.Authorized{})
	c.handleStratumEvent(ctx, stratum.TargetSet{})
	c.handleStratumEvent(ctx, stratum.JobSet{Notify: validJobNotify()})
	if c.work == nil {
		t.Fatal("expected a work unit before disconnect")
	}

	c.handleStratumEvent(ctx, stratum.Disconnected{Attempt: 1})
	if c.authorized || c.hasTarget || c.notify != nil || len(c.nonceLeft) != 0 {
		t.Error("expected all pending state cleared after disconnect")
	}

	// Re-establishing only nonce_left should not redispatch the stale work unit.
	prevWork := c.work
	c.handleStratumEvent(ctx, stratum.Subscribed{NonceLeft: []byte{0x02}})
	if c.work != prevWork {
		t.Error("work unit should only change via a fresh JobSet after reconnect")
	}
}

func TestCoordinator_SolutionWithoutAnyDispatchedJobStillAttemptsSubmit(t *testing.T) {
	c := testCoordinator()
	if c.work != nil {
		t.Fatal("expected no work unit to have been dispatched yet")
	}
	// No JobSet has ever been handled, so c.work is nil. handleSolution must
	// not gate submission on the coordinator's own job state — the sol: line
	// carries its own job_id/ntime — so this must reach client.Submit (which
	// errors because there's no live connection) rather than being silently
	// dropped for lack of a "current" job.
	c.handleSolution(solver.SolutionEvent{DevID: 0, Solution: solver.Solution{
		JobID: "job1", NTime: "5a000000", NonceRight: "aabbcc", Sol: "deadbeef",
	}})
}

func TestCoordinator_SolutionForStaleJobIsForwardedUnchanged(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()

	c.handleStratumEvent(ctx, stratum.Subscribed{NonceLeft: []byte{0x01}})
	c.handleStratumEvent(ctx, stratum.Authorized{})
	c.handleStratumEvent(ctx, stratum.TargetSet{})
	c.handleStratumEvent(ctx, stratum.JobSet{Notify: validJobNotify()})

	stale := validJobNotify()
	stale.JobID = "stale-job"
	c.handleStratumEvent(ctx, stratum.JobSet{Notify: stale})

	// A solution found against the now-superseded job still carries its own
	// job_id/ntime; handleSolution must forward that, not the coordinator's
	// current job.
	c.handleSolution(solver.SolutionEvent{DevID: 0, Solution: solver.Solution{
		JobID: "stale-job", NTime: stale.NTime, NonceRight: "aabbcc", Sol: "deadbeef",
	}})
}

func TestCoordinator_SecondTargetDoesNotRedispatch(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()

	c.handleStratumEvent(ctx, stratum.Subscribed{NonceLeft: []byte{0x01}})
	c.handleStratumEvent(ctx, stratum.Authorized{})
	c.handleStratumEvent(ctx, stratum.TargetSet{})
	c.handleStratumEvent(ctx, stratum.JobSet{Notify: validJobNotify()})
	firstWork := c.work
	if firstWork == nil {
		t.Fatal("expected a work unit after the first target and a notify")
	}

	// A second set_target with all four prerequisites already holding must
	// not trigger a redispatch of the existing work unit; it only applies
	// with the next mining.notify.
	c.handleStratumEvent(ctx, stratum.TargetSet{})
	if c.work != firstWork {
		t.Error("a second TargetSet should not replace the current work unit")
	}
}

func TestCoordinator_MalformedNotifyKeepsPreviousJob(t *testing.T) {
	c := testCoordinator()
	ctx := context.Background()

	c.handleStratumEvent(ctx, stratum.Subscribed{NonceLeft: []byte{0x01}})
	c.handleStratumEvent(ctx, stratum.Authorized{})
	c.handleStratumEvent(ctx, stratum.TargetSet{})
	c.handleStratumEvent(ctx, stratum.JobSet{Notify: validJobNotify()})
	firstWork := c.work

	bad := validJobNotify()
	bad.NVersion = "01000000"
	c.handleStratumEvent(ctx, stratum.JobSet{Notify: bad})

	if c.work != firstWork {
		t.Error("a malformed notify should not replace the existing work unit")
	}
}
