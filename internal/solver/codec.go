// Package solver implements the line-oriented protocol spoken over a
// solver's stdin/stdout (C2 — codec) and the supervisor that keeps one
// solver process per configured GPU alive (C4).
package solver

import (
	"encoding/hex"
	"strings"

	"github.com/silentarmy/stratum-miner/internal/workunit"
	"github.com/silentarmy/stratum-miner/pkg/errors"
)

// LineKind tags which of the solver's three line shapes was parsed.
type LineKind int

const (
	// LineSolution carries a found solution,
	// "sol: <job_id> <ntime> <nonce_rightpart> <sol>".
	LineSolution LineKind = iota
	// LineStatus carries cumulative counters, "status: <nr_sols> <nr_shares>".
	LineStatus
	// LineLog is everything else: banners, diagnostics, unrecognized chatter.
	LineLog
)

const (
	solPrefix    = "sol:"
	statusPrefix = "status:"
)

// Line is one parsed line of solver stdout.
type Line struct {
	Kind LineKind
	Sol  string // raw text after "sol:", LineSolution only — see ParseSolution.
	Text string // raw text after the prefix (or the whole line, for LineLog).
}

// ParseLine classifies one line of solver stdout. Matching is prefix-based
// and checked in priority order: sol: before status:, so a status line that
// happens to embed the word "sol" is never misclassified.
func ParseLine(raw string) Line {
	line := strings.TrimRight(raw, "\r\n")
	lower := strings.ToLower(line)

	switch {
	case strings.HasPrefix(lower, solPrefix):
		return Line{Kind: LineSolution, Sol: strings.TrimSpace(line[len(solPrefix):])}
	case strings.HasPrefix(lower, statusPrefix):
		return Line{Kind: LineStatus, Text: strings.TrimSpace(line[len(statusPrefix):])}
	default:
		return Line{Kind: LineLog, Text: line}
	}
}

// Solution is a solver's found answer, carrying the job it was found
// against: "sol: <job_id> <ntime> <nonce_rightpart> <sol>", forwarded
// verbatim as the four mining.submit params (invariant 2). A solution found
// against a since-superseded job is still reported here with its own
// job_id/ntime — the coordinator forwards it unchanged rather than
// substituting its current job.
type Solution struct {
	JobID      string
	NTime      string
	NonceRight string
	Sol        string
}

// ParseSolution splits and validates the body of a sol: line.
func ParseSolution(body string) (Solution, error) {
	fields := strings.Fields(body)
	if len(fields) != 4 {
		return Solution{}, errors.New(errors.ErrorTypeSolver, "parse_solution", "expected \"<job_id> <ntime> <nonce_rightpart> <sol>\"").
			WithContext("body", body)
	}
	jobID, ntime, nonceRight, sol := fields[0], fields[1], fields[2], fields[3]

	if jobID == "" {
		return Solution{}, errors.New(errors.ErrorTypeSolver, "parse_solution", "empty job_id")
	}
	if _, err := hex.DecodeString(ntime); err != nil {
		return Solution{}, errors.Wrap(err, errors.ErrorTypeSolver, "parse_solution", "ntime is not valid hex")
	}
	if _, err := hex.DecodeString(nonceRight); err != nil {
		return Solution{}, errors.Wrap(err, errors.ErrorTypeSolver, "parse_solution", "nonce is not valid hex")
	}
	if sol == "" {
		return Solution{}, errors.New(errors.ErrorTypeSolver, "parse_solution", "empty solution")
	}
	if _, err := hex.DecodeString(sol); err != nil {
		return Solution{}, errors.Wrap(err, errors.ErrorTypeSolver, "parse_solution", "solution is not valid hex")
	}
	return Solution{JobID: jobID, NTime: ntime, NonceRight: nonceRight, Sol: sol}, nil
}

// FormatJob renders the job line written to a solver's stdin:
// "<target_hex> <job_id> <header_prefix_hex> <nonce_left_hex>\n", all-lowercase.
func FormatJob(w *workunit.WorkUnit) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(w.TargetHex()))
	b.WriteByte(' ')
	b.WriteString(w.JobID)
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(hex.EncodeToString(w.HeaderPrefix)))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(hex.EncodeToString(w.NonceLeft)))
	b.WriteByte('\n')
	return b.String()
}
