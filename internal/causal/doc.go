// Package causal builds the cause→effect hierarchy for one session
// transcript: single exchanges at level 1, clusters at level 2, broad beats
// at level 3.
//
// What it does:
//   - Level-1 linking pairs eligible actor lines (causes) with nearby
//     narrator lines (effects) inside a bounded forward window.
//   - Annealing absorbs residual unpaired lines into existing links as
//     context, growing link mass under per-link radius and capacity limits.
//   - Level-N linking repeats the pairing over the previous round's node
//     set, merging nodes into composites one level higher.
//   - The orchestrator runs Level-1 link → anneal, then Level-N link →
//     anneal up to MaxRounds, optionally stopping early once a round makes
//     no new composites and no new absorptions. Every round's full state is
//     retained, not only the last.
//
// Determinism:
// Run is a pure function of (Input, Params): no I/O, no randomness, no
// clock reads, single-threaded. Every sort uses a total comparator and node
// ids derive from anchors and creation order, so identical inputs yield
// byte-identical serialized output. Runs over distinct sessions can be
// parallelized by the caller; there is no intra-run concurrency.
//
// Matching is greedy: strongest evidence first under a documented
// tie-break, never globally optimal. Audit tooling depends on
// explainable, replayable assignment, so no solver is involved.
//
// Errors:
// Structural input problems fail fast before any scoring: ErrInvalidParams
// for rejected parameters, ErrNilRegistry for a missing actor registry, and
// the transcript package sentinels for malformed lines, masks, and class
// annotations. Degenerate-but-valid input (empty transcript, zero eligible
// lines) produces an empty result, not an error, and unclaimed or
// unabsorbed leftovers are first-class output.
package causal
