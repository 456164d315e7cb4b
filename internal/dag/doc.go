// Package dag is the deterministic execution core for law graphs.
//
// It is split into:
//   - Immutable graph definition (Graph): law and operator nodes, edges in
//     declaration order, a stable GraphHash
//   - Mutable run state (ExecutionState, RunPhase): per-node states owned by
//     one Executor
//
// A node's operands are its predecessors in edge-declaration order. Ties in
// every ordering decision fall back to node declaration order, so a run is
// reproducible regardless of worker timing.
package dag
