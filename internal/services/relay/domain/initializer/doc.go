// Package initializer keeps the parachain subsystems in a consistent
// lifecycle order and turns asynchronously announced session changes into
// one atomic notification per block.
//
// Per block the orchestrator:
//   - initializes Configuration, Paras, Scheduler, Inclusion, SessionInfo,
//     DMP, UMP and HRMP in that order,
//   - finalizes them in exactly the reverse order,
//   - then applies the last session change buffered during the block, reading
//     the previous configuration, letting Configuration react, reading the new
//     configuration, and broadcasting a single SessionChangeNotification to
//     the remaining subsystems in initialize order.
//
// Session changes may be announced at any time before the block's Finalize,
// including before Initialize. An announcement that arrives after Finalize
// in the same block is a fatal sequencing error in the caller.
package initializer
