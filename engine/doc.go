// Package engine implements the job lifecycle engine: the state machine
// governing a download-preparation job from submission through
// completion or failure.
//
// The engine owns every state transition. Workers act only through
// Claim / ReportProgress / Complete / Fail, and each mutation is applied
// as a compare-and-swap on (status, attemptCount) at the storage
// boundary, so a stale worker's writes lose cleanly to a fresh claim
// instead of corrupting the record. Polling clients act only through
// Status, which reads the latest committed record and never blocks on
// in-flight processing.
//
// The work queue, record store, dead-letter service, backoff controller,
// and URL signer are injected collaborators; the engine holds no global
// state.
package engine
