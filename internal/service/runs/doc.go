// Package runs implements the run lifecycle and image attachment.
//
// States:
//   - queued -> generating -> ready -> approved
//   - error is reachable from every non-terminal state
//
// approved and error are terminal: any status update on a terminal run is
// rejected with repo.ErrInvalidTransition and leaves the stored run untouched.
// From a non-terminal state any known target is accepted; the last writer under
// the per-run lock wins.
//
// Appending images never changes the run status. Marking a run ready does not
// require images.
package runs
