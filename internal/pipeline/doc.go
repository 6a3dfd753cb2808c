// Package pipeline coordinates document processing end to end: workers pull
// items from the shared queue, run the external extract/parse/score
// collaborators through the resilient executor, and hand the scored result to
// the review gate. Approved results flow to the output collaborator; failures
// re-enter the queue's retry schedule or end terminally failed.
//
// Manual review never blocks a worker. An item awaiting a decision is parked,
// freeing its processing slot, and resumes asynchronously when the decision
// callback fires.
package pipeline
