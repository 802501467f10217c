// Package mailqueue runs post-success mail delivery on a worker pool.
//
// A flow enqueues its verification mail only after its own state change
// has committed. Delivery faults are counted and reported through a
// callback; they never reach the flow's caller and never roll anything back.
package mailqueue
