// Package platform is the scheduling seam between the sync state machines and
// the host process.
//
// Every state transition of the outbox client and the event stream poller runs
// as a task on a Scheduler. Tasks run one at a time, so component state needs
// no locks as long as it is only touched from tasks. Loop is the production
// scheduler; ManualScheduler drives the same code on a virtual clock in tests.
package platform
