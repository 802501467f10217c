// Package schedule runs periodic maintenance jobs (code sweeps, pair
// purges) on robfig/cron.
package schedule
