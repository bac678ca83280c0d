package pricebook

import (
	"sync"

	"github.com/robfig/cron/v3"
)

// RefreshFunc fetches a fresh pricing table from an external source (a
// pricing database lookup — out of scope per spec §1; callers supply the
// fetch, this just schedules and swaps it in).
type RefreshFunc func() (map[string]Price, error)

// AutoRefresher periodically calls a RefreshFunc and hot-swaps the result
// into a PriceBook via Load. Off by default; callers opt in with a cron
// schedule, mirroring the teacher's scheduled-job dependency (robfig/cron).
type AutoRefresher struct {
	mu      sync.Mutex
	book    *PriceBook
	fetch   RefreshFunc
	cron    *cron.Cron
	entryID cron.EntryID
	lastErr error
}

// NewAutoRefresher wires a RefreshFunc to hot-reload the given PriceBook.
func NewAutoRefresher(book *PriceBook, fetch RefreshFunc) *AutoRefresher {
	return &AutoRefresher{
		book:  book,
		fetch: fetch,
		cron:  cron.New(),
	}
}

// Start schedules the refresh on the given cron spec (e.g. "@every 1h") and
// begins the scheduler goroutine. Each call adds another scheduled entry;
// the scheduler goroutine itself is started only once. A spec that does not
// parse returns its error and schedules nothing.
func (a *AutoRefresher) Start(spec string) error {
	id, err := a.cron.AddFunc(spec, a.refreshOnce)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.entryID = id
	a.mu.Unlock()
	a.cron.Start()
	return nil
}

// Stop halts the scheduler; in-flight refreshes are allowed to finish.
func (a *AutoRefresher) Stop() {
	ctx := a.cron.Stop()
	<-ctx.Done()
}

// LastError returns the error from the most recent refresh attempt, if any.
func (a *AutoRefresher) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *AutoRefresher) refreshOnce() {
	table, err := a.fetch()
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	if err != nil {
		return
	}
	a.book.Load(table)
}
