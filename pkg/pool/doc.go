// Package pool bounds the number of concurrent logical connections per
// target endpoint, reuses idle ones, and queues excess demand fairly.
//
// A connection here is a logical handle partitioned by base URL; the
// actual transport is external. Callers acquire a connection, perform
// their request, and must release it back:
//
//	p := pool.New(pool.DefaultConfig())
//	defer p.Close()
//
//	conn, err := p.Acquire(ctx, "https://api.example.com")
//	if err != nil {
//		return err
//	}
//	defer p.Release(conn.ID)
//
// # Acquisition order
//
// Acquire prefers, in order: an idle connection for the same base URL,
// a fresh connection while under capacity, repurposing an idle
// connection held for a different base URL, and finally queueing the
// caller until a release frees something or the acquire timeout fires.
//
// # Queue fairness
//
// The wait queue drains in arrival order but is satisfiability-filtered:
// a queued request for URL A is never head-of-line-blocked behind an
// unsatisfiable request for URL B. Arrival order is preserved among
// requests for the same URL.
//
// # Idle reaping
//
// A background reaper removes connections idle longer than MaxIdleTime,
// running every MaxIdleTime/2.
package pool
