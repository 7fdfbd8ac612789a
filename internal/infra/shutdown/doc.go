// Package shutdown runs cleanup hooks when the process is asked to stop.
//
// Hooks run in reverse registration order, so a component registered after
// its dependencies is stopped before them:
//
//	h := shutdown.NewHandler(10*time.Second, log)
//	h.OnShutdown("store", store.Close)       // closed last
//	h.OnShutdown("cleaner", cleaner.Stop)    // stopped first
//	err := h.Wait(ctx)
package shutdown
