// Package shutdown runs cleanup hooks when the process is asked to stop.
//
// Hooks run in reverse registration order, so a component registered
// after its dependencies is stopped before them. All hooks share one
// timeout.
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("control service", svc.Stop)
//	err := h.Wait(ctx) // SIGINT, SIGTERM or ctx cancellation
package shutdown
