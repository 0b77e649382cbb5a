// Package httpserver runs the HTTP surface with graceful shutdown and
// provides liveness and readiness handlers.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//	    log.Error("server failed", logger.Error(err))
//	}
//
// Run returns when ctx is cancelled. Stop hooks registered with WithStopHook
// run once, after in-flight requests have drained.
package httpserver
