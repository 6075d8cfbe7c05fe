// Package logging wraps uber/zap for the sandbox service.
//
// Production loggers emit JSON at the configured level; development
// loggers emit colored console lines. Components receive a *Logger and
// scope it with Named, so pool, gateway and http entries can be told apart.
//
// Sandboxed console output never reaches this logger. It is returned to
// the caller in the execution result.
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	if err != nil {
//		return err
//	}
//	defer logger.Close()
//
//	pool, err := sandbox.NewPool(cfg, gw, logger)
package logging
