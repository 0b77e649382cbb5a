// Package logger builds the *slog.Logger used across dialbill.
//
// New applies functional options (format, level, output, static attributes)
// and wraps the handler with LogHandlerDecorator, which injects attributes
// pulled from context (request ids, cron tick ids) on every record.
//
// attr.go keeps attribute keys consistent between components: tenant_id,
// action_id, flag, category, and amounts rendered as fixed-point strings.
// Credential identifiers must go through Masked so that only their first and
// last four characters ever reach a log sink.
//
//	log := logger.New(logger.WithEnvironment(environment.Production, "dialbill"))
//	log.Info("credentials resolved",
//	    logger.TenantID(id),
//	    logger.Masked("account_sid", sid))
package logger
