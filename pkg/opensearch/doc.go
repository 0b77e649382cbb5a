// Package opensearch connects dialbill to an OpenSearch cluster, where the
// ledger package indexes billing and dispatch history for reporting.
//
//	var cfg opensearch.Config
//	config.MustLoad(&cfg)
//	if cfg.Enabled() {
//		client, err := opensearch.New(ctx, cfg)
//		...
//	}
//
// Healthcheck returns the probe for an httpserver.Check.
package opensearch
