// Package environment names the deployment environment the process runs in.
//
// Billing components derive strict mode from it: in Production, incomplete
// tenant linkage and frozen balances are hard errors and DEV_SKIP_BILLING is
// ignored. Everywhere else those conditions are logged and work continues, so
// staging and local setups are never blocked by billing state.
//
//	env := environment.Parse(os.Getenv("APP_ENV"))
//	if env.IsProduction() {
//	    // strict billing
//	}
package environment
