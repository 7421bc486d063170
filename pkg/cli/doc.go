// Package cli implements gamutctl, the operator tool for Gamut.
//
// # Commands
//
// validate-rbac: Check a tables file offline before deploying it
//
//	gamutctl validate-rbac -file /etc/gamut/rbac.yaml
//
// roles: Print the effective role tables
//
//	gamutctl roles                        # built-in tables as text
//	gamutctl roles -file rbac.yaml -format yaml
//
// reconcile: Run one consistency pass against the configured store. Reads the
// same GAMUT_* environment as the server.
//
//	gamutctl reconcile -dry-run
//
// Results go to stdout; progress is logged with logrus on stderr.
package cli
