package logging

// AuditEvent describes an administrative action against the allow-list store,
// a contract admin function, or the mail relay.
type AuditEvent struct {
	Operation string // e.g. "user_added", "status_updated", "admin_withdraw_all"
	Actor     string // wallet address performing the action
	Target    string // wallet or contract address affected
	Result    string // "success" or "failure"
	Details   string
}

// Audit logs an administrative operation at Info level with an "audit" marker
// so it can be filtered from regular application logs.
func Audit(event AuditEvent) {
	Logger().Info("audit",
		"audit", true,
		"operation", event.Operation,
		"actor", event.Actor,
		"target", event.Target,
		"result", event.Result,
		"details", event.Details,
	)
}
