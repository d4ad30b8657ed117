// filepath: internal/services/audit_actions.go
package services

import "context"

// Audit actions recorded by the services.
const (
	ActionUserCreate     = "user.create"
	ActionUserDelete     = "user.delete"
	ActionUserRole       = "user.role"
	ActionUserPassword   = "user.password"
	ActionLogin          = "auth.login"
	ActionLoginFailed    = "auth.login_failed"
	ActionRehash         = "auth.rehash"
	ActionAdminBootstrap = "bootstrap.admin_created"
	ActionSettingSet     = "settings.set"
)

// ActorSystem is the actor recorded for events nobody triggered by hand.
const ActorSystem = "system"

// noopAuditor drops every event. Used when no auditor is configured.
type noopAuditor struct{}

func (noopAuditor) Log(context.Context, string, string, string, map[string]interface{}) {}
