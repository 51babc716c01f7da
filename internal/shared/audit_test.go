package shared_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

func TestAuditLogValidation(t *testing.T) {
	require.Error(t, shared.AuditLog{Entity: "role", EntityID: "1"}.Validate())
	require.Error(t, shared.AuditLog{Action: "ROLE_MENU_CHANGED", EntityID: "1"}.Validate())
	require.NoError(t, shared.AuditLog{Action: "ROLE_MENU_CHANGED", Entity: "role", EntityID: "1"}.Validate())
}

func TestAuditLoggerWithoutPool(t *testing.T) {
	var logger *shared.AuditLogger
	err := logger.Record(context.Background(), shared.AuditLog{Action: "MENU_UPDATED", Entity: "menu", EntityID: "2"})
	require.EqualError(t, err, "audit logger not initialised")
}
