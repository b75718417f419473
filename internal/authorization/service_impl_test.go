package authorization

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/pharmasettle/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestPolicyMatrix(t *testing.T) {
	svc := newService(t)

	cases := []struct {
		role   string
		object string
		action string
		want   bool
	}{
		{RoleSales, ObjectSalesOrder, ActionCreate, true},
		{RoleSales, ObjectSalesOrder, ActionReview, false},
		{RoleSales, ObjectDepositCheck, ActionReview, false},
		{RoleSales, ObjectInvoice, ActionCreate, false},
		{RoleManager, ObjectSalesOrder, ActionReview, true},
		{RoleManager, ObjectSalesOrder, ActionCreate, true},
		{RoleManager, ObjectDepositCheck, ActionReview, false},
		{RoleAccountant, ObjectDepositCheck, ActionReview, true},
		{RoleAccountant, ObjectInvoice, ActionCreate, true},
		{RoleAccountant, ObjectSalesOrder, ActionReview, false},
		{RoleAccountant, ObjectSalesOrder, ActionCreate, false},
		{RoleAdmin, ObjectDepositCheck, ActionReview, true},
		{RoleAdmin, ObjectSalesOrder, ActionReview, true},
		{RoleAdmin, ObjectInvoice, ActionRender, true},
		{"ADMIN", ObjectInvoice, ActionRender, true},
		{"guest", ObjectSalesOrder, ActionView, false},
	}
	for _, tc := range cases {
		t.Run(tc.role+"/"+tc.object+"/"+tc.action, func(t *testing.T) {
			got, err := svc.Allowed(tc.role, tc.object, tc.action)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthorizeReadsActorFromContext(t *testing.T) {
	svc := newService(t)

	err := svc.Authorize(context.Background(), ObjectSalesOrder, ActionView)
	assert.ErrorIs(t, err, ErrInvalidActor)

	ctx := obscontext.WithActor(context.Background(), "u-1", "sales")
	assert.NoError(t, svc.Authorize(ctx, ObjectSalesOrder, ActionView))
	assert.ErrorIs(t, svc.Authorize(ctx, ObjectDepositCheck, ActionReview), ErrForbidden)

	_, err = svc.Allowed("sales", "", ActionView)
	assert.ErrorIs(t, err, ErrInvalidObject)
	_, err = svc.Allowed("sales", ObjectSalesOrder, " ")
	assert.ErrorIs(t, err, ErrInvalidAction)
}
