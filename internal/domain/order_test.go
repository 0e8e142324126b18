package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test fixtures
func createTestItems() []OrderItem {
	return []OrderItem{
		{ItemID: 1, SKU: "SKU-A", Quantity: 10},
		{ItemID: 2, SKU: "SKU-B", Quantity: 4},
	}
}

func createTestOrder(t *testing.T, scope Scope) *Order {
	t.Helper()
	order, err := NewOrder(NewOrderParams{
		ID:       42,
		Scope:    scope,
		From:     "WH-1",
		To:       "WH-2",
		Schema:   "default",
		Items:    createTestItems(),
		Currency: "USD",
	})
	require.NoError(t, err)
	return order
}

func createShippedOrder(t *testing.T, scope Scope) *Order {
	t.Helper()
	order := createTestOrder(t, scope)
	_, err := order.Approve("approver", nil, nil)
	require.NoError(t, err)
	_, err = order.Ship("shipper")
	require.NoError(t, err)
	return order
}

func TestNewOrder(t *testing.T) {
	tests := []struct {
		name        string
		params      NewOrderParams
		expectError error
	}{
		{
			name:   "Valid internal order",
			params: NewOrderParams{ID: 1, Scope: ScopeInternal, From: "A", To: "B", Items: createTestItems()},
		},
		{
			name:   "Valid external order",
			params: NewOrderParams{ID: 1, Scope: ScopeExternal, From: "VENDOR", To: "B", Items: createTestItems()},
		},
		{
			name:        "Missing id",
			params:      NewOrderParams{Scope: ScopeInternal, From: "A", To: "B", Items: createTestItems()},
			expectError: ErrMissingID,
		},
		{
			name:        "No items",
			params:      NewOrderParams{ID: 1, Scope: ScopeInternal, From: "A", To: "B"},
			expectError: ErrNoItems,
		},
		{
			name:        "Zero quantity",
			params:      NewOrderParams{ID: 1, Scope: ScopeInternal, From: "A", To: "B", Items: []OrderItem{{SKU: "X"}}},
			expectError: ErrInvalidQuantity,
		},
		{
			name:        "Invalid scope",
			params:      NewOrderParams{ID: 1, Scope: "sideways", From: "A", To: "B", Items: createTestItems()},
			expectError: ErrInvalidScope,
		},
		{
			name:        "Onward scope",
			params:      NewOrderParams{ID: 1, Scope: ScopeOnward, From: "A", To: "B", Items: createTestItems()},
			expectError: ErrScopeNotImplemented,
		},
		{
			name:        "Same station",
			params:      NewOrderParams{ID: 1, Scope: ScopeInternal, From: "A", To: "A", Items: createTestItems()},
			expectError: ErrSameStation,
		},
		{
			name:        "Missing station",
			params:      NewOrderParams{ID: 1, Scope: ScopeInternal, From: "A", Items: createTestItems()},
			expectError: ErrMissingStation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := NewOrder(tt.params)

			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				assert.Nil(t, order)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, StatePending, order.State)
			assert.Equal(t, StatePending, order.Meta.LastState)
			assert.Equal(t, 14, order.Meta.ItemsCount)
			assert.True(t, strings.HasPrefix(order.TransactionID, "PO-"))
			assert.Len(t, order.DomainEvents(), 1)
			assert.Equal(t, "wms.transfer.order-created", order.DomainEvents()[0].EventType())
			assert.NoError(t, order.Meta.Validate(order.Items))
		})
	}
}

func TestNewOrderKeepsSuppliedTransactionID(t *testing.T) {
	order, err := NewOrder(NewOrderParams{
		ID: 7, TransactionID: "PO-CUSTOM", Scope: ScopeInternal, From: "A", To: "B", Items: createTestItems(),
	})
	require.NoError(t, err)
	assert.Equal(t, "PO-CUSTOM", order.TransactionID)
}

func TestOrder_Approve(t *testing.T) {
	order := createTestOrder(t, ScopeInternal)
	order.ClearDomainEvents()

	costs := map[string]decimal.Decimal{"SKU-A": decimal.NewFromInt(4)}
	applied, err := order.Approve("boss", costs, &Measurements{Weight: 3})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StateApproved, order.State)
	assert.Equal(t, StateApproved, order.Meta.LastState)
	assert.Equal(t, "boss", order.Approver)
	assert.NotNil(t, order.Meta.ApprovedAt)
	assert.Equal(t, costs, order.Meta.ItemCosts)
	require.Len(t, order.DomainEvents(), 1)
	assert.Equal(t, "wms.transfer.order-approved", order.DomainEvents()[0].EventType())

	t.Run("Second approve is a no-op", func(t *testing.T) {
		order.ClearDomainEvents()
		applied, err := order.Approve("boss", costs, nil)
		require.NoError(t, err)
		assert.False(t, applied)
		assert.Empty(t, order.DomainEvents())
	})
}

func TestOrder_ShipIsIdempotent(t *testing.T) {
	order := createTestOrder(t, ScopeInternal)
	_, err := order.Approve("boss", nil, nil)
	require.NoError(t, err)

	applied, err := order.Ship("shipper")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StateProcessing, order.State)

	order.ClearDomainEvents()
	applied, err = order.Ship("shipper")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, order.DomainEvents())
}

func TestOrder_ShipFromPending(t *testing.T) {
	order := createTestOrder(t, ScopeInternal)
	_, err := order.Ship("shipper")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestOrder_Dispatch(t *testing.T) {
	order := createShippedOrder(t, ScopeInternal)

	assert.ErrorIs(t, order.Dispatch("", "1Z", "ops"), ErrMissingCarrier)

	require.NoError(t, order.Dispatch("ups", "1Z999", "ops"))
	assert.Equal(t, StateShipped, order.State)
	require.NotNil(t, order.Meta.Tracking)
	assert.Equal(t, "ups", order.Meta.Tracking.Carrier)
}

func TestOrder_EvaluationLoop(t *testing.T) {
	order := createTestOrder(t, ScopeInternal)

	assert.ErrorIs(t, order.RequestEvaluation(""), ErrMissingRequester)
	require.NoError(t, order.RequestEvaluation("alice"))
	assert.Equal(t, StateEvaluating, order.State)

	_, err := order.Approve("boss", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	amount := decimal.NewFromInt(100)
	require.NoError(t, order.ApproveCost(CostApproval{Approver: "cfo", Amount: &amount}))
	assert.Equal(t, StatePending, order.State)
	require.Len(t, order.Meta.CostApprovals, 1)
	assert.False(t, order.Meta.CostApprovals[0].ApprovedAt.IsZero())

	applied, err := order.Approve("boss", nil, nil)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestOrder_CompleteLocks(t *testing.T) {
	order := createShippedOrder(t, ScopeInternal)

	applied, err := order.Complete("receiver")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, order.Locked)
	assert.Equal(t, StateReceived, order.State)
	assert.NotNil(t, order.Meta.CompletedAt)

	order.ClearDomainEvents()
	applied, err = order.Complete("receiver")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Empty(t, order.DomainEvents())

	require.NoError(t, order.Close("ops"))
	assert.Equal(t, StateComplete, order.State)
}

func TestOrder_CompleteBeforeShip(t *testing.T) {
	order := createTestOrder(t, ScopeInternal)
	_, err := order.Complete("receiver")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, order.Locked)
}

func TestOrder_Reject(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(t *testing.T) *Order
		expectError error
	}{
		{name: "Pending", setup: func(t *testing.T) *Order { return createTestOrder(t, ScopeInternal) }},
		{name: "Processing", setup: func(t *testing.T) *Order { return createShippedOrder(t, ScopeInternal) }},
		{
			name: "Received",
			setup: func(t *testing.T) *Order {
				o := createShippedOrder(t, ScopeInternal)
				_, err := o.Complete("r")
				require.NoError(t, err)
				return o
			},
			expectError: ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := tt.setup(t)
			err := order.Reject("boss", "wrong items")
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateRejected, order.State)
			assert.True(t, order.Locked)
			assert.Equal(t, "wrong items", order.Meta.RejectionMemo)
		})
	}
}

func TestOrder_RequestReturn(t *testing.T) {
	order := createShippedOrder(t, ScopeInternal)

	err := order.RequestReturn(ReturnDetails{Items: []OrderItem{{SKU: "SKU-A", Quantity: 2}}})
	assert.ErrorIs(t, err, ErrMissingTracking)

	err = order.RequestReturn(ReturnDetails{
		Items:        []OrderItem{{SKU: "SKU-A", Quantity: 20}},
		TrackingSlug: "ups", TrackingNumber: "1Z",
	})
	assert.ErrorIs(t, err, ErrInvalidReturn)

	err = order.RequestReturn(ReturnDetails{
		Items:        []OrderItem{{SKU: "SKU-A", Quantity: 2}, {SKU: "SKU-B", Quantity: 1}},
		Replacement:  true,
		TrackingSlug: "ups", TrackingNumber: "1Z",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, order.Meta.ReturnDetails.Total)
	assert.True(t, order.WantsReplacement())
	assert.NoError(t, order.Meta.Validate(order.Items))

	order.LinkReplacement(99)
	assert.False(t, order.WantsReplacement())
}

func TestOrder_RecordReceipt(t *testing.T) {
	order := createTestOrder(t, ScopeInternal)
	pkg := PackageReceipt{Package: "P1", CountedItems: []ReceiptLine{{SKU: "SKU-A", Quantity: 7}}}

	assert.ErrorIs(t, order.RecordReceipt(pkg, nil), ErrInvalidTransition)

	order = createShippedOrder(t, ScopeInternal)
	require.NoError(t, order.RecordReceipt(pkg, map[string][]string{"SKU-B": {"S1"}}))
	require.NotNil(t, order.Meta.TrackingReceipt)
	assert.Len(t, order.Meta.TrackingReceipt.Packages, 1)
	assert.Equal(t, []string{"S1"}, order.Meta.TrackingReceipt.BackupSerials["SKU-B"])

	err := order.RecordReceipt(PackageReceipt{CountedItems: []ReceiptLine{{SKU: "SKU-Z", Quantity: 1}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidReceipt)

	err = order.RecordReceipt(PackageReceipt{CountedItems: []ReceiptLine{{SKU: "SKU-A", Quantity: -1}}}, nil)
	assert.ErrorIs(t, err, ErrInvalidReceipt)

	_, err = order.Complete("r")
	require.NoError(t, err)
	assert.ErrorIs(t, order.RecordReceipt(pkg, nil), ErrOrderLocked)
}

func TestOrder_CanDelete(t *testing.T) {
	now := time.Now().UTC()
	window := 30 * 24 * time.Hour

	pending := createTestOrder(t, ScopeInternal)
	pending.UpdatedAt = now.Add(-60 * 24 * time.Hour)
	assert.ErrorIs(t, pending.CanDelete(now, window, false), ErrDeleteRestricted)

	approved := createTestOrder(t, ScopeInternal)
	_, err := approved.Approve("boss", nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, approved.CanDelete(now, window, false), ErrDeleteTooRecent)
	assert.NoError(t, approved.CanDelete(now, window, true))

	approved.UpdatedAt = now.Add(-31 * 24 * time.Hour)
	assert.NoError(t, approved.CanDelete(now, window, false))
}

func TestOrder_OnwardScopeIsRecognisedButNotImplemented(t *testing.T) {
	order := createTestOrder(t, ScopeInternal)
	order.Scope = ScopeOnward

	_, err := order.Approve("boss", nil, nil)
	assert.True(t, errors.Is(err, ErrScopeNotImplemented))
	_, err = order.Ship("x")
	assert.ErrorIs(t, err, ErrScopeNotImplemented)
	_, err = order.Complete("x")
	assert.ErrorIs(t, err, ErrScopeNotImplemented)
	assert.ErrorIs(t, order.Reject("x", "y"), ErrScopeNotImplemented)
}

func TestMeta_Validate(t *testing.T) {
	items := createTestItems()

	assert.NoError(t, (&Meta{ItemsCount: 14}).Validate(items))
	assert.ErrorIs(t, (&Meta{ItemsCount: 13}).Validate(items), ErrInvalidMeta)
	assert.ErrorIs(t, (&Meta{ItemsCount: 14, LastState: "BOUNCED"}).Validate(items), ErrInvalidMeta)
	assert.ErrorIs(t, (&Meta{
		ItemsCount:    14,
		ReturnDetails: &ReturnDetails{Total: 5, Items: []OrderItem{{SKU: "SKU-A", Quantity: 4}}},
	}).Validate(items), ErrInvalidMeta)
}

func TestFees_Total(t *testing.T) {
	var nilFees *Fees
	assert.True(t, nilFees.Total().IsZero())

	fees := &Fees{
		Taxes:          decimal.NewFromInt(1),
		ServiceFees:    decimal.NewFromInt(2),
		CustomsFees:    decimal.NewFromInt(3),
		AdditionalFees: decimal.NewFromInt(4),
	}
	assert.True(t, fees.Total().Equal(decimal.NewFromInt(10)))
}
