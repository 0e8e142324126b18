package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Order is the aggregate root for a transfer between two stations
type Order struct {
	ID            int64       `bson:"_id" json:"id"`
	TransactionID string      `bson:"transaction_id" json:"transaction_id"`
	Scope         Scope       `bson:"scope" json:"scope"`
	State         State       `bson:"state" json:"state"`
	From          string      `bson:"from" json:"from"`
	To            string      `bson:"to" json:"to"`
	Schema        string      `bson:"schema" json:"schema"`
	Items         []OrderItem `bson:"items" json:"items"`
	Locked        bool        `bson:"locked" json:"locked"`
	Parent        int64       `bson:"parent,omitempty" json:"parent,omitempty"`
	Requester     string      `bson:"requester,omitempty" json:"requester,omitempty"`
	Approver      string      `bson:"approver,omitempty" json:"approver,omitempty"`
	Meta          Meta        `bson:"meta" json:"meta"`
	CreatedAt     time.Time   `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time   `bson:"updatedAt" json:"updatedAt"`

	// Domain events - transient, not persisted
	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// OrderItem is one ordered SKU line
type OrderItem struct {
	ItemID   int64  `bson:"itemId" json:"itemId"`
	SKU      string `bson:"sku" json:"sku"`
	Quantity int    `bson:"quantity" json:"quantity"`
}

// NewOrderParams carries the inputs for creating an order
type NewOrderParams struct {
	ID            int64
	TransactionID string
	Scope         Scope
	From          string
	To            string
	Schema        string
	Items         []OrderItem
	Requester     string
	Currency      string
	Fees          *Fees
}

// NewOrderCode generates a human transaction code
func NewOrderCode() string {
	return "PO-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
}

// NewOrder creates a PENDING order
func NewOrder(p NewOrderParams) (*Order, error) {
	if p.ID == 0 {
		return nil, ErrMissingID
	}
	if !p.Scope.IsValid() {
		return nil, ErrInvalidScope
	}
	if !p.Scope.IsImplemented() {
		return nil, ErrScopeNotImplemented
	}
	if p.From == "" || p.To == "" {
		return nil, ErrMissingStation
	}
	if p.From == p.To {
		return nil, ErrSameStation
	}
	if err := ValidateItems(p.Items); err != nil {
		return nil, err
	}

	code := p.TransactionID
	if code == "" {
		code = NewOrderCode()
	}

	now := time.Now().UTC()
	order := &Order{
		ID:            p.ID,
		TransactionID: code,
		Scope:         p.Scope,
		State:         StatePending,
		From:          p.From,
		To:            p.To,
		Schema:        p.Schema,
		Items:         p.Items,
		Requester:     p.Requester,
		Meta: Meta{
			LastState:  StatePending,
			ItemsCount: TotalQuantity(p.Items),
			Currency:   p.Currency,
			Fees:       p.Fees,
		},
		CreatedAt:    now,
		UpdatedAt:    now,
		domainEvents: make([]DomainEvent, 0),
	}

	order.addDomainEvent(NewOrderCreatedEvent(order))

	return order, nil
}

// ValidateItems checks an item list for creation
func ValidateItems(items []OrderItem) error {
	if len(items) == 0 {
		return ErrNoItems
	}
	for _, item := range items {
		if item.SKU == "" {
			return ErrMissingSKU
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: %s", ErrInvalidQuantity, item.SKU)
		}
	}
	return nil
}

// TotalQuantity sums item quantities
func TotalQuantity(items []OrderItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// Quantity returns the ordered quantity for a SKU
func (o *Order) Quantity(sku string) int {
	total := 0
	for _, item := range o.Items {
		if item.SKU == sku {
			total += item.Quantity
		}
	}
	return total
}

// SKUs returns the distinct SKUs in item order
func (o *Order) SKUs() []string {
	seen := make(map[string]bool, len(o.Items))
	skus := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if !seen[item.SKU] {
			seen[item.SKU] = true
			skus = append(skus, item.SKU)
		}
	}
	return skus
}

// IsInternal reports whether both stations are under inventory control
func (o *Order) IsInternal() bool {
	return o.Scope == ScopeInternal
}

func (o *Order) guard() error {
	if !o.Scope.IsImplemented() {
		return ErrScopeNotImplemented
	}
	return nil
}

func (o *Order) transition(to State, actor, memo string) error {
	if !o.State.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.State, to)
	}

	from := o.State
	o.State = to
	o.Meta.LastState = to
	o.UpdatedAt = time.Now().UTC()
	o.addDomainEvent(NewOrderTransitionedEvent(o, from, actor, memo))

	return nil
}

// SetProjectedCost stores the creation-time cost snapshot once
func (o *Order) SetProjectedCost(cost *ProjectedCost) {
	if o.Meta.ProjectedCost != nil {
		return
	}
	o.Meta.ProjectedCost = cost
}

// SetItemCosts snapshots unit costs for an order that skipped approval
func (o *Order) SetItemCosts(costs map[string]decimal.Decimal) {
	if o.Meta.ItemCosts != nil {
		return
	}
	o.Meta.ItemCosts = costs
}

// BindVendorNodes records the destination nodes bound for an external order
func (o *Order) BindVendorNodes(nodes map[string]*InventoryNode) {
	if o.Meta.VendorNodes == nil {
		o.Meta.VendorNodes = make(map[string]primitive.ObjectID, len(nodes))
	}
	for sku, node := range nodes {
		o.Meta.VendorNodes[sku] = node.ID
	}
}

// RequestEvaluation moves a pending order into cost evaluation
func (o *Order) RequestEvaluation(requester string) error {
	if err := o.guard(); err != nil {
		return err
	}
	if requester == "" {
		return ErrMissingRequester
	}
	if o.Requester == "" {
		o.Requester = requester
	}
	return o.transition(StateEvaluating, requester, "")
}

// ApproveCost records a cost sign-off and returns the order to PENDING
func (o *Order) ApproveCost(approval CostApproval) error {
	if err := o.guard(); err != nil {
		return err
	}
	if approval.Approver == "" {
		return ErrMissingRequester
	}
	if approval.ApprovedAt.IsZero() {
		approval.ApprovedAt = time.Now().UTC()
	}
	if err := o.transition(StatePending, approval.Approver, approval.Memo); err != nil {
		return err
	}
	o.Meta.CostApprovals = append(o.Meta.CostApprovals, approval)
	return nil
}

// Approve moves the order to APPROVED. It returns false without error when
// the approval side effects already ran.
func (o *Order) Approve(approver string, itemCosts map[string]decimal.Decimal, measurements *Measurements) (bool, error) {
	if err := o.guard(); err != nil {
		return false, err
	}
	if o.Locked {
		return false, ErrOrderLocked
	}
	if o.Meta.LastState != StatePending {
		if o.State == StateApproved {
			return false, nil
		}
		return false, fmt.Errorf("%w: approve from last_state %s", ErrInvalidTransition, o.Meta.LastState)
	}

	if err := o.transition(StateApproved, approver, ""); err != nil {
		return false, err
	}

	now := o.UpdatedAt
	o.Approver = approver
	o.Meta.ItemCosts = itemCosts
	o.Meta.Measurements = measurements
	o.Meta.ApprovedAt = &now

	return true, nil
}

// Ship moves an approved order to PROCESSING. A repeated call is a no-op.
func (o *Order) Ship(actor string) (bool, error) {
	if err := o.guard(); err != nil {
		return false, err
	}
	if o.Meta.LastState == StateProcessing || o.State == StateShipped {
		return false, nil
	}
	if o.Locked {
		return false, ErrOrderLocked
	}
	if err := o.transition(StateProcessing, actor, ""); err != nil {
		return false, err
	}
	return true, nil
}

// Dispatch records the carrier hand-off
func (o *Order) Dispatch(carrier, trackingNumber, actor string) error {
	if err := o.guard(); err != nil {
		return err
	}
	if carrier == "" || trackingNumber == "" {
		return ErrMissingCarrier
	}
	if o.Locked {
		return ErrOrderLocked
	}
	if err := o.transition(StateShipped, actor, ""); err != nil {
		return err
	}
	o.Meta.Tracking = &Tracking{
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		DispatchedAt:   o.UpdatedAt,
	}
	return nil
}

// RecordReceipt appends a package sub-receipt while goods are in transit
func (o *Order) RecordReceipt(pkg PackageReceipt, backupSerials map[string][]string) error {
	if err := o.guard(); err != nil {
		return err
	}
	if o.Locked {
		return ErrOrderLocked
	}
	if !o.State.IsInTransit() {
		return fmt.Errorf("%w: cannot record receipt in %s", ErrInvalidTransition, o.State)
	}
	if len(pkg.Items) == 0 && len(pkg.CountedItems) == 0 && len(backupSerials) == 0 {
		return fmt.Errorf("%w: receipt is empty", ErrInvalidReceipt)
	}
	if err := validateLines(pkg.Items); err != nil {
		return err
	}
	if err := validateLines(pkg.CountedItems); err != nil {
		return err
	}
	for _, lines := range [][]ReceiptLine{pkg.Items, pkg.CountedItems} {
		for _, line := range lines {
			if o.Quantity(line.SKU) == 0 {
				return fmt.Errorf("%w: %s is not part of the order", ErrInvalidReceipt, line.SKU)
			}
		}
	}

	if o.Meta.TrackingReceipt == nil {
		o.Meta.TrackingReceipt = &TrackingReceipt{}
	}
	tr := o.Meta.TrackingReceipt
	if len(pkg.Items) > 0 || len(pkg.CountedItems) > 0 {
		tr.Packages = append(tr.Packages, pkg)
	}
	for sku, serials := range backupSerials {
		if tr.BackupSerials == nil {
			tr.BackupSerials = make(map[string][]string)
		}
		tr.BackupSerials[sku] = append(tr.BackupSerials[sku], serials...)
	}
	o.UpdatedAt = time.Now().UTC()

	return nil
}

// RequestReturn declares returned goods and whether a replacement is wanted
func (o *Order) RequestReturn(details ReturnDetails) error {
	if err := o.guard(); err != nil {
		return err
	}
	if details.TrackingSlug == "" || details.TrackingNumber == "" {
		return ErrMissingTracking
	}
	if o.Locked {
		return ErrOrderLocked
	}
	if !o.State.IsInTransit() {
		return fmt.Errorf("%w: cannot request return in %s", ErrInvalidTransition, o.State)
	}
	if len(details.Items) == 0 {
		return fmt.Errorf("%w: no returned items", ErrInvalidReturn)
	}
	returned := make(map[string]int, len(details.Items))
	for _, item := range details.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidReturn, ErrInvalidQuantity)
		}
		returned[item.SKU] += item.Quantity
		if returned[item.SKU] > o.Quantity(item.SKU) {
			return fmt.Errorf("%w: %s returns more than ordered", ErrInvalidReturn, item.SKU)
		}
	}

	details.Total = TotalQuantity(details.Items)
	if details.RequestedAt.IsZero() {
		details.RequestedAt = time.Now().UTC()
	}
	o.Meta.ReturnDetails = &details
	o.UpdatedAt = time.Now().UTC()
	o.addDomainEvent(NewReturnRequestedEvent(o))

	return nil
}

// WantsReplacement reports whether completion should spawn a replacement
func (o *Order) WantsReplacement() bool {
	r := o.Meta.ReturnDetails
	return r != nil && r.Replacement && r.Total > 0 && r.ReplacementOrder == 0
}

// Complete locks the order and moves it to RECEIVED. It returns false
// without error when the order is already locked.
func (o *Order) Complete(actor string) (bool, error) {
	if err := o.guard(); err != nil {
		return false, err
	}
	if o.Locked {
		return false, nil
	}
	if !o.State.IsInTransit() {
		return false, fmt.Errorf("%w: cannot complete in %s", ErrInvalidTransition, o.State)
	}
	if err := o.transition(StateReceived, actor, ""); err != nil {
		return false, err
	}

	now := o.UpdatedAt
	o.Locked = true
	o.Meta.CompletedAt = &now

	return true, nil
}

// Close archives a received order
func (o *Order) Close(actor string) error {
	if err := o.guard(); err != nil {
		return err
	}
	return o.transition(StateComplete, actor, "")
}

// Reject locks the order with a memo. Stock is not reverted.
func (o *Order) Reject(actor, memo string) error {
	if err := o.guard(); err != nil {
		return err
	}
	if o.State.IsTerminal() {
		return fmt.Errorf("%w: cannot reject in %s", ErrInvalidTransition, o.State)
	}
	if err := o.transition(StateRejected, actor, memo); err != nil {
		return err
	}
	o.Locked = true
	o.Meta.RejectionMemo = memo
	return nil
}

// CanDelete checks the delete guards
func (o *Order) CanDelete(now time.Time, staleness time.Duration, sandbox bool) error {
	if o.State.IsDeleteRestricted() {
		return fmt.Errorf("%w: %s", ErrDeleteRestricted, o.State)
	}
	if !sandbox && now.Sub(o.UpdatedAt) < staleness {
		return ErrDeleteTooRecent
	}
	return nil
}

// MarkRemoved records the removal event before the order is deleted
func (o *Order) MarkRemoved() {
	o.addDomainEvent(NewOrderRemovedEvent(o))
}

// RecordVariances stores the per-SKU variance summary
func (o *Order) RecordVariances(variances []Variance) {
	o.Meta.Variances = variances
	o.UpdatedAt = time.Now().UTC()
}

// RecordFinalCost stores the invoiced total and its breakdown
func (o *Order) RecordFinalCost(total decimal.Decimal, details *FinalCostDetails) {
	o.Meta.FinalCost = &total
	o.Meta.FinalCostDetails = details
	o.UpdatedAt = time.Now().UTC()
}

// AddSerialReferences appends serial effects for revert
func (o *Order) AddSerialReferences(refs ...SerialReference) {
	o.Meta.SerialReferences = append(o.Meta.SerialReferences, refs...)
}

// LinkReplacement records the spawned replacement order
func (o *Order) LinkReplacement(childID int64) {
	if o.Meta.ReturnDetails != nil {
		o.Meta.ReturnDetails.ReplacementOrder = childID
	}
}

// addDomainEvent adds a domain event
func (o *Order) addDomainEvent(event DomainEvent) {
	o.domainEvents = append(o.domainEvents, event)
}

// DomainEvents returns all pending domain events
func (o *Order) DomainEvents() []DomainEvent {
	return o.domainEvents
}

// ClearDomainEvents clears all pending domain events
func (o *Order) ClearDomainEvents() {
	o.domainEvents = make([]DomainEvent, 0)
}
