package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReplacementShortcode returns the suffix used in replacement transaction ids
func ReplacementShortcode() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// BuildReplacement synthesizes the external child order for returned goods.
// The child starts APPROVED with zeroed costs and points back at parent.
func BuildReplacement(parent *Order, id int64) (*Order, error) {
	r := parent.Meta.ReturnDetails
	if r == nil || r.Total <= 0 || len(r.Items) == 0 {
		return nil, ErrInvalidReturn
	}
	if id == 0 {
		return nil, ErrMissingID
	}

	items := make([]OrderItem, len(r.Items))
	copy(items, r.Items)

	requester := r.Requester
	if requester == "" {
		requester = parent.Requester
	}
	approver := r.Approver
	if approver == "" {
		approver = parent.Approver
	}

	now := time.Now().UTC()
	child := &Order{
		ID:            id,
		TransactionID: parent.TransactionID + "/ret-" + ReplacementShortcode(),
		Scope:         ScopeExternal,
		State:         StateApproved,
		From:          parent.From,
		To:            parent.To,
		Schema:        parent.Schema,
		Items:         items,
		Parent:        parent.ID,
		Requester:     requester,
		Approver:      approver,
		Meta: Meta{
			LastState:  StateApproved,
			ItemsCount: r.Total,
			Currency:   parent.Meta.Currency,
			ApprovedAt: &now,
		},
		CreatedAt:    now,
		UpdatedAt:    now,
		domainEvents: make([]DomainEvent, 0),
	}

	child.addDomainEvent(NewOrderCreatedEvent(child))

	return child, nil
}
