package application

import (
	"github.com/wms-platform/transfer-service/internal/domain"
)

// ToOrderDTO converts a domain Order to OrderDTO
func ToOrderDTO(order *domain.Order) *OrderDTO {
	if order == nil {
		return nil
	}

	dto := &OrderDTO{
		ID:            order.ID,
		TransactionID: order.TransactionID,
		Scope:         string(order.Scope),
		State:         string(order.State),
		LastState:     string(order.Meta.LastState),
		From:          order.From,
		To:            order.To,
		Schema:        order.Schema,
		Items:         toItemDTOs(order.Items),
		ItemsCount:    order.Meta.ItemsCount,
		Locked:        order.Locked,
		Parent:        order.Parent,
		Requester:     order.Requester,
		Approver:      order.Approver,
		FinalCost:     order.Meta.FinalCost,
		Currency:      order.Meta.Currency,
		RejectionMemo: order.Meta.RejectionMemo,
		ApprovedAt:    order.Meta.ApprovedAt,
		CompletedAt:   order.Meta.CompletedAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}

	if pc := order.Meta.ProjectedCost; pc != nil {
		total := pc.Total
		dto.ProjectedCost = &total
		if dto.Currency == "" {
			dto.Currency = pc.Currency
		}
	}

	if d := order.Meta.FinalCostDetails; d != nil {
		dto.Invoiced = d.Invoiced
		dto.InvoiceError = d.InvoiceError
	}

	if t := order.Meta.Tracking; t != nil {
		dto.Tracking = &TrackingDTO{
			Carrier:        t.Carrier,
			TrackingNumber: t.TrackingNumber,
			DispatchedAt:   t.DispatchedAt,
		}
	}

	if r := order.Meta.ReturnDetails; r != nil {
		dto.Return = &ReturnDTO{
			Items:            toItemDTOs(r.Items),
			Total:            r.Total,
			Replacement:      r.Replacement,
			TrackingSlug:     r.TrackingSlug,
			TrackingNumber:   r.TrackingNumber,
			ReplacementOrder: r.ReplacementOrder,
		}
	}

	for _, v := range order.Meta.Variances {
		dto.Variances = append(dto.Variances, VarianceDTO{
			SKU:      v.SKU,
			Node:     v.Node.Hex(),
			Quantity: v.Quantity,
			Value:    v.Value,
		})
	}

	return dto
}

// ToVarianceDTO converts a variance row
func ToVarianceDTO(v *domain.ItemVariance) VarianceDTO {
	initial := v.InitialValue
	return VarianceDTO{
		SKU:          v.SKU,
		Node:         v.Node.Hex(),
		Station:      v.Station,
		Quantity:     v.Quantity,
		Value:        v.Value,
		InitialValue: &initial,
		Currency:     v.Currency,
	}
}

func toItemDTOs(items []domain.OrderItem) []OrderItemDTO {
	dtos := make([]OrderItemDTO, len(items))
	for i, item := range items {
		dtos[i] = OrderItemDTO{
			ItemID:   item.ItemID,
			SKU:      item.SKU,
			Quantity: item.Quantity,
		}
	}
	return dtos
}
