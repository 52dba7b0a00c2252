package persistence

import (
	"gorm.io/gorm"

	"github.com/spa/backend/internal/domain/shared"
)

// InvoiceSortFields contains allowed sort fields for invoices
var InvoiceSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"invoice_number": true,
	"status":         true,
	"total":          true,
	"balance_due":    true,
	"due_date":       true,
	"issued_at":      true,
}

// PaymentSortFields contains allowed sort fields for payments
var PaymentSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"payment_number": true,
	"amount":         true,
	"method":         true,
	"received_at":    true,
}

// RefundSortFields contains allowed sort fields for refunds
var RefundSortFields = map[string]bool{
	"id":            true,
	"created_at":    true,
	"updated_at":    true,
	"refund_number": true,
	"amount":        true,
	"status":        true,
	"requested_at":  true,
	"processed_at":  true,
}

// DepositSortFields contains allowed sort fields for deposits
var DepositSortFields = map[string]bool{
	"id":             true,
	"created_at":     true,
	"updated_at":     true,
	"deposit_number": true,
	"amount":         true,
	"status":         true,
	"collected_at":   true,
	"expires_at":     true,
}

// applyBillingFilter applies pagination and ordering from a shared.Filter.
// Sort fields are validated against the given whitelist to keep user input
// out of raw SQL.
func applyBillingFilter(query *gorm.DB, filter shared.Filter, sortFields map[string]bool) *gorm.DB {
	query = applyBillingFilterWithoutPagination(query, filter)

	query = query.Offset(filter.Offset()).Limit(filter.Limit())

	orderBy := ValidateSortField(filter.OrderBy, sortFields, "created_at")
	orderDir := ValidateSortOrder(filter.OrderDir)
	return query.Order(orderBy + " " + orderDir)
}

// applyBillingFilterWithoutPagination applies the filter's equality
// conditions without pagination or ordering. Used by Count.
func applyBillingFilterWithoutPagination(query *gorm.DB, filter shared.Filter) *gorm.DB {
	for field, value := range filter.Filters {
		query = query.Where(field+" = ?", value)
	}
	return query
}
