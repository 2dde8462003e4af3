package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/fields"
	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// Staging columns that are not business fields.
const (
	ColRawID          = "raw_id"
	ColSheetRowNumber = "sheet_row_number"
	ColReceivedAt     = "received_at"
	ColSourceType     = "source_type"
	ColFingerprint    = "payload_hash"
	ColRawPayload     = "raw_payload"
)

// StagingColumns is the column order used for every staging write and read.
var StagingColumns = []string{
	ColRawID, ColSheetRowNumber, ColReceivedAt, ColSourceType,
	fields.Date, fields.PaymentDate,
	fields.Task, fields.Type,
	fields.Year, fields.Hours, fields.Month,
	fields.Client, fields.FxRub, fields.FxUsd, fields.Vendor, fields.Cashier,
	fields.CatNew, fields.Quarter, fields.Service, fields.Approver,
	fields.Category, fields.Currency, fields.CatFinal,
	fields.TotalRub, fields.TotalUsd,
	fields.SubcatNew, fields.Paket, fields.Description, fields.Subcategory,
	fields.PaymentDateOrig, fields.SubcatFinal, fields.CountVendor,
	fields.Statya, fields.SumTotalRub, fields.UsdSumma, fields.DirectIndirect,
	fields.PackageSecond, fields.TotalInCurrency, fields.RubSumma,
	fields.Kategoriya, fields.Podstatya, fields.VidyRaskhodov,
	ColFingerprint, ColRawPayload,
	fields.CreatedAt, fields.UpdatedAt, fields.UpdatedBy,
}

// Pointers returns the address of every field in StagingColumns order.
// Nullable columns are pointer-to-pointer.
func (r *StagingRecord) Pointers() []any {
	return []any{
		&r.RawID, &r.SheetRowNumber, &r.ReceivedAt, &r.SourceType,
		&r.Date, &r.PaymentDate,
		&r.Task, &r.Type,
		&r.Year, &r.Hours, &r.Month,
		&r.Client, &r.FxRub, &r.FxUsd, &r.Vendor, &r.Cashier,
		&r.CatNew, &r.Quarter, &r.Service, &r.Approver,
		&r.Category, &r.Currency, &r.CatFinal,
		&r.TotalRub, &r.TotalUsd,
		&r.SubcatNew, &r.Paket, &r.Description, &r.Subcategory,
		&r.PaymentDateOrig, &r.SubcatFinal, &r.CountVendor,
		&r.Statya, &r.SumTotalRub, &r.UsdSumma, &r.DirectIndirect,
		&r.PackageSecondary, &r.TotalInCurrency, &r.RubSumma,
		&r.Kategoriya, &r.Podstatya, &r.VidyRaskhodov,
		&r.Fingerprint, &r.RawPayload,
		&r.CreatedAt, &r.UpdatedAt, &r.UpdatedBy,
	}
}

// Values returns every field value in StagingColumns order. Nullable fields
// are returned as typed nil pointers when absent.
func (r *StagingRecord) Values() []any {
	ptrs := r.Pointers()
	values := make([]any, len(ptrs))
	for i, p := range ptrs {
		switch x := p.(type) {
		case *string:
			values[i] = *x
		case **string:
			values[i] = *x
		case **int64:
			values[i] = *x
		case *time.Time:
			values[i] = *x
		case **time.Time:
			values[i] = *x
		case **decimal.Decimal:
			values[i] = *x
		case *payload.Object:
			values[i] = *x
		}
	}
	return values
}

// TextField returns the slot for a canonical text column, or nil.
func (r *StagingRecord) TextField(column string) **string {
	switch column {
	case fields.Task:
		return &r.Task
	case fields.Type:
		return &r.Type
	case fields.Client:
		return &r.Client
	case fields.Vendor:
		return &r.Vendor
	case fields.Cashier:
		return &r.Cashier
	case fields.Service:
		return &r.Service
	case fields.Approver:
		return &r.Approver
	case fields.Category:
		return &r.Category
	case fields.Currency:
		return &r.Currency
	case fields.Subcategory:
		return &r.Subcategory
	case fields.Description:
		return &r.Description
	case fields.DirectIndirect:
		return &r.DirectIndirect
	case fields.CatNew:
		return &r.CatNew
	case fields.CatFinal:
		return &r.CatFinal
	case fields.SubcatNew:
		return &r.SubcatNew
	case fields.SubcatFinal:
		return &r.SubcatFinal
	case fields.Kategoriya:
		return &r.Kategoriya
	case fields.Podstatya:
		return &r.Podstatya
	case fields.Statya:
		return &r.Statya
	case fields.VidyRaskhodov:
		return &r.VidyRaskhodov
	case fields.Paket:
		return &r.Paket
	case fields.PackageSecond:
		return &r.PackageSecondary
	case fields.UpdatedBy:
		return &r.UpdatedBy
	default:
		return nil
	}
}

// TimestampField returns the slot for a canonical timestamp column, or nil.
func (r *StagingRecord) TimestampField(column string) **time.Time {
	switch column {
	case fields.Date:
		return &r.Date
	case fields.PaymentDate:
		return &r.PaymentDate
	case fields.PaymentDateOrig:
		return &r.PaymentDateOrig
	case fields.CreatedAt:
		return &r.CreatedAt
	case fields.UpdatedAt:
		return &r.UpdatedAt
	default:
		return nil
	}
}

// IntegerField returns the slot for a canonical integer column, or nil.
func (r *StagingRecord) IntegerField(column string) **int64 {
	switch column {
	case fields.Year:
		return &r.Year
	case fields.Month:
		return &r.Month
	case fields.Quarter:
		return &r.Quarter
	case fields.CountVendor:
		return &r.CountVendor
	default:
		return nil
	}
}

// DecimalField returns the slot for a canonical decimal column, or nil.
func (r *StagingRecord) DecimalField(column string) **decimal.Decimal {
	switch column {
	case fields.Hours:
		return &r.Hours
	case fields.FxRub:
		return &r.FxRub
	case fields.FxUsd:
		return &r.FxUsd
	case fields.TotalRub:
		return &r.TotalRub
	case fields.TotalUsd:
		return &r.TotalUsd
	case fields.SumTotalRub:
		return &r.SumTotalRub
	case fields.TotalInCurrency:
		return &r.TotalInCurrency
	case fields.RubSumma:
		return &r.RubSumma
	case fields.UsdSumma:
		return &r.UsdSumma
	default:
		return nil
	}
}
