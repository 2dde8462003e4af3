// Package models holds the raw-layer and staging-layer record types.
package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/riliasov/chilekids-etl-pipeline/transform/pkg/payload"
)

// Default values for record provenance.
const (
	DefaultSource     = "google_sheets"
	DefaultSourceType = "live"
)

// RawRecord is one row as delivered by an extractor. Raw records are append
// mostly: inserting an existing ID is a no-op, and only a missing
// Fingerprint may be filled in later.
type RawRecord struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Payload     payload.Object `json:"payload"`
	Fingerprint string         `json:"fingerprint,omitempty"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// RawRow is a raw record as stored, before its JSON is decoded.
type RawRow struct {
	ID          string
	Payload     []byte
	Fingerprint string // empty for legacy rows
	ReceivedAt  time.Time
}

// RawRecordView is a decoded raw row selected for normalization.
type RawRecordView struct {
	RawID          string
	SheetRowNumber *int64
	ReceivedAt     time.Time
	// Payload is usually an object; other shapes are rejected by the
	// normalizer, not here.
	Payload     payload.Value
	Fingerprint string
	// Size is the stored payload size in bytes.
	Size int
	// Repaired is set when Fingerprint was recomputed because the stored
	// value was missing.
	Repaired bool
}

// FingerprintStats summarizes fingerprint coverage of one source.
type FingerprintStats struct {
	Source  string `json:"source" yaml:"source"`
	Total   int64  `json:"total" yaml:"total"`
	Filled  int64  `json:"filled" yaml:"filled"`
	Missing int64  `json:"missing" yaml:"missing"`
}

// StagingRecord is one normalized row of staging.records.
type StagingRecord struct {
	RawID          string    `json:"raw_id"`
	SheetRowNumber *int64    `json:"sheet_row_number,omitempty"`
	ReceivedAt     time.Time `json:"received_at"`
	SourceType     string    `json:"source_type"`

	Date            *time.Time `json:"date,omitempty"`
	PaymentDate     *time.Time `json:"payment_date,omitempty"`
	PaymentDateOrig *time.Time `json:"payment_date_orig,omitempty"`

	Task             *string `json:"task,omitempty"`
	Type             *string `json:"type,omitempty"`
	Client           *string `json:"client,omitempty"`
	Vendor           *string `json:"vendor,omitempty"`
	Cashier          *string `json:"cashier,omitempty"`
	Service          *string `json:"service,omitempty"`
	Approver         *string `json:"approver,omitempty"`
	Category         *string `json:"category,omitempty"`
	Currency         *string `json:"currency,omitempty"`
	Subcategory      *string `json:"subcategory,omitempty"`
	Description      *string `json:"description,omitempty"`
	DirectIndirect   *string `json:"direct_indirect,omitempty"`
	CatNew           *string `json:"cat_new,omitempty"`
	CatFinal         *string `json:"cat_final,omitempty"`
	SubcatNew        *string `json:"subcat_new,omitempty"`
	SubcatFinal      *string `json:"subcat_final,omitempty"`
	Kategoriya       *string `json:"kategoriya,omitempty"`
	Podstatya        *string `json:"podstatya,omitempty"`
	Statya           *string `json:"statya,omitempty"`
	VidyRaskhodov    *string `json:"vidy_raskhodov,omitempty"`
	Paket            *string `json:"paket,omitempty"`
	PackageSecondary *string `json:"package_secondary,omitempty"`

	Year        *int64 `json:"year,omitempty"`
	Month       *int64 `json:"month,omitempty"`
	Quarter     *int64 `json:"quarter,omitempty"`
	CountVendor *int64 `json:"count_vendor,omitempty"`

	Hours           *decimal.Decimal `json:"hours,omitempty"`
	FxRub           *decimal.Decimal `json:"fx_rub,omitempty"`
	FxUsd           *decimal.Decimal `json:"fx_usd,omitempty"`
	TotalRub        *decimal.Decimal `json:"total_rub,omitempty"`
	TotalUsd        *decimal.Decimal `json:"total_usd,omitempty"`
	SumTotalRub     *decimal.Decimal `json:"sum_total_rub,omitempty"`
	TotalInCurrency *decimal.Decimal `json:"total_in_currency,omitempty"`
	RubSumma        *decimal.Decimal `json:"rub_summa,omitempty"`
	UsdSumma        *decimal.Decimal `json:"usd_summa,omitempty"`

	Fingerprint string         `json:"fingerprint"`
	RawPayload  payload.Object `json:"raw_payload"`

	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	UpdatedBy *string    `json:"updated_by,omitempty"`
}

// sheetIDPrefix starts raw ids derived from a spreadsheet row position.
const sheetIDPrefix = "gsheet_"

// SheetRowID builds the raw id of a spreadsheet row that has no explicit id.
// digest identifies the row content.
func SheetRowID(row int64, digest string) string {
	return sheetIDPrefix + strconv.FormatInt(row, 10) + "_" + digest
}

// SheetRowFromID recovers the row number from an id built by SheetRowID.
func SheetRowFromID(id string) *int64 {
	rest, ok := strings.CutPrefix(id, sheetIDPrefix)
	if !ok {
		return nil
	}
	num, _, ok := strings.Cut(rest, "_")
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}
