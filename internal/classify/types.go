package classify

import (
	"slices"
	"strings"
)

// Standard document type codes, in model output order.
const (
	TypeBOL                = "BOL"
	TypePOD                = "POD"
	TypeInvoice            = "INVOICE"
	TypeRateConfirmation   = "RATE_CONFIRMATION"
	TypeCustomsDeclaration = "CUSTOMS_DECLARATION"
	TypeWeightTicket       = "WEIGHT_TICKET"
	TypeLumperReceipt      = "LUMPER_RECEIPT"
	TypeFuelReceipt        = "FUEL_RECEIPT"
	TypeDeliveryReceipt    = "DELIVERY_RECEIPT"
	TypeOther              = "OTHER"
)

type typeInfo struct {
	code        string
	description string
}

var standardTypes = []typeInfo{
	{TypeBOL, "Bill of Lading"},
	{TypePOD, "Proof of Delivery"},
	{TypeInvoice, "Freight Invoice"},
	{TypeRateConfirmation, "Rate Confirmation Sheet"},
	{TypeCustomsDeclaration, "Customs Declaration Form"},
	{TypeWeightTicket, "Scale Weight Ticket"},
	{TypeLumperReceipt, "Lumper Service Receipt"},
	{TypeFuelReceipt, "Fuel Purchase Receipt"},
	{TypeDeliveryReceipt, "Delivery Receipt"},
	{TypeOther, "Other Document Type"},
}

// NumStandardTypes is the size of the base classifier head.
var NumStandardTypes = len(standardTypes)

// StandardTypeCodes returns the type codes in model output order.
func StandardTypeCodes() []string {
	codes := make([]string, len(standardTypes))
	for i, t := range standardTypes {
		codes[i] = t.code
	}
	return codes
}

// StandardDocumentTypes maps each code to its description.
func StandardDocumentTypes() map[string]string {
	m := make(map[string]string, len(standardTypes))
	for _, t := range standardTypes {
		m[t.code] = t.description
	}
	return m
}

// IsStandardType reports whether code is one of the standard types. Codes
// are case sensitive.
func IsStandardType(code string) bool {
	return slices.ContainsFunc(standardTypes, func(t typeInfo) bool { return t.code == code })
}

// DocumentType is a base type, optionally refined by a customer template.
type DocumentType struct {
	BaseType   string
	CustomerID string
	TemplateID string
}

// FullType joins the non-empty parts as customer_base_template.
func (d DocumentType) FullType() string {
	parts := make([]string, 0, 3)
	if d.CustomerID != "" {
		parts = append(parts, d.CustomerID)
	}
	parts = append(parts, d.BaseType)
	if d.TemplateID != "" {
		parts = append(parts, d.TemplateID)
	}
	return strings.Join(parts, "_")
}
