/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the billing model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND QUANTITIES:
  decimal.Decimal fields are encoded as JSON strings ("12.50") so no
  precision is lost. Requests accept either a string or a number.

VALIDATION:
  Validation is done by the billing types and the store, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go, invoices.go: Use these types
  - billing/types.go: Domain entities
*/
package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/costshare/billing"
	"github.com/warp/costshare/export"
	"github.com/warp/costshare/store/sqlstore"
)

// =============================================================================
// GROUPS AND MEMBERS
// =============================================================================

type GroupDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ManagerID   string    `json:"manager_id,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ManagerID   string `json:"manager_id"`
}

type MemberDTO struct {
	ID        uuid.UUID       `json:"id"`
	GroupID   uuid.UUID       `json:"group_id"`
	FullName  string          `json:"full_name"`
	Email     string          `json:"email,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	Address   string          `json:"address,omitempty"`
	FloorArea decimal.Decimal `json:"floor_area"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt string          `json:"created_at"`
}

// MemberRequest is the body of member create and update.
type MemberRequest struct {
	FullName  string          `json:"full_name"`
	Email     string          `json:"email"`
	Phone     string          `json:"phone"`
	Address   string          `json:"address"`
	FloorArea decimal.Decimal `json:"floor_area"`
	Balance   decimal.Decimal `json:"balance"`
}

// =============================================================================
// METERS AND READINGS
// =============================================================================

type MeterDTO struct {
	ID           uuid.UUID `json:"id"`
	MemberID     uuid.UUID `json:"member_id"`
	MeterType    string    `json:"meter_type"`
	Unit         string    `json:"unit"`
	Description  string    `json:"description,omitempty"`
	SerialNumber string    `json:"serial_number,omitempty"`
}

// MeterRequest is the body of meter create and update. The unit is always
// derived from the meter type.
type MeterRequest struct {
	MeterType    string `json:"meter_type"`
	Description  string `json:"description"`
	SerialNumber string `json:"serial_number"`
}

type ReadingDTO struct {
	ID       uuid.UUID       `json:"id"`
	MeterID  uuid.UUID       `json:"meter_id"`
	PeriodID uuid.UUID       `json:"period_id"`
	Value    decimal.Decimal `json:"value"`
	Meter    *MeterDTO       `json:"meter,omitempty"`
	Period   string          `json:"period,omitempty"`
}

type CreateReadingRequest struct {
	MeterID  uuid.UUID       `json:"meter_id"`
	PeriodID uuid.UUID       `json:"period_id"`
	Value    decimal.Decimal `json:"value"`
}

// =============================================================================
// PERIODS AND CHARGES
// =============================================================================

type PeriodDTO struct {
	ID    uuid.UUID `json:"id"`
	Year  int       `json:"year"`
	Month int       `json:"month"`
	Label string    `json:"label"`
}

type CreatePeriodRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type ChargeDefinitionDTO struct {
	ID               uuid.UUID `json:"id"`
	GroupID          uuid.UUID `json:"group_id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	DistributionType string    `json:"distribution_type"`
	Currency         string    `json:"currency"`
	MeterType        string    `json:"meter_type,omitempty"`
}

type ChargeDefinitionRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	DistributionType string `json:"distribution_type"`
	Currency         string `json:"currency"`
	MeterType        string `json:"meter_type"`
}

type PeriodChargeDTO struct {
	ID         uuid.UUID           `json:"id"`
	GroupID    uuid.UUID           `json:"group_id"`
	PeriodID   uuid.UUID           `json:"period_id"`
	Definition ChargeDefinitionDTO `json:"definition"`
	Amount     decimal.Decimal     `json:"amount"`
	Currency   string              `json:"currency"`
}

type CreatePeriodChargeRequest struct {
	DefinitionID uuid.UUID       `json:"definition_id"`
	PeriodID     uuid.UUID       `json:"period_id"`
	Amount       decimal.Decimal `json:"amount"`
}

// =============================================================================
// INVOICES
// =============================================================================

type InvoiceSummaryDTO struct {
	ID            uuid.UUID       `json:"id"`
	MemberID      uuid.UUID       `json:"member_id"`
	PeriodID      uuid.UUID       `json:"period_id"`
	Number        string          `json:"number"`
	Date          string          `json:"date"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PayableAmount decimal.Decimal `json:"payable_amount"`
	Balance       decimal.Decimal `json:"balance"`
}

// InvoiceDTO is an invoice with its items in display order.
type InvoiceDTO struct {
	InvoiceSummaryDTO
	Items     []InvoiceItemDTO `json:"items"`
	Footnotes []FootnoteDTO    `json:"footnotes"`
}

type InvoiceItemDTO struct {
	ID             uuid.UUID        `json:"id"`
	Description    string           `json:"description"`
	Quantity       decimal.Decimal  `json:"quantity"`
	Unit           string           `json:"unit,omitempty"`
	UnitPrice      decimal.Decimal  `json:"unit_price"`
	Total          decimal.Decimal  `json:"total"`
	Currency       string           `json:"currency,omitempty"`
	MeterID        *uuid.UUID       `json:"meter_id,omitempty"`
	PeriodChargeID *uuid.UUID       `json:"period_charge_id,omitempty"`
	StartValue     *decimal.Decimal `json:"start_value,omitempty"`
	EndValue       *decimal.Decimal `json:"end_value,omitempty"`
	Consumed       *decimal.Decimal `json:"consumed,omitempty"`
	SupplierAmount *decimal.Decimal `json:"supplier_amount,omitempty"`
	TotalDiff      *decimal.Decimal `json:"total_diff,omitempty"`
	Footnote       int              `json:"footnote,omitempty"`
}

type FootnoteDTO struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toGroupDTO(g billing.Group) GroupDTO {
	return GroupDTO{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		ManagerID:   g.ManagerID,
		CreatedAt:   g.CreatedAt.Format(time.RFC3339),
	}
}

func toMemberDTO(m billing.Member) MemberDTO {
	return MemberDTO{
		ID:        m.ID,
		GroupID:   m.GroupID,
		FullName:  m.FullName,
		Email:     m.Email,
		Phone:     m.Phone,
		Address:   m.Address,
		FloorArea: m.FloorArea,
		Balance:   m.Balance,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
}

func (req MemberRequest) member() billing.Member {
	return billing.Member{
		FullName:  req.FullName,
		Email:     req.Email,
		Phone:     req.Phone,
		Address:   req.Address,
		FloorArea: req.FloorArea,
		Balance:   req.Balance,
	}
}

func toMeterDTO(m billing.Meter) MeterDTO {
	return MeterDTO{
		ID:           m.ID,
		MemberID:     m.MemberID,
		MeterType:    string(m.Type),
		Unit:         string(m.Unit()),
		Description:  m.Description,
		SerialNumber: m.SerialNumber,
	}
}

func toReadingDTO(rec sqlstore.ReadingRecord) ReadingDTO {
	meter := toMeterDTO(rec.Meter)
	return ReadingDTO{
		ID:       rec.ID,
		MeterID:  rec.MeterID,
		PeriodID: rec.PeriodID,
		Value:    rec.Value,
		Meter:    &meter,
		Period:   rec.Period.String(),
	}
}

func toPeriodDTO(p billing.Period) PeriodDTO {
	return PeriodDTO{ID: p.ID, Year: p.Year, Month: p.Month, Label: p.String()}
}

func toDefinitionDTO(d billing.ChargeDefinition) ChargeDefinitionDTO {
	return ChargeDefinitionDTO{
		ID:               d.ID,
		GroupID:          d.GroupID,
		Name:             d.Name,
		Description:      d.Description,
		DistributionType: string(d.Rule),
		Currency:         string(d.Currency),
		MeterType:        string(d.MeterType),
	}
}

func (req ChargeDefinitionRequest) definition(groupID uuid.UUID) billing.ChargeDefinition {
	return billing.ChargeDefinition{
		GroupID:     groupID,
		Name:        req.Name,
		Description: req.Description,
		Rule:        billing.Rule(req.DistributionType),
		Currency:    billing.Currency(req.Currency),
		MeterType:   billing.MeterType(req.MeterType),
	}
}

func toPeriodChargeDTO(pc billing.PeriodCharge) PeriodChargeDTO {
	return PeriodChargeDTO{
		ID:         pc.ID,
		GroupID:    pc.GroupID,
		PeriodID:   pc.PeriodID,
		Definition: toDefinitionDTO(pc.Definition),
		Amount:     pc.Amount,
		Currency:   string(pc.Currency()),
	}
}

func toInvoiceSummaryDTO(inv billing.Invoice) InvoiceSummaryDTO {
	return InvoiceSummaryDTO{
		ID:            inv.ID,
		MemberID:      inv.MemberID,
		PeriodID:      inv.PeriodID,
		Number:        inv.Number,
		Date:          inv.Date.Format("2006-01-02"),
		TotalAmount:   inv.TotalAmount,
		PayableAmount: inv.PayableAmount,
		Balance:       inv.Balance,
	}
}

func toInvoiceDTO(inv billing.Invoice) InvoiceDTO {
	lines, notes := export.Lines(inv)

	dto := InvoiceDTO{
		InvoiceSummaryDTO: toInvoiceSummaryDTO(inv),
		Items:             make([]InvoiceItemDTO, 0, len(lines)),
		Footnotes:         make([]FootnoteDTO, 0, len(notes)),
	}
	for _, l := range lines {
		it := l.Item
		item := InvoiceItemDTO{
			ID:             it.ID,
			Description:    it.Description,
			Quantity:       it.Quantity,
			Unit:           it.Unit().Display(),
			UnitPrice:      it.UnitPrice,
			Total:          it.Total,
			Currency:       string(it.Currency()),
			StartValue:     it.StartValue,
			EndValue:       it.EndValue,
			Consumed:       it.Consumed,
			SupplierAmount: it.SupplierAmount,
			TotalDiff:      it.TotalDiff,
			Footnote:       l.Footnote,
		}
		if id := it.MeterID(); id.Valid {
			item.MeterID = &id.UUID
		}
		if id := it.PeriodChargeID(); id.Valid {
			item.PeriodChargeID = &id.UUID
		}
		dto.Items = append(dto.Items, item)
	}
	for _, n := range notes {
		dto.Footnotes = append(dto.Footnotes, FootnoteDTO{Number: n.Number, Text: n.Text})
	}
	return dto
}
