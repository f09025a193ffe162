/*
handlers.go - HTTP API handlers for the cost-sharing service

PURPOSE:
  Exposes groups, members, meters, readings and charge configuration via a
  REST API. Handles HTTP request/response, JSON serialization, and delegates
  validation to the billing types and the store.

ENDPOINTS:
  Groups:
    GET    /api/groups                            List groups
    POST   /api/groups                            Create group
    GET    /api/groups/{groupID}                  Get group

  Members:
    GET    /api/groups/{groupID}/members          List members
    POST   /api/groups/{groupID}/members          Create member
    GET    /api/groups/{groupID}/members/{id}     Get member
    PUT    /api/groups/{groupID}/members/{id}     Update member

  Meters and readings:
    GET    /api/groups/{groupID}/meters           All meters of the group
    GET    /api/members/{memberID}/meters         Meters of a member
    POST   /api/members/{memberID}/meters         Create meter
    PUT    /api/members/{memberID}/meters/{id}    Update own meter
    GET    /api/members/{memberID}/readings       Readings, newest period first
    POST   /api/members/{memberID}/readings       Submit reading for own meter

  Charges and periods:
    GET    /api/groups/{groupID}/charges          Charge definitions
    POST   /api/groups/{groupID}/charges          Create definition
    PUT    /api/groups/{groupID}/charges/{id}     Update definition
    GET    /api/groups/{groupID}/period-charges   Period charges
    POST   /api/groups/{groupID}/period-charges   Create period charge
    GET    /api/groups/{groupID}/periods          Periods with charges
    GET    /api/periods                           All periods, newest first
    POST   /api/periods                           Get or create (year, month)

ERROR HANDLING:
  Errors are returned as JSON with an HTTP status chosen by statusFor:
  - 400: Malformed input, validation errors
  - 404: Resource not found, or owned by another group/member
  - 409: Conflict (duplicate reading, invoice number collision)
  - 500: Internal errors (logged)

SEE ALSO:
  - dto.go: Request/response data structures
  - invoices.go: Invoice generation, detail and export
  - scenarios.go: Demo data loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/costshare/billing"
	"github.com/warp/costshare/store/sqlstore"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlstore.Store
	Assembler *billing.Assembler
	logger    *zap.Logger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store. Extra assembler options (clock,
// number function) are passed through.
func NewHandler(store *sqlstore.Store, logger *zap.Logger, opts ...billing.Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]billing.Option{billing.WithLogger(logger)}, opts...)
	return &Handler{
		Store:     store,
		Assembler: billing.NewAssembler(store, opts...),
		logger:    logger,
	}
}

// Health pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// ListGroups returns all groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		h.fail(w, "Failed to list groups", err)
		return
	}

	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = toGroupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup creates a new group.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !decode(w, r, &req) {
		return
	}

	g, err := h.Store.CreateGroup(r.Context(), billing.Group{
		Name:        req.Name,
		Description: req.Description,
		ManagerID:   req.ManagerID,
	})
	if err != nil {
		h.fail(w, "Failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(g))
}

// GetGroup returns a single group.
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}

	g, err := h.Store.GetGroup(r.Context(), groupID)
	if err != nil {
		h.fail(w, "Failed to get group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(*g))
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns the members of a group by name.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	if _, err := h.Store.GetGroup(r.Context(), groupID); err != nil {
		h.fail(w, "Failed to get group", err)
		return
	}

	members, err := h.Store.ListMembers(r.Context(), groupID)
	if err != nil {
		h.fail(w, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateMember adds a member to a group.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}

	m := req.member()
	m.GroupID = groupID
	created, err := h.Store.CreateMember(r.Context(), m)
	if err != nil {
		h.fail(w, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(created))
}

// GetMember returns a member of the group.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, ok := h.groupMember(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// UpdateMember overwrites a member's editable fields.
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.groupMember(w, r)
	if !ok {
		return
	}
	var req MemberRequest
	if !decode(w, r, &req) {
		return
	}

	m := req.member()
	m.ID = existing.ID
	m.GroupID = existing.GroupID
	updated, err := h.Store.UpdateMember(r.Context(), m)
	if err != nil {
		h.fail(w, "Failed to update member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(updated))
}

// groupMember loads the {memberID} member and checks it belongs to {groupID}.
func (h *Handler) groupMember(w http.ResponseWriter, r *http.Request) (billing.Member, bool) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return billing.Member{}, false
	}
	m, ok := h.member(w, r)
	if !ok {
		return billing.Member{}, false
	}
	if m.GroupID != groupID {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return billing.Member{}, false
	}
	return m, true
}

// member loads the {memberID} member.
func (h *Handler) member(w http.ResponseWriter, r *http.Request) (billing.Member, bool) {
	memberID, ok := pathID(w, r, "memberID")
	if !ok {
		return billing.Member{}, false
	}
	m, err := h.Store.GetMember(r.Context(), memberID)
	if err != nil {
		h.fail(w, "Failed to get member", err)
		return billing.Member{}, false
	}
	return *m, true
}

// =============================================================================
// METER HANDLERS
// =============================================================================

// ListGroupMeters returns the meters of every member of a group.
func (h *Handler) ListGroupMeters(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	meters, err := h.Store.GroupMeters(r.Context(), groupID)
	if err != nil {
		h.fail(w, "Failed to list meters", err)
		return
	}
	writeJSON(w, http.StatusOK, toMeterDTOs(meters))
}

// ListMemberMeters returns a member's meters.
func (h *Handler) ListMemberMeters(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	meters, err := h.Store.MemberMeters(r.Context(), m.ID)
	if err != nil {
		h.fail(w, "Failed to list meters", err)
		return
	}
	writeJSON(w, http.StatusOK, toMeterDTOs(meters))
}

// CreateMeter adds a meter to a member.
func (h *Handler) CreateMeter(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "memberID")
	if !ok {
		return
	}
	var req MeterRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.Store.CreateMeter(r.Context(), billing.Meter{
		MemberID:     memberID,
		Type:         billing.MeterType(req.MeterType),
		Description:  req.Description,
		SerialNumber: req.SerialNumber,
	})
	if err != nil {
		h.fail(w, "Failed to create meter", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMeterDTO(m))
}

// UpdateMeter changes a meter owned by the member. Another member's meter
// is reported as not found.
func (h *Handler) UpdateMeter(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "memberID")
	if !ok {
		return
	}
	meterID, ok := pathID(w, r, "meterID")
	if !ok {
		return
	}
	var req MeterRequest
	if !decode(w, r, &req) {
		return
	}

	m, err := h.Store.UpdateMeter(r.Context(), billing.Meter{
		ID:           meterID,
		MemberID:     memberID,
		Type:         billing.MeterType(req.MeterType),
		Description:  req.Description,
		SerialNumber: req.SerialNumber,
	})
	if err != nil {
		h.fail(w, "Failed to update meter", err)
		return
	}
	writeJSON(w, http.StatusOK, toMeterDTO(m))
}

func toMeterDTOs(meters []billing.Meter) []MeterDTO {
	dtos := make([]MeterDTO, len(meters))
	for i, m := range meters {
		dtos[i] = toMeterDTO(m)
	}
	return dtos
}

// =============================================================================
// READING HANDLERS
// =============================================================================

// ListReadings returns a member's readings, newest period first.
func (h *Handler) ListReadings(w http.ResponseWriter, r *http.Request) {
	m, ok := h.member(w, r)
	if !ok {
		return
	}
	records, err := h.Store.ListReadings(r.Context(), m.ID)
	if err != nil {
		h.fail(w, "Failed to list readings", err)
		return
	}

	dtos := make([]ReadingDTO, len(records))
	for i, rec := range records {
		dtos[i] = toReadingDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateReading submits the end-of-period value of one of the member's meters.
func (h *Handler) CreateReading(w http.ResponseWriter, r *http.Request) {
	memberID, ok := pathID(w, r, "memberID")
	if !ok {
		return
	}
	var req CreateReadingRequest
	if !decode(w, r, &req) {
		return
	}

	reading, err := h.Store.CreateReading(r.Context(), memberID, billing.MeterReading{
		MeterID:  req.MeterID,
		PeriodID: req.PeriodID,
		Value:    req.Value,
	})
	if err != nil {
		h.fail(w, "Failed to create reading", err)
		return
	}
	writeJSON(w, http.StatusCreated, ReadingDTO{
		ID:       reading.ID,
		MeterID:  reading.MeterID,
		PeriodID: reading.PeriodID,
		Value:    reading.Value,
	})
}

// =============================================================================
// PERIOD HANDLERS
// =============================================================================

// ListPeriods returns all periods, newest first.
func (h *Handler) ListPeriods(w http.ResponseWriter, r *http.Request) {
	periods, err := h.Store.ListPeriods(r.Context())
	if err != nil {
		h.fail(w, "Failed to list periods", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTOs(periods))
}

// CreatePeriod returns the period for (year, month), creating it if needed.
func (h *Handler) CreatePeriod(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := h.Store.GetOrCreatePeriod(r.Context(), req.Year, req.Month)
	if err != nil {
		h.fail(w, "Failed to create period", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodDTO(p))
}

// ListGroupPeriods returns the periods with at least one charge for the group.
func (h *Handler) ListGroupPeriods(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	periods, err := h.Store.GroupPeriods(r.Context(), groupID)
	if err != nil {
		h.fail(w, "Failed to list periods", err)
		return
	}
	writeJSON(w, http.StatusOK, toPeriodDTOs(periods))
}

func toPeriodDTOs(periods []billing.Period) []PeriodDTO {
	dtos := make([]PeriodDTO, len(periods))
	for i, p := range periods {
		dtos[i] = toPeriodDTO(p)
	}
	return dtos
}

// =============================================================================
// CHARGE HANDLERS
// =============================================================================

// ListChargeDefinitions returns the group's charge definitions.
func (h *Handler) ListChargeDefinitions(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	defs, err := h.Store.ListDefinitions(r.Context(), groupID)
	if err != nil {
		h.fail(w, "Failed to list charges", err)
		return
	}

	dtos := make([]ChargeDefinitionDTO, len(defs))
	for i, d := range defs {
		dtos[i] = toDefinitionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateChargeDefinition creates a definition. Currency defaults to eur.
func (h *Handler) CreateChargeDefinition(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	var req ChargeDefinitionRequest
	if !decode(w, r, &req) {
		return
	}

	d, err := h.Store.CreateDefinition(r.Context(), req.definition(groupID))
	if err != nil {
		h.fail(w, "Failed to create charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDefinitionDTO(d))
}

// UpdateChargeDefinition overwrites a definition of the group.
func (h *Handler) UpdateChargeDefinition(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	chargeID, ok := pathID(w, r, "chargeID")
	if !ok {
		return
	}
	var req ChargeDefinitionRequest
	if !decode(w, r, &req) {
		return
	}

	def := req.definition(groupID)
	def.ID = chargeID
	d, err := h.Store.UpdateDefinition(r.Context(), def)
	if err != nil {
		h.fail(w, "Failed to update charge", err)
		return
	}
	writeJSON(w, http.StatusOK, toDefinitionDTO(d))
}

// ListPeriodCharges returns the group's period charges, newest period first.
func (h *Handler) ListPeriodCharges(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	charges, err := h.Store.ListPeriodCharges(r.Context(), groupID)
	if err != nil {
		h.fail(w, "Failed to list period charges", err)
		return
	}

	dtos := make([]PeriodChargeDTO, len(charges))
	for i, pc := range charges {
		dtos[i] = toPeriodChargeDTO(pc)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePeriodCharge sets the amount of a definition for a period.
func (h *Handler) CreatePeriodCharge(w http.ResponseWriter, r *http.Request) {
	groupID, ok := pathID(w, r, "groupID")
	if !ok {
		return
	}
	var req CreatePeriodChargeRequest
	if !decode(w, r, &req) {
		return
	}

	pc, err := h.Store.CreatePeriodCharge(r.Context(), billing.PeriodCharge{
		GroupID:    groupID,
		PeriodID:   req.PeriodID,
		Definition: billing.ChargeDefinition{ID: req.DefinitionID},
		Amount:     req.Amount,
	})
	if err != nil {
		h.fail(w, "Failed to create period charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPeriodChargeDTO(pc))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail writes err with the status statusFor picks. Server errors are logged.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

// statusFor maps billing and store errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsConflict(err):
		return http.StatusConflict
	case billing.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}
