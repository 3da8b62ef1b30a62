package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/beesaferoot/leasekeeper/internal/http/response"
	"github.com/beesaferoot/leasekeeper/internal/lease"
	"github.com/beesaferoot/leasekeeper/models"
)

const HeaderActorID = "X-Actor-ID"

// ContractService is the part of the lease engine the API exposes.
type ContractService interface {
	CreateContract(ctx context.Context, actor lease.Actor, input *models.Contract) (*models.Contract, error)
	RenewContract(ctx context.Context, actor lease.Actor, contractID uint, newEndDate time.Time) error
	TerminateContract(ctx context.Context, actor lease.Actor, contractID uint, reason string) error
	DeleteContract(ctx context.Context, actor lease.Actor, contractID uint) error
	UpdateContract(ctx context.Context, actor lease.Actor, input *models.Contract) error
	GetContract(ctx context.Context, contractID uint) (*models.Contract, error)
	GetContractByNumber(ctx context.Context, number string) (*models.Contract, error)
	ListByApartment(ctx context.Context, apartmentID uint) ([]models.Contract, error)
	ListByBuilding(ctx context.Context, buildingID uint) ([]models.Contract, error)
	ListExpiring(ctx context.Context, days int) ([]models.Contract, error)
	HasActiveContract(ctx context.Context, apartmentID uint) (bool, error)
	GenerateContractNumber(ctx context.Context) (string, error)
	History(ctx context.Context, contractID uint) ([]models.ContractHistory, error)
}

type ContractHandler struct {
	contracts ContractService
}

func NewContractHandler(contracts ContractService) *ContractHandler {
	return &ContractHandler{contracts: contracts}
}

// ContractRequest carries the editable contract terms. Dates are YYYY-MM-DD.
type ContractRequest struct {
	ApartmentID   uint    `json:"apartment_id" binding:"required"`
	ResidentID    uint    `json:"resident_id" binding:"required"`
	ContractType  string  `json:"contract_type"`
	SignedDate    string  `json:"signed_date"`
	StartDate     string  `json:"start_date" binding:"required"`
	EndDate       string  `json:"end_date"`
	DepositAmount float64 `json:"deposit_amount" binding:"gte=0"`
	Notes         string  `json:"notes"`
}

func (r ContractRequest) toContract() (*models.Contract, error) {
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return nil, err
	}
	signed, err := parseOptionalDate("signed_date", r.SignedDate)
	if err != nil {
		return nil, err
	}
	end, err := parseOptionalDate("end_date", r.EndDate)
	if err != nil {
		return nil, err
	}
	return &models.Contract{
		ApartmentID:   r.ApartmentID,
		ResidentID:    r.ResidentID,
		ContractType:  r.ContractType,
		SignedDate:    signed,
		StartDate:     start,
		EndDate:       end,
		DepositAmount: r.DepositAmount,
		Notes:         r.Notes,
	}, nil
}

type RenewRequest struct {
	EndDate string `json:"end_date" binding:"required"`
}

type TerminateRequest struct {
	Reason string `json:"reason"`
}

// POST /api/contracts
func (h *ContractHandler) Create(c *gin.Context) {
	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	input, err := req.toContract()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	created, err := h.contracts.CreateContract(c.Request.Context(), actorOf(c), input)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"contract": created})
}

// GET /api/contracts/:id
func (h *ContractHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	contract, err := h.contracts.GetContract(c.Request.Context(), id)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contract": contract})
}

// GET /api/contracts/number/:number
func (h *ContractHandler) GetByNumber(c *gin.Context) {
	contract, err := h.contracts.GetContractByNumber(c.Request.Context(), c.Param("number"))
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contract": contract})
}

// PUT /api/contracts/:id
func (h *ContractHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	input, err := req.toContract()
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	input.ID = id

	if err := h.contracts.UpdateContract(c.Request.Context(), actorOf(c), input); err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	h.respondContract(c, id)
}

// DELETE /api/contracts/:id
func (h *ContractHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.contracts.DeleteContract(c.Request.Context(), actorOf(c), id); err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /api/contracts/:id/renew
func (h *ContractHandler) Renew(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req RenewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	end, err := parseDate("end_date", req.EndDate)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.contracts.RenewContract(c.Request.Context(), actorOf(c), id, end); err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	h.respondContract(c, id)
}

// POST /api/contracts/:id/terminate
func (h *ContractHandler) Terminate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req TerminateRequest
	// The body is optional; an empty one means no reason.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	if err := h.contracts.TerminateContract(c.Request.Context(), actorOf(c), id, req.Reason); err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	h.respondContract(c, id)
}

// GET /api/contracts/:id/history
func (h *ContractHandler) History(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	entries, err := h.contracts.History(c.Request.Context(), id)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"history": entries})
}

// GET /api/contracts/expiring?days=N
func (h *ContractHandler) Expiring(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "30"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", fmt.Errorf("days: %w", err))
		return
	}
	contracts, err := h.contracts.ListExpiring(c.Request.Context(), days)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contracts": contracts})
}

// GET /api/contracts/next-number
func (h *ContractHandler) NextNumber(c *gin.Context) {
	number, err := h.contracts.GenerateContractNumber(c.Request.Context())
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contract_number": number})
}

// GET /api/apartments/:id/contracts
func (h *ContractHandler) ListByApartment(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	contracts, err := h.contracts.ListByApartment(c.Request.Context(), id)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contracts": contracts})
}

// GET /api/apartments/:id/occupied
func (h *ContractHandler) Occupied(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	occupied, err := h.contracts.HasActiveContract(c.Request.Context(), id)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"apartment_id": id, "occupied": occupied})
}

// GET /api/buildings/:id/contracts
func (h *ContractHandler) ListByBuilding(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	contracts, err := h.contracts.ListByBuilding(c.Request.Context(), id)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contracts": contracts})
}

func (h *ContractHandler) respondContract(c *gin.Context, id uint) {
	contract, err := h.contracts.GetContract(c.Request.Context(), id)
	if err != nil {
		response.RespondLeaseError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"contract": contract})
}

func actorOf(c *gin.Context) lease.Actor {
	return lease.Actor(strings.TrimSpace(c.GetHeader(HeaderActorID)))
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return uint(id), true
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD: %w", field, err)
	}
	return t, nil
}

func parseOptionalDate(field, value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := parseDate(field, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
