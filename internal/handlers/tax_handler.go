package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	apierrors "github.com/stwalsh4118/rentaltax/internal/errors"
	"github.com/stwalsh4118/rentaltax/internal/middleware"
	"github.com/stwalsh4118/rentaltax/internal/services"
	"github.com/stwalsh4118/rentaltax/internal/tax"
)

// TaxHandler handles calculation and personal history requests.
type TaxHandler struct {
	service services.TaxService
}

// NewTaxHandler creates a new TaxHandler instance.
func NewTaxHandler(service services.TaxService) *TaxHandler {
	return &TaxHandler{
		service: service,
	}
}

// CalculateRequest is the body of POST /api/tax/calc-simple, accepted as
// JSON or as a form. monthlyRent may be a number or a numeric string.
//
// houseType, propDeduction, incDeduction and propHalf are the field names of
// the first version of the API and are still accepted; when both spellings
// are present the current one wins.
type CalculateRequest struct {
	MonthlyRent       *decimal.Decimal `json:"monthlyRent" form:"monthlyRent" binding:"required"`
	HouseCategory     string           `json:"houseCategory" form:"houseCategory" binding:"required_without=HouseType"`
	PropertyDeduction *bool            `json:"propertyDeduction" form:"propertyDeduction"`
	IncomeDeduction   *bool            `json:"incomeDeduction" form:"incomeDeduction"`
	PropertyHalfRate  *bool            `json:"propertyHalfRate" form:"propertyHalfRate"`

	HouseType     string `json:"houseType" form:"houseType"`
	PropDeduction bool   `json:"propDeduction" form:"propDeduction"`
	IncDeduction  bool   `json:"incDeduction" form:"incDeduction"`
	PropHalf      bool   `json:"propHalf" form:"propHalf"`
}

// Input resolves the aliases into calculator input.
func (r CalculateRequest) Input() tax.Input {
	category := r.HouseCategory
	if category == "" {
		category = r.HouseType
	}

	return tax.Input{
		Category:          category,
		MonthlyRent:       r.MonthlyRent.InexactFloat64(),
		PropertyDeduction: flag(r.PropertyDeduction, r.PropDeduction),
		IncomeDeduction:   flag(r.IncomeDeduction, r.IncDeduction),
		PropertyHalfRate:  flag(r.PropertyHalfRate, r.PropHalf),
	}
}

func flag(current *bool, legacy bool) bool {
	if current != nil {
		return *current
	}
	return legacy
}

// RecordsRequest represents the query parameters of GET /api/my/records.
type RecordsRequest struct {
	Limit int `form:"limit"`
}

// Calculate handles POST /api/tax/calc-simple.
// It returns the quote even when the record could not be stored.
func (h *TaxHandler) Calculate(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBind(&req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			apierrors.ValidationError(c, validationErrors)
			return
		}
		apierrors.BadRequest(c, "Invalid request body", nil)
		return
	}

	identity, _ := middleware.GetIdentity(c)

	result, err := h.service.Calculate(c.Request.Context(), services.CalculateRequest{
		Input:    req.Input(),
		Identity: identity,
		Origin:   middleware.ClientOrigin(c),
	})
	if err != nil {
		respondServiceError(c, err, "Failed to calculate tax")
		return
	}

	respondOK(c, CalculateData{
		QuoteData: mapQuoteToDTO(result.Quote),
		RecordID:  result.RecordID,
		Persisted: result.Persisted,
	})
}

// MyRecords handles GET /api/my/records.
// Records are those of the requester's resolved identity, newest first.
func (h *TaxHandler) MyRecords(c *gin.Context) {
	var req RecordsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		apierrors.BadRequest(c, "limit must be an integer", nil)
		return
	}

	identity, ok := middleware.GetIdentity(c)
	if !ok {
		apierrors.BadRequest(c, "No client identity on request", nil)
		return
	}

	records, err := h.service.ListRecords(c.Request.Context(), identity, req.Limit)
	if err != nil {
		respondServiceError(c, err, "Failed to list records")
		return
	}

	respondOK(c, mapRecordsToDTO(records))
}
