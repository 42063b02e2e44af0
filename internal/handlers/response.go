package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/stwalsh4118/rentaltax/internal/errors"
	"github.com/stwalsh4118/rentaltax/internal/models"
	"github.com/stwalsh4118/rentaltax/internal/services"
)

// SuccessCode is the envelope code of every successful response.
const SuccessCode = 0

// CurrencyUnit labels quoted amounts.
const CurrencyUnit = "元/月"

// Response is the success envelope shared by all /api routes.
type Response struct {
	Data interface{} `json:"data"`
	Code int         `json:"code"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: SuccessCode, Data: data})
}

// respondServiceError maps a service error onto the error taxonomy:
// invalid input is a 400, an unreachable store a 503, anything else a 500.
func respondServiceError(c *gin.Context, err error, message string) {
	switch {
	case services.IsInvalidInput(err):
		apierrors.BadRequest(c, err.Error(), nil)
	case services.IsStoreUnavailable(err):
		apierrors.ServiceUnavailable(c, "Record store unavailable, please retry later", err)
	default:
		apierrors.InternalServerError(c, message, err)
	}
}

// QuoteData is the API form of a TaxQuote. HouseType, PropDeduction,
// IncDeduction and PropHalf repeat fields under the names of the first
// version of the API.
type QuoteData struct {
	HouseCategory     string  `json:"houseCategory"`
	Unit              string  `json:"unit"`
	MonthlyRent       float64 `json:"monthlyRent"`
	PropertyBase      float64 `json:"propertyBase"`
	IncomeBase        float64 `json:"incomeBase"`
	PropertyRate      float64 `json:"propertyRate"`
	IncomeRate        float64 `json:"incomeRate"`
	PropertyTax       float64 `json:"propertyTax"`
	IncomeTax         float64 `json:"incomeTax"`
	TotalTax          float64 `json:"totalTax"`
	PropertyDeduction bool    `json:"propertyDeduction"`
	IncomeDeduction   bool    `json:"incomeDeduction"`
	PropertyHalfRate  bool    `json:"propertyHalfRate"`

	HouseType     string `json:"houseType"`
	PropDeduction bool   `json:"propDeduction"`
	IncDeduction  bool   `json:"incDeduction"`
	PropHalf      bool   `json:"propHalf"`
}

// CalculateData adds persistence details to a quote.
type CalculateData struct {
	QuoteData
	RecordID  int64 `json:"recordId,omitempty"`
	Persisted bool  `json:"persisted"`
}

// RecordData is the API form of a stored CalcRecord.
type RecordData struct {
	CreatedAt time.Time `json:"createdAt"`
	QuoteData
	ID int64 `json:"id"`
}

// OverviewData is the API form of Overview.
type OverviewData struct {
	PerCategory  []CategoryData `json:"perCategory"`
	AvgRent      float64        `json:"avgRent"`
	AvgTotalTax  float64        `json:"avgTotalTax"`
	SumTotalTax  float64        `json:"sumTotalTax"`
	TotalRecords int64          `json:"totalRecords"`
}

// CategoryData is the API form of a CategoryStat.
type CategoryData struct {
	HouseCategory string  `json:"houseCategory"`
	HouseType     string  `json:"houseType"`
	AvgTax        float64 `json:"avgTax"`
	Count         int64   `json:"count"`
}

// mapQuoteToDTO converts a TaxQuote into its JSON representation.
// Amounts already carry two places; float64 keeps them numeric on the wire.
func mapQuoteToDTO(q models.TaxQuote) QuoteData {
	category := q.HouseCategory.String()
	return QuoteData{
		HouseCategory:     category,
		Unit:              CurrencyUnit,
		MonthlyRent:       q.MonthlyRent.InexactFloat64(),
		PropertyBase:      q.PropertyBase.InexactFloat64(),
		IncomeBase:        q.IncomeBase.InexactFloat64(),
		PropertyRate:      q.PropertyRate.InexactFloat64(),
		IncomeRate:        q.IncomeRate.InexactFloat64(),
		PropertyTax:       q.PropertyTax.InexactFloat64(),
		IncomeTax:         q.IncomeTax.InexactFloat64(),
		TotalTax:          q.TotalTax.InexactFloat64(),
		PropertyDeduction: q.PropertyDeduction,
		IncomeDeduction:   q.IncomeDeduction,
		PropertyHalfRate:  q.PropertyHalfRate,
		HouseType:         category,
		PropDeduction:     q.PropertyDeduction,
		IncDeduction:      q.IncomeDeduction,
		PropHalf:          q.PropertyHalfRate,
	}
}

func mapRecordsToDTO(records []models.CalcRecord) []RecordData {
	out := make([]RecordData, 0, len(records))
	for _, rec := range records {
		out = append(out, RecordData{
			ID:        rec.ID,
			CreatedAt: rec.CreatedAt,
			QuoteData: mapQuoteToDTO(rec.TaxQuote),
		})
	}
	return out
}

func mapOverviewToDTO(o *models.Overview) OverviewData {
	categories := make([]CategoryData, 0, len(o.PerCategory))
	for _, stat := range o.PerCategory {
		categories = append(categories, CategoryData{
			HouseCategory: stat.Category.String(),
			HouseType:     stat.Category.String(),
			AvgTax:        stat.AvgTax.InexactFloat64(),
			Count:         stat.Count,
		})
	}
	return OverviewData{
		TotalRecords: o.TotalRecords,
		AvgRent:      o.AvgRent.InexactFloat64(),
		AvgTotalTax:  o.AvgTotalTax.InexactFloat64(),
		SumTotalTax:  o.SumTotalTax.InexactFloat64(),
		PerCategory:  categories,
	}
}
