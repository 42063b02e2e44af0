package models

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// CategoryStat summarizes the records of one house category.
type CategoryStat struct {
	Category HouseCategory   `json:"category"`
	AvgTax   decimal.Decimal `json:"avgTax"`
	Count    int64           `json:"count"`
}

// Overview aggregates all stored records. Averages and sums carry two
// fractional digits. Categories without records are absent from PerCategory.
type Overview struct {
	AvgRent      decimal.Decimal `json:"avgRent"`
	AvgTotalTax  decimal.Decimal `json:"avgTotalTax"`
	SumTotalTax  decimal.Decimal `json:"sumTotalTax"`
	PerCategory  []CategoryStat  `json:"perCategory"`
	TotalRecords int64           `json:"totalRecords"`
}

// RentHistogram counts records per rent bucket. Labels and Counts are
// index-aligned.
type RentHistogram struct {
	Labels []string `json:"labels"`
	Counts []int64  `json:"counts"`
}

// DefaultHistogramEdges are the rent breakpoints used when none are given.
var DefaultHistogramEdges = []float64{0, 1000, 2000, 3000, 5000, 8000, 10000}

// ValidateEdges checks that edges can partition every non-negative rent.
func ValidateEdges(edges []float64) error {
	if len(edges) == 0 {
		return fmt.Errorf("at least one edge is required")
	}
	for _, e := range edges {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return fmt.Errorf("edges must be finite")
		}
	}
	if edges[0] != 0 {
		return fmt.Errorf("first edge must be 0, got %v", edges[0])
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return fmt.Errorf("edges must be strictly ascending, %v follows %v", edges[i], edges[i-1])
		}
	}
	return nil
}

// BucketIndex returns the bucket a rent falls into for ascending edges.
// Bucket i covers [edges[i], edges[i+1]); the last bucket covers
// [edges[last], +inf). It returns -1 for rents below edges[0].
func BucketIndex(edges []float64, rent float64) int {
	idx := -1
	for i, e := range edges {
		if rent < e {
			break
		}
		idx = i
	}
	return idx
}

// BucketLabels renders one label per bucket, e.g. "0-1000" and "10000+".
func BucketLabels(edges []float64) []string {
	labels := make([]string, len(edges))
	for i, e := range edges {
		if i == len(edges)-1 {
			labels[i] = formatEdge(e) + "+"
			continue
		}
		labels[i] = formatEdge(e) + "-" + formatEdge(edges[i+1])
	}
	return labels
}

func formatEdge(e float64) string {
	return strconv.FormatFloat(e, 'f', -1, 64)
}
