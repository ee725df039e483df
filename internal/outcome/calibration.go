package outcome

import (
	"math"

	"github.com/kkrriders/airra/internal/models"
)

// CalibrationBin summarizes executed outcomes whose predicted confidence
// fell into one decile.
type CalibrationBin struct {
	Low           float64 `json:"low"`
	High          float64 `json:"high"`
	Count         int     `json:"count"`
	MeanPredicted float64 `json:"mean_predicted"`
	ObservedRate  float64 `json:"observed_success_rate"`
}

// CalibrationReport compares predicted confidence to observed success.
type CalibrationReport struct {
	Total int              `json:"total"`
	Bins  []CalibrationBin `json:"bins"`
	// ECE is the expected calibration error: the count-weighted mean of
	// |observed − predicted| across bins.
	ECE float64 `json:"expected_calibration_error"`
}

// Calibration recomputes the report from the full record set. Only executed
// records participate; SUCCESS and PARTIAL_SUCCESS count as success.
func (s *Store) Calibration() (*CalibrationReport, error) {
	records, err := s.ReadAll()
	if err != nil {
		return nil, err
	}

	const nBins = 10
	type acc struct {
		count     int
		sumPred   float64
		successes int
	}
	bins := make([]acc, nBins)
	total := 0

	for _, rec := range records {
		if !rec.Executed {
			continue
		}
		i := int(rec.PredictedConfidence * nBins)
		if i >= nBins {
			i = nBins - 1
		}
		if i < 0 {
			i = 0
		}
		bins[i].count++
		bins[i].sumPred += rec.PredictedConfidence
		if rec.Outcome == models.OutcomeSuccess || rec.Outcome == models.OutcomePartialSuccess {
			bins[i].successes++
		}
		total++
	}

	report := &CalibrationReport{Total: total}
	var ece float64
	for i, b := range bins {
		bin := CalibrationBin{
			Low:  float64(i) / nBins,
			High: float64(i+1) / nBins,
		}
		if b.count > 0 {
			bin.Count = b.count
			bin.MeanPredicted = b.sumPred / float64(b.count)
			bin.ObservedRate = float64(b.successes) / float64(b.count)
			ece += math.Abs(bin.ObservedRate-bin.MeanPredicted) * float64(b.count) / float64(total)
		}
		report.Bins = append(report.Bins, bin)
	}
	report.ECE = ece
	return report, nil
}
