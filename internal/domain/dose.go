package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// HypoglycemiaThreshold is the reading (mg/dL) below which no dose should be
// administered.
const HypoglycemiaThreshold = 70

// Advisory tells the caller whether the computed dose may be shown as a
// recommendation.
type Advisory string

const (
	AdvisoryNormal       Advisory = "NORMAL"
	AdvisoryHypoglycemia Advisory = "HYPOGLYCEMIA"
)

// DosingConfig holds the deployment-wide dosing constants.
type DosingConfig struct {
	TargetGlucose     float64 `json:"targetGlucose"`
	SensitivityFactor float64 `json:"sensitivityFactor"`
}

// DefaultDosingConfig matches the constants the calculator shipped with.
func DefaultDosingConfig() DosingConfig {
	return DosingConfig{TargetGlucose: 100, SensitivityFactor: 40}
}

// Compute runs ComputeDose with the configured target and sensitivity.
func (c DosingConfig) Compute(glucose, carbs float64, carbRatio int) (DoseBreakdown, error) {
	return ComputeDose(glucose, carbs, carbRatio, c.TargetGlucose, c.SensitivityFactor)
}

// DoseBreakdown is the result of a dose calculation.
type DoseBreakdown struct {
	CorrectionUnits float64  `json:"correctionUnits"`
	MealUnits       float64  `json:"mealUnits"`
	RawTotal        float64  `json:"rawTotal"`
	RoundedDose     int      `json:"roundedDose"`
	Advisory        Advisory `json:"advisory"`
}

// Administrable reports whether RoundedDose may be presented as a
// recommendation. A hypoglycemic reading keeps the dose for audit only.
func (b DoseBreakdown) Administrable() bool {
	return b.Advisory != AdvisoryHypoglycemia
}

// ComputeDose returns the bolus breakdown for a reading:
//
//	correction = max(0, (glucose - target) / sensitivity)
//	meal       = carbs / carbRatio
//	rounded    = round(correction + meal)
//
// Rounding is to the nearest whole unit with halves rounded away from zero,
// so 2.5 units becomes 3. The pen doses in whole units.
func ComputeDose(glucose, carbs float64, carbRatio int, target, sensitivity float64) (DoseBreakdown, error) {
	if err := checkRatio(carbRatio); err != nil {
		return DoseBreakdown{}, err
	}
	if err := checkReading("glucose", glucose); err != nil {
		return DoseBreakdown{}, err
	}
	if err := checkReading("carbs", carbs); err != nil {
		return DoseBreakdown{}, err
	}
	if math.IsNaN(target) || math.IsNaN(sensitivity) || sensitivity <= 0 {
		return DoseBreakdown{}, fmt.Errorf("%w: sensitivity factor must be > 0", ErrInvalidInput)
	}

	correction := decimal.NewFromFloat(glucose).
		Sub(decimal.NewFromFloat(target)).
		Div(decimal.NewFromFloat(sensitivity))
	if correction.IsNegative() {
		correction = decimal.Zero
	}
	meal := decimal.NewFromFloat(carbs).Div(decimal.NewFromInt(int64(carbRatio)))
	raw := correction.Add(meal)

	advisory := AdvisoryNormal
	if glucose > 0 && glucose < HypoglycemiaThreshold {
		advisory = AdvisoryHypoglycemia
	}

	return DoseBreakdown{
		CorrectionUnits: correction.InexactFloat64(),
		MealUnits:       meal.InexactFloat64(),
		RawTotal:        raw.InexactFloat64(),
		RoundedDose:     int(raw.Round(0).IntPart()),
		Advisory:        advisory,
	}, nil
}

// NewEntry builds the entry recorded for a calculation.
func NewEntry(at time.Time, glucose, carbs float64, carbRatio int, b DoseBreakdown) Entry {
	return Entry{
		Timestamp: at,
		Glucose:   glucose,
		Carbs:     carbs,
		CarbRatio: carbRatio,
		Dose:      b.RoundedDose,
	}
}
