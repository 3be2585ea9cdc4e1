package dataset

import (
	"math"
	"math/rand"
	"time"

	"prescription-analytics-api/internal/models"
)

// DefaultSeed seeds the synthetic fallback dataset
const DefaultSeed int64 = 42

// Regions lists the NHS regional offices used by the synthetic dataset
var Regions = []string{
	"LONDON",
	"NORTH WEST",
	"MIDLANDS",
	"SOUTH EAST",
	"EAST OF ENGLAND",
	"SOUTH WEST",
	"NORTH EAST AND YORKSHIRE",
	"SOUTH OF ENGLAND",
	"NORTH OF ENGLAND",
	"MIDLANDS AND EAST OF ENGLAND",
	"UNIDENTIFIED",
}

// BNFChapters lists the BNF chapter labels used by the synthetic dataset
var BNFChapters = []string{
	"01: Gastro-Intestinal System",
	"02: Cardiovascular System",
	"03: Respiratory System",
	"04: Central Nervous System",
	"05: Infections",
	"06: Endocrine System",
	"07: Obstetrics and Gynaecology",
	"08: Malignant Disease",
	"09: Nutrition and Blood",
	"10: Musculoskeletal Diseases",
	"11: Eye",
	"12: Ear, Nose and Throat",
	"13: Skin",
	"14: Immunological Products",
	"15: Anaesthesia",
	"18: Preparations used in Diagnosis",
	"19: Other Drugs",
	"20: Dressings",
	"21: Appliances",
}

var (
	syntheticStart = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	syntheticEnd   = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
)

const (
	syntheticBaseCost      = 15000.0
	syntheticTrendRate     = 0.002
	syntheticSeasonalShare = 0.15
	syntheticNoiseShare    = 0.08
	syntheticShockShare    = 0.2
)

// SyntheticMonths returns the month starts covered by the synthetic dataset
func SyntheticMonths() []time.Time {
	var months []time.Time
	for m := syntheticStart; !m.After(syntheticEnd); m = models.AddMonths(m, 1) {
		months = append(months, m)
	}
	return months
}

// GenerateSynthetic builds the deterministic fallback dataset: every region and
// chapter gets a monthly series with trend, annual seasonality, gaussian noise
// and a uniform shock during 2020 and 2021.
func GenerateSynthetic(seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	months := SyntheticMonths()

	observations := make([]models.Observation, 0, len(Regions)*len(BNFChapters)*len(months))
	for _, region := range Regions {
		for _, chapter := range BNFChapters {
			for i, month := range months {
				trend := syntheticBaseCost * syntheticTrendRate * float64(i)
				seasonal := syntheticBaseCost * syntheticSeasonalShare * math.Sin(2*math.Pi*float64(i)/12)
				noise := rng.NormFloat64() * syntheticBaseCost * syntheticNoiseShare

				shock := 0.0
				if month.Year() == 2020 || month.Year() == 2021 {
					shock = syntheticBaseCost * syntheticShockShare * (rng.Float64()*2 - 1)
				}

				cost := math.Max(0, syntheticBaseCost+trend+seasonal+noise+shock)
				observations = append(observations, models.Observation{
					Month:    month,
					Region:   region,
					Category: chapter,
					Cost:     cost,
				})
			}
		}
	}

	return New(observations, ModeSample, "synthetic")
}
