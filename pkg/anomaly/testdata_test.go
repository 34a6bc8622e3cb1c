package anomaly

// Training corpus and ramp-up windows of the sigma-threshold demo.
var (
	stableHistory = []float64{18.2, 22.5, 19.1, 21.0, 23.4, 17.8, 24.1, 25.0, 19.5, 20.8, 21.3, 22.1}

	criticalSpike = []float64{50, 60, 70, 80, 90, 100, 110, 120, 130, 140}

	rampUp = [][]float64{
		{20.0, 21.5, 23.0, 22.0, 24.0, 20.5, 21.0, 23.5, 24.0, 25.0},
		{25.0, 24.5, 26.0, 25.5, 27.0, 26.5, 25.5, 27.0, 28.0, 29.0},
		{28.0, 29.0, 30.0, 31.0, 29.5, 30.5, 31.0, 30.5, 29.0, 32.0},
		{32.0, 31.5, 33.0, 32.5, 34.0, 33.5, 32.5, 34.0, 35.0, 36.0},
		{35.0, 36.0, 37.0, 38.0, 39.0, 38.5, 37.5, 39.0, 40.0, 41.0},
		{41.0, 42.0, 43.0, 44.0, 45.0, 46.0, 45.0, 44.0, 43.0, 42.0},
		criticalSpike,
		{150, 160, 170, 180, 190, 200, 210, 220, 230, 240},
	}

	spikyCPU  = []float64{10, 11, 10, 12, 10, 150, 155, 160, 12, 11, 10}
	steadyCPU = []float64{5, 6, 5, 7, 6, 8, 5, 6, 7, 10, 11, 10}
)

const testSeed uint64 = 42
