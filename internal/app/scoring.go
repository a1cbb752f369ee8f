package app

import "math"

// Scoring constants. The speed floor treats anything faster than a human
// can read a question as exactly the floor; the ideal deviation is the
// expected natural variance of human response times, so both bot-uniform
// and erratic timing lose consistency points.
const (
	speedFloorMs      = 2000.0
	speedSlopeMs      = 50.0
	idealStdDevMs     = 800.0
	stdDevSlopeMs     = 20.0
	accuracyWeight    = 0.5
	speedWeight       = 0.3
	consistencyWeight = 0.2

	bonusPerCorrect = 5
	perfectBonus    = 10
	streakStep      = 0.1
	maxStreakFactor = 2.0
	fandomBonusCeil = 50
)

// Score is the outcome of one completed attempt. Sub-scores are kept at
// full precision; rounding is display-only.
type Score struct {
	AvgResponseTime float64
	StdDev          float64
	Accuracy        float64
	Speed           float64
	Consistency     float64
	Final           float64
	FandomBonus     int
}

// ComputeScore turns an attempt's response times and counters into the
// composite score. Pure; no I/O.
func ComputeScore(responseTimes []int, correctAnswers, totalQuestions, maxStreak int) Score {
	avg := 0.0
	if len(responseTimes) > 0 {
		sum := 0.0
		for _, t := range responseTimes {
			sum += float64(t)
		}
		avg = sum / float64(len(responseTimes))
	}

	// Population standard deviation: mean of squared deviations, then root.
	stdDev := 0.0
	if len(responseTimes) > 0 {
		sumSq := 0.0
		for _, t := range responseTimes {
			d := float64(t) - avg
			sumSq += d * d
		}
		stdDev = math.Sqrt(sumSq / float64(len(responseTimes)))
	}

	accuracy := 0.0
	if totalQuestions > 0 {
		accuracy = float64(correctAnswers) / float64(totalQuestions) * 100
	}

	clampedAvg := math.Max(avg, speedFloorMs)
	speed := math.Max(0, 100-(clampedAvg-speedFloorMs)/speedSlopeMs)

	consistency := math.Max(0, 100-math.Abs(stdDev-idealStdDevMs)/stdDevSlopeMs)

	final := accuracy*accuracyWeight + speed*speedWeight + consistency*consistencyWeight

	return Score{
		AvgResponseTime: avg,
		StdDev:          stdDev,
		Accuracy:        accuracy,
		Speed:           speed,
		Consistency:     consistency,
		Final:           final,
		FandomBonus:     fandomBonus(correctAnswers, totalQuestions, maxStreak),
	}
}

// fandomBonus is the platform-point award: per-correct points plus a
// perfect-round bonus, scaled by a capped streak multiplier, never more
// than fandomBonusCeil.
func fandomBonus(correctAnswers, totalQuestions, maxStreak int) int {
	base := float64(correctAnswers * bonusPerCorrect)
	if totalQuestions > 0 && correctAnswers == totalQuestions {
		base += perfectBonus
	}
	multiplier := math.Min(1+float64(maxStreak)*streakStep, maxStreakFactor)
	bonus := int(math.Round(base * multiplier))
	if bonus > fandomBonusCeil {
		bonus = fandomBonusCeil
	}
	return bonus
}

// Round2 rounds a score to 2 decimal places for display payloads.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
