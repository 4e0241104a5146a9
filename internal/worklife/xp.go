package worklife

import "math"

var (
	defaultTaskRewards  = RewardTable{Low: 5, Medium: 10, High: 20}
	defaultHabitRewards = RewardTable{Low: 10, Medium: 15, High: 25}
)

// Level returns the level reached at the given XP total:
// floor(sqrt(points/100)) + 1.
func Level(points int) int {
	if points <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(points)/100))) + 1
}

func rewardFor(table RewardTable, difficulty Difficulty) int {
	switch difficulty {
	case DifficultyLow:
		return table.Low
	case DifficultyHigh:
		return table.High
	default:
		return table.Medium
	}
}

// TaskReward computes the XP granted for completing a todo block: the
// difficulty entry of the reward table scaled by the current level. The
// caller freezes the result on the block as its refund snapshot.
func TaskReward(level int, difficulty Difficulty, custom *RewardTable) int {
	table := defaultTaskRewards
	if custom != nil {
		table = *custom
	}
	if level < 1 {
		level = 1
	}
	return rewardFor(table, difficulty) * level
}

// HabitReward computes the XP granted for one habit completion. Habits are
// level-independent; only the difficulty entry applies.
func HabitReward(difficulty Difficulty, custom *RewardTable) int {
	table := defaultHabitRewards
	if custom != nil {
		table = *custom
	}
	return rewardFor(table, difficulty)
}

// MarathonMultiplier derives the XP multiplier for a marathon from its
// duration, with a hardcore bonus. Longer commitments earn more per
// completion, capped at 3x.
func MarathonMultiplier(durationDays int, hardcore bool) float64 {
	if durationDays < 1 {
		durationDays = 1
	}
	mult := 1.0 + 0.25*float64(durationDays)/30.0
	if hardcore {
		mult += 0.5
	}
	if mult > 3.0 {
		mult = 3.0
	}
	return math.Round(mult*100) / 100
}
