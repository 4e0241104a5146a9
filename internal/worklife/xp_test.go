package worklife

import "testing"

func TestLevelCurve(t *testing.T) {
	cases := []struct {
		points int
		level  int
	}{
		{-10, 1},
		{0, 1},
		{99, 1},
		{100, 2},
		{399, 2},
		{400, 3},
		{899, 3},
		{900, 4},
	}
	for _, tc := range cases {
		if got := Level(tc.points); got != tc.level {
			t.Errorf("Level(%d) = %d, want %d", tc.points, got, tc.level)
		}
	}
}

func TestTaskRewardScalesWithLevel(t *testing.T) {
	if got := TaskReward(1, DifficultyLow, nil); got != 5 {
		t.Fatalf("low at level 1 = %d, want 5", got)
	}
	if got := TaskReward(3, DifficultyHigh, nil); got != 60 {
		t.Fatalf("high at level 3 = %d, want 60", got)
	}
	// Unknown difficulty falls back to medium.
	if got := TaskReward(2, "", nil); got != 20 {
		t.Fatalf("default difficulty at level 2 = %d, want 20", got)
	}
	if got := TaskReward(0, DifficultyLow, nil); got != 5 {
		t.Fatalf("level clamp = %d, want 5", got)
	}
}

func TestTaskRewardCustomTable(t *testing.T) {
	table := &RewardTable{Low: 1, Medium: 2, High: 3}
	if got := TaskReward(2, DifficultyHigh, table); got != 6 {
		t.Fatalf("custom high at level 2 = %d, want 6", got)
	}
}

func TestHabitRewardIgnoresLevel(t *testing.T) {
	if got := HabitReward(DifficultyLow, nil); got != 10 {
		t.Fatalf("habit low = %d, want 10", got)
	}
	if got := HabitReward(DifficultyHigh, nil); got != 25 {
		t.Fatalf("habit high = %d, want 25", got)
	}
}

func TestMarathonMultiplier(t *testing.T) {
	if got := MarathonMultiplier(30, false); got != 1.25 {
		t.Fatalf("30 days = %v, want 1.25", got)
	}
	if got := MarathonMultiplier(30, true); got != 1.75 {
		t.Fatalf("30 days hardcore = %v, want 1.75", got)
	}
	if got := MarathonMultiplier(0, false); got != MarathonMultiplier(1, false) {
		t.Fatalf("duration clamp broken: %v", got)
	}
	if got := MarathonMultiplier(1000, true); got != 3.0 {
		t.Fatalf("cap = %v, want 3.0", got)
	}
}
