package economy

// TotalChance sums the weights of a reward table.
func TotalChance(rewards []Reward) float64 {
	var total float64
	for _, r := range rewards {
		if r.Chance > 0 {
			total += r.Chance
		}
	}
	return total
}

// SelectReward picks the first reward whose interval [cum, cum+chance)
// contains roll, walking the table in declaration order. It reports false
// when roll falls outside every interval.
func SelectReward(rewards []Reward, roll float64) (Reward, bool) {
	if roll < 0 {
		return Reward{}, false
	}
	var cumulative float64
	for _, r := range rewards {
		if r.Chance <= 0 {
			continue
		}
		if roll < cumulative+r.Chance {
			return r, true
		}
		cumulative += r.Chance
	}
	return Reward{}, false
}
