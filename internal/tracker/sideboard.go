package tracker

import (
	"github.com/videre-project/Tracker-sub000/internal/models"
)

// ComputeSideboardDelta 计算换备牌前后主牌的数量差
//
// 以注册套牌为基准逐卡求差：减少的卡按原套牌顺序排列，
// 新增的卡按新套牌顺序排在后面，数量差为0的卡不出现。
func ComputeSideboardDelta(original, current models.Deck) models.CardDeltas {
	before := make(map[string]int, len(original.Mainboard))
	for _, cq := range original.Mainboard {
		before[cq.Name] += cq.Quantity
	}
	after := make(map[string]int, len(current.Mainboard))
	for _, cq := range current.Mainboard {
		after[cq.Name] += cq.Quantity
	}

	var deltas models.CardDeltas
	seen := make(map[string]bool)

	for _, cq := range original.Mainboard {
		if seen[cq.Name] {
			continue
		}
		seen[cq.Name] = true
		if d := after[cq.Name] - before[cq.Name]; d != 0 {
			deltas = append(deltas, models.CardDelta{Name: cq.Name, Delta: d})
		}
	}

	for _, cq := range current.Mainboard {
		if seen[cq.Name] {
			continue
		}
		seen[cq.Name] = true
		if d := after[cq.Name]; d != 0 {
			deltas = append(deltas, models.CardDelta{Name: cq.Name, Delta: d})
		}
	}

	return deltas
}
