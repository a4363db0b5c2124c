// Package vocab 构建固定大小、固定顺序的词表（term → slot）。
// 下游特征向量全部通过词表把稀疏的类别信号投影到固定长度的向量槽位。
package vocab

import "strings"

// 词表容量：话题标签取 Top 128，技能取 Top 64。
const (
	HashtagVocabSize = 128
	SkillVocabSize   = 64
)

// Vocabulary 是有序去重的 term → slot 映射，slot ∈ [0, Size)。
//
// 不变量：
//   - slot 分配在一次构建的生命周期内稳定
//   - 重建可能重新分配 slot，下游必须按 Epoch 失效派生向量
type Vocabulary struct {
	// Slots 是 term → slot 索引
	Slots map[string]int `json:"slots"`

	// Terms 是 slot → term 的反向映射（固定顺序，频次降序）
	Terms []string `json:"terms"`

	// Epoch 是构建纪元（构建时刻的 Unix 秒）。
	// 按词表旧纪元构建的特征向量视为失效。
	Epoch int64 `json:"epoch"`
}

// Size 返回词表实际大小（语料不足时小于容量上限）。
func (v *Vocabulary) Size() int {
	if v == nil {
		return 0
	}
	return len(v.Terms)
}

// Slot 返回归一化后 term 的槽位；不在词表中返回 (0, false)。
func (v *Vocabulary) Slot(term string) (int, bool) {
	if v == nil || v.Slots == nil {
		return 0, false
	}
	slot, ok := v.Slots[Normalize(term)]
	return slot, ok
}

// Normalize 归一化 term：小写、去首尾空白、去前导 '#'。
func Normalize(term string) string {
	term = strings.ToLower(strings.TrimSpace(term))
	term = strings.TrimPrefix(term, "#")
	return term
}
