package tensor

import (
	"testing"

	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/shopspring/decimal"
)

func TestComputeTaskBindingDigestEmpty(t *testing.T) {
	digest := ComputeTaskBindingDigest(nil)
	if !digest.IsZero() {
		t.Errorf("空声明列表应产生零摘要")
	}
}

func TestComputeTaskBindingDigestDeterministic(t *testing.T) {
	claim := &Claim{
		Claimant: keys.Address{},
		Input:    NewInt32Tensor([]uint32{1}),
		Output:   NewInt32Tensor([]uint32{1}),
	}
	d1 := ComputeTaskBindingDigest([]*Claim{claim})
	d2 := ComputeTaskBindingDigest([]*Claim{claim})
	if d1 != d2 {
		t.Errorf("相同声明列表的两次绑定摘要不一致")
	}
}

func TestComputeTaskBindingDigestOrderSensitive(t *testing.T) {
	a := &Claim{Input: NewInt32Tensor([]uint32{1}), Output: NewInt32Tensor([]uint32{1})}
	b := &Claim{Input: NewInt32Tensor([]uint32{2}), Output: NewInt32Tensor([]uint32{2})}

	forward := ComputeTaskBindingDigest([]*Claim{a, b})
	reversed := ComputeTaskBindingDigest([]*Claim{b, a})
	if forward == reversed {
		t.Errorf("声明顺序不同应产生不同的绑定摘要")
	}
}

func TestClaimedReductionSum(t *testing.T) {
	tasks := []*Task{
		{DifficultyReduction: decimal.NewFromFloat(0.01)},
		{DifficultyReduction: decimal.NewFromFloat(0.02)},
	}
	sum := ClaimedReductionSum(tasks)
	if !sum.Equal(decimal.NewFromFloat(0.03)) {
		t.Errorf("折减之和 = %s, 期望 0.03", sum.String())
	}
}
