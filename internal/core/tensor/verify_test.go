package tensor

import (
	"testing"

	"github.com/ai3chain/node/internal/core/crypto/hash"
	"github.com/ai3chain/node/internal/core/crypto/keys"
	"github.com/shopspring/decimal"
)

func buildValidClaimAndTask(t *testing.T) (*Task, *Claim) {
	input := NewInt32Tensor([]uint32{2, 2})
	for i := 0; i < 4; i++ {
		input.PutInt32At(i, int32(i+1))
	}
	param := NewInt32Tensor([]uint32{2, 2})
	for i := 0; i < 4; i++ {
		param.PutInt32At(i, int32(i+5))
	}
	output, err := Evaluate(OpMatrixMultiply, input, []*Tensor{param}, 0)
	if err != nil {
		t.Fatalf("求值失败: %v", err)
	}

	task := &Task{
		OperationKind:        OpMatrixMultiply,
		InputDigest:          input.Digest(),
		ParamDigests:         []hash.Digest{param.Digest()},
		ExpectedOutputDigest: output.Digest(),
		DifficultyReduction:  decimal.NewFromFloat(0.01),
		RewardAmount:         100,
		DeadlineHeight:       1000,
		State:                TaskOpen,
	}
	claim := &Claim{
		Claimant: keys.Address{},
		Input:    input,
		Params:   []*Tensor{param},
		Output:   output,
	}
	return task, claim
}

func TestVerifyClaimSuccess(t *testing.T) {
	task, claim := buildValidClaimAndTask(t)
	claim.TaskID = task.TaskID
	if err := VerifyClaim(task, claim); err != nil {
		t.Errorf("合法声明校验失败: %v", err)
	}
}

func TestVerifyClaimRejectsTamperedOutput(t *testing.T) {
	task, claim := buildValidClaimAndTask(t)
	claim.TaskID = task.TaskID
	claim.Output.PutInt32At(0, claim.Output.Int32At(0)+1)
	if err := VerifyClaim(task, claim); err == nil {
		t.Errorf("被篡改的输出应当校验失败")
	}
}

func TestVerifyClaimRejectsWrongInput(t *testing.T) {
	task, claim := buildValidClaimAndTask(t)
	claim.TaskID = task.TaskID
	claim.Input.PutInt32At(0, claim.Input.Int32At(0)+1)
	if err := VerifyClaim(task, claim); err == nil {
		t.Errorf("与任务承诺不符的输入应当校验失败")
	}
}

func TestWithinToleranceFloat(t *testing.T) {
	a := NewFloat32Tensor([]uint32{1})
	b := NewFloat32Tensor([]uint32{1})
	a.PutFloat32At(0, 1.0)
	b.PutFloat32At(0, 1.0+Epsilon/2)
	if !withinTolerance(a, b) {
		t.Errorf("容差范围内的浮点输出应视为相等")
	}
	b.PutFloat32At(0, 1.0+Epsilon*10)
	if withinTolerance(a, b) {
		t.Errorf("超出容差的浮点输出应视为不相等")
	}
}
