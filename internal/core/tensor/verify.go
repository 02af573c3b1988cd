package tensor

import (
	"math"

	"github.com/ai3chain/node/internal/platform/errs"
)

const componentName = "tensor"

// VerifyClaim 重新求值Claim并核对它是否兑现了对应Task的承诺（spec 第4.3节）：
// 输入/参数摘要必须与任务声明的一致，重新求值的输出必须与声明的输出在容差内相等。
// expected_output_digest是可选承诺（spec 第3/4.3节）：任务创建者不一定提前知道
// 精确输出摘要，只靠重新求值+容差比较也足以验证声明；只有当创建者确实声明了
// 一个非零expected_output_digest时，才额外核对声明输出摘要与它一致。
func VerifyClaim(task *Task, claim *Claim) error {
	if task.TaskID != claim.TaskID {
		return errs.New(errs.KindInvalid, componentName, "claim task id mismatch")
	}
	if err := claim.Input.Validate(); err != nil {
		return errs.Wrap(errs.KindMalformed, componentName, "claim input invalid", err)
	}
	if claim.Input.Digest() != task.InputDigest {
		return errs.New(errs.KindInvalid, componentName, "claim input does not match task commitment")
	}
	if len(claim.Params) != len(task.ParamDigests) {
		return errs.New(errs.KindInvalid, componentName, "claim param count mismatch")
	}
	for i, p := range claim.Params {
		if err := p.Validate(); err != nil {
			return errs.Wrap(errs.KindMalformed, componentName, "claim param invalid", err)
		}
		if p.Digest() != task.ParamDigests[i] {
			return errs.New(errs.KindInvalid, componentName, "claim param does not match task commitment")
		}
	}
	if err := claim.Output.Validate(); err != nil {
		return errs.Wrap(errs.KindMalformed, componentName, "claim output invalid", err)
	}

	recomputed, err := Evaluate(task.OperationKind, claim.Input, claim.Params, task.OpParam)
	if err != nil {
		return errs.Wrap(errs.KindInvalid, componentName, "claim operation failed to evaluate", err)
	}
	if !withinTolerance(recomputed, claim.Output) {
		return errs.New(errs.KindInvalid, componentName, "claim output does not match reference evaluation")
	}
	if !task.ExpectedOutputDigest.IsZero() && claim.Output.Digest() != task.ExpectedOutputDigest {
		return errs.New(errs.KindInvalid, componentName, "claim output does not match task expected digest")
	}
	return nil
}

// withinTolerance 比较两个同形状张量：int32要求逐位精确相等，
// float32要求每个元素的绝对差不超过Epsilon（spec 第4.3、第9节）。
func withinTolerance(a, b *Tensor) bool {
	if !sameShape(a.Shape, b.Shape) || a.Elem != b.Elem {
		return false
	}
	n := a.Count()
	for i := 0; i < n; i++ {
		if a.Elem == ElemInt32 {
			if a.Int32At(i) != b.Int32At(i) {
				return false
			}
		} else {
			diff := a.Float32At(i) - b.Float32At(i)
			if math.Abs(float64(diff)) > Epsilon {
				return false
			}
		}
	}
	return true
}
