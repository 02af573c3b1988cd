package tensor

import "testing"

func TestEvalMatMul(t *testing.T) {
	a := NewInt32Tensor([]uint32{2, 2})
	a.PutInt32At(0, 1)
	a.PutInt32At(1, 2)
	a.PutInt32At(2, 3)
	a.PutInt32At(3, 4)

	b := NewInt32Tensor([]uint32{2, 2})
	b.PutInt32At(0, 5)
	b.PutInt32At(1, 6)
	b.PutInt32At(2, 7)
	b.PutInt32At(3, 8)

	out, err := Evaluate(OpMatrixMultiply, a, []*Tensor{b}, 0)
	if err != nil {
		t.Fatalf("matmul失败: %v", err)
	}
	want := []int32{19, 22, 43, 50}
	for i, w := range want {
		if got := out.Int32At(i); got != w {
			t.Errorf("out[%d] = %d, 期望 %d", i, got, w)
		}
	}
}

func TestEvalMatMulDeterministicRepeat(t *testing.T) {
	a := NewFloat32Tensor([]uint32{2, 3})
	for i := 0; i < 6; i++ {
		a.PutFloat32At(i, float32(i)+0.5)
	}
	b := NewFloat32Tensor([]uint32{3, 2})
	for i := 0; i < 6; i++ {
		b.PutFloat32At(i, float32(i)*0.25)
	}

	out1, err := Evaluate(OpMatrixMultiply, a, []*Tensor{b}, 0)
	if err != nil {
		t.Fatalf("matmul失败: %v", err)
	}
	out2, err := Evaluate(OpMatrixMultiply, a, []*Tensor{b}, 0)
	if err != nil {
		t.Fatalf("matmul失败: %v", err)
	}
	if out1.Digest() != out2.Digest() {
		t.Errorf("相同输入的两次求值摘要不一致，违反确定性要求")
	}
}

func TestEvalConv1D(t *testing.T) {
	input := NewInt32Tensor([]uint32{5})
	for i := 0; i < 5; i++ {
		input.PutInt32At(i, int32(i+1))
	}
	kernel := NewInt32Tensor([]uint32{2})
	kernel.PutInt32At(0, 1)
	kernel.PutInt32At(1, 1)

	out, err := Evaluate(OpConv1D, input, []*Tensor{kernel}, 0)
	if err != nil {
		t.Fatalf("conv1d失败: %v", err)
	}
	if out.Count() != 4 {
		t.Fatalf("输出长度 = %d, 期望 4", out.Count())
	}
	want := []int32{3, 5, 7, 9}
	for i, w := range want {
		if got := out.Int32At(i); got != w {
			t.Errorf("out[%d] = %d, 期望 %d", i, got, w)
		}
	}
}

func TestEvalActivationReLU(t *testing.T) {
	input := NewInt32Tensor([]uint32{4})
	input.PutInt32At(0, -3)
	input.PutInt32At(1, 0)
	input.PutInt32At(2, 5)
	input.PutInt32At(3, -1)

	out, err := Evaluate(OpElementwiseActive, input, nil, byte(ActivationReLU))
	if err != nil {
		t.Fatalf("relu失败: %v", err)
	}
	want := []int32{0, 0, 5, 0}
	for i, w := range want {
		if got := out.Int32At(i); got != w {
			t.Errorf("out[%d] = %d, 期望 %d", i, got, w)
		}
	}
}

func TestEvalActivationSigmoidRejectsInt(t *testing.T) {
	input := NewInt32Tensor([]uint32{2})
	if _, err := Evaluate(OpElementwiseActive, input, nil, byte(ActivationSigmoid)); err == nil {
		t.Errorf("sigmoid作用于int32张量应返回错误")
	}
}

func TestEvalArith(t *testing.T) {
	a := NewInt32Tensor([]uint32{3})
	b := NewInt32Tensor([]uint32{3})
	for i := 0; i < 3; i++ {
		a.PutInt32At(i, int32(i+1))
		b.PutInt32At(i, int32(i+10))
	}
	out, err := Evaluate(OpElementwiseArith, a, []*Tensor{b}, byte(ArithAdd))
	if err != nil {
		t.Fatalf("arith失败: %v", err)
	}
	want := []int32{11, 13, 15}
	for i, w := range want {
		if got := out.Int32At(i); got != w {
			t.Errorf("out[%d] = %d, 期望 %d", i, got, w)
		}
	}
}

func TestEvaluateUnknownOperation(t *testing.T) {
	a := NewInt32Tensor([]uint32{1})
	if _, err := Evaluate(OperationKind(99), a, nil, 0); err != ErrUnknownOperation {
		t.Errorf("未知操作应返回ErrUnknownOperation, got %v", err)
	}
}
