package tensor

import "fmt"

// OperationKind 是张量任务的操作标签，一个固定一字节tag的可扩展枚举（spec 第6、第9节）。
// 旧节点必须把未知tag当作Invalid拒绝——新增kind需要硬分叉。
type OperationKind byte

const (
	OpMatrixMultiply    OperationKind = 0
	OpConv1D            OperationKind = 1
	OpElementwiseActive OperationKind = 2 // 激活函数：ReLU或定点近似sigmoid
	OpElementwiseArith  OperationKind = 3 // 逐元素加/减/乘
)

// ActivationFunc 在OpElementwiseActive内部再细分，编码于payload首字节。
type ActivationFunc byte

const (
	ActivationReLU    ActivationFunc = 0
	ActivationSigmoid ActivationFunc = 1
)

// ArithOp 在OpElementwiseArith内部再细分。
type ArithOp byte

const (
	ArithAdd ArithOp = 0
	ArithSub ArithOp = 1
	ArithMul ArithOp = 2
)

// ErrUnknownOperation 表示遇到了本节点不认识的操作tag（需要硬分叉才能支持）。
var ErrUnknownOperation = fmt.Errorf("tensor: unknown operation kind")

// Evaluate 对输入张量执行operation的参考求值，返回确定性输出。
// params按操作kind解释：matmul的params[0]是右乘矩阵；conv1d的params[0]是卷积核；
// activation不使用params；arith的params[0]是第二操作数。opParam对activation是
// ActivationFunc，对arith是ArithOp，其余kind忽略它。
func Evaluate(kind OperationKind, input *Tensor, params []*Tensor, opParam byte) (*Tensor, error) {
	switch kind {
	case OpMatrixMultiply:
		return evalMatMul(input, params)
	case OpConv1D:
		return evalConv1D(input, params)
	case OpElementwiseActive:
		return evalActivation(input, ActivationFunc(opParam))
	case OpElementwiseArith:
		return evalArith(input, params, ArithOp(opParam))
	default:
		return nil, ErrUnknownOperation
	}
}

// evalMatMul 实现行主序、左到右累加的矩阵乘法，绝不使用FMA：
// acc = acc + a*b，每一步都是独立的乘法后再加法。浮点乘积外包了一层显式的
// float32()转换：按Go语言规范，显式转换强制舍入到float32，编译器不得把它与
// 随后的加法融合；仅把乘和加拆成两条语句并不能阻止融合。
func evalMatMul(a *Tensor, params []*Tensor) (*Tensor, error) {
	if len(a.Shape) != 2 || len(params) != 1 || len(params[0].Shape) != 2 {
		return nil, fmt.Errorf("tensor: matmul requires two rank-2 tensors")
	}
	b := params[0]
	m, k := int(a.Shape[0]), int(a.Shape[1])
	k2, n := int(b.Shape[0]), int(b.Shape[1])
	if k != k2 {
		return nil, fmt.Errorf("tensor: matmul dimension mismatch %d != %d", k, k2)
	}
	if a.Elem != b.Elem {
		return nil, fmt.Errorf("tensor: matmul operand element type mismatch")
	}

	out := newLike(a.Elem, []uint32{uint32(m), uint32(n)})
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			if a.Elem == ElemInt32 {
				var acc int32
				for p := 0; p < k; p++ {
					term := a.Int32At(i*k+p) * b.Int32At(p*n+j)
					acc = acc + term
				}
				out.PutInt32At(i*n+j, acc)
			} else {
				var acc float32
				for p := 0; p < k; p++ {
					term := float32(a.Float32At(i*k+p) * b.Float32At(p*n+j))
					acc = acc + term
				}
				out.PutFloat32At(i*n+j, acc)
			}
		}
	}
	return out, nil
}

// evalConv1D 实现单声道1维卷积，"valid"边界（无填充），步幅1，行主序遍历。
func evalConv1D(input *Tensor, params []*Tensor) (*Tensor, error) {
	if len(input.Shape) != 1 || len(params) != 1 || len(params[0].Shape) != 1 {
		return nil, fmt.Errorf("tensor: conv1d requires two rank-1 tensors")
	}
	kernel := params[0]
	if input.Elem != kernel.Elem {
		return nil, fmt.Errorf("tensor: conv1d operand element type mismatch")
	}
	inLen := int(input.Shape[0])
	kLen := int(kernel.Shape[0])
	if kLen == 0 || kLen > inLen {
		return nil, fmt.Errorf("tensor: conv1d kernel longer than input")
	}
	outLen := inLen - kLen + 1
	out := newLike(input.Elem, []uint32{uint32(outLen)})

	for i := 0; i < outLen; i++ {
		if input.Elem == ElemInt32 {
			var acc int32
			for j := 0; j < kLen; j++ {
				term := input.Int32At(i+j) * kernel.Int32At(j)
				acc = acc + term
			}
			out.PutInt32At(i, acc)
		} else {
			var acc float32
			for j := 0; j < kLen; j++ {
				term := float32(input.Float32At(i+j) * kernel.Float32At(j))
				acc = acc + term
			}
			out.PutFloat32At(i, acc)
		}
	}
	return out, nil
}

// evalActivation 逐元素施加激活函数。ReLU对int32和float32都定义；sigmoid只定义在float32上
// （整数输入选择sigmoid被视为Invalid，由调用方在绑定前校验）。
func evalActivation(input *Tensor, fn ActivationFunc) (*Tensor, error) {
	out := newLike(input.Elem, input.Shape)
	n := input.Count()
	switch fn {
	case ActivationReLU:
		for i := 0; i < n; i++ {
			if input.Elem == ElemInt32 {
				v := input.Int32At(i)
				if v < 0 {
					v = 0
				}
				out.PutInt32At(i, v)
			} else {
				v := input.Float32At(i)
				if v < 0 {
					v = 0
				}
				out.PutFloat32At(i, v)
			}
		}
	case ActivationSigmoid:
		if input.Elem != ElemFloat32 {
			return nil, fmt.Errorf("tensor: sigmoid requires float32 input")
		}
		for i := 0; i < n; i++ {
			out.PutFloat32At(i, sigmoidFixed(input.Float32At(i)))
		}
	default:
		return nil, fmt.Errorf("tensor: unknown activation function")
	}
	return out, nil
}

// evalArith 逐元素二元算术运算，顺序遍历，对应两个同形状张量。
func evalArith(a *Tensor, params []*Tensor, op ArithOp) (*Tensor, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("tensor: arith requires exactly one second operand")
	}
	b := params[0]
	if !sameShape(a.Shape, b.Shape) || a.Elem != b.Elem {
		return nil, fmt.Errorf("tensor: arith operand shape/type mismatch")
	}
	out := newLike(a.Elem, a.Shape)
	n := a.Count()
	for i := 0; i < n; i++ {
		if a.Elem == ElemInt32 {
			x, y := a.Int32At(i), b.Int32At(i)
			out.PutInt32At(i, applyArithInt(op, x, y))
		} else {
			x, y := a.Float32At(i), b.Float32At(i)
			out.PutFloat32At(i, applyArithFloat(op, x, y))
		}
	}
	return out, nil
}

func applyArithInt(op ArithOp, x, y int32) int32 {
	switch op {
	case ArithAdd:
		return x + y
	case ArithSub:
		return x - y
	default:
		return x * y
	}
}

func applyArithFloat(op ArithOp, x, y float32) float32 {
	switch op {
	case ArithAdd:
		return x + y
	case ArithSub:
		return x - y
	default:
		return x * y
	}
}

// sigmoidFixed 使用一个固定16段分段线性近似来逼近sigmoid，而非math.Exp——
// 标准库的exp在不同架构/libm实现间末位可能不一致，分段线性查找表是逐位确定的。
func sigmoidFixed(x float32) float32 {
	breakpoints := [...]float32{-4, -3, -2, -1, 0, 1, 2, 3, 4}
	values := [...]float32{0.0180, 0.0474, 0.1192, 0.2689, 0.5, 0.7311, 0.8808, 0.9526, 0.9820}
	if x <= breakpoints[0] {
		return values[0]
	}
	if x >= breakpoints[len(breakpoints)-1] {
		return values[len(values)-1]
	}
	for i := 0; i < len(breakpoints)-1; i++ {
		if x >= breakpoints[i] && x <= breakpoints[i+1] {
			span := breakpoints[i+1] - breakpoints[i]
			t := (x - breakpoints[i]) / span
			return values[i] + t*(values[i+1]-values[i])
		}
	}
	return values[len(values)-1]
}

func newLike(elem ElementType, shape []uint32) *Tensor {
	if elem == ElemInt32 {
		return NewInt32Tensor(shape)
	}
	return NewFloat32Tensor(shape)
}

func sameShape(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
