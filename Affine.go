/*
Copyright (C) 2025 [GrainArc]

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package Georef

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/mat"
)

const (
	// affineUnknowns 仿射变换参数个数
	affineUnknowns = 6
	// MinControlPoints 求解仿射变换所需的最少控制点数
	MinControlPoints = 3
	// rankTolerance 奇异值相对阈值，低于 s_max*rankTolerance 的奇异值视为零
	rankTolerance = 1e-10
)

// AffineParameters 六参数仿射变换
//
//	x' = A*x + B*y + C
//	y' = D*x + E*y + F
type AffineParameters struct {
	A, B, C float64
	D, E, F float64
}

// IdentityAffine 返回恒等变换
func IdentityAffine() AffineParameters {
	return AffineParameters{A: 1, E: 1}
}

// NewAffineParameters 按 a,b,c,d,e,f 顺序创建仿射变换
func NewAffineParameters(a, b, c, d, e, f float64) AffineParameters {
	return AffineParameters{A: a, B: b, C: c, D: d, E: e, F: f}
}

// Apply 变换单个坐标
func (p AffineParameters) Apply(pt orb.Point) orb.Point {
	return orb.Point{
		p.A*pt[0] + p.B*pt[1] + p.C,
		p.D*pt[0] + p.E*pt[1] + p.F,
	}
}

// Compose 返回先执行first再执行p的组合变换 (p∘first)
func (p AffineParameters) Compose(first AffineParameters) AffineParameters {
	return AffineParameters{
		A: p.A*first.A + p.B*first.D,
		B: p.A*first.B + p.B*first.E,
		C: p.A*first.C + p.B*first.F + p.C,
		D: p.D*first.A + p.E*first.D,
		E: p.D*first.B + p.E*first.E,
		F: p.D*first.C + p.E*first.F + p.F,
	}
}

// Determinant 线性部分的行列式
func (p AffineParameters) Determinant() float64 {
	return p.A*p.E - p.B*p.D
}

// Inverse 返回逆变换，不可逆时第二个返回值为false
func (p AffineParameters) Inverse() (AffineParameters, bool) {
	det := p.Determinant()
	if math.Abs(det) < 1e-12 {
		return AffineParameters{}, false
	}
	inv := 1.0 / det
	return AffineParameters{
		A: p.E * inv,
		B: -p.B * inv,
		C: (p.B*p.F - p.E*p.C) * inv,
		D: -p.D * inv,
		E: p.A * inv,
		F: (p.D*p.C - p.A*p.F) * inv,
	}, true
}

// Coefficients 按 a,b,c,d,e,f 顺序返回参数
func (p AffineParameters) Coefficients() [6]float64 {
	return [6]float64{p.A, p.B, p.C, p.D, p.E, p.F}
}

func (p AffineParameters) String() string {
	return fmt.Sprintf("x' = %.10g*x + %.10g*y + %.10g; y' = %.10g*x + %.10g*y + %.10g",
		p.A, p.B, p.C, p.D, p.E, p.F)
}

// AffineFit 最小二乘拟合结果及诊断信息
type AffineFit struct {
	Parameters     AffineParameters
	PointCount     int
	Rank           int       // 设计矩阵的数值秩，满秩为6
	SingularValues []float64 // 设计矩阵奇异值，降序
	Residuals      []float64 // 每个控制点变换后与目标坐标的距离
	RMSE           float64
}

// FitAffine 根据控制点集合拟合仿射变换
func FitAffine(set *ControlPointSet) (*AffineFit, error) {
	if set == nil {
		return nil, With(ErrDegenerateInput, "控制点集合为空")
	}
	return ComputeAffine(set.Source, set.Destination)
}

// ComputeAffine 最小二乘求解源坐标到目标坐标的仿射变换
//
// 每对控制点贡献两行方程:
//
//	[x, y, 1, 0, 0, 0] · (a,b,c,d,e,f)ᵗ = x'
//	[0, 0, 0, x, y, 1] · (a,b,c,d,e,f)ᵗ = y'
//
// 使用SVD求最小范数解，设计矩阵秩小于6（点数不足、点位重合或共线）时返回 ErrDegenerateInput。
func ComputeAffine(src, dst []orb.Point) (*AffineFit, error) {
	if len(src) != len(dst) {
		return nil, With(ErrDegenerateInput, "控制点数量不一致: 源%d个, 目标%d个", len(src), len(dst))
	}
	n := len(src)
	if n < MinControlPoints {
		return nil, With(ErrDegenerateInput, "控制点不足: 至少需要%d个，实际%d个", MinControlPoints, n)
	}

	A := mat.NewDense(n*2, affineUnknowns, nil)
	B := mat.NewVecDense(n*2, nil)
	for i := 0; i < n; i++ {
		x, y := src[i][0], src[i][1]

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		B.SetVec(i*2, dst[i][0])

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		B.SetVec(i*2+1, dst[i][1])
	}

	var svd mat.SVD
	if ok := svd.Factorize(A, mat.SVDThin); !ok {
		return nil, With(ErrDegenerateInput, "奇异值分解失败")
	}
	values := svd.Values(nil)
	rank := svd.Rank(rankTolerance)
	if rank < affineUnknowns {
		return nil, With(ErrDegenerateInput, "控制点共线或重合，无法确定唯一的仿射变换 (秩=%d)", rank)
	}

	var params mat.VecDense
	svd.SolveVecTo(&params, B, rank)

	fit := &AffineFit{
		Parameters: AffineParameters{
			A: params.AtVec(0),
			B: params.AtVec(1),
			C: params.AtVec(2),
			D: params.AtVec(3),
			E: params.AtVec(4),
			F: params.AtVec(5),
		},
		PointCount:     n,
		Rank:           rank,
		SingularValues: values,
		Residuals:      make([]float64, n),
	}

	var sum float64
	for i := range src {
		p := fit.Parameters.Apply(src[i])
		dx, dy := p[0]-dst[i][0], p[1]-dst[i][1]
		d2 := dx*dx + dy*dy
		fit.Residuals[i] = math.Sqrt(d2)
		sum += d2
	}
	fit.RMSE = math.Sqrt(sum / float64(n))

	return fit, nil
}

// MaxResidual 返回最大残差
func (f *AffineFit) MaxResidual() float64 {
	var m float64
	for _, r := range f.Residuals {
		m = math.Max(m, r)
	}
	return m
}

// ConditionNumber 设计矩阵条件数
func (f *AffineFit) ConditionNumber() float64 {
	if len(f.SingularValues) == 0 {
		return math.Inf(1)
	}
	last := f.SingularValues[len(f.SingularValues)-1]
	if last == 0 {
		return math.Inf(1)
	}
	return f.SingularValues[0] / last
}
