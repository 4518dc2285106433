package classifier

import (
	"math"

	"blackbox-ingest/internal/models"
)

// 分级阈值（严格大于，边界值落入下一档）
const (
	criticalImpactG = 8.0
	criticalTiltDeg = 70.0
	highImpactG     = 5.0
	highTiltDeg     = 45.0
	mediumImpactG   = 3.0
	mediumTiltDeg   = 30.0
)

// ClassifySeverity 碰撞严重程度分级
// 阈值按 OR 级联求值，高档优先；任一输入缺失时该输入不触发自己的阈值，
// 不做默认值替换
//
// 已知局限：急刹车可能产生单次高冲击力读数，在没有对应倾角或速度骤降
// 形态的情况下会被误判为碰撞。是否要求佐证信号（GPS速度差、持续倾斜时长）
// 后再判 CRITICAL 尚无定论，当前保持原判定行为。
func ClassifySeverity(impactForce, tiltAngle *float64) string {
	impact := func(threshold float64) bool {
		return impactForce != nil && *impactForce > threshold
	}
	tilt := func(threshold float64) bool {
		return tiltAngle != nil && *tiltAngle > threshold
	}

	switch {
	case impact(criticalImpactG) || tilt(criticalTiltDeg):
		return models.SeverityCritical
	case impact(highImpactG) || tilt(highTiltDeg):
		return models.SeverityHigh
	case impact(mediumImpactG) || tilt(mediumTiltDeg):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// InjuryProbability 受伤概率估计，[0,100]
// 加权线性求和，每项先独立封顶再相加：
//   冲击力最多贡献40分 min(impact/10*40, 40)
//   倾角最多贡献30分   min(tilt/90*30, 30)
//   撞击前速度最多贡献30分 min(speed/100*30, 30)
// 结果四舍五入取整并硬性封顶在100
func InjuryProbability(impactForce, tiltAngle, preImpactSpeed *float64) int {
	var score float64

	if impactForce != nil {
		score += math.Min(*impactForce/10.0*40.0, 40.0)
	}
	if tiltAngle != nil {
		score += math.Min(*tiltAngle/90.0*30.0, 30.0)
	}
	if preImpactSpeed != nil {
		score += math.Min(*preImpactSpeed/100.0*30.0, 30.0)
	}

	result := int(math.Round(score))
	if result > 100 {
		result = 100
	}
	if result < 0 {
		result = 0
	}
	return result
}
