package classifier

import (
	"testing"

	"blackbox-ingest/internal/models"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 {
	return &v
}

// ============================================
// 严重程度分级测试
// ============================================

func TestClassifySeverity_Critical(t *testing.T) {
	// 冲击力单独超过8G即为CRITICAL
	severity := ClassifySeverity(floatPtr(9.2), floatPtr(20))
	assert.Equal(t, models.SeverityCritical, severity)

	// 倾角单独超过70度也为CRITICAL
	severity = ClassifySeverity(floatPtr(2.0), floatPtr(75))
	assert.Equal(t, models.SeverityCritical, severity)
}

func TestClassifySeverity_High(t *testing.T) {
	severity := ClassifySeverity(floatPtr(6.0), floatPtr(10))
	assert.Equal(t, models.SeverityHigh, severity)

	severity = ClassifySeverity(floatPtr(1.0), floatPtr(50))
	assert.Equal(t, models.SeverityHigh, severity)
}

func TestClassifySeverity_Medium(t *testing.T) {
	severity := ClassifySeverity(floatPtr(3.5), floatPtr(10))
	assert.Equal(t, models.SeverityMedium, severity)

	severity = ClassifySeverity(floatPtr(1.0), floatPtr(35))
	assert.Equal(t, models.SeverityMedium, severity)
}

func TestClassifySeverity_Low(t *testing.T) {
	severity := ClassifySeverity(floatPtr(1.5), floatPtr(10))
	assert.Equal(t, models.SeverityLow, severity)
}

func TestClassifySeverity_BoundaryNotInclusive(t *testing.T) {
	// 阈值是严格大于：恰好8.0G不触发CRITICAL，落入HIGH（>5）
	severity := ClassifySeverity(floatPtr(8.0), nil)
	assert.Equal(t, models.SeverityHigh, severity)

	// 恰好5.0G落入MEDIUM（>3）
	severity = ClassifySeverity(floatPtr(5.0), nil)
	assert.Equal(t, models.SeverityMedium, severity)

	// 恰好3.0G落入LOW
	severity = ClassifySeverity(floatPtr(3.0), nil)
	assert.Equal(t, models.SeverityLow, severity)
}

func TestClassifySeverity_AbsentInputs(t *testing.T) {
	// 缺失的输入不触发自己的阈值，不做默认值替换
	assert.Equal(t, models.SeverityCritical, ClassifySeverity(floatPtr(9.0), nil))
	assert.Equal(t, models.SeverityCritical, ClassifySeverity(nil, floatPtr(80)))
	assert.Equal(t, models.SeverityLow, ClassifySeverity(nil, nil))
}

func TestClassifySeverity_MonotonicInImpactForce(t *testing.T) {
	// 固定倾角，冲击力递增时严重程度单调不降
	rank := map[string]int{
		models.SeverityLow:      0,
		models.SeverityMedium:   1,
		models.SeverityHigh:     2,
		models.SeverityCritical: 3,
	}

	tilt := floatPtr(20)
	prev := -1
	for force := 0.0; force <= 12.0; force += 0.5 {
		severity := ClassifySeverity(floatPtr(force), tilt)
		assert.GreaterOrEqual(t, rank[severity], prev,
			"severity decreased at impact force %v", force)
		prev = rank[severity]
	}
}

func TestClassifySeverity_MonotonicInTiltAngle(t *testing.T) {
	force := floatPtr(1.0)
	rank := map[string]int{
		models.SeverityLow:      0,
		models.SeverityMedium:   1,
		models.SeverityHigh:     2,
		models.SeverityCritical: 3,
	}

	prev := -1
	for tilt := 0.0; tilt <= 90.0; tilt += 5.0 {
		severity := ClassifySeverity(force, floatPtr(tilt))
		assert.GreaterOrEqual(t, rank[severity], prev,
			"severity decreased at tilt angle %v", tilt)
		prev = rank[severity]
	}
}

// ============================================
// 受伤概率测试
// ============================================

func TestInjuryProbability_CriticalScenario(t *testing.T) {
	// 36.8 + 6.67 + 18 = 61.47 → 61
	result := InjuryProbability(floatPtr(9.2), floatPtr(20), floatPtr(60))
	assert.Equal(t, 61, result)
}

func TestInjuryProbability_LowScenario(t *testing.T) {
	// 6 + 3.33 + 6 = 15.33 → 15
	result := InjuryProbability(floatPtr(1.5), floatPtr(10), floatPtr(20))
	assert.Equal(t, 15, result)
}

func TestInjuryProbability_EachTermCapped(t *testing.T) {
	// 极端冲击力的贡献仍封顶在40分
	result := InjuryProbability(floatPtr(1000), nil, nil)
	assert.Equal(t, 40, result)

	result = InjuryProbability(nil, floatPtr(720), nil)
	assert.Equal(t, 30, result)

	result = InjuryProbability(nil, nil, floatPtr(500))
	assert.Equal(t, 30, result)
}

func TestInjuryProbability_Bounded(t *testing.T) {
	// 全部极端值：40+30+30=100，不会超过100
	result := InjuryProbability(floatPtr(1000), floatPtr(1000), floatPtr(1000))
	assert.Equal(t, 100, result)

	result = InjuryProbability(nil, nil, nil)
	assert.Equal(t, 0, result)

	// 任意组合都落在[0,100]
	for force := 0.0; force <= 20.0; force += 2.5 {
		for tilt := 0.0; tilt <= 180.0; tilt += 22.5 {
			for speed := 0.0; speed <= 200.0; speed += 40.0 {
				result := InjuryProbability(floatPtr(force), floatPtr(tilt), floatPtr(speed))
				assert.GreaterOrEqual(t, result, 0)
				assert.LessOrEqual(t, result, 100)
			}
		}
	}
}
