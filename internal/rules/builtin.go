package rules

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/industriq/blackbox/internal/database"
)

// builtinRules are the system causal rules seeded on startup. They apply to
// every tenant and cannot be edited through the rule-pack loader; tenants
// override or extend them with their own packs.
var builtinRules = []database.RCARule{
	{
		Name:        "Bearing Fault",
		NameAr:      "عطل المحمل",
		Description: "Elevated vibration with a rising temperature trend on rotating equipment.",
		Triggers: database.TriggerList{
			{Metric: "vibration", Condition: "high", Threshold: 1.5},
			{Metric: "temperature", Condition: "rising", Threshold: 10},
		},
		AssetTypes:        database.StringList{"pump", "compressor", "motor", "turbine"},
		RootCauseCategory: "BEARING_FAULT",
		ConfidenceBoost:   0.25,
		RecommendedActions: database.ActionList{
			{Priority: 1, Action: "Schedule bearing replacement within 12 hours", ActionAr: "جدولة استبدال المحمل خلال 12 ساعة"},
			{Priority: 2, Action: "Reduce load to 60% until bearing is replaced", ActionAr: "خفض الحمل إلى 60% حتى استبدال المحمل"},
			{Priority: 3, Action: "Monitor vibration levels continuously", ActionAr: "مراقبة مستويات الاهتزاز بشكل مستمر"},
		},
		EstimatedDowntimeHours: 4,
	},
	{
		Name:        "Pump Cavitation",
		NameAr:      "تكهف المضخة",
		Description: "High temperature with reduced flow, the classic cavitation signature.",
		Triggers: database.TriggerList{
			{Metric: "temperature", Condition: "high", Threshold: 1.3},
			{Metric: "flow_rate", Condition: "low", Threshold: 0.7},
		},
		AssetTypes:        database.StringList{"pump"},
		RootCauseCategory: "PUMP_CAVITATION",
		ConfidenceBoost:   0.30,
		RecommendedActions: database.ActionList{
			{Priority: 1, Action: "Check suction line for air leaks", ActionAr: "التحقق من خط السحب بحثًا عن تسرب الهواء"},
			{Priority: 2, Action: "Verify NPSH requirements are met", ActionAr: "التحقق من استيفاء متطلبات NPSH"},
			{Priority: 3, Action: "Reduce pump speed temporarily", ActionAr: "تقليل سرعة المضخة مؤقتًا"},
		},
		EstimatedDowntimeHours: 2,
	},
	{
		Name:        "Valve Leakage",
		NameAr:      "تسرب الصمام",
		Description: "Pressure dropping below the expected operating band.",
		Triggers: database.TriggerList{
			{Metric: "pressure", Condition: "dropping", Threshold: 0.8},
		},
		AssetTypes:        database.StringList{"valve", "pipeline", "separator"},
		RootCauseCategory: "VALVE_LEAKAGE",
		ConfidenceBoost:   0.20,
		RecommendedActions: database.ActionList{
			{Priority: 1, Action: "Isolate and inspect valve", ActionAr: "عزل وفحص الصمام"},
			{Priority: 2, Action: "Check valve seat and seal condition", ActionAr: "التحقق من حالة مقعد الصمام والختم"},
			{Priority: 3, Action: "Prepare for valve replacement if needed", ActionAr: "الاستعداد لاستبدال الصمام إذا لزم الأمر"},
		},
		EstimatedDowntimeHours: 3,
	},
	{
		Name:        "Electrical Fault",
		NameAr:      "عطل كهربائي",
		Description: "Overcurrent with fluctuating power draw on electrical equipment.",
		Triggers: database.TriggerList{
			{Metric: "current", Condition: "high", Threshold: 1.2},
			{Metric: "power", Condition: "fluctuating"},
		},
		AssetTypes:        database.StringList{"motor", "transformer", "switchgear"},
		RootCauseCategory: "ELECTRICAL_FAILURE",
		ConfidenceBoost:   0.25,
		RecommendedActions: database.ActionList{
			{Priority: 1, Action: "Perform electrical isolation and lockout", ActionAr: "تنفيذ العزل الكهربائي والقفل"},
			{Priority: 2, Action: "Check motor windings and insulation", ActionAr: "فحص ملفات المحرك والعزل"},
			{Priority: 3, Action: "Verify power supply quality", ActionAr: "التحقق من جودة إمدادات الطاقة"},
		},
		EstimatedDowntimeHours: 6,
	},
	{
		Name:        "Process Upset",
		NameAr:      "اضطراب العملية",
		Description: "Abnormal level and flow readings pointing at a process deviation.",
		Triggers: database.TriggerList{
			{Metric: "level", Condition: "abnormal"},
			{Metric: "flow_rate", Condition: "abnormal"},
		},
		AssetTypes:        database.StringList{"vessel", "separator", "reactor", "column"},
		RootCauseCategory: "PROCESS_UPSET",
		ConfidenceBoost:   0.15,
		RecommendedActions: database.ActionList{
			{Priority: 1, Action: "Review operating parameters and setpoints", ActionAr: "مراجعة معلمات التشغيل ونقاط الضبط"},
			{Priority: 2, Action: "Check feed composition and flow", ActionAr: "التحقق من تركيبة التغذية والتدفق"},
			{Priority: 3, Action: "Verify instrumentation calibration", ActionAr: "التحقق من معايرة الأجهزة"},
		},
		EstimatedDowntimeHours: 1,
	},
}

// SeedBuiltinRules ensures every built-in system rule exists. Existing rows
// are updated in place so definition changes roll out on restart, but the
// Enabled flag is preserved for operators who switched a rule off.
func SeedBuiltinRules(db *gorm.DB) error {
	created := 0
	for _, rule := range builtinRules {
		rule.IsSystem = true
		rule.Enabled = true
		rule.Priority = 10

		var existing database.RCARule
		err := db.Where("name = ? AND tenant_id IS NULL AND is_system = ?", rule.Name, true).
			First(&existing).Error
		if err == nil {
			rule.ID = existing.ID
			rule.Enabled = existing.Enabled
			rule.CreatedAt = existing.CreatedAt
			if err := db.Save(&rule).Error; err != nil {
				return fmt.Errorf("failed to update system rule %s: %w", rule.Name, err)
			}
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up system rule %s: %w", rule.Name, err)
		}
		if err := db.Create(&rule).Error; err != nil {
			return fmt.Errorf("failed to create system rule %s: %w", rule.Name, err)
		}
		created++
	}
	if created > 0 {
		log.Printf("Seeded %d system causal rules", created)
	}
	return nil
}
