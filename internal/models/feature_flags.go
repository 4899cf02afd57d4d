package models

// Hazard categories understood by the anomaly controller.
const (
	CategoryBehavioral = "behavioral"
	CategoryVoice      = "voice"
	CategoryCrowd      = "crowd"
	CategoryContext    = "context"
	CategoryPredictive = "predictive"
)

// FeatureFlags 用户的 AI 安全开关
type FeatureFlags struct {
	// Enabled is the master switch; when false no hazard is evaluated.
	Enabled    bool            `json:"ai_sos_enabled"`
	Categories map[string]bool `json:"ai_features_config,omitempty"`
}

// CategoryEnabled reports whether a hazard category may run. Categories
// missing from the map are enabled.
func (f FeatureFlags) CategoryEnabled(category string) bool {
	if f.Categories == nil {
		return true
	}
	v, ok := f.Categories[category]
	if !ok {
		return true
	}
	return v
}

// DefaultCategories mirrors the client default configuration.
func DefaultCategories() map[string]bool {
	return map[string]bool{
		CategoryBehavioral: true,
		CategoryVoice:      true,
		CategoryCrowd:      true,
		CategoryContext:    true,
		CategoryPredictive: true,
	}
}
