package models

// BusinessProfile is the matching target supplied by the operator. The
// pipeline treats it as read-only configuration.
type BusinessProfile struct {
	CompanyName string `yaml:"company_name" mapstructure:"company_name"`
	CompanySize string `yaml:"company_size" mapstructure:"company_size"` // micro, small, medium
	Country     string `yaml:"country" mapstructure:"country"`

	AIExpertise     []string `yaml:"ai_expertise" mapstructure:"ai_expertise"`
	TechnologyFocus []string `yaml:"technology_focus" mapstructure:"technology_focus"`
	IndustrySectors []string `yaml:"industry_sectors" mapstructure:"industry_sectors"`

	PreferredFundingMin float64 `yaml:"preferred_funding_min" mapstructure:"preferred_funding_min"`
	PreferredFundingMax float64 `yaml:"preferred_funding_max" mapstructure:"preferred_funding_max"`

	MaxProjectDurationMonths int     `yaml:"max_project_duration_months" mapstructure:"max_project_duration_months"`
	ComplexityTolerance      float64 `yaml:"complexity_tolerance" mapstructure:"complexity_tolerance"` // 0-100
	TeamSize                 int     `yaml:"team_size" mapstructure:"team_size"`
}
