package config

import "fmt"

// Validator validates configuration comprehensively with clear error messages.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate performs fail-fast validation, stopping at the first failure.
// Order matters: dependencies (database, LLM keys) are validated before
// the thresholds and policies that depend on them being present.
func (v *Validator) Validate() error {
	if err := v.validateDatabase(); err != nil {
		return fmt.Errorf("database config invalid: %w", err)
	}
	if err := v.validateLLM(); err != nil {
		return fmt.Errorf("LLM config invalid: %w", err)
	}
	if err := v.validateMapping(); err != nil {
		return fmt.Errorf("mapping config invalid: %w", err)
	}
	if err := v.validateVision(); err != nil {
		return fmt.Errorf("vision config invalid: %w", err)
	}
	if err := v.validateSession(); err != nil {
		return fmt.Errorf("session config invalid: %w", err)
	}
	if err := v.validateChat(); err != nil {
		return fmt.Errorf("chat config invalid: %w", err)
	}
	if err := v.validateJobs(); err != nil {
		return fmt.Errorf("job config invalid: %w", err)
	}
	return nil
}

func (v *Validator) validateDatabase() error {
	c := v.cfg
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.DatabaseMaxConn < 1 {
		return fmt.Errorf("DATABASE_MAX_CONN must be at least 1, got %d", c.DatabaseMaxConn)
	}
	return nil
}

func (v *Validator) validateLLM() error {
	c := v.cfg
	if c.AnthropicAPIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required (used for chat, insight, and primary OCR)")
	}
	if c.PrimaryVisionProvider == VisionProviderOpenAI && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when PRIMARY_VISION_PROVIDER=openai")
	}
	if c.ChatModel == "" || c.OCRModel == "" || c.InsightModel == "" {
		return fmt.Errorf("CHAT_MODEL, OCR_MODEL, and INSIGHT_MODEL must all be set")
	}
	return nil
}

func (v *Validator) validateMapping() error {
	c := v.cfg
	if c.QueueLowerThreshold < 0 || c.QueueLowerThreshold > 1 {
		return fmt.Errorf("QUEUE_LOWER_THRESHOLD must be in [0,1], got %v", c.QueueLowerThreshold)
	}
	if c.AutoAcceptThreshold < 0 || c.AutoAcceptThreshold > 1 {
		return fmt.Errorf("AUTO_ACCEPT_THRESHOLD must be in [0,1], got %v", c.AutoAcceptThreshold)
	}
	if c.AutoAcceptThreshold <= c.QueueLowerThreshold {
		return fmt.Errorf("AUTO_ACCEPT_THRESHOLD (%v) must exceed QUEUE_LOWER_THRESHOLD (%v)", c.AutoAcceptThreshold, c.QueueLowerThreshold)
	}
	if c.BackfillMinOccurrence < 1 {
		return fmt.Errorf("BACKFILL_MIN_OCCURRENCE must be at least 1, got %d", c.BackfillMinOccurrence)
	}
	return nil
}

func (v *Validator) validateVision() error {
	c := v.cfg
	if c.PrimaryVisionProvider != VisionProviderAnthropic && c.PrimaryVisionProvider != VisionProviderOpenAI {
		return fmt.Errorf("PRIMARY_VISION_PROVIDER must be 'anthropic' or 'openai', got %q", c.PrimaryVisionProvider)
	}
	if c.VisionMaxAttempts < 1 || c.VisionMaxAttempts > 10 {
		return fmt.Errorf("VISION_MAX_ATTEMPTS must be between 1 and 10, got %d", c.VisionMaxAttempts)
	}
	if c.VisionBaseBackoff <= 0 {
		return fmt.Errorf("VISION_BASE_BACKOFF must be positive, got %v", c.VisionBaseBackoff)
	}
	if c.VisionMaxPages < 1 {
		return fmt.Errorf("VISION_MAX_PAGES must be at least 1, got %d", c.VisionMaxPages)
	}
	if c.MaxUploadBytes < 1 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be at least 1, got %d", c.MaxUploadBytes)
	}
	return nil
}

func (v *Validator) validateSession() error {
	c := v.cfg
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %v", c.SessionTTL)
	}
	if c.SessionSweepInterval <= 0 || c.SessionSweepInterval >= c.SessionTTL {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive and less than SESSION_TTL")
	}
	if c.MaxConversationMessages < 2 {
		return fmt.Errorf("MAX_CONVERSATION_MESSAGES must be at least 2, got %d", c.MaxConversationMessages)
	}
	return nil
}

func (v *Validator) validateChat() error {
	c := v.cfg
	if c.MaxConversationIterations < 1 || c.MaxConversationIterations > 50 {
		return fmt.Errorf("MAX_CONVERSATION_ITERATIONS must be between 1 and 50, got %d", c.MaxConversationIterations)
	}
	if c.PlotRowCap < 1 {
		return fmt.Errorf("PLOT_ROW_CAP must be at least 1, got %d", c.PlotRowCap)
	}
	if c.TableRowCap < 1 || c.TableRowCap > c.PlotRowCap {
		return fmt.Errorf("TABLE_ROW_CAP must be positive and at most PLOT_ROW_CAP, got %d", c.TableRowCap)
	}
	return nil
}

func (v *Validator) validateJobs() error {
	c := v.cfg
	if c.JobTTL <= 0 {
		return fmt.Errorf("JOB_TTL must be positive, got %v", c.JobTTL)
	}
	if c.JobSweepInterval <= 0 || c.JobSweepInterval >= c.JobTTL {
		return fmt.Errorf("JOB_SWEEP_INTERVAL must be positive and less than JOB_TTL")
	}
	return nil
}
