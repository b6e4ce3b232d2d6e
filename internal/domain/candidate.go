package domain

// Caption is the text companion of a generated image.
type Caption struct {
	Text       string `json:"text"`
	Language   string `json:"language"`
	PromptUsed string `json:"prompt_used"`
}

// CandidateImage carries the finished, aspect-normalized asset plus the
// provenance of the prompt that produced it.
type CandidateImage struct {
	PreviewDataURL         string  `json:"preview_data_url"`
	GeneratedImagePath     string  `json:"generated_image_path"`
	UsedReferenceImageEdit bool    `json:"used_reference_image_edit"`
	PromptUsed             string  `json:"prompt_used"`
	PromptAdjustmentNote   *string `json:"prompt_adjustment_note"`
}

// Candidate is one independently generated image+caption result within a
// batch. It is created once and never mutated after emission.
type Candidate struct {
	CandidateID string         `json:"candidate_id"`
	Image       CandidateImage `json:"image"`
	Caption     Caption        `json:"caption"`

	// Index and Total are the 1-based position and batch size. They travel on
	// the stream frame, not inside the candidate payload.
	Index int `json:"-"`
	Total int `json:"-"`

	// PromptAdjusted is true when PromptUsed differs from the request prompt
	// because of enrichment or a safety rewrite. When set, the image carries a
	// non-nil adjustment note.
	PromptAdjusted bool `json:"-"`
}

// GenerationRequest is the immutable input of one pipeline run.
type GenerationRequest struct {
	RequestID           string
	Prompt              string
	ReferenceImagePaths []string
	CandidateCount      int
	EnrichmentEnabled   bool
	Locale              string
}

// PublishResult is the terminal output of a successful publish attempt.
type PublishResult struct {
	PublishedMediaID string `json:"id"`
}
