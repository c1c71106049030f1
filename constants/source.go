package constants

// Source is the provenance tag attached to a reconciled field.
type Source string

const (
	SourceLanguageModel          Source = "LanguageModel"
	SourceDeterministic          Source = "Deterministic"
	SourceRule                   Source = "Rule"
	SourceLanguageModelCorrected Source = "LanguageModel-Corrected"
)
