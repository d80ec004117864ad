package model

// Tag is a named category. Names are unique ignoring case.
type Tag struct {
	ID          int64
	Name        string
	Description string
	Code        string
}

// Rank orders the predictions attached to an issue.
type Rank int

const (
	RankPrimary   Rank = 1
	RankSecondary Rank = 2
)

// PredictedTag is a scored category suggestion for an issue.
type PredictedTag struct {
	IssueID int64
	Tag     Tag
	Rank    Rank
	Score   float64
}

// Prediction is the top-2 output of the label predictor.
type Prediction struct {
	PrimaryLabel   string
	PrimaryScore   float64
	SecondaryLabel string
	SecondaryScore float64
}

// Category is one entry of the categorization taxonomy, used both as the
// predictor's label set and as the labels ensured on upstream repositories.
type Category struct {
	Name        string `yaml:"name"`
	Color       string `yaml:"color"`
	Description string `yaml:"description"`
}
