package domain

// SentimentSplit holds per-stance comment counts from the analysis job.
type SentimentSplit struct {
	Support int
	Oppose  int
	Neutral int
}

// Theme is one recurring topic extracted by the upstream analysis job.
type Theme struct {
	ID          string
	Name        string
	Description string
	Count       int
}

// NotableComment is a representative comment highlighted by the analysis.
type NotableComment struct {
	ID     string
	Author string
	Text   string
	Reason string
}

// AnalysisSummary is the precomputed per-docket analysis used to ground
// chat answers. Produced by an external LLM job; read-only here.
type AnalysisSummary struct {
	DocketID         string
	ExecutiveSummary string
	Sentiment        SentimentSplit
	Themes           []Theme
	NotableComments  []NotableComment
	TotalComments    int
}
