package moderation

import (
	"strings"

	"pulse/internal/analysis"
)

// Labels written when the analysis service could not be reached or gave no
// usable answer. They keep the video flagged for manual review.
const (
	LabelStartError        = "AI-START-ERROR"
	LabelManualReview      = "Manual-Review-Required"
	LabelParsingIncomplete = "AI-Parsing-Incomplete"
)

type synonym struct {
	from, to string
}

// Raw detector names rewritten to catalog wording. Names not listed pass through.
var synonyms = []synonym{
	{"Tobacco", "Smoking/Tobacco Detected"},
	{"Alcohol", "Alcohol Content Detected"},
	{"Violence", "Violence/Physical Fighting"},
	{"Explicit Content", "Adult/Explicit Content"},
	{"Suggestive", "Suggestive Material"},
	{"Rude Gestures", "Inappropriate Gestures"},
	{"Smoking", "Smoking/Tobacco Detected"},
}

type heuristic struct {
	keywords []string
	label    string
}

var heuristics = []heuristic{
	{[]string{"smok", "tobacco", "cigar", "vape"}, "Heuristic: Potential Smoking Detected"},
	{[]string{"alcoh", "drink", "beer", "wine", "vodka", "whiskey"}, "Heuristic: Potential Alcohol Content"},
	{[]string{"violen", "fight", "blood", "kill", "gun", "weapon", "attack"}, "Heuristic: Potential Violence"},
	{[]string{"sexy", "bikini", "suggestive"}, "Heuristic: Potential Suggestive Content"},
}

func mapLabel(name string) string {
	for _, s := range synonyms {
		if s.from == name {
			return s.to
		}
	}
	return name
}

// MapLabels keeps detections strictly above minConfidence and returns their
// catalog names, deduplicated in first-seen order.
func MapLabels(labels []analysis.Label, minConfidence float64) []string {
	raw := make([]string, 0, len(labels))
	for _, l := range labels {
		if l.Confidence > minConfidence {
			raw = append(raw, l.Name)
		}
	}

	out := make([]string, 0, len(raw))
	for _, name := range dedupe(raw) {
		out = append(out, mapLabel(name))
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Diagnose guesses moderation labels from the title and blob key when the
// analysis job failed. It never returns an empty list.
func Diagnose(title, blobKey string) []string {
	text := strings.ToLower(title + " " + blobKey)

	var out []string
	for _, h := range heuristics {
		for _, kw := range h.keywords {
			if strings.Contains(text, kw) {
				out = append(out, h.label)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{LabelManualReview, LabelParsingIncomplete}
	}
	return out
}

// StartErrorLabels records a submission failure on the video
func StartErrorLabels(err error) []string {
	return []string{LabelStartError, "SYSTEM: " + err.Error()}
}
