package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reinkaoss/sifting-tool/internal/schema"
	"github.com/reinkaoss/sifting-tool/internal/scoreline"
)

// Defaults for the analysis request.
const (
	DefaultMaxTokens   = 4000
	DefaultTemperature = 0
)

// PromptInput is everything the analysis prompt is built from.
type PromptInput struct {
	Client               string
	JobDescription       string
	SupportingReferences string
	Criteria             schema.Criteria
	Shape                schema.Shape
	Grammar              scoreline.Grammar
	// Count is the number of subjects in Data.
	Count int
	// Data is marshalled as indented JSON into the prompt.
	Data any
	// Reasoning asks for a detailed-reasoning section after the score lines.
	Reasoning bool
}

const systemPrompt = "You are an early careers recruiter. " +
	"Use decimal scores with exactly 2 decimal places (e.g. 3.75*, 4.25*, 12.50/15). " +
	"Write brief reasons that are professional but simple, with no question number mentions. " +
	"Every candidate analysis must be unique: no templates and no copy-paste phrases. " +
	"Keep brief reasons to 1-2 sentences (20-30 words)."

// BuildPrompt assembles the system and user prompts. The requested line
// format is derived from the shape and grammar so that it matches what
// scoreline parses.
func BuildPrompt(in PromptInput) (Request, error) {
	data, err := json.MarshalIndent(in.Data, "", "  ")
	if err != nil {
		return Request{}, fmt.Errorf("llm: build prompt: marshal data: %w", err)
	}
	g := in.Grammar
	if g.Label == "" {
		g = scoreline.DefaultGrammar()
	}
	shape := in.Shape
	if shape.DimensionCount == 0 {
		shape = schema.Default()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Analyze the following job applications for %s:\n\n", in.Client)
	fmt.Fprintf(&sb, "Job Description: %s\n", in.JobDescription)
	if in.SupportingReferences != "" {
		fmt.Fprintf(&sb, "\nSupporting References:\n%s\n", in.SupportingReferences)
	}
	fmt.Fprintf(&sb, "\nNumber of Applications: %d\n\n", in.Count)
	fmt.Fprintf(&sb, "Applications Data:\n%s\n\n", data)

	fmt.Fprintf(&sb, "Client Scoring Criteria (%d Questions):\n", shape.DimensionCount)
	if in.Criteria.Len() == 0 {
		sb.WriteString("No specific criteria provided\n")
	}
	for i, key := range in.Criteria.Keys {
		fmt.Fprintf(&sb, "\n%s:\n%s\n", schema.DimensionKey(i+1), in.Criteria.Rubrics[key])
	}

	sb.WriteString("\nScore each numeric question from 1.00 to 5.00 stars using 2 decimal places:\n")
	sb.WriteString("- 1.00-1.99* = Poor match to criteria\n")
	sb.WriteString("- 2.00-2.99* = Below average match to criteria\n")
	sb.WriteString("- 3.00-3.99* = Average match to criteria\n")
	sb.WriteString("- 4.00-4.99* = Good match to criteria\n")
	sb.WriteString("- 5.00* = Excellent match to criteria\n\n")
	if len(shape.CategoricalKeys) > 0 {
		fmt.Fprintf(&sb, "%s are Yes/No informational questions; answer them with Yes or No and no brackets.\n",
			strings.Join(shape.CategoricalKeys, ", "))
	}
	fmt.Fprintf(&sb, "The OVERALL SCORE is the sum of the %d scored questions (max %d), to 2 decimal places.\n\n",
		len(shape.NumericKeys), shape.AggregateMax)

	sb.WriteString("For each candidate write exactly one line in this format:\n")
	sb.WriteString(ExampleLine(shape, g))
	sb.WriteString("\n\nThe brief reason must be 1-2 sentences and must not mention question numbers.")
	if in.Reasoning {
		sb.WriteString("\n\nAfter the score lines, provide detailed reasoning in this format:\n")
		fmt.Fprintf(&sb, "%s:\n%s [number]: [detailed explanation on one line]", scoreline.ReasoningHeading, g.Label)
	}

	return Request{
		System:      systemPrompt,
		User:        sb.String(),
		MaxTokens:   DefaultMaxTokens,
		Temperature: DefaultTemperature,
	}, nil
}

// ExampleLine renders the line template shown to the model.
func ExampleLine(shape schema.Shape, g scoreline.Grammar) string {
	unit := g.Unit
	if unit == "" {
		unit = scoreline.DefaultGrammar().Unit
	}
	marker := g.Marker
	if marker == "" {
		marker = scoreline.DefaultGrammar().Marker
	}
	parts := make([]string, len(shape.Keys))
	for i, key := range shape.Keys {
		if shape.IsCategorical(key) {
			parts[i] = key + ": Yes/No"
		} else {
			parts[i] = key + ": [X.XX]" + unit
		}
	}
	return fmt.Sprintf("1. **%s [number] - %s **[X.XX]/%d** - %s - [brief reason]**",
		g.Label, marker, shape.AggregateMax, strings.Join(parts, " "))
}
