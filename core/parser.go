package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ParseFailedAnalysis is the analysis text of every degraded synthesis.
const ParseFailedAnalysis = "Parsing failed - see raw response"

// ResponseParser turns raw arbiter text into a SynthesisResult for one judging method.
type ResponseParser interface {
	Parse(raw string, responses []WorkerResponse) (SynthesisResult, error)
}

// NewResponseParser returns the parser for a judging method.
func NewResponseParser(method JudgingMethod) ResponseParser {
	switch method {
	case JudgingPickOne:
		return pickOneParser{}
	case JudgingRank:
		return rankParser{}
	default:
		return defaultParser{}
	}
}

// ParseArbiterResponse runs the method's parser and converts any failure into the degraded
// variant. RawArbiterResponse is always set.
func ParseArbiterResponse(method JudgingMethod, raw string, responses []WorkerResponse) ParseOutcome {
	result, err := NewResponseParser(method).Parse(stripCodeFence(raw), responses)
	if err != nil {
		return ParseOutcome{
			Result:   degradedResult(raw),
			Degraded: true,
			Reason:   err.Error(),
		}
	}
	result.RawArbiterResponse = raw
	return ParseOutcome{Result: result}
}

func degradedResult(raw string) SynthesisResult {
	return SynthesisResult{
		Synthesis:          raw,
		Confidence:         0.0,
		Analysis:           ParseFailedAnalysis,
		Dissent:            "",
		NeedsIteration:     false,
		RefinementAreas:    []string{},
		RawArbiterResponse: raw,
		Degraded:           true,
	}
}

// stripCodeFence removes a markdown fence wrapped around the whole reply.
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) > 1 {
		trimmed = strings.Join(lines[1:], "\n")
	} else {
		trimmed = strings.TrimPrefix(trimmed, "```")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

var (
	synthesisPattern       = regexp.MustCompile(`(?is)<synthesis>([\s\S]*?)</synthesis>`)
	sectionConfidence      = regexp.MustCompile(`(?is)<confidence>\s*([\d.]+)\s*</confidence>`)
	analysisPattern        = regexp.MustCompile(`(?is)<analysis>([\s\S]*?)</analysis>`)
	dissentPattern         = regexp.MustCompile(`(?is)<dissent>([\s\S]*?)</dissent>`)
	needsIterationPattern  = regexp.MustCompile(`(?is)<needs_iteration>(true|false)</needs_iteration>`)
	refinementAreasPattern = regexp.MustCompile(`(?is)<refinement_areas>([\s\S]*?)</refinement_areas>`)
	areaSplitPattern       = regexp.MustCompile(`(?i)\s*<area>\s*|\s*</area>\s*`)

	responseIDPattern = regexp.MustCompile(`(?i)<response_id>\s*(\d+)\s*</response_id>`)
	rankingPattern    = regexp.MustCompile(`(?is)<ranking>([\s\S]*?)</ranking>`)
	rankEntryPattern  = regexp.MustCompile(`(?i)<rank position="\d+">(\d+)</rank>`)
)

// defaultParser reads the merge-and-summarize sections. Missing sections keep their zero
// value; a missing synthesis falls back to the whole reply.
type defaultParser struct{}

func (defaultParser) Parse(raw string, _ []WorkerResponse) (SynthesisResult, error) {
	result := SynthesisResult{
		Synthesis:       raw,
		RefinementAreas: []string{},
	}
	found := false

	if m := synthesisPattern.FindStringSubmatch(raw); m != nil {
		result.Synthesis = strings.TrimSpace(m[1])
		found = true
	}
	if m := sectionConfidence.FindStringSubmatch(raw); m != nil {
		found = true
		// a malformed number such as "0.8.1" keeps the 0.0 default
		if value, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64); err == nil {
			result.Confidence = asFraction(value)
		}
	}
	if m := analysisPattern.FindStringSubmatch(raw); m != nil {
		result.Analysis = strings.TrimSpace(m[1])
		found = true
	}
	if m := dissentPattern.FindStringSubmatch(raw); m != nil {
		result.Dissent = strings.TrimSpace(m[1])
		found = true
	}
	if m := needsIterationPattern.FindStringSubmatch(raw); m != nil {
		result.NeedsIteration = strings.EqualFold(m[1], "true")
		found = true
	}
	if m := refinementAreasPattern.FindStringSubmatch(raw); m != nil {
		result.RefinementAreas = splitAreas(strings.TrimSpace(m[1]))
		found = true
	}

	if !found {
		return SynthesisResult{}, ErrNoArbiterSections
	}
	return result, nil
}

func splitAreas(block string) []string {
	areas := []string{}
	for _, part := range areaSplitPattern.Split(block, -1) {
		if area := strings.TrimSpace(part); area != "" {
			areas = append(areas, area)
		}
	}
	return areas
}

// pickOneParser expects <response_id>N</response_id> naming a response of this round.
type pickOneParser struct{}

func (pickOneParser) Parse(raw string, responses []WorkerResponse) (SynthesisResult, error) {
	m := responseIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return SynthesisResult{}, ErrNoResponseID
	}
	chosenID, err := strconv.Atoi(m[1])
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("%w: %v", ErrNoResponseID, err)
	}

	chosen, err := findResponse(responses, chosenID)
	if err != nil {
		return SynthesisResult{}, err
	}

	return SynthesisResult{
		Synthesis:       chosen.Response,
		Confidence:      1.0,
		Analysis:        fmt.Sprintf("Arbiter selected response #%d from model '%s'.", chosenID, chosen.Model),
		NeedsIteration:  false,
		RefinementAreas: []string{},
		ChosenID:        &chosenID,
	}, nil
}

// rankParser expects a <ranking> block of <rank position="k">N</rank> entries, best first.
type rankParser struct{}

func (rankParser) Parse(raw string, responses []WorkerResponse) (SynthesisResult, error) {
	block := rankingPattern.FindStringSubmatch(raw)
	if block == nil {
		return SynthesisResult{}, ErrNoRanking
	}

	entries := rankEntryPattern.FindAllStringSubmatch(block[1], -1)
	ranking := make([]int, 0, len(entries))
	for _, entry := range entries {
		id, err := strconv.Atoi(entry[1])
		if err != nil {
			continue
		}
		ranking = append(ranking, id)
	}
	if len(ranking) == 0 {
		return SynthesisResult{}, ErrEmptyRanking
	}

	top, err := findResponse(responses, ranking[0])
	if err != nil {
		return SynthesisResult{}, err
	}

	return SynthesisResult{
		Synthesis:       top.Response,
		Confidence:      1.0,
		Analysis:        fmt.Sprintf("Arbiter ranked all responses. Top choice is #%d from '%s'. Full ranking: %s", ranking[0], top.Model, formatRanking(ranking)),
		NeedsIteration:  false,
		RefinementAreas: []string{},
		Ranking:         ranking,
	}, nil
}

func formatRanking(ranking []int) string {
	parts := make([]string, len(ranking))
	for i, id := range ranking {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// findResponse returns the successful response with the given id.
func findResponse(responses []WorkerResponse, id int) (WorkerResponse, error) {
	for _, r := range responses {
		if r.ID != id {
			continue
		}
		if r.Failed() {
			return WorkerResponse{}, fmt.Errorf("%w: response #%d failed: %s", ErrUnknownResponseID, id, r.Error)
		}
		return r, nil
	}
	return WorkerResponse{}, fmt.Errorf("%w: arbiter chose response ID %d", ErrUnknownResponseID, id)
}
