package core

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	confidenceTagPattern  = regexp.MustCompile(`(?is)<confidence>\s*(0?\.?\d+|1\.0|\d+)\s*</confidence>`)
	confidenceLinePattern = regexp.MustCompile(`(\d*\.?\d+)%?`)
)

// ExtractConfidence pulls a confidence score out of free text. A <confidence> tag wins over a
// "confidence:" line; values above 1 are read as percentages. def is returned when nothing
// usable is found.
func ExtractConfidence(text string, def float64) float64 {
	if match := confidenceTagPattern.FindStringSubmatch(text); match != nil {
		if value, err := strconv.ParseFloat(strings.TrimSpace(match[1]), 64); err == nil {
			return asFraction(value)
		}
	}

	for _, line := range strings.Split(strings.ToLower(text), "\n") {
		if !strings.Contains(line, "confidence:") && !strings.Contains(line, "confidence level:") {
			continue
		}
		nums := confidenceLinePattern.FindStringSubmatch(line)
		if nums == nil {
			continue
		}
		if value, err := strconv.ParseFloat(nums[1], 64); err == nil {
			return asFraction(value)
		}
	}

	return def
}

func asFraction(value float64) float64 {
	if value > 1 {
		return value / 100
	}
	return value
}
