package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// ProcessorResult contains the result of agent response processing
type ProcessorResult struct {
	ParsedData   interface{} `json:"parsed_data"`
	RepairStats  RepairStats `json:"repair_stats"`
	OriginalJSON string      `json:"-"`
	RepairedJSON string      `json:"-"`
	Success      bool        `json:"success"`
	Error        string      `json:"error,omitempty"`
}

// ProcessAgentResponse extracts the JSON payload from a raw model response,
// repairs it if needed, and unmarshals it into target.
func ProcessAgentResponse(raw string, target interface{}) (ProcessorResult, error) {
	result := ProcessorResult{
		OriginalJSON: raw,
		Success:      false,
	}

	// Extract JSON from the response; models often wrap it in explanatory text
	jsonStr := ExtractJSON(raw)
	if jsonStr == "" {
		result.Error = "no JSON found in agent response"
		log.Debug().Str("head", truncateForLog(raw, 200)).Msg("No JSON found in agent response")
		return result, fmt.Errorf("no JSON found in response")
	}

	repairedJSON, repairStats, err := RepairJSON(jsonStr)
	result.RepairStats = repairStats
	result.RepairedJSON = repairedJSON

	if repairStats.WasRepaired {
		log.Debug().
			Strs("strategies", repairStats.RepairStrategies).
			Int("errors_fixed", repairStats.ErrorsFixed).
			Dur("repair_time", repairStats.RepairTime).
			Msg("JSON repair applied to agent response")
	}

	if err != nil {
		result.Error = fmt.Sprintf("JSON repair failed: %v", err)
		return result, err
	}

	if err := json.Unmarshal([]byte(repairedJSON), target); err != nil {
		result.Error = fmt.Sprintf("JSON parsing failed after repair: %v", err)
		log.Debug().Err(err).Str("json", truncateForLog(repairedJSON, 500)).Msg("JSON parsing failed after repair")
		return result, err
	}

	result.ParsedData = target
	result.Success = true

	return result, nil
}

// ExtractJSON extracts JSON content from mixed text/JSON responses
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// If it starts with { or [, assume it's pure JSON
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	// Look for JSON blocks marked with ```json or ```
	if strings.Contains(raw, "```") {
		lines := strings.Split(raw, "\n")
		var jsonLines []string
		inCodeBlock := false

		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inCodeBlock = !inCodeBlock
				continue
			}
			if inCodeBlock {
				jsonLines = append(jsonLines, line)
			}
		}

		if len(jsonLines) > 0 {
			return strings.Join(jsonLines, "\n")
		}
	}

	// Look for the first { or [ and find its matching close
	startIdx := strings.Index(raw, "{")
	if startIdx == -1 {
		startIdx = strings.Index(raw, "[")
		if startIdx == -1 {
			return ""
		}
	}

	openChar := raw[startIdx]
	closeChar := byte('}')
	if openChar == '[' {
		closeChar = ']'
	}

	count := 0
	for i := startIdx; i < len(raw); i++ {
		if raw[i] == openChar {
			count++
		} else if raw[i] == closeChar {
			count--
			if count == 0 {
				return raw[startIdx : i+1]
			}
		}
	}

	// No complete structure found; return from start to end and let repair
	// complete it
	return raw[startIdx:]
}

// truncateForLog truncates text for logging purposes
func truncateForLog(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return text[:maxLen] + "..."
}
