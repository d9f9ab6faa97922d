// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// extractJSON strips markdown fences and any prose surrounding the first
// top-level JSON object in a model response. Models add commentary around
// JSON no matter how firmly the prompt forbids it.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if start := strings.Index(s, "```"); start != -1 {
		rest := s[start+3:]
		// Drop an optional language tag on the fence line.
		if nl := strings.IndexByte(rest, '\n'); nl != -1 {
			firstLine := strings.TrimSpace(rest[:nl])
			if firstLine == "json" || firstLine == "" {
				rest = rest[nl+1:]
			}
		}
		if end := strings.Index(rest, "```"); end != -1 {
			s = strings.TrimSpace(rest[:end])
		}
	}

	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first != -1 && last > first {
		s = s[first : last+1]
	}
	return s
}

// repairJSON extracts the JSON object from a raw model response and runs
// it through the repair library, which fixes trailing commas, single
// quotes, unquoted keys, and similar model-typical damage.
func repairJSON(raw string) (string, error) {
	candidate := extractJSON(raw)
	if candidate == "" {
		return "", fmt.Errorf("no JSON object found in model output")
	}
	fixed, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return "", fmt.Errorf("JSON repair failed: %w", err)
	}
	return fixed, nil
}
