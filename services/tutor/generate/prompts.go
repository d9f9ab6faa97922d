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
)

const answerSchemaInstructions = `Respond with a single JSON object and nothing else. The object must have this shape:
{
  "steps": [
    {
      "step_number": 1,
      "title": "short step title",
      "content": "the explanation text for this step",
      "content_type": "text",
      "canvas_commands": [],
      "component_commands": []
    }
  ],
  "total_duration": 60
}
Rules:
- step_number starts at 1 and increases by 1 per step.
- content_type is one of "text", "math", "image".
- total_duration is the estimated seconds to read the whole explanation aloud.
- Use 3 to 6 steps. Each step covers exactly one idea.
- Do not wrap the JSON in markdown fences or add any prose around it.`

func answerPrompt(question string) string {
	return fmt.Sprintf("A student asked the following question:\n\n%q\n\nProduce a step-by-step explanation.\n\n%s", question, answerSchemaInstructions)
}

func followUpPrompt(question, priorQuestion string, priorContext map[string]any) string {
	var b strings.Builder
	b.WriteString("The student is continuing a tutoring conversation.\n")
	if priorQuestion != "" {
		fmt.Fprintf(&b, "Their previous question was: %q\n", priorQuestion)
	}
	if topic, ok := priorContext["topic"].(string); ok && topic != "" {
		fmt.Fprintf(&b, "The conversation topic so far: %s\n", topic)
	}
	fmt.Fprintf(&b, "\nTheir follow-up question is:\n\n%q\n\nProduce a step-by-step explanation that builds on the prior discussion.\n\n%s", question, answerSchemaInstructions)
	return b.String()
}

const briefClarificationInstructions = `Respond with a single JSON object and nothing else:
{
  "message": "one or two sentences answering the question",
  "is_deferred": false,
  "reason": ""
}
If the question is too large to answer briefly without derailing the main
explanation, set is_deferred to true, make message a short acknowledgement,
and state why in reason. Do not wrap the JSON in markdown fences.`

const detailedClarificationInstructions = `Respond with a single JSON object and nothing else, in the same shape as a stepped explanation:
{
  "steps": [
    {"step_number": 1, "title": "short title", "content": "the text", "content_type": "text"}
  ],
  "total_duration": 30
}
Use 3 to 5 steps. Do not wrap the JSON in markdown fences.`

func clarificationPrompt(question, stepContent string, mode string) string {
	var b strings.Builder
	b.WriteString("The student interrupted an explanation to ask a clarifying question.\n")
	if stepContent != "" {
		fmt.Fprintf(&b, "The step being explained when they interrupted:\n%s\n\n", stepContent)
	}
	fmt.Fprintf(&b, "Their question: %q\n\n", question)
	if mode == ModeDetailed {
		b.WriteString(detailedClarificationInstructions)
	} else {
		b.WriteString(briefClarificationInstructions)
	}
	return b.String()
}

// waitingPhrases keep the student engaged while generation runs. Picked
// round-robin rather than randomly so tests are deterministic.
var waitingPhrases = []string{
	"Let me think about that for a moment...",
	"Good question! Working it out now...",
	"One second while I put the steps together...",
	"Thinking through the best way to explain this...",
}
