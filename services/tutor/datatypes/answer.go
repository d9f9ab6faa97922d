// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes holds the request, response, and persistence structs
// shared by the tutor service's handlers, cache, and streaming coordinator.
package datatypes

import (
	"errors"
	"fmt"
	"time"
)

// ContentType tags a step's textual content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentMath  ContentType = "math"
	ContentImage ContentType = "image"
)

// CommandKind identifies one of the closed set of client render directives.
// Canvas kinds draw static visualizations; component kinds mount interactive
// widgets. The set is closed on purpose: steps must not carry free-form
// command maps.
type CommandKind string

const (
	// Canvas kinds.
	KindDrawEquation CommandKind = "draw_equation"
	KindDrawImage    CommandKind = "draw_image"
	KindDrawGraph    CommandKind = "draw_graph"
	KindDrawDiagram  CommandKind = "draw_diagram"
	KindDrawTable    CommandKind = "draw_table"
	KindHighlight    CommandKind = "highlight"

	// Component kinds.
	KindShowQuiz   CommandKind = "show_quiz"
	KindShowSlider CommandKind = "show_slider"
	KindShowInput  CommandKind = "show_input"
)

var canvasKinds = map[CommandKind]bool{
	KindDrawEquation: true,
	KindDrawImage:    true,
	KindDrawGraph:    true,
	KindDrawDiagram:  true,
	KindDrawTable:    true,
	KindHighlight:    true,
}

var componentKinds = map[CommandKind]bool{
	KindShowQuiz:   true,
	KindShowSlider: true,
	KindShowInput:  true,
}

// Command is a tagged variant: Kind selects which single payload field is
// populated. Exactly one payload must be set, matching the kind.
type Command struct {
	Kind CommandKind `json:"kind"`

	Equation *EquationPayload `json:"equation,omitempty"`
	Image    *ImagePayload    `json:"image,omitempty"`
	Graph    *GraphPayload    `json:"graph,omitempty"`
	Diagram  *DiagramPayload  `json:"diagram,omitempty"`
	Table    *TablePayload    `json:"table,omitempty"`
	Mark     *MarkPayload     `json:"mark,omitempty"`
	Quiz     *QuizPayload     `json:"quiz,omitempty"`
	Slider   *SliderPayload   `json:"slider,omitempty"`
	Input    *InputPayload    `json:"input,omitempty"`
}

// EquationPayload renders a LaTeX equation at a canvas slot.
type EquationPayload struct {
	Latex string `json:"latex"`
	Slot  string `json:"slot,omitempty"`
}

// ImagePayload renders an image by URL with an optional caption.
type ImagePayload struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// GraphPayload plots a function over a range.
type GraphPayload struct {
	Expression string  `json:"expression"`
	XMin       float64 `json:"x_min"`
	XMax       float64 `json:"x_max"`
	Label      string  `json:"label,omitempty"`
}

// DiagramPayload renders a labeled node/edge sketch.
type DiagramPayload struct {
	Title string   `json:"title,omitempty"`
	Nodes []string `json:"nodes"`
	Edges []string `json:"edges,omitempty"`
}

// TablePayload renders a simple header/rows table.
type TablePayload struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// MarkPayload highlights a region of previously rendered content.
type MarkPayload struct {
	Target string `json:"target"`
	Color  string `json:"color,omitempty"`
}

// QuizPayload mounts a multiple-choice check-in widget.
type QuizPayload struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices"`
	Answer   int      `json:"answer"`
}

// SliderPayload mounts a value-exploration slider widget.
type SliderPayload struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Step  float64 `json:"step,omitempty"`
}

// InputPayload mounts a free-text prompt widget.
type InputPayload struct {
	Prompt      string `json:"prompt"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Step is one ordered unit of an explanation.
type Step struct {
	Number      int         `json:"step_number"`
	Title       string      `json:"title"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"content_type"`

	CanvasCommands    []Command `json:"canvas_commands,omitempty"`
	ComponentCommands []Command `json:"component_commands,omitempty"`
}

// Answer is a complete structured explanation: an ordered sequence of steps
// plus an estimated total duration in seconds. Answers are immutable once
// created except for the usage counter maintained by the cache gateway.
type Answer struct {
	ID           string `json:"id"`
	Fingerprint  string `json:"question_hash"`
	QuestionText string `json:"question_text"`
	Steps        []Step `json:"answer_steps"`

	// TotalDuration is the estimated explanation length in seconds.
	TotalDuration int `json:"total_duration"`

	GeneratedBy       string    `json:"generated_by,omitempty"`
	RelatedQuestionID string    `json:"related_question_id,omitempty"`
	UsageCount        int64     `json:"usage_count"`
	CreatedAt         time.Time `json:"created_at"`
}

var (
	// ErrNoSteps rejects an answer with zero steps; such an answer must
	// never be cached or streamed.
	ErrNoSteps = errors.New("answer has no steps")

	// ErrBadOrdinals rejects step numbers that are not contiguous from 1.
	ErrBadOrdinals = errors.New("step ordinals not contiguous from 1")
)

// Validate checks the structural invariants of an answer. It is called
// before caching and before streaming; a generated answer that fails
// validation counts as a malformed model output.
func (a *Answer) Validate() error {
	if len(a.Steps) == 0 {
		return ErrNoSteps
	}
	for i := range a.Steps {
		step := &a.Steps[i]
		if step.Number != i+1 {
			return fmt.Errorf("%w: step %d has ordinal %d", ErrBadOrdinals, i, step.Number)
		}
		if err := step.validate(); err != nil {
			return fmt.Errorf("step %d: %w", step.Number, err)
		}
	}
	return nil
}

func (s *Step) validate() error {
	switch s.ContentType {
	case ContentText, ContentMath, ContentImage:
	case "":
		s.ContentType = ContentText
	default:
		return fmt.Errorf("unknown content type %q", s.ContentType)
	}
	for _, cmd := range s.CanvasCommands {
		if !canvasKinds[cmd.Kind] {
			return fmt.Errorf("unknown canvas command kind %q", cmd.Kind)
		}
	}
	for _, cmd := range s.ComponentCommands {
		if !componentKinds[cmd.Kind] {
			return fmt.Errorf("unknown component command kind %q", cmd.Kind)
		}
	}
	return nil
}
