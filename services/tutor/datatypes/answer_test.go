// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"testing"
)

func validAnswer() *Answer {
	return &Answer{
		ID:           "a-1",
		Fingerprint:  "deadbeef",
		QuestionText: "what is photosynthesis",
		Steps: []Step{
			{Number: 1, Title: "Overview", Content: "Plants convert light.", ContentType: ContentText},
			{Number: 2, Title: "Equation", Content: "6CO2 + 6H2O", ContentType: ContentMath,
				CanvasCommands: []Command{{Kind: KindDrawEquation, Equation: &EquationPayload{Latex: "6CO_2"}}}},
		},
		TotalDuration: 40,
	}
}

func TestValidateAccepted(t *testing.T) {
	if err := validAnswer().Validate(); err != nil {
		t.Fatalf("valid answer rejected: %v", err)
	}
}

func TestValidateNoSteps(t *testing.T) {
	a := validAnswer()
	a.Steps = nil
	if err := a.Validate(); !errors.Is(err, ErrNoSteps) {
		t.Fatalf("expected ErrNoSteps, got %v", err)
	}
}

func TestValidateOrdinals(t *testing.T) {
	cases := []struct {
		name     string
		ordinals []int
		wantErr  bool
	}{
		{"contiguous", []int{1, 2, 3}, false},
		{"missing first", []int{2, 3}, true},
		{"duplicate", []int{1, 1, 2}, true},
		{"gap", []int{1, 3}, true},
		{"zero based", []int{0, 1}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &Answer{}
			for _, n := range tc.ordinals {
				a.Steps = append(a.Steps, Step{Number: n, Title: "t", Content: "c", ContentType: ContentText})
			}
			err := a.Validate()
			if tc.wantErr && !errors.Is(err, ErrBadOrdinals) {
				t.Fatalf("expected ErrBadOrdinals, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestValidateCommandKinds(t *testing.T) {
	a := validAnswer()
	a.Steps[0].CanvasCommands = []Command{{Kind: CommandKind("draw_hologram")}}
	if err := a.Validate(); err == nil {
		t.Fatal("unknown canvas kind accepted")
	}

	a = validAnswer()
	a.Steps[0].ComponentCommands = []Command{{Kind: KindDrawEquation}}
	if err := a.Validate(); err == nil {
		t.Fatal("canvas kind accepted as component command")
	}
}

func TestValidateDefaultsContentType(t *testing.T) {
	a := validAnswer()
	a.Steps[0].ContentType = ""
	if err := a.Validate(); err != nil {
		t.Fatalf("empty content type should default: %v", err)
	}
	if a.Steps[0].ContentType != ContentText {
		t.Fatalf("expected default %q, got %q", ContentText, a.Steps[0].ContentType)
	}
}

func TestValidateUnknownContentType(t *testing.T) {
	a := validAnswer()
	a.Steps[1].ContentType = ContentType("video")
	if err := a.Validate(); err == nil {
		t.Fatal("unknown content type accepted")
	}
}
