// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package answercache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
)

func sampleAnswer(fingerprint string) *datatypes.Answer {
	return &datatypes.Answer{
		ID:           "ans-" + fingerprint,
		Fingerprint:  fingerprint,
		QuestionText: "why is the sky blue",
		Steps: []datatypes.Step{
			{Number: 1, Title: "Scattering", Content: "Sunlight scatters off air molecules.", ContentType: datatypes.ContentText},
			{Number: 2, Title: "Wavelengths", Content: "Blue light scatters more than red.", ContentType: datatypes.ContentText},
		},
		TotalDuration: 30,
	}
}

// gatewaysUnderTest returns every driver so the contract tests run against
// both. The badger driver runs in memory.
func gatewaysUnderTest(t *testing.T) map[string]Gateway {
	t.Helper()
	bg, err := NewGateway(GatewayTypeBadger, "")
	require.NoError(t, err)
	mem, err := NewGateway(GatewayTypeMemory, "")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = bg.Close()
		_ = mem.Close()
	})
	return map[string]Gateway{"badger": bg, "memory": mem}
}

func TestNewGatewayUnknownType(t *testing.T) {
	_, err := NewGateway(GatewayType("sqlite"), "")
	assert.ErrorIs(t, err, ErrInvalidGatewayType)
}

func TestLookupMiss(t *testing.T) {
	for name, gw := range gatewaysUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			_, err := gw.Lookup(context.Background(), "0000")
			assert.ErrorIs(t, err, ErrCacheMiss)
		})
	}
}

func TestInsertAndLookup(t *testing.T) {
	for name, gw := range gatewaysUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := sampleAnswer("abc123" + name)
			require.NoError(t, gw.Insert(ctx, want))

			got, err := gw.Lookup(ctx, want.Fingerprint)
			require.NoError(t, err)
			assert.Equal(t, want.QuestionText, got.QuestionText)
			require.Len(t, got.Steps, 2)
			assert.Equal(t, "Scattering", got.Steps[0].Title)
			assert.EqualValues(t, 0, got.UsageCount)
		})
	}
}

func TestInsertRejectsInvalidAnswer(t *testing.T) {
	for name, gw := range gatewaysUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			bad := sampleAnswer("bad" + name)
			bad.Steps[1].Number = 3
			err := gw.Insert(context.Background(), bad)
			assert.ErrorIs(t, err, datatypes.ErrBadOrdinals)

			_, err = gw.Lookup(context.Background(), bad.Fingerprint)
			assert.ErrorIs(t, err, ErrCacheMiss, "invalid answer must not be cached")
		})
	}
}

func TestIncrementUsage(t *testing.T) {
	for name, gw := range gatewaysUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := sampleAnswer("usage" + name)
			require.NoError(t, gw.Insert(ctx, a))

			for i := 0; i < 3; i++ {
				require.NoError(t, gw.IncrementUsage(ctx, a.Fingerprint))
			}
			got, err := gw.Lookup(ctx, a.Fingerprint)
			require.NoError(t, err)
			assert.EqualValues(t, 3, got.UsageCount)
		})
	}
}

func TestIncrementUsageMiss(t *testing.T) {
	for name, gw := range gatewaysUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			err := gw.IncrementUsage(context.Background(), "nope")
			assert.True(t, errors.Is(err, ErrCacheMiss), "got %v", err)
		})
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	gw := newMemoryGateway()
	ctx := context.Background()
	a := sampleAnswer("copy")
	require.NoError(t, gw.Insert(ctx, a))

	first, err := gw.Lookup(ctx, a.Fingerprint)
	require.NoError(t, err)
	first.Steps[0].Content = "mutated"

	second, err := gw.Lookup(ctx, a.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, "Sunlight scatters off air molecules.", second.Steps[0].Content)
}

func TestInsertOverwrites(t *testing.T) {
	for name, gw := range gatewaysUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := sampleAnswer("over" + name)
			require.NoError(t, gw.Insert(ctx, a))

			updated := sampleAnswer("over" + name)
			updated.Steps[0].Content = "Light bounces around."
			require.NoError(t, gw.Insert(ctx, updated))

			got, err := gw.Lookup(ctx, a.Fingerprint)
			require.NoError(t, err)
			assert.Equal(t, "Light bounces around.", got.Steps[0].Content)
		})
	}
}
