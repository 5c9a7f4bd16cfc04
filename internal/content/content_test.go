package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"warmup-engine/internal/errs"
)

func TestGenerateProducesNonEmptyOutput(t *testing.T) {
	g := NewTemplateGenerator(nil, nil, nil, Ratios{PureTemplate: 1.0})
	subject, body, err := g.Generate(context.Background(), "general")
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
	assert.NotEmpty(t, body)
	assert.LessOrEqual(t, len(subject), 500)
}

func TestGenerateUnknownKindFallsBackToGeneral(t *testing.T) {
	g := NewTemplateGenerator(nil, nil, nil, Ratios{PureTemplate: 1.0})
	subject, body, err := g.Generate(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
	assert.NotEmpty(t, body)
}

func TestGenerateEmptyTemplatePoolErrors(t *testing.T) {
	g := NewTemplateGenerator(map[string][]Template{}, nil, nil, Ratios{PureTemplate: 1.0})
	_, _, err := g.Generate(context.Background(), "general")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindContentGeneratorEmpty))
}

func TestSelfCheckRejectsSpamPatterns(t *testing.T) {
	g := NewTemplateGenerator(nil, nil, nil, Ratios{PureTemplate: 1.0})
	err := g.selfCheck("Act now!!!", "<p>Click here to claim your prize</p>")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindContentGeneratorEmpty))
}

type stubFiller struct{ value string }

func (f stubFiller) Fill(ctx context.Context, prompt string) (string, error) {
	return f.value, nil
}

func TestGenerateWithAIFillerProducesValidOutput(t *testing.T) {
	g := NewTemplateGenerator(nil, nil, stubFiller{value: "a friendly phrase"}, Ratios{TemplateAIFill: 1.0})
	subject, body, err := g.Generate(context.Background(), "general")
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
	assert.NotEmpty(t, body)
}
