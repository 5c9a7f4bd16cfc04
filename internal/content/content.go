// Package content implements the Content Generator external interface:
// generate(kind) -> {subject, body_html}, non-empty, self-checked against a
// spam-pattern list. Generation mixes pure templates with an optional
// OpenAI fill/seed step, mirroring the generation_ratios split of the
// original implementation's AIService.
package content

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"warmup-engine/internal/errs"
)

// Generator is the interface the Dispatcher (C5) calls to produce outgoing
// mail. Its output is opaque to the rest of the
// engine beyond the non-empty/self-check guarantee.
type Generator interface {
	Generate(ctx context.Context, kind string) (subject, bodyHTML string, err error)
}

// Template is one subject/content pair for a given kind, with {placeholder}
// slots filled at generation time.
type Template struct {
	Subject string
	Content string
}

// TemplateGenerator mixes pure-template, template+AI-fill, and AI-seeded generation
// the way the original's AIService did, using its ratios as defaults.
type TemplateGenerator struct {
	templates    map[string][]Template
	placeholders map[string][]string
	filler       Filler
	ratios       Ratios
	spamPatterns []*regexp.Regexp
	rand         *rand.Rand
}

// Ratios controls how often each generation path is taken. They are
// normalized to sum to 1.0 on construction.
type Ratios struct {
	PureTemplate   float64
	TemplateAIFill float64
	AISeeded       float64
}

// Filler generates free text, typically backed by an LLM. A nil Filler
// forces PureTemplate-only generation regardless of configured ratios.
type Filler interface {
	Fill(ctx context.Context, prompt string) (string, error)
}

var defaultSpamPatterns = []string{
	`(?i)\bfree\s+money\b`,
	`(?i)\bact\s+now\b`,
	`(?i)\bclick\s+here\b`,
	`(?i)\bwinner\b.*\bclaim\b`,
	`(?i)\b100%\s+free\b`,
	`(?i)\bwire\s+transfer\b`,
}

func NewTemplateGenerator(templates map[string][]Template, placeholders map[string][]string, filler Filler, ratios Ratios) *TemplateGenerator {
	if templates == nil {
		templates = DefaultTemplates()
	}
	if placeholders == nil {
		placeholders = DefaultPlaceholders()
	}
	patterns := make([]*regexp.Regexp, 0, len(defaultSpamPatterns))
	for _, p := range defaultSpamPatterns {
		patterns = append(patterns, regexp.MustCompile(p))
	}
	if filler == nil {
		ratios = Ratios{PureTemplate: 1.0}
	}
	return &TemplateGenerator{
		templates:    templates,
		placeholders: placeholders,
		filler:       filler,
		ratios:       normalizeRatios(ratios),
		spamPatterns: patterns,
		rand:         rand.New(rand.NewSource(1)),
	}
}

func normalizeRatios(r Ratios) Ratios {
	total := r.PureTemplate + r.TemplateAIFill + r.AISeeded
	if total <= 0 {
		return Ratios{PureTemplate: 1.0}
	}
	return Ratios{
		PureTemplate:   r.PureTemplate / total,
		TemplateAIFill: r.TemplateAIFill / total,
		AISeeded:       r.AISeeded / total,
	}
}

func (g *TemplateGenerator) Generate(ctx context.Context, kind string) (string, string, error) {
	pool, ok := g.templates[kind]
	if !ok || len(pool) == 0 {
		pool, ok = g.templates["general"]
		if !ok || len(pool) == 0 {
			return "", "", errs.New(errs.KindContentGeneratorEmpty, "content.generate", fmt.Errorf("no templates for kind %q", kind))
		}
	}
	tmpl := pool[g.rand.Intn(len(pool))]

	roll := g.rand.Float64()
	useAI := g.filler != nil && roll > g.ratios.PureTemplate

	subject := tmpl.Subject
	body := tmpl.Content
	if useAI && roll <= g.ratios.PureTemplate+g.ratios.TemplateAIFill {
		body = g.fillWithAI(ctx, body)
	} else if useAI {
		seeded, err := g.filler.Fill(ctx, "Write a short, casual email, 2-3 sentences, friendly and natural.")
		if err == nil && strings.TrimSpace(seeded) != "" {
			body = seeded
		} else {
			body = g.fillWithPlaceholders(body)
		}
	} else {
		body = g.fillWithPlaceholders(body)
	}

	bodyHTML := "<p>" + strings.ReplaceAll(strings.TrimSpace(body), "\n", "</p><p>") + "</p>"

	if err := g.selfCheck(subject, bodyHTML); err != nil {
		return "", "", err
	}
	return subject, bodyHTML, nil
}

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

func (g *TemplateGenerator) fillWithPlaceholders(tmpl string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		values, ok := g.placeholders[name]
		if !ok || len(values) == 0 {
			return "[" + name + "]"
		}
		return values[g.rand.Intn(len(values))]
	})
}

func (g *TemplateGenerator) fillWithAI(ctx context.Context, tmpl string) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		name := match[1 : len(match)-1]
		filled, err := g.filler.Fill(ctx, fmt.Sprintf("In one short phrase, provide a %s for a casual email.", name))
		if err != nil || strings.TrimSpace(filled) == "" {
			values, ok := g.placeholders[name]
			if ok && len(values) > 0 {
				return values[g.rand.Intn(len(values))]
			}
			return "[" + name + "]"
		}
		return strings.TrimSpace(filled)
	})
}

func (g *TemplateGenerator) selfCheck(subject, bodyHTML string) error {
	if strings.TrimSpace(subject) == "" || strings.TrimSpace(bodyHTML) == "" {
		return errs.New(errs.KindContentGeneratorEmpty, "content.self_check", errors.New("empty subject or body"))
	}
	if len(subject) > 500 {
		return errs.New(errs.KindContentGeneratorEmpty, "content.self_check", errors.New("subject exceeds 500 characters"))
	}
	combined := subject + " " + bodyHTML
	for _, p := range g.spamPatterns {
		if p.MatchString(combined) {
			return errs.New(errs.KindContentGeneratorEmpty, "content.self_check", fmt.Errorf("matched spam pattern %s", p.String()))
		}
	}
	return nil
}

// DefaultTemplates mirrors the original implementation's fallback template
// set, used when no external template file is configured.
func DefaultTemplates() map[string][]Template {
	return map[string][]Template{
		"general": {
			{Subject: "Hey there!", Content: "{greeting} {casual_phrase} Hope you're doing well! {closing}"},
			{Subject: "Just saying hi", Content: "{greeting} Just wanted to reach out and say hello. {closing}"},
			{Subject: "Quick hello", Content: "{greeting} {casual_phrase} {closing}"},
		},
	}
}

// DefaultPlaceholders mirrors the original implementation's fallback
// placeholder values.
func DefaultPlaceholders() map[string][]string {
	return map[string][]string{
		"greeting":      {"Hey there!", "Hi!", "Hello!"},
		"casual_phrase": {"Hope all is well.", "How have you been?", "It's been a while!"},
		"closing":       {"Take care!", "Talk soon!", "Best wishes!"},
	}
}
