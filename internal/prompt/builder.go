// Package prompt builds the system prompt and the bounded context snapshot
// sent to the reasoning service.
package prompt

import (
	"fmt"
	"strings"
	"time"
)

const identity = "You are the operations assistant for a business console. " +
	"Answer questions about the company's projects, tasks, customers, team and KPIs. Be concise and specific."

const guidelines = `- Use the tools to read or change records; never invent ids.
- Prefer the business context below for figures; say when a figure is a default estimate.
- Confirm what you changed after creating, updating or deleting a record.`

// Builder assembles system prompts.
type Builder struct {
	// MaxContextChars caps the rendered snapshot. Zero means no cap.
	MaxContextChars int
	Timezone        *time.Location
	Now             func() time.Time
}

// SystemContext is the variable part of a prompt.
type SystemContext struct {
	Tooling  string
	Snapshot *Snapshot
}

func NewBuilder() *Builder {
	return &Builder{
		MaxContextChars: 8000,
		Timezone:        time.UTC,
		Now:             time.Now,
	}
}

func (b *Builder) BuildSystemPrompt(ctx SystemContext) string {
	var sections []string
	sections = append(sections, "Identity:\n"+identity)
	sections = append(sections, "Tooling:\n"+nonEmpty(ctx.Tooling, "None."))
	sections = append(sections, "Guidelines:\n"+guidelines)
	sections = append(sections, "Current Date & Time:\n"+b.timeLine())
	sections = append(sections, "Business Context:\n"+b.contextSection(ctx.Snapshot))
	return strings.Join(sections, "\n\n")
}

// Tooling renders tool names and descriptions one per line.
func Tooling(names, descriptions []string) string {
	var bld strings.Builder
	for i, n := range names {
		bld.WriteString("- " + n)
		if i < len(descriptions) && descriptions[i] != "" {
			bld.WriteString(": " + descriptions[i])
		}
		bld.WriteString("\n")
	}
	return strings.TrimRight(bld.String(), "\n")
}

func (b *Builder) timeLine() string {
	loc := b.Timezone
	if loc == nil {
		loc = time.UTC
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	return fmt.Sprintf("%s (%s)", now().In(loc).Format("Monday, 2006-01-02 15:04"), loc)
}

func (b *Builder) contextSection(snap *Snapshot) string {
	content := snap.Render()
	if b.MaxContextChars > 0 && len(content) > b.MaxContextChars {
		content = content[:b.MaxContextChars] + "\n[truncated]"
	}
	return content
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
