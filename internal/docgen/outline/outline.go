// Package outline generates a documentation chapter plan for a corpus by
// prompting an LLM for a JSON outline, falling back to a Markdown parse,
// and finally to a deterministic default plan.
package outline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ferg-cod3s/docuforge/internal/corpus"
	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
	"github.com/ferg-cod3s/docuforge/internal/llmclient"
)

const maxSummaryFiles = 50

// Generator generates a DocumentPlan for a fetched corpus.
type Generator struct {
	llm llmclient.LLMClient
}

// New constructs a Generator.
func New(llm llmclient.LLMClient) *Generator {
	return &Generator{llm: llm}
}

// Plan generates the outline for owner/repoName's corpus. On any LLM
// failure or an out-of-range chapter count it substitutes the
// deterministic default plan rather than failing the job.
func (g *Generator) Plan(ctx context.Context, files []corpus.File, owner, repoName string) model.DocumentPlan {
	summary := buildFileSummary(files)
	prompt := buildOutlinePrompt(owner, repoName, summary, len(files))

	text, err := g.llm.Generate(ctx, prompt, llmclient.GenerateOptions{
		ContentType: llmclient.ContentText,
		Title:       fmt.Sprintf("%s Documentation Outline", repoName),
		FileCount:   len(files),
	})
	if err != nil {
		return model.DefaultPlan()
	}

	plan := parseOutline(text)
	if len(plan.Chapters) < model.MinChapters || len(plan.Chapters) > model.MaxChapters {
		return model.DefaultPlan()
	}
	return plan
}

func buildFileSummary(files []corpus.File) string {
	var b strings.Builder
	limit := len(files)
	if limit > maxSummaryFiles {
		limit = maxSummaryFiles
	}
	for _, f := range files[:limit] {
		lines := strings.Count(string(f.Content), "\n") + 1
		fmt.Fprintf(&b, "- %s (%d lines)\n", f.Path, lines)
	}
	if len(files) > maxSummaryFiles {
		fmt.Fprintf(&b, "\n... and %d more files\n", len(files)-maxSummaryFiles)
	}
	return b.String()
}

func buildOutlinePrompt(owner, repoName, fileSummary string, fileCount int) string {
	return fmt.Sprintf(`Analyze this GitHub repository and generate a comprehensive documentation outline.

REPOSITORY: %s/%s
TOTAL FILES: %d

FILE STRUCTURE:
%s

TASK: Generate a documentation outline with chapters and retrieval queries.

OUTPUT FORMAT (JSON-like structure):
{
  "chapters": [
    {
      "title": "Chapter Title",
      "description": "What this chapter covers",
      "queries": ["query 1", "query 2", "query 3"]
    }
  ]
}

REQUIREMENTS:
1. Create 5-10 logical chapters covering:
   - Overview/Introduction
   - Architecture/Design
   - Core Components/Modules
   - API/Interfaces
   - Configuration
   - Usage/Examples
   - Testing
   - Deployment
   - Contributing (if applicable)
   - Summary/Conclusion

2. For each chapter, provide 3-5 retrieval queries that would find relevant code chunks.
   - Queries should be specific and search for concepts, functions, classes, or patterns
   - Examples: "authentication middleware", "database connection setup", "API route handlers"

3. Base chapters on the actual file structure and content.

OUTPUT ONLY the JSON structure, no markdown formatting or explanations.`, owner, repoName, fileCount, fileSummary)
}

var outlineJSONRe = regexp.MustCompile(`(?s)\{[^{}]*"chapters"[^{}]*\[.*\]\s*\}`)

type outlineJSON struct {
	Chapters []struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Queries     []string `json:"queries"`
	} `json:"chapters"`
}

// parseOutline tries a strict JSON decode of a permissively-located JSON
// object first, then falls back to a Markdown heading/bullet parse.
func parseOutline(text string) model.DocumentPlan {
	if match := outlineJSONRe.FindString(text); match != "" {
		var parsed outlineJSON
		if err := json.Unmarshal([]byte(match), &parsed); err == nil {
			plan := model.DocumentPlan{}
			for _, c := range parsed.Chapters {
				title := c.Title
				if title == "" {
					title = "Untitled"
				}
				plan.Chapters = append(plan.Chapters, model.Chapter{
					Title:            title,
					Description:      c.Description,
					RetrievalQueries: c.Queries,
				})
			}
			if len(plan.Chapters) > 0 {
				return plan
			}
		}
	}
	return parseMarkdownOutline(text)
}

func parseMarkdownOutline(text string) model.DocumentPlan {
	var plan model.DocumentPlan
	var current *model.Chapter

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "##") && !strings.HasPrefix(line, "###") {
			if current != nil {
				plan.Chapters = append(plan.Chapters, *current)
			}
			title := strings.TrimSpace(strings.TrimLeft(line, "#"))
			current = &model.Chapter{Title: title}
			continue
		}
		if current == nil {
			continue
		}
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") {
			query := strings.TrimSpace(strings.TrimLeft(line, "-*"))
			if query != "" {
				current.RetrievalQueries = append(current.RetrievalQueries, query)
			}
		} else if !strings.HasPrefix(line, "#") {
			if current.Description != "" {
				current.Description += " " + line
			} else {
				current.Description = line
			}
		}
	}
	if current != nil {
		plan.Chapters = append(plan.Chapters, *current)
	}
	return plan
}
