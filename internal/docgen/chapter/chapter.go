// Package chapter generates individual documentation chapters by
// retrieving relevant chunks through the RAG engine and prompting an LLM
// to write the section.
package chapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ferg-cod3s/docuforge/internal/docgen/model"
	"github.com/ferg-cod3s/docuforge/internal/llmclient"
	"github.com/ferg-cod3s/docuforge/internal/rag/engine"
	"github.com/ferg-cod3s/docuforge/internal/rag/vectorindex"
)

// generationTimeout matches the reference service's extended allowance for
// slow local models during chapter synthesis.
const generationTimeout = 45 * time.Minute

// Generator produces chapter markdown via retrieval-augmented generation.
type Generator struct {
	llm   llmclient.LLMClient
	ragE  *engine.Engine
	topK  int
}

// New constructs a Generator.
func New(llm llmclient.LLMClient, ragE *engine.Engine, topK int) *Generator {
	return &Generator{llm: llm, ragE: ragE, topK: topK}
}

// Generate retrieves context for chapter and asks the LLM to write it,
// falling back to random index chunks when retrieval comes back empty and
// to an error stub when generation itself fails.
func (g *Generator) Generate(ctx context.Context, idx *vectorindex.Index, chapter model.Chapter, repoName string, chapterNumber, totalChapters int) string {
	matches, err := g.ragE.Query(ctx, idx, chapter.RetrievalQueries, g.topK)
	if err != nil || len(matches) == 0 {
		fallback, fbErr := engine.RandomFallback(idx, g.topK)
		if fbErr == nil {
			for _, m := range fallback {
				matches = append(matches, m.Metadata)
			}
		}
	}

	if len(matches) == 0 {
		return fmt.Sprintf("## %s\n\n*No relevant content found for this chapter.*\n", chapter.Title)
	}

	context := buildContext(matches)
	prompt := buildChapterPrompt(chapter, context, repoName, chapterNumber, totalChapters)

	markdown, err := g.llm.Generate(ctx, prompt, llmclient.GenerateOptions{
		ContentType: llmclient.ContentCode,
		Title:       chapter.Title,
		Timeout:     generationTimeout,
	})
	if err != nil {
		return fmt.Sprintf("## %s\n\n*Error generating content: %s*\n", chapter.Title, err.Error())
	}

	if !strings.HasPrefix(strings.TrimSpace(markdown), "#") {
		markdown = fmt.Sprintf("## %s\n\n%s", chapter.Title, markdown)
	}
	return markdown
}

func buildContext(metas []vectorindex.Metadata) string {
	parts := make([]string, 0, len(metas))
	for _, m := range metas {
		parts = append(parts, fmt.Sprintf("**File:** `%s`\n\n%s\n\n---\n", m.FilePath, m.Text))
	}
	return strings.Join(parts, "\n")
}

func buildChapterPrompt(chapter model.Chapter, context, repoName string, chapterNumber, totalChapters int) string {
	return fmt.Sprintf(`Generate comprehensive documentation for the following chapter.

CHAPTER: %s (%d of %d)
DESCRIPTION: %s

REPOSITORY: %s

CONTEXT (relevant code chunks retrieved from repository):
%s

TASK: Write a detailed, professional documentation chapter covering:
- %s
- All relevant code examples and explanations
- Clear structure with subsections
- Code blocks with proper syntax highlighting
- Practical examples where applicable

REQUIREMENTS:
- Use proper markdown formatting
- Include code examples from the context
- Be thorough but concise
- Maintain professional technical writing style
- Do not invent information not present in the context

OUTPUT: Complete markdown chapter content starting with ## %s`,
		chapter.Title, chapterNumber, totalChapters, chapter.Description, repoName, context, chapter.Description, chapter.Title)
}
