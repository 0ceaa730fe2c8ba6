// Package model defines the shared data model for the documentation
// pipeline: jobs, chapters, and document plans. Kept separate from the
// packages that own their lifecycle (orchestrator, checkpoint, outline,
// chapter) to avoid import cycles between them.
package model

import "time"

// JobStatus is the state-machine status of a GenerationJob.
type JobStatus string

// JobStatus values, in their nominal transition order.
const (
	StatusPending    JobStatus = "pending"
	StatusIngesting  JobStatus = "ingesting"
	StatusScanning   JobStatus = "scanning"
	StatusIndexing   JobStatus = "indexing"
	StatusGenerating JobStatus = "generating"
	StatusMerging    JobStatus = "merging"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// NonTerminalStatuses lists every status list_incomplete should consider.
func NonTerminalStatuses() []JobStatus {
	return []JobStatus{
		StatusPending, StatusIngesting, StatusScanning,
		StatusIndexing, StatusGenerating, StatusMerging,
	}
}

// IsTerminal reports whether a status ends the job's lifecycle.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// SourceType distinguishes how a corpus was acquired.
type SourceType string

const (
	SourceGitHubRepo SourceType = "github_repo"
	SourceZipUpload  SourceType = "zip_upload"
)

// Chapter is one section of the generated documentation.
type Chapter struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	RetrievalQueries []string `json:"retrieval_queries"`
}

// DocumentPlan is the ordered chapter outline produced by the planner.
type DocumentPlan struct {
	Chapters []Chapter `json:"chapters"`
}

// MinChapters and MaxChapters bound a well-formed DocumentPlan per the
// DocumentPlan invariant; outside this range the deterministic default plan
// is substituted by the outline planner.
const (
	MinChapters = 5
	MaxChapters = 12
)

// DefaultPlan is the deterministic fallback plan substituted whenever the
// planner's output falls outside [MinChapters, MaxChapters] or otherwise
// fails to parse.
func DefaultPlan() DocumentPlan {
	return DocumentPlan{Chapters: []Chapter{
		{Title: "Overview", Description: "Repository overview and introduction",
			RetrievalQueries: []string{"repository structure", "main entry point", "README"}},
		{Title: "Architecture", Description: "System architecture and design",
			RetrievalQueries: []string{"architecture", "design patterns", "system structure"}},
		{Title: "Core Components", Description: "Main components and modules",
			RetrievalQueries: []string{"main components", "core modules", "key classes"}},
		{Title: "API Reference", Description: "API endpoints and interfaces",
			RetrievalQueries: []string{"API routes", "endpoints", "interfaces"}},
		{Title: "Usage Examples", Description: "Usage examples and tutorials",
			RetrievalQueries: []string{"usage examples", "how to use", "tutorial"}},
	}}
}

// RepoInfo summarizes the ingested repository for job outputs.
type RepoInfo struct {
	Owner      string `json:"owner"`
	RepoName   string `json:"repo_name"`
	TotalFiles int    `json:"total_files"`
	TotalChars int    `json:"total_chars"`
}

// Artifacts holds the intermediate/final results a GenerationJob
// accumulates as it moves through phases. All fields are optional;
// presence indicates the owning phase has completed.
type Artifacts struct {
	IngestionWarnings []string   `json:"ingestion_warnings,omitempty"`
	RepoFiles         []RepoFile `json:"repo_files,omitempty"`
	Plan              *DocumentPlan `json:"plan,omitempty"`
	Chapters          []Chapter  `json:"chapters,omitempty"`
	ChapterMarkdown   []string   `json:"chapter_markdown,omitempty"`
	IndexRef          string     `json:"index_ref,omitempty"`
	Markdown          string     `json:"markdown,omitempty"`
	PDFRef            string     `json:"pdf_ref,omitempty"`
	RepoInfo          *RepoInfo  `json:"repo_info,omitempty"`
}

// RepoFile is a minimal, checkpoint-serializable view of a fetched file.
type RepoFile struct {
	Path string `json:"path"`
	Size int    `json:"size"`
}

// GenerationJob is the orchestrator's unit of work and checkpointed state.
type GenerationJob struct {
	RepoID        string     `json:"repo_id"`
	RepoURL       string     `json:"repo_url,omitempty"`
	Type          SourceType `json:"type"`
	Status        JobStatus  `json:"status"`
	Progress      int        `json:"progress"`
	CurrentStep   string     `json:"current_step"`
	TotalSteps    int        `json:"total_steps"`
	CompletedSteps int       `json:"completed_steps"`
	StartedAt     time.Time  `json:"started_at"`
	LastUpdated   time.Time  `json:"last_updated"`
	Error         string     `json:"error,omitempty"`
	Artifacts     Artifacts  `json:"artifacts"`
}

// JobOutput is the shape returned to the caller on completion, per spec §6.
type JobOutput struct {
	Markdown        string    `json:"markdown"`
	PDFRef          string    `json:"pdf_ref,omitempty"`
	Chapters        []Chapter `json:"chapters"`
	RepoInfo        RepoInfo  `json:"repo_info"`
	DurationSeconds float64   `json:"duration_seconds"`
}
