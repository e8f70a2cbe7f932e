package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/review-notifier/internal/crossref"
	"github.com/nhle/review-notifier/internal/model"
	"github.com/nhle/review-notifier/internal/sink"
)

// ExcerptLimit is the number of characters of a comment body kept in a
// message before the ellipsis.
const ExcerptLimit = 300

// TimeLayout formats message timestamps as day.month hour:minute.
const TimeLayout = "02.01 15:04"

// RenderOptions carries what rendering needs beyond the change itself.
type RenderOptions struct {
	// BaseURL is the platform root used when an item has no web URL.
	BaseURL  string
	Location *time.Location
	Format   sink.Format
}

func (o RenderOptions) timestamp(t time.Time) string {
	loc := o.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimeLayout)
}

var mrStateEmoji = map[string]string{
	"opened": "🟢",
	"merged": "🟣",
	"closed": "🔴",
}

type statusInfo struct {
	emoji string
	text  string
	title string
}

var pipelineStatusInfo = map[string]statusInfo{
	"success":  {"✅", "SUCCESS", "Pipeline succeeded"},
	"failed":   {"❌", "FAILED", "Pipeline failed"},
	"running":  {"🔄", "RUNNING", "Pipeline running"},
	"pending":  {"⏳", "PENDING", "Pipeline pending"},
	"canceled": {"🚫", "CANCELED", "Pipeline canceled"},
	"skipped":  {"⏭️", "SKIPPED", "Pipeline skipped"},
	"manual":   {"👆", "MANUAL", "Pipeline waiting for manual action"},
}

var pipelineSourceEmoji = map[string]string{
	"push":                "📤",
	"web":                 "🌐",
	"schedule":            "⏰",
	"api":                 "🔧",
	"merge_request_event": "🔀",
	"trigger":             "⚡",
}

func lookupStatus(status string) statusInfo {
	if info, ok := pipelineStatusInfo[status]; ok {
		return info
	}
	return statusInfo{"📊", strings.ToUpper(status), "Pipeline: " + status}
}

// Excerpt trims body and caps it at ExcerptLimit characters, appending
// "..." when something was cut.
func Excerpt(body string) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= ExcerptLimit {
		return body
	}
	return string(runes[:ExcerptLimit]) + "..."
}

// projectLabel prefers the path from the merge request reference.
func projectLabel(mr model.MergeRequest, project string) string {
	if p := mr.ProjectPath(); p != "" {
		return p
	}
	return "Project " + project
}

func mergeRequestURL(mr model.MergeRequest, baseURL string) string {
	if mr.WebURL != "" {
		return mr.WebURL
	}
	if path := mr.ProjectPath(); path != "" {
		return fmt.Sprintf("%s/%s/-/merge_requests/%d", baseURL, path, mr.IID)
	}
	return fmt.Sprintf("%s/-/merge_requests/%d", baseURL, mr.IID)
}

// RenderComment builds the alert for a new merge request note.
func RenderComment(mr model.MergeRequest, note model.Note, project string, opts RenderOptions) sink.Message {
	f := formatterFor(opts.Format)
	mrURL := mergeRequestURL(mr, opts.BaseURL)
	noteURL := mrURL + "#note_" + strconv.FormatInt(note.ID, 10)

	stateEmoji, ok := mrStateEmoji[mr.State]
	if !ok {
		stateEmoji = "⚪"
	}

	var b strings.Builder
	b.WriteString("💬 " + f.bold("New comment on merge request") + "\n\n")
	fmt.Fprintf(&b, "%s %s %s\n", stateEmoji, f.bold("MR:"), f.link(fmt.Sprintf("!%d %s", mr.IID, mr.Title), mrURL))
	fmt.Fprintf(&b, "📁 %s %s\n", f.bold("Project:"), f.code(projectLabel(mr, project)))
	fmt.Fprintf(&b, "👤 %s %s\n", f.bold("MR author:"), f.text(mr.Author.DisplayName()))
	fmt.Fprintf(&b, "💭 %s %s\n", f.bold("Comment by:"), f.text(note.Author.DisplayName()))
	fmt.Fprintf(&b, "🕒 %s %s\n", f.bold("Time:"), opts.timestamp(note.CreatedAt))
	if keys := crossref.MergeRequestKeys(mr); len(keys) > 0 {
		fmt.Fprintf(&b, "🔗 %s %s\n", f.bold("Issues:"), f.text(strings.Join(keys, ", ")))
	}
	b.WriteString("\n")
	b.WriteString(f.bold("📝 Comment:") + "\n")
	b.WriteString(f.italic(Excerpt(note.Body)) + "\n\n")
	b.WriteString(f.link("➡️ Open comment", noteURL))

	return sink.Message{
		Title: fmt.Sprintf("%s commented on !%d %s", note.Author.DisplayName(), mr.IID, mr.Title),
		Body:  b.String(),
	}
}

// RenderPipeline builds the alert for a pipeline status transition.
// previous may be empty.
func RenderPipeline(p model.Pipeline, project, previous string, opts RenderOptions) sink.Message {
	f := formatterFor(opts.Format)
	info := lookupStatus(p.Status)

	pipelineURL := p.WebURL
	if pipelineURL == "" {
		pipelineURL = fmt.Sprintf("%s/-/pipelines/%d", opts.BaseURL, p.ID)
	}

	source := p.Source
	if source == "" {
		source = "unknown"
	}
	sourceEmoji, ok := pipelineSourceEmoji[source]
	if !ok {
		sourceEmoji = "📋"
	}

	sha := p.ShortSHA()
	if sha == "" {
		sha = "N/A"
	}
	author := "N/A"
	if p.User != nil {
		author = p.User.DisplayName()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n\n", info.emoji, f.bold("Pipeline: "+info.text))
	fmt.Fprintf(&b, "📁 %s %s\n", f.bold("Project:"), f.code("ID "+project))
	fmt.Fprintf(&b, "🔢 %s %s\n", f.bold("Pipeline:"), f.link(fmt.Sprintf("#%d", p.ID), pipelineURL))
	fmt.Fprintf(&b, "🌿 %s %s\n", f.bold("Branch:"), f.code(p.Ref))
	fmt.Fprintf(&b, "💾 %s %s\n", f.bold("Commit:"), f.code(sha))
	fmt.Fprintf(&b, "%s %s %s\n", sourceEmoji, f.bold("Source:"), f.text(source))
	fmt.Fprintf(&b, "👤 %s %s\n", f.bold("Author:"), f.text(author))
	if previous != "" {
		fmt.Fprintf(&b, "🔁 %s %s\n", f.bold("Previous status:"), f.text(previous))
	}
	fmt.Fprintf(&b, "🕒 %s %s\n\n", f.bold("Updated:"), opts.timestamp(p.UpdatedAt))
	b.WriteString(f.link("➡️ Open pipeline", pipelineURL))

	return sink.Message{
		Title: fmt.Sprintf("%s: project %s, branch %s", info.title, project, p.Ref),
		Body:  b.String(),
	}
}
