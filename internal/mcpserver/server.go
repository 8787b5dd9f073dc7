// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes TaskHive tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taskhive/taskhive/internal/extract"
	"github.com/taskhive/taskhive/internal/models"
	"github.com/taskhive/taskhive/internal/repository"
)

// mcpOrigin is the source origin of tasks created over MCP.
const mcpOrigin = "MCP client"

// Repository is the task repository surface exposed over MCP.
type Repository interface {
	KPIs(ctx context.Context, owner string) (models.KPIs, error)
	ListTasks(ctx context.Context, owner string, filter models.TaskFilter, limit int) ([]models.Task, error)
	CreateTask(ctx context.Context, owner string, in repository.NewTask) (*models.Task, error)
	UpdateTaskAction(ctx context.Context, owner, id string, action models.TaskAction) (*models.Task, error)
	ListSummaries(ctx context.Context, owner string) ([]models.Summary, error)
}

// Extractor runs the extraction pipelines synchronously.
type Extractor interface {
	ProcessEmail(ctx context.Context, owner string, e extract.Email) (*extract.Result, error)
	ProcessMeeting(ctx context.Context, owner string, m extract.Meeting) (*extract.Result, error)
}

// Server wraps the MCP server with TaskHive tools. Every call acts as a
// single configured owner.
type Server struct {
	mcp    *server.MCPServer
	repo   Repository
	agents Extractor
	owner  string
}

// New creates a new MCP server with all TaskHive tools registered.
// agents may be nil, in which case the extraction tools are not offered.
func New(repo Repository, agents Extractor, owner string) *Server {
	s := &Server{repo: repo, agents: agents, owner: owner}

	s.mcp = server.NewMCPServer(
		"TaskHive",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("get_tasks",
		mcp.WithDescription("List tasks. Read the taskhive://task-format resource for field meanings."),
		mcp.WithString("filter", mcp.Description("Task filter"),
			mcp.Enum("all", "overdue", "due_today", "ingested", "action_required", "waiting_on", "fyi")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of tasks (default 50)")),
	), s.getTasks)

	s.mcp.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new todo task."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short imperative title")),
		mcp.WithString("description", mcp.Description("Optional details")),
		mcp.WithString("priority", mcp.Description("Priority (default medium)"),
			mcp.Enum("low", "medium", "high", "critical")),
		mcp.WithString("due_date", mcp.Description("ISO-8601 date or datetime")),
	), s.createTask)

	s.mcp.AddTool(mcp.NewTool("update_task_action",
		mcp.WithDescription("Complete, snooze by one day, or block a task."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
		mcp.WithString("action", mcp.Required(), mcp.Enum("complete", "snooze_1d", "block")),
	), s.updateTaskAction)

	s.mcp.AddTool(mcp.NewTool("get_summaries",
		mcp.WithDescription("List the 20 most recent meeting and document summaries."),
	), s.getSummaries)

	s.mcp.AddTool(mcp.NewTool("get_kpis",
		mcp.WithDescription("Dashboard counters: overdue, due today and incoming tasks."),
	), s.getKPIs)

	if agents != nil {
		s.mcp.AddTool(mcp.NewTool("process_email",
			mcp.WithDescription("Extract tasks from an email and store them."),
			mcp.WithString("subject", mcp.Required()),
			mcp.WithString("body", mcp.Required()),
			mcp.WithString("from", mcp.Description("Sender address")),
		), s.processEmail)

		s.mcp.AddTool(mcp.NewTool("process_meeting",
			mcp.WithDescription("Summarise a meeting transcript and store its action items as tasks."),
			mcp.WithString("title", mcp.Required()),
			mcp.WithString("transcript", mcp.Required()),
		), s.processMeeting)
	}

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Task Format",
			mcp.WithResourceDescription("Fields, statuses and filters of TaskHive tasks."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTaskFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := models.TaskFilter(req.GetString("filter", string(models.FilterAll)))
	tasks, err := s.repo.ListTasks(ctx, s.owner, filter, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(tasks)
}

func (s *Server) createTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := s.repo.CreateTask(ctx, s.owner, repository.NewTask{
		Title:       title,
		Description: req.GetString("description", ""),
		Priority:    req.GetString("priority", ""),
		DueDate:     req.GetString("due_date", ""),
		Source:      models.Source{Type: models.SourceAgent, Origin: mcpOrigin},
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(task)
}

func (s *Server) updateTaskAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	task, err := s.repo.UpdateTaskAction(ctx, s.owner, id, models.TaskAction(action))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(task)
}

func (s *Server) getSummaries(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sums, err := s.repo.ListSummaries(ctx, s.owner)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sums)
}

func (s *Server) getKPIs(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kpis, err := s.repo.KPIs(ctx, s.owner)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(kpis)
}

func (s *Server) processEmail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.agents.ProcessEmail(ctx, s.owner, extract.Email{
		From:    req.GetString("from", ""),
		Subject: req.GetString("subject", ""),
		Body:    req.GetString("body", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s (%d skipped)", res.Message, res.Skipped)), nil
}

func (s *Server) processMeeting(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.agents.ProcessMeeting(ctx, s.owner, extract.Meeting{
		Title:      req.GetString("title", ""),
		Transcript: req.GetString("transcript", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(res.Message), nil
}

func (s *Server) readTaskFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     TaskFormatContract,
		},
	}, nil
}
