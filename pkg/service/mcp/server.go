package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/assistant"
	"github.com/OsoPanda1/isabella/pkg/usecase/vault"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes one user's memory vault as MCP tools
type Server struct {
	service *assistant.Service
	userID  model.UserID
	server  *mcp.Server
}

// NewServer creates an MCP server whose tools act on userID's memories
func NewServer(service *assistant.Service, userID model.UserID, version string) (*Server, error) {
	if userID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "user ID is required for MCP server")
	}

	s := &Server{
		service: service,
		userID:  userID,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "isabella-memory",
			Version: version,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "remember",
		Description: "Store a memory about the user. Types: preference, fact, emotion, goal, relationship.",
	}, s.remember)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "recall",
		Description: "List the user's memories, most important and most recent first",
	}, s.recall)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_memories",
		Description: "Find up to 10 memories tagged with exactly the given entity",
	}, s.search)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forget",
		Description: "Delete one of the user's memories by ID",
	}, s.forget)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_preferences",
		Description: "Get the user's merged preferences",
	}, s.preferences)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_emotional_context",
		Description: "Get the user's recent moods from emotion memories",
	}, s.emotionalContext)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_diary_entry",
		Description: "Store a diary entry for the user",
	}, s.addDiaryEntry)

	return s, nil
}

// Run serves over stdio until ctx is done or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "MCP server stopped", goerr.V("user_id", s.userID))
	}
	return nil
}

// Handler serves the tools over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to encode tool result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, nil, nil
}

type memoryView struct {
	ID              model.MemoryID   `json:"id"`
	Type            model.MemoryType `json:"type"`
	Content         map[string]any   `json:"content"`
	Importance      model.Importance `json:"importance"`
	EmotionContext  model.Emotion    `json:"emotion_context,omitempty"`
	RelatedEntities []string         `json:"related_entities,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toView(r *model.MemoryRecord) memoryView {
	return memoryView{
		ID:              r.ID,
		Type:            r.Type,
		Content:         r.Content,
		Importance:      r.Importance,
		EmotionContext:  r.EmotionContext,
		RelatedEntities: r.RelatedEntities,
		CreatedAt:       r.CreatedAt,
	}
}

func toViews(records []*model.MemoryRecord) []memoryView {
	views := make([]memoryView, 0, len(records))
	for _, r := range records {
		views = append(views, toView(r))
	}
	return views
}

type rememberParams struct {
	Type            string         `json:"type" jsonschema:"Memory type: preference, fact, emotion, goal or relationship"`
	Content         map[string]any `json:"content" jsonschema:"Key/value content of the memory"`
	Importance      *int           `json:"importance,omitempty" jsonschema:"Importance from 1 (trivial) to 5 (must recall), default 3"`
	EmotionContext  string         `json:"emotion_context,omitempty" jsonschema:"Optional mood attached to the memory"`
	RelatedEntities []string       `json:"related_entities,omitempty" jsonschema:"Tags used by search_memories"`
	ExpiresInHours  int            `json:"expires_in_hours,omitempty" jsonschema:"Optional lifetime in hours"`
}

func (s *Server) remember(ctx context.Context, req *mcp.CallToolRequest, params *rememberParams) (*mcp.CallToolResult, any, error) {
	opts := &vault.RememberOptions{
		Importance:      importanceParam(params.Importance),
		EmotionContext:  model.Emotion(params.EmotionContext),
		RelatedEntities: params.RelatedEntities,
	}
	if params.ExpiresInHours > 0 {
		expiresAt := time.Now().Add(time.Duration(params.ExpiresInHours) * time.Hour)
		opts.ExpiresAt = &expiresAt
	}

	record, err := s.service.Remember(ctx, s.userID, model.MemoryType(params.Type), params.Content, opts)
	if err != nil {
		logging.From(ctx).Warn("MCP remember failed", "error", err)
		return nil, nil, err
	}
	return jsonResult(toView(record))
}

type recallParams struct {
	Type  string `json:"type,omitempty" jsonschema:"Optional memory type filter"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum number of memories, default 20"`
}

func (s *Server) recall(ctx context.Context, req *mcp.CallToolRequest, params *recallParams) (*mcp.CallToolResult, any, error) {
	memoryType := model.MemoryType(params.Type)
	if memoryType != "" {
		if err := memoryType.Validate(); err != nil {
			return nil, nil, err
		}
	}
	return jsonResult(toViews(s.service.Recall(ctx, s.userID, memoryType, params.Limit)))
}

type searchParams struct {
	Tag string `json:"tag" jsonschema:"Entity tag to match exactly"`
}

func (s *Server) search(ctx context.Context, req *mcp.CallToolRequest, params *searchParams) (*mcp.CallToolResult, any, error) {
	if params.Tag == "" {
		return nil, nil, goerr.Wrap(model.ErrInvalidInput, "tag is required")
	}
	return jsonResult(toViews(s.service.Search(ctx, s.userID, params.Tag)))
}

type forgetParams struct {
	ID string `json:"id" jsonschema:"ID of the memory to delete"`
}

func (s *Server) forget(ctx context.Context, req *mcp.CallToolRequest, params *forgetParams) (*mcp.CallToolResult, any, error) {
	return jsonResult(map[string]bool{
		"deleted": s.service.Forget(ctx, s.userID, model.MemoryID(params.ID)),
	})
}

type emptyParams struct{}

func (s *Server) preferences(ctx context.Context, req *mcp.CallToolRequest, _ *emptyParams) (*mcp.CallToolResult, any, error) {
	return jsonResult(s.service.Preferences(ctx, s.userID))
}

type emotionalContextParams struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of moods, default 5"`
}

func (s *Server) emotionalContext(ctx context.Context, req *mcp.CallToolRequest, params *emotionalContextParams) (*mcp.CallToolResult, any, error) {
	return jsonResult(s.service.EmotionalContext(ctx, s.userID, params.Limit))
}

type diaryParams struct {
	Text            string   `json:"text" jsonschema:"Diary text"`
	EntryType       string   `json:"entry_type,omitempty" jsonschema:"Kind of entry such as reflection or gratitude"`
	EmotionDetected string   `json:"emotion_detected,omitempty" jsonschema:"Optional mood of the entry"`
	Importance      *int     `json:"importance,omitempty" jsonschema:"Importance from 1 to 5, default 3"`
	Tags            []string `json:"tags,omitempty" jsonschema:"Tags used by search_memories"`
}

func (s *Server) addDiaryEntry(ctx context.Context, req *mcp.CallToolRequest, params *diaryParams) (*mcp.CallToolResult, any, error) {
	if params.Text == "" {
		return nil, nil, goerr.Wrap(model.ErrInvalidInput, "text is required")
	}
	stored := s.service.AddDiaryEntry(ctx, s.userID, params.Text, params.EntryType, &vault.DiaryOptions{
		EmotionDetected: model.Emotion(params.EmotionDetected),
		Importance:      importanceParam(params.Importance),
		Tags:            params.Tags,
	})
	return jsonResult(map[string]bool{"stored": stored})
}

func importanceParam(v *int) *model.Importance {
	if v == nil {
		return nil
	}
	i := model.Importance(*v)
	return &i
}
