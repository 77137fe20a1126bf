package main

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const serverVersion = "1.0.0"

const studyServerInfo = `
This server schedules spaced-repetition review of study items (diseases, drugs,
concepts). Each item is split into sections, for example etiology or mechanism,
and every section is scheduled independently.

Suggested review workflow:

1. Call get_due_sections to find what needs review. Present one section at a
   time: show the item name and the section label, not the section content.
2. Let the student recall the section content before revealing it with get_item.
3. Rate the recall with rate_section:
   * again: not recalled
   * hard: recalled with significant effort
   * good: recalled correctly
   * easy: recalled instantly
   * retire: the student no longer needs to review this section
4. Sections whose content or lecture assignment changed are reset and show up
   as due again.

Use get_upcoming_sections to preview the schedule and update_review_steps to
change the base intervals (minutes) used by each rating.
`

var ratingEnum = mcp.Enum("again", "hard", "good", "easy", "retire")

// toolHandler is the signature shared by every handle* function.
type toolHandler func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// newMCPServer creates the MCP server and registers every study tool against s.
func newMCPServer(s *StudyService) *server.MCPServer {
	srv := server.NewMCPServer(
		"Study Review MCP",
		serverVersion,
		server.WithInstructions(studyServerInfo),
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	bind := func(h toolHandler) server.ToolHandlerFunc {
		return func(reqCtx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return h(withService(reqCtx, s), request)
		}
	}

	for _, t := range studyTools() {
		srv.AddTool(t.tool, bind(t.handler))
	}
	return srv
}

type studyTool struct {
	tool    mcp.Tool
	handler toolHandler
}

func studyTools() []studyTool {
	return []studyTool{
		{
			tool: mcp.NewTool("upsert_item",
				mcp.WithDescription("Create a study item, or replace the content of an existing item. "+
					"Review history is kept; sections whose content changed are reset on the next read."),
				mcp.WithString("item_id",
					mcp.Description("ID of an existing item to update; omit to create a new item"),
				),
				mcp.WithString("kind",
					mcp.Required(),
					mcp.Description("Item kind, for example disease, drug or concept"),
				),
				mcp.WithString("name",
					mcp.Description("Display name of the item"),
				),
				mcp.WithObject("fields",
					mcp.Description("Section content keyed by section key"),
				),
				mcp.WithArray("lectures",
					mcp.Description("Lecture assignments: objects with blockId, id, name and week"),
				),
			),
			handler: handleUpsertItem,
		},
		{
			tool: mcp.NewTool("get_item",
				mcp.WithDescription("Get one study item with its content and review record"),
				mcp.WithString("item_id",
					mcp.Required(),
					mcp.Description("The ID of the item"),
				),
			),
			handler: handleGetItem,
		},
		{
			tool: mcp.NewTool("delete_item",
				mcp.WithDescription("Delete a study item and its review history"),
				mcp.WithString("item_id",
					mcp.Required(),
					mcp.Description("The ID of the item to delete"),
				),
			),
			handler: handleDeleteItem,
		},
		{
			tool: mcp.NewTool("list_items",
				mcp.WithDescription("List study items, optionally of one kind"),
				mcp.WithString("kind",
					mcp.Description("Only list items of this kind"),
				),
			),
			handler: handleListItems,
		},
		{
			tool: mcp.NewTool("list_sections",
				mcp.WithDescription("List the reviewable sections defined for an item kind"),
				mcp.WithString("kind",
					mcp.Required(),
					mcp.Description("Item kind"),
				),
			),
			handler: handleListSections,
		},
		{
			tool: mcp.NewTool("rate_section",
				mcp.WithDescription("Record a review rating for one section of an item and schedule its next review"),
				mcp.WithString("item_id",
					mcp.Required(),
					mcp.Description("The ID of the reviewed item"),
				),
				mcp.WithString("section_key",
					mcp.Required(),
					mcp.Description("The reviewed section, for example etiology"),
				),
				mcp.WithString("rating",
					mcp.Required(),
					ratingEnum,
					mcp.Description("One of again, hard, good, easy or retire"),
				),
			),
			handler: handleRateSection,
		},
		{
			tool: mcp.NewTool("get_section_state",
				mcp.WithDescription("Get the current review state of one section"),
				mcp.WithString("item_id",
					mcp.Required(),
					mcp.Description("The ID of the item"),
				),
				mcp.WithString("section_key",
					mcp.Required(),
					mcp.Description("The section key"),
				),
			),
			handler: handleGetSectionState,
		},
		{
			tool: mcp.NewTool("get_due_sections",
				mcp.WithDescription("List every section due for review now, most overdue first"),
				mcp.WithArray("kinds",
					mcp.Description("Only include items of these kinds; all kinds when omitted"),
				),
				mcp.WithBoolean("include_stats",
					mcp.Description("Include review statistics in the response"),
				),
			),
			handler: handleGetDueSections,
		},
		{
			tool: mcp.NewTool("get_upcoming_sections",
				mcp.WithDescription("List scheduled sections that are not yet due, soonest first"),
				mcp.WithArray("kinds",
					mcp.Description("Only include items of these kinds; all kinds when omitted"),
				),
				mcp.WithNumber("limit",
					mcp.Description("Maximum number of sections to return (default 50, 0 for all)"),
				),
			),
			handler: handleGetUpcomingSections,
		},
		{
			tool: mcp.NewTool("get_review_steps",
				mcp.WithDescription("Get the base review interval in minutes for each rating"),
			),
			handler: handleGetReviewSteps,
		},
		{
			tool: mcp.NewTool("update_review_steps",
				mcp.WithDescription("Change the base review interval in minutes for one or more ratings"),
				mcp.WithNumber("again", mcp.Description("Minutes until a section rated again is due")),
				mcp.WithNumber("hard", mcp.Description("Base minutes for a hard rating")),
				mcp.WithNumber("good", mcp.Description("Base minutes for a good rating")),
				mcp.WithNumber("easy", mcp.Description("Base minutes for an easy rating")),
			),
			handler: handleUpdateReviewSteps,
		},
	}
}
