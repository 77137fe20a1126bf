package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/danieldreier/mcp-study/internal/review"
	"github.com/danieldreier/mcp-study/internal/storage"
)

type serviceKey struct{}

// withService stores the study service in ctx for the tool handlers.
func withService(ctx context.Context, s *StudyService) context.Context {
	return context.WithValue(ctx, serviceKey{}, s)
}

func serviceFrom(ctx context.Context) (*StudyService, bool) {
	s, ok := ctx.Value(serviceKey{}).(*StudyService)
	return s, ok && s != nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func errorResult(format string, args ...any) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]string{"error": fmt.Sprintf(format, args...)})
}

func stringArg(request mcp.CallToolRequest, name string) string {
	v, _ := request.Params.Arguments[name].(string)
	return v
}

func stringSliceArg(request mcp.CallToolRequest, name string) []string {
	raw, ok := request.Params.Arguments[name].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func objectArg(request mcp.CallToolRequest, name string) map[string]any {
	v, _ := request.Params.Arguments[name].(map[string]interface{})
	return v
}

// lecturesArg decodes the lectures argument through the same JSON path the
// stores use, so loosely typed week numbers are accepted.
func lecturesArg(request mcp.CallToolRequest) ([]review.LectureRef, error) {
	raw, ok := request.Params.Arguments["lectures"]
	if !ok || raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var lectures []review.LectureRef
	if err := json.Unmarshal(data, &lectures); err != nil {
		return nil, err
	}
	return lectures, nil
}

// handleUpsertItem creates an item or replaces the content of an existing one.
func handleUpsertItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	kind := stringArg(request, "kind")
	if kind == "" {
		return mcp.NewToolResultText("Missing required parameter: kind"), nil
	}
	lectures, err := lecturesArg(request)
	if err != nil {
		return errorResult("Invalid lectures: %v", err)
	}

	item := review.Item{
		ID:       stringArg(request, "item_id"),
		Kind:     kind,
		Name:     stringArg(request, "name"),
		Fields:   objectArg(request, "fields"),
		Lectures: lectures,
	}
	saved, err := s.UpsertItem(ctx, item)
	if err != nil {
		return errorResult("Error saving item: %v", err)
	}
	return jsonResult(ItemResponse{Item: saved})
}

// handleGetItem returns one item with its review record.
func handleGetItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}
	itemID := stringArg(request, "item_id")
	if itemID == "" {
		return mcp.NewToolResultText("Missing required parameter: item_id"), nil
	}

	item, err := s.GetItem(ctx, itemID)
	if err != nil {
		return errorResult("Error getting item: %v", err)
	}
	return jsonResult(ItemResponse{Item: item})
}

// handleDeleteItem removes one item.
func handleDeleteItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}
	itemID := stringArg(request, "item_id")
	if itemID == "" {
		return mcp.NewToolResultText("Missing required parameter: item_id"), nil
	}

	if err := s.DeleteItem(ctx, itemID); err != nil {
		if errors.Is(err, storage.ErrItemNotFound) {
			return errorResult("Item not found: %s", itemID)
		}
		return errorResult("Error deleting item: %v", err)
	}
	return jsonResult(DeleteItemResponse{
		Success: true,
		Message: "Item deleted successfully",
	})
}

// handleListItems lists items, optionally filtered by kind.
func handleListItems(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	items, err := s.ListItems(ctx, stringArg(request, "kind"))
	if err != nil {
		return errorResult("Error listing items: %v", err)
	}
	return jsonResult(ListItemsResponse{Items: items, Count: len(items)})
}

// handleListSections lists the section definitions of one kind.
func handleListSections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}
	kind := stringArg(request, "kind")
	if kind == "" {
		return mcp.NewToolResultText("Missing required parameter: kind"), nil
	}

	defs := s.Sections.SectionsForKind(kind)
	if defs == nil {
		defs = []review.SectionDef{}
	}
	return jsonResult(SectionDefsResponse{Kind: kind, Sections: defs})
}

// handleRateSection records a rating for one section and returns its new state.
func handleRateSection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	itemID := stringArg(request, "item_id")
	if itemID == "" {
		return mcp.NewToolResultText("Missing required parameter: item_id"), nil
	}
	sectionKey := stringArg(request, "section_key")
	if sectionKey == "" {
		return mcp.NewToolResultText("Missing required parameter: section_key"), nil
	}
	rawRating := stringArg(request, "rating")
	if rawRating == "" {
		return mcp.NewToolResultText("Missing required parameter: rating"), nil
	}

	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	// Unrecognized ratings are scheduled as good.
	rating := review.ParseRating(rawRating)
	state, err := s.RateSection(ctx, itemID, sectionKey, rating)
	if err != nil {
		return errorResult("Error rating section: %v", err)
	}

	return jsonResult(RateSectionResponse{
		Success:    true,
		Message:    fmt.Sprintf("Rated %s of item %s as %s", sectionKey, itemID, rating),
		ItemID:     itemID,
		SectionKey: sectionKey,
		State:      state,
		DueAt:      dueTime(state.Due),
	})
}

// handleGetSectionState returns the re-validated state of one section.
func handleGetSectionState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}
	itemID := stringArg(request, "item_id")
	sectionKey := stringArg(request, "section_key")
	if itemID == "" || sectionKey == "" {
		return mcp.NewToolResultText("Missing required parameters: item_id, section_key"), nil
	}

	state, found, err := s.SectionState(ctx, itemID, sectionKey)
	if err != nil {
		return errorResult("Error getting section state: %v", err)
	}
	response := SectionStateResponse{ItemID: itemID, SectionKey: sectionKey, Found: found}
	if found {
		response.State = &state
	}
	return jsonResult(response)
}

// handleGetDueSections lists every section due now.
func handleGetDueSections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	kinds := stringSliceArg(request, "kinds")
	entries, err := s.DueSections(ctx, kinds)
	if err != nil {
		return errorResult("Error getting due sections: %v", err)
	}
	response := SectionsResponse{Sections: newSectionEntries(entries), Count: len(entries)}
	if cast.ToBool(request.Params.Arguments["include_stats"]) {
		stats := s.Stats(ctx, kinds)
		response.Stats = &stats
	}
	return jsonResult(response)
}

// handleGetUpcomingSections lists scheduled sections that are not yet due.
func handleGetUpcomingSections(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	limit := review.DefaultUpcomingLimit
	if raw, ok := request.Params.Arguments["limit"]; ok {
		n, err := cast.ToIntE(raw)
		if err != nil {
			return errorResult("Invalid limit: %v", raw)
		}
		limit = n
	}

	entries, err := s.UpcomingSections(ctx, stringSliceArg(request, "kinds"), limit)
	if err != nil {
		return errorResult("Error getting upcoming sections: %v", err)
	}
	return jsonResult(SectionsResponse{Sections: newSectionEntries(entries), Count: len(entries)})
}

// handleGetReviewSteps returns the effective review durations in minutes.
func handleGetReviewSteps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}
	return jsonResult(ReviewStepsResponse{Steps: s.ReviewSteps(ctx)})
}

// handleUpdateReviewSteps changes one or more review durations.
func handleUpdateReviewSteps(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s, ok := serviceFrom(ctx)
	if !ok {
		return mcp.NewToolResultText("Error: Service not available"), nil
	}

	patch := map[string]any{}
	for _, r := range review.ReviewRatings {
		if v, ok := request.Params.Arguments[r.String()]; ok {
			patch[r.String()] = v
		}
	}
	if len(patch) == 0 {
		return mcp.NewToolResultText("Missing parameters: at least one of again, hard, good, easy"), nil
	}

	steps, err := s.UpdateReviewSteps(ctx, patch)
	if err != nil {
		return errorResult("Error updating review steps: %v", err)
	}
	return jsonResult(ReviewStepsResponse{Steps: steps})
}
