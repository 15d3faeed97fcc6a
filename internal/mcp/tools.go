package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"worldline/internal/config"
	"worldline/internal/id"
	"worldline/internal/world"
	"worldline/internal/worlderr"
)

type CreateEntityInput struct {
	WorldID      string `json:"world_id,omitempty" jsonschema:"world the entity belongs to"`
	Kind         string `json:"kind" jsonschema:"character or thing"`
	Name         string `json:"name" jsonschema:"entity name"`
	Description  string `json:"description,omitempty" jsonschema:"static description"`
	BirthTime    int64  `json:"birth_time,omitempty" jsonschema:"story time of the birth event"`
	BirthContent string `json:"birth_content,omitempty" jsonschema:"narrative text of the birth event"`
}

type UpdateEntityInput struct {
	WorldID     string  `json:"world_id,omitempty"`
	EntityID    string  `json:"entity_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type EndInput struct {
	WorldID      string `json:"world_id,omitempty"`
	SubjectID    string `json:"subject_id" jsonschema:"entity or relationship ID"`
	Time         int64  `json:"time" jsonschema:"story time of the end event"`
	Content      string `json:"content,omitempty"`
	CauseEventID string `json:"cause_event_id,omitempty" jsonschema:"event that caused the end"`
}

type SubjectInput struct {
	WorldID   string `json:"world_id,omitempty"`
	SubjectID string `json:"subject_id" jsonschema:"entity or relationship ID"`
}

type ListEntitiesInput struct {
	WorldID string `json:"world_id,omitempty"`
	Kind    string `json:"kind" jsonschema:"character or thing"`
}

type CreateRelationshipInput struct {
	WorldID     string `json:"world_id,omitempty"`
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	Type        string `json:"type" jsonschema:"relationship type ID"`
	Description string `json:"description,omitempty"`
	Time        int64  `json:"time,omitempty" jsonschema:"story time the relationship begins"`
	Content     string `json:"content,omitempty"`
}

type CreateEventInput struct {
	WorldID  string            `json:"world_id,omitempty"`
	Time     int64             `json:"time"`
	Duration int64             `json:"duration,omitempty"`
	PlaceID  string            `json:"place_id,omitempty"`
	Content  string            `json:"content"`
	Impacts  world.StateImpact `json:"impacts"`
}

type UpdateEventInput struct {
	WorldID  string             `json:"world_id,omitempty"`
	EventID  string             `json:"event_id"`
	Time     *int64             `json:"time,omitempty"`
	Duration *int64             `json:"duration,omitempty"`
	PlaceID  *string            `json:"place_id,omitempty"`
	Content  *string            `json:"content,omitempty"`
	Impacts  *world.StateImpact `json:"impacts,omitempty"`
}

type EventRefInput struct {
	WorldID string `json:"world_id,omitempty"`
	EventID string `json:"event_id"`
}

type ListEventsInput struct {
	WorldID   string `json:"world_id,omitempty"`
	SubjectID string `json:"subject_id"`
	Until     *int64 `json:"until,omitempty" jsonschema:"inclusive story-time upper bound"`
}

type ComputeStateInput struct {
	WorldID   string `json:"world_id,omitempty"`
	SubjectID string `json:"subject_id"`
	Time      int64  `json:"time"`
	Direction string `json:"direction,omitempty" jsonschema:"from_to or to_from, relationships only"`
}

type GetSchemaInput struct{}

type EntityView struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	EndEventID  string `json:"end_event_id,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

type RelationshipView struct {
	ID          string `json:"id"`
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	EndEventID  string `json:"end_event_id,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
}

type EventView struct {
	ID       string            `json:"id"`
	Time     int64             `json:"time"`
	Duration int64             `json:"duration,omitempty"`
	PlaceID  string            `json:"place_id,omitempty"`
	Content  string            `json:"content"`
	Impacts  world.StateImpact `json:"impacts"`
	System   bool              `json:"system,omitempty"`
	Class    string            `json:"class"`
}

type EntityOutput struct {
	Entity EntityView `json:"entity"`
	Event  *EventView `json:"event,omitempty"`
}

type RelationshipOutput struct {
	Relationship RelationshipView `json:"relationship"`
	Event        EventView        `json:"event"`
}

type EventOutput struct {
	Event EventView `json:"event"`
}

type EventsOutput struct {
	Events []EventView `json:"events"`
}

type EntitiesOutput struct {
	Entities []EntityView `json:"entities"`
}

type StateOutput struct {
	SubjectID  string         `json:"subject_id"`
	Time       int64          `json:"time"`
	Direction  string         `json:"direction,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

type DoneOutput struct {
	OK bool `json:"ok"`
}

type SchemaOutput struct {
	Version           int                      `json:"version"`
	Attributes        []AttributeOutput        `json:"attributes"`
	RelationshipTypes []RelationshipTypeOutput `json:"relationship_types"`
}

type AttributeOutput struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Values    []string `json:"values,omitempty"`
	Required  bool     `json:"required,omitempty"`
	AppliesTo []string `json:"applies_to,omitempty"`
}

type RelationshipTypeOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Inverse   string `json:"inverse,omitempty"`
	Symmetric bool   `json:"symmetric,omitempty"`
}

func (s *Server) registerTools() {
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "get_schema", Description: "Return the attribute dictionary and relationship types"}, s.handleGetSchema)

	sdk.AddTool(s.mcp, &sdk.Tool{Name: "create_entity", Description: "Create a character or thing with its birth event"}, s.handleCreateEntity)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "update_entity", Description: "Change an entity's name or description"}, s.handleUpdateEntity)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "list_entities", Description: "List characters or things"}, s.handleListEntities)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "create_relationship", Description: "Relate two live entities"}, s.handleCreateRelationship)

	sdk.AddTool(s.mcp, &sdk.Tool{Name: "end", Description: "End an entity or relationship at a story time"}, s.handleEnd)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "undo_end", Description: "Withdraw the end of an entity or relationship"}, s.handleUndoEnd)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "delete", Description: "Soft-delete an entity or relationship"}, s.handleDelete)

	sdk.AddTool(s.mcp, &sdk.Tool{Name: "create_event", Description: "Record an event and its attribute changes"}, s.handleCreateEvent)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "update_event", Description: "Edit an event's time, duration, place, content or impacts"}, s.handleUpdateEvent)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "delete_event", Description: "Delete an ordinary event"}, s.handleDeleteEvent)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "list_events", Description: "List the events touching an entity or relationship in time order"}, s.handleListEvents)
	sdk.AddTool(s.mcp, &sdk.Tool{Name: "compute_state", Description: "Replay a subject's attributes as of a story time"}, s.handleComputeState)
}

func (s *Server) world(input string) (string, error) {
	if input != "" {
		return input, nil
	}
	if s.worldID == "" {
		return "", fmt.Errorf("world_id is required")
	}
	return s.worldID, nil
}

func (s *Server) handleGetSchema(ctx context.Context, req *sdk.CallToolRequest, input GetSchemaInput) (*sdk.CallToolResult, SchemaOutput, error) {
	return nil, schemaOutputFromConfig(s.schema), nil
}

func (s *Server) handleCreateEntity(ctx context.Context, req *sdk.CallToolRequest, input CreateEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, EntityOutput{}, err
	}
	kind, err := entityKind(input.Kind)
	if err != nil {
		return nil, EntityOutput{}, err
	}
	e, birth, err := s.engine.CreateEntity(ctx, worldID, world.EntityInput{
		Kind:         kind,
		Name:         input.Name,
		Description:  input.Description,
		BirthTime:    input.BirthTime,
		BirthContent: input.BirthContent,
	})
	if err != nil {
		return nil, EntityOutput{}, s.toolError("create_entity", err)
	}
	ev := eventView(birth)
	return nil, EntityOutput{Entity: entityView(e), Event: &ev}, nil
}

func (s *Server) handleUpdateEntity(ctx context.Context, req *sdk.CallToolRequest, input UpdateEntityInput) (*sdk.CallToolResult, EntityOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, EntityOutput{}, err
	}
	e, err := s.engine.UpdateEntity(ctx, worldID, input.EntityID, world.EntityPatch{Name: input.Name, Description: input.Description})
	if err != nil {
		return nil, EntityOutput{}, s.toolError("update_entity", err)
	}
	return nil, EntityOutput{Entity: entityView(e)}, nil
}

func (s *Server) handleListEntities(ctx context.Context, req *sdk.CallToolRequest, input ListEntitiesInput) (*sdk.CallToolResult, EntitiesOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, EntitiesOutput{}, err
	}
	kind, err := entityKind(input.Kind)
	if err != nil {
		return nil, EntitiesOutput{}, err
	}
	items, err := s.engine.ListEntities(ctx, worldID, kind)
	if err != nil {
		return nil, EntitiesOutput{}, s.toolError("list_entities", err)
	}
	out := make([]EntityView, 0, len(items))
	for i := range items {
		out = append(out, entityView(&items[i]))
	}
	return nil, EntitiesOutput{Entities: out}, nil
}

func (s *Server) handleCreateRelationship(ctx context.Context, req *sdk.CallToolRequest, input CreateRelationshipInput) (*sdk.CallToolResult, RelationshipOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, RelationshipOutput{}, err
	}
	rel, ev, err := s.engine.CreateRelationship(ctx, worldID, world.RelationshipInput{
		FromID:      input.FromID,
		ToID:        input.ToID,
		TypeID:      input.Type,
		Description: input.Description,
		Time:        input.Time,
		Content:     input.Content,
	})
	if err != nil {
		return nil, RelationshipOutput{}, s.toolError("create_relationship", err)
	}
	return nil, RelationshipOutput{Relationship: relationshipView(rel), Event: eventView(ev)}, nil
}

// The lifecycle tools dispatch on the subject ID's prefix.

func (s *Server) handleEnd(ctx context.Context, req *sdk.CallToolRequest, input EndInput) (*sdk.CallToolResult, EventOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, EventOutput{}, err
	}
	end := world.EndInput{Time: input.Time, Content: input.Content, CauseEventID: input.CauseEventID}
	var ev *world.Event
	if id.KindOf(input.SubjectID) == id.KindRelationship {
		ev, err = s.engine.EndRelationship(ctx, worldID, input.SubjectID, end)
	} else {
		ev, err = s.engine.EndEntity(ctx, worldID, input.SubjectID, end)
	}
	if err != nil {
		return nil, EventOutput{}, s.toolError("end", err)
	}
	return nil, EventOutput{Event: eventView(ev)}, nil
}

func (s *Server) handleUndoEnd(ctx context.Context, req *sdk.CallToolRequest, input SubjectInput) (*sdk.CallToolResult, DoneOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, DoneOutput{}, err
	}
	if id.KindOf(input.SubjectID) == id.KindRelationship {
		err = s.engine.UndoEndRelationship(ctx, worldID, input.SubjectID)
	} else {
		err = s.engine.UndoEndEntity(ctx, worldID, input.SubjectID)
	}
	if err != nil {
		return nil, DoneOutput{}, s.toolError("undo_end", err)
	}
	return nil, DoneOutput{OK: true}, nil
}

func (s *Server) handleDelete(ctx context.Context, req *sdk.CallToolRequest, input SubjectInput) (*sdk.CallToolResult, DoneOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, DoneOutput{}, err
	}
	if id.KindOf(input.SubjectID) == id.KindRelationship {
		err = s.engine.DeleteRelationship(ctx, worldID, input.SubjectID)
	} else {
		err = s.engine.DeleteEntity(ctx, worldID, input.SubjectID)
	}
	if err != nil {
		return nil, DoneOutput{}, s.toolError("delete", err)
	}
	return nil, DoneOutput{OK: true}, nil
}

func (s *Server) handleCreateEvent(ctx context.Context, req *sdk.CallToolRequest, input CreateEventInput) (*sdk.CallToolResult, EventOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, EventOutput{}, err
	}
	ev, err := s.engine.CreateEvent(ctx, worldID, world.EventInput{
		Time:     input.Time,
		Duration: input.Duration,
		PlaceID:  input.PlaceID,
		Content:  input.Content,
		Impacts:  input.Impacts,
	})
	if err != nil {
		return nil, EventOutput{}, s.toolError("create_event", err)
	}
	return nil, EventOutput{Event: eventView(ev)}, nil
}

func (s *Server) handleUpdateEvent(ctx context.Context, req *sdk.CallToolRequest, input UpdateEventInput) (*sdk.CallToolResult, EventOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, EventOutput{}, err
	}
	ev, err := s.engine.UpdateEvent(ctx, worldID, input.EventID, world.EventPatch{
		Time:     input.Time,
		Duration: input.Duration,
		PlaceID:  input.PlaceID,
		Content:  input.Content,
		Impacts:  input.Impacts,
	})
	if err != nil {
		return nil, EventOutput{}, s.toolError("update_event", err)
	}
	return nil, EventOutput{Event: eventView(ev)}, nil
}

func (s *Server) handleDeleteEvent(ctx context.Context, req *sdk.CallToolRequest, input EventRefInput) (*sdk.CallToolResult, DoneOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, DoneOutput{}, err
	}
	if err := s.engine.DeleteEvent(ctx, worldID, input.EventID); err != nil {
		return nil, DoneOutput{}, s.toolError("delete_event", err)
	}
	return nil, DoneOutput{OK: true}, nil
}

func (s *Server) handleListEvents(ctx context.Context, req *sdk.CallToolRequest, input ListEventsInput) (*sdk.CallToolResult, EventsOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, EventsOutput{}, err
	}
	events, err := s.engine.ListEventsByEntity(ctx, worldID, input.SubjectID, input.Until)
	if err != nil {
		return nil, EventsOutput{}, s.toolError("list_events", err)
	}
	out := make([]EventView, 0, len(events))
	for i := range events {
		out = append(out, eventView(&events[i]))
	}
	return nil, EventsOutput{Events: out}, nil
}

func (s *Server) handleComputeState(ctx context.Context, req *sdk.CallToolRequest, input ComputeStateInput) (*sdk.CallToolResult, StateOutput, error) {
	worldID, err := s.world(input.WorldID)
	if err != nil {
		return nil, StateOutput{}, err
	}
	var st *world.State
	if id.KindOf(input.SubjectID) == id.KindRelationship {
		dir := world.Direction(input.Direction)
		if dir == "" {
			dir = world.FromTo
		}
		st, err = s.engine.ComputeRelationshipState(ctx, worldID, input.SubjectID, input.Time, dir)
	} else {
		st, err = s.engine.ComputeState(ctx, worldID, input.SubjectID, input.Time)
	}
	if err != nil {
		return nil, StateOutput{}, s.toolError("compute_state", err)
	}
	return nil, StateOutput{
		SubjectID:  st.SubjectID,
		Time:       st.Time,
		Direction:  string(st.Direction),
		Attributes: st.Attributes,
	}, nil
}

func entityView(e *world.Entity) EntityView {
	return EntityView{
		ID:          e.ID,
		Kind:        e.Kind().String(),
		Name:        e.Name,
		Description: e.Description,
		EndEventID:  e.EndEventID,
		Deleted:     e.DeletedAt != nil,
	}
}

func relationshipView(r *world.Relationship) RelationshipView {
	return RelationshipView{
		ID:          r.ID,
		FromID:      r.FromID,
		ToID:        r.ToID,
		Type:        r.TypeID,
		Name:        r.Name,
		Description: r.Description,
		EndEventID:  r.EndEventID,
		Deleted:     r.DeletedAt != nil,
	}
}

func eventView(ev *world.Event) EventView {
	return EventView{
		ID:       ev.ID,
		Time:     ev.Time,
		Duration: ev.Duration,
		PlaceID:  ev.PlaceID,
		Content:  ev.Content,
		Impacts:  ev.Impacts,
		System:   ev.System,
		Class:    world.Classify(ev).String(),
	}
}

func entityKind(name string) (id.Kind, error) {
	kind := id.ParseKind(strings.ToLower(strings.TrimSpace(name)))
	if !kind.IsEntity() {
		return kind, fmt.Errorf("kind must be character or thing, got %q", name)
	}
	return kind, nil
}

// toolError flattens an engine error into a message a tool caller can act
// on: the kind, the message and the structured context in key order.
func (s *Server) toolError(tool string, err error) error {
	kind := worlderr.KindOf(err)
	s.logger.Debug("tool call failed", zap.String("tool", tool), zap.String("kind", string(kind)), zap.Error(err))
	if kind == "" {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", kind, err.Error())
	ctx := worlderr.Context(err)
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i == 0 {
			b.WriteString(" (")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", k, ctx[k])
	}
	if len(keys) > 0 {
		b.WriteString(")")
	}
	return &ToolError{Kind: kind, Context: ctx, msg: b.String(), err: err}
}

// ToolError is returned by a handler when the engine rejected the call.
type ToolError struct {
	Kind    worlderr.Kind
	Context map[string]any
	msg     string
	err     error
}

func (e *ToolError) Error() string { return e.msg }
func (e *ToolError) Unwrap() error { return e.err }

func schemaOutputFromConfig(schema *config.Schema) SchemaOutput {
	if schema == nil {
		return SchemaOutput{}
	}

	out := SchemaOutput{
		Version:           schema.Version,
		Attributes:        make([]AttributeOutput, 0, len(schema.Attributes)),
		RelationshipTypes: make([]RelationshipTypeOutput, 0, len(schema.RelationshipTypes)),
	}
	for _, attr := range schema.Attributes {
		out.Attributes = append(out.Attributes, AttributeOutput{
			Name:      attr.Name,
			Type:      attr.Type,
			Values:    attr.Values,
			Required:  attr.Required,
			AppliesTo: attr.AppliesTo,
		})
	}
	for _, rel := range schema.RelationshipTypes {
		out.RelationshipTypes = append(out.RelationshipTypes, RelationshipTypeOutput{
			ID:        rel.ID,
			Name:      rel.Name,
			Inverse:   rel.Inverse,
			Symmetric: rel.Symmetric,
		})
	}
	return out
}
