package storage

import (
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"mcp-semantic-memory/pkg/types"
)

// Payload field names used in the Qdrant collection.
const (
	fieldContent          = "content"
	fieldCategory         = "category"
	fieldContextLevel     = "context_level"
	fieldScope            = "scope"
	fieldProjectName      = "project_name"
	fieldImportance       = "importance"
	fieldEmbeddingModel   = "embedding_model"
	fieldCreatedAt        = "created_at"
	fieldUpdatedAt        = "updated_at"
	fieldLastAccessed     = "last_accessed"
	fieldLifecycleState   = "lifecycle_state"
	fieldTags             = "tags"
	fieldAccessCount      = "access_count"
	fieldProvSource       = "provenance_source"
	fieldProvCreatedBy    = "provenance_created_by"
	fieldProvConfidence   = "provenance_confidence"
	fieldProvVerified     = "provenance_verified"
	fieldProvConfirmed    = "provenance_last_confirmed"
	fieldProvConversation = "provenance_conversation_id"
	fieldProvNotes        = "provenance_notes"
	fieldMetadata         = "metadata"
)

func float64ToFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func float32ToFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func stringValue(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func int64Value(n int64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: n}}
}

func doubleValue(f float64) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: f}}
}

func boolValue(b bool) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: b}}
}

func stringSliceValue(items []string) *qdrant.Value {
	values := make([]*qdrant.Value, len(items))
	for i, s := range items {
		values[i] = stringValue(s)
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{
		ListValue: &qdrant.ListValue{Values: values},
	}}
}

// interfaceValue converts arbitrary JSON-shaped data into a Qdrant value.
func interfaceValue(v interface{}) *qdrant.Value {
	switch x := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{}}
	case string:
		return stringValue(x)
	case bool:
		return boolValue(x)
	case int:
		return int64Value(int64(x))
	case int64:
		return int64Value(x)
	case float64:
		return doubleValue(x)
	case float32:
		return doubleValue(float64(x))
	case []string:
		return stringSliceValue(x)
	case []interface{}:
		values := make([]*qdrant.Value, len(x))
		for i, item := range x {
			values[i] = interfaceValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{
			ListValue: &qdrant.ListValue{Values: values},
		}}
	case map[string]interface{}:
		fields := make(map[string]*qdrant.Value, len(x))
		for k, item := range x {
			fields[k] = interfaceValue(item)
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{
			StructValue: &qdrant.Struct{Fields: fields},
		}}
	default:
		return stringValue(fmt.Sprintf("%v", x))
	}
}

// valueToInterface is the inverse of interfaceValue.
func valueToInterface(v *qdrant.Value) interface{} {
	if v == nil {
		return nil
	}
	switch kind := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		out := make([]interface{}, len(kind.ListValue.GetValues()))
		for i, item := range kind.ListValue.GetValues() {
			out[i] = valueToInterface(item)
		}
		return out
	case *qdrant.Value_StructValue:
		out := make(map[string]interface{}, len(kind.StructValue.GetFields()))
		for k, item := range kind.StructValue.GetFields() {
			out[k] = valueToInterface(item)
		}
		return out
	default:
		return nil
	}
}

// unitToPayload flattens a memory unit into the collection payload. Times are
// stored as unix seconds so Qdrant range filters work on them directly.
func unitToPayload(unit *types.MemoryUnit) map[string]*qdrant.Value {
	payload := map[string]*qdrant.Value{
		fieldContent:        stringValue(unit.Content),
		fieldCategory:       stringValue(string(unit.Category)),
		fieldScope:          stringValue(string(unit.Scope)),
		fieldProjectName:    stringValue(unit.ProjectName),
		fieldImportance:     doubleValue(unit.Importance),
		fieldCreatedAt:      int64Value(unit.CreatedAt.Unix()),
		fieldUpdatedAt:      int64Value(unit.UpdatedAt.Unix()),
		fieldLastAccessed:   int64Value(unit.LastAccessed.Unix()),
		fieldLifecycleState: stringValue(string(unit.LifecycleState)),
		fieldAccessCount:    int64Value(unit.AccessCount),
		fieldProvSource:     stringValue(string(unit.Provenance.Source)),
		fieldProvCreatedBy:  stringValue(unit.Provenance.CreatedBy),
		fieldProvConfidence: doubleValue(unit.Provenance.Confidence),
		fieldProvVerified:   boolValue(unit.Provenance.Verified),
	}
	if unit.ContextLevel != "" {
		payload[fieldContextLevel] = stringValue(string(unit.ContextLevel))
	}
	if unit.EmbeddingModel != "" {
		payload[fieldEmbeddingModel] = stringValue(unit.EmbeddingModel)
	}
	if len(unit.Tags) > 0 {
		payload[fieldTags] = stringSliceValue(unit.Tags)
	}
	if unit.Provenance.LastConfirmed != nil {
		payload[fieldProvConfirmed] = int64Value(unit.Provenance.LastConfirmed.Unix())
	}
	if unit.Provenance.ConversationID != "" {
		payload[fieldProvConversation] = stringValue(unit.Provenance.ConversationID)
	}
	if unit.Provenance.Notes != "" {
		payload[fieldProvNotes] = stringValue(unit.Provenance.Notes)
	}
	if len(unit.Metadata) > 0 {
		payload[fieldMetadata] = interfaceValue(unit.Metadata)
	}
	return payload
}

func payloadString(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func payloadInt64(payload map[string]*qdrant.Value, key string) int64 {
	if v, ok := payload[key]; ok {
		return v.GetIntegerValue()
	}
	return 0
}

func payloadDouble(payload map[string]*qdrant.Value, key string) float64 {
	if v, ok := payload[key]; ok {
		return v.GetDoubleValue()
	}
	return 0
}

func payloadBool(payload map[string]*qdrant.Value, key string) bool {
	if v, ok := payload[key]; ok {
		return v.GetBoolValue()
	}
	return false
}

func payloadStringSlice(payload map[string]*qdrant.Value, key string) []string {
	v, ok := payload[key]
	if !ok {
		return nil
	}
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		if s := item.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// payloadToUnit rebuilds a memory unit from a stored payload. It fails on
// payloads that would violate the model invariants so corrupt points are
// skipped rather than surfaced.
func payloadToUnit(id string, payload map[string]*qdrant.Value) (*types.MemoryUnit, error) {
	if id == "" {
		return nil, fmt.Errorf("point has no id")
	}
	content := payloadString(payload, fieldContent)
	if content == "" {
		return nil, fmt.Errorf("point %s has no content", id)
	}
	unit := &types.MemoryUnit{
		ID:             id,
		Content:        content,
		Category:       types.MemoryCategory(payloadString(payload, fieldCategory)),
		ContextLevel:   types.ContextLevel(payloadString(payload, fieldContextLevel)),
		Scope:          types.MemoryScope(payloadString(payload, fieldScope)),
		ProjectName:    payloadString(payload, fieldProjectName),
		Importance:     payloadDouble(payload, fieldImportance),
		EmbeddingModel: payloadString(payload, fieldEmbeddingModel),
		CreatedAt:      time.Unix(payloadInt64(payload, fieldCreatedAt), 0).UTC(),
		UpdatedAt:      time.Unix(payloadInt64(payload, fieldUpdatedAt), 0).UTC(),
		LastAccessed:   time.Unix(payloadInt64(payload, fieldLastAccessed), 0).UTC(),
		LifecycleState: types.LifecycleState(payloadString(payload, fieldLifecycleState)),
		Tags:           payloadStringSlice(payload, fieldTags),
		AccessCount:    payloadInt64(payload, fieldAccessCount),
		Provenance: types.MemoryProvenance{
			Source:         types.ProvenanceSource(payloadString(payload, fieldProvSource)),
			CreatedBy:      payloadString(payload, fieldProvCreatedBy),
			Confidence:     payloadDouble(payload, fieldProvConfidence),
			Verified:       payloadBool(payload, fieldProvVerified),
			ConversationID: payloadString(payload, fieldProvConversation),
			Notes:          payloadString(payload, fieldProvNotes),
		},
	}
	if _, ok := payload[fieldProvConfirmed]; ok {
		confirmed := time.Unix(payloadInt64(payload, fieldProvConfirmed), 0).UTC()
		unit.Provenance.LastConfirmed = &confirmed
	}
	if meta, ok := payload[fieldMetadata]; ok {
		if m, isMap := valueToInterface(meta).(map[string]interface{}); isMap {
			unit.Metadata = m
		}
	}
	if err := unit.Validate(); err != nil {
		return nil, fmt.Errorf("point %s payload invalid: %w", id, err)
	}
	return unit, nil
}
