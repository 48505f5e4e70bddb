package checkpoint

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaVersion is the version tag written into every checkpoint.
const SchemaVersion = 1

//go:embed state.schema.json
var stateSchemaJSON string

var stateSchema = jsonschema.MustCompileString("state.schema.json", stateSchemaJSON)

// legacyState is the unversioned record written by the first generation of
// the indexer: a loose dictionary keyed by "step".
type legacyState struct {
	Step            string            `json:"step"`
	CompletedGroups []json.RawMessage `json:"completed_groups"`
	TOCSegments     []json.RawMessage `json:"toc_segments"`
	TotalGroups     int               `json:"total_groups"`
	TotalPages      int               `json:"total_pages"`
}

var legacySteps = map[string]Phase{
	"INITIALIZE":    PhaseInitializing,
	"EXTRACT_NODES": PhaseExtracting,
	"VERIFY":        PhaseVerifying,
	"COMPLETED":     PhaseCompleted,
}

// decodeState turns raw checkpoint bytes into a validated State, migrating
// older layouts forward.
func decodeState(data []byte, document string) (*State, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	rawVersion, versioned := probe["schema_version"]
	if !versioned {
		if _, ok := probe["step"]; ok {
			return migrateLegacy(data, document)
		}
		return nil, fmt.Errorf("missing schema_version")
	}

	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return nil, fmt.Errorf("schema_version: %w", err)
	}
	if version > SchemaVersion {
		return nil, fmt.Errorf("schema_version %d is newer than supported version %d", version, SchemaVersion)
	}
	if version < 1 {
		return nil, fmt.Errorf("invalid schema_version %d", version)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := stateSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if state.Document == "" {
		state.Document = document
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	return &state, nil
}

func migrateLegacy(data []byte, document string) (*State, error) {
	var old legacyState
	if err := json.Unmarshal(data, &old); err != nil {
		return nil, fmt.Errorf("decode legacy record: %w", err)
	}
	phase, ok := legacySteps[old.Step]
	if !ok {
		return nil, fmt.Errorf("%w: legacy step %q", ErrUnknownPhase, old.Step)
	}

	state := NewState(document)
	state.Phase = phase
	state.TotalPages = old.TotalPages
	state.TotalGroups = old.TotalGroups
	// The old record used total_pages == 0 as "not counted yet".
	state.PagesCounted = old.TotalPages > 0 || phase != PhaseInitializing

	for _, raw := range old.CompletedGroups {
		id, err := legacyGroupID(raw)
		if err != nil {
			return nil, err
		}
		state.CompletedGroups = append(state.CompletedGroups, id)
	}
	if old.TOCSegments != nil {
		state.Segments = old.TOCSegments
	}

	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("legacy record: %w", err)
	}
	return state, nil
}

// legacyGroupID accepts both "3" and 3; some old records stored integers.
func legacyGroupID(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("legacy group id %s: %w", string(raw), err)
	}
	return strconv.Itoa(n), nil
}

// encodeState renders the state in its canonical on-disk form.
func encodeState(state *State) ([]byte, error) {
	out := *state
	out.SchemaVersion = SchemaVersion
	if out.CompletedGroups == nil {
		out.CompletedGroups = []string{}
	}
	if out.Segments == nil {
		out.Segments = []json.RawMessage{}
	}
	return json.MarshalIndent(&out, "", "  ")
}
