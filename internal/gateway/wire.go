package gateway

import (
	"encoding/json"
	"fmt"
	"math"

	"sbzdeck/internal/profile"
)

// wireValue is a tagged parameter value on the bridge topics: {"kind":"u32","value":1}.
type wireValue struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

type wireFeatures map[string]map[string]wireValue

type wireSnapshot struct {
	Output   *int64       `json:"output,omitempty"`
	Volume   *float32     `json:"volume,omitempty"`
	Features wireFeatures `json:"features"`
}

type commandEnvelope struct {
	ID       string       `json:"id"`
	Output   *uint32      `json:"output,omitempty"`
	Volume   *float32     `json:"volume,omitempty"`
	Features wireFeatures `json:"features,omitempty"`
}

type replyEnvelope struct {
	ID       string        `json:"id"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Snapshot *wireSnapshot `json:"snapshot,omitempty"`
}

type eventEnvelope struct {
	Type      string     `json:"type"`
	Feature   string     `json:"feature,omitempty"`
	Parameter string     `json:"parameter,omitempty"`
	Value     *wireValue `json:"value,omitempty"`
	Volume    float32    `json:"volume,omitempty"`
	Muted     bool       `json:"muted,omitempty"`
	Error     string     `json:"error,omitempty"`
}

func encodeValue(v profile.Value) (wireValue, bool) {
	if v.IsOther() {
		return wireValue{}, false
	}
	if f, ok := v.AsFloat(); ok && (math.IsNaN(float64(f)) || math.IsInf(float64(f), 0)) {
		return wireValue{}, false
	}
	raw, err := json.Marshal(v.Interface())
	if err != nil {
		return wireValue{}, false
	}
	return wireValue{Kind: v.Kind().String(), Value: raw}, true
}

// decodeValue maps unknown kinds to profile.Other so the parameter is still listed.
func decodeValue(w wireValue) (profile.Value, error) {
	switch w.Kind {
	case "i32":
		var n int32
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return profile.Value{}, fmt.Errorf("decoding i32: %w", err)
		}
		return profile.Int32(n), nil
	case "u32":
		var n uint32
		if err := json.Unmarshal(w.Value, &n); err != nil {
			return profile.Value{}, fmt.Errorf("decoding u32: %w", err)
		}
		return profile.Uint32(n), nil
	case "float":
		var f float32
		if err := json.Unmarshal(w.Value, &f); err != nil {
			return profile.Value{}, fmt.Errorf("decoding float: %w", err)
		}
		return profile.Float(f), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return profile.Value{}, fmt.Errorf("decoding bool: %w", err)
		}
		return profile.Bool(b), nil
	default:
		return profile.Other(), nil
	}
}

func encodeFeatures(p profile.Parameters) wireFeatures {
	out := make(wireFeatures, len(p))
	for feature, params := range p {
		inner := make(map[string]wireValue, len(params))
		for name, v := range params {
			if w, ok := encodeValue(v); ok {
				inner[name] = w
			}
		}
		out[feature] = inner
	}
	return out
}

func decodeFeatures(w wireFeatures) (profile.Parameters, error) {
	out := make(profile.Parameters, len(w))
	for feature, params := range w {
		inner := make(map[string]profile.Value, len(params))
		for name, wv := range params {
			v, err := decodeValue(wv)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", feature, name, err)
			}
			inner[name] = v
		}
		out[feature] = inner
	}
	return out, nil
}

func decodeSnapshot(w *wireSnapshot) (Snapshot, error) {
	if w == nil {
		return Snapshot{}, fmt.Errorf("%w: reply carried no snapshot", ErrNoSnapshot)
	}
	features, err := decodeFeatures(w.Features)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrNoSnapshot, err)
	}
	snap := SnapshotFrom(w.Volume, features)
	if w.Output != nil {
		code := *w.Output
		snap.OutputCode = &code
	}
	return snap, nil
}
