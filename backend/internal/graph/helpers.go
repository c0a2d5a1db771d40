package graph

import (
	"strconv"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"ttsbot/backend/internal/ttsmode"
)

// ============================================================================
// Helper Functions
// ============================================================================

func getMapFromRecord(record *neo4j.Record, key string) map[string]interface{} {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return nil
	}
	if m, ok := val.(map[string]interface{}); ok {
		return m
	}
	return nil
}

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getStringFromMap(m map[string]interface{}, key, defaultValue string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if str, ok := val.(string); ok {
		return str
	}
	return defaultValue
}

func getBoolFromMap(m map[string]interface{}, key string, defaultValue bool) bool {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return defaultValue
}

func getIntFromMap(m map[string]interface{}, key string, defaultValue int) int {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	switch i := val.(type) {
	case int64:
		return int(i)
	case int:
		return i
	case float64:
		return int(i)
	}
	return defaultValue
}

func getStringSliceFromMap(m map[string]interface{}, key string) []string {
	val, ok := m[key]
	if !ok || val == nil {
		return nil
	}
	switch slice := val.(type) {
	case []string:
		return slice
	case []interface{}:
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return nil
}

func getModeFromMap(m map[string]interface{}, key string) (ttsmode.Mode, bool) {
	name := getStringFromMap(m, key, "")
	if name == "" {
		return 0, false
	}
	return ttsmode.Parse(name)
}

// parseModeVoices decodes ["gTTS:en", "Polly:Brian"]. Unknown modes are skipped.
func parseModeVoices(entries []string) map[ttsmode.Mode]string {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[ttsmode.Mode]string, len(entries))
	for _, entry := range entries {
		name, voice, ok := strings.Cut(entry, ":")
		if !ok || voice == "" {
			continue
		}
		if mode, ok := ttsmode.Parse(name); ok {
			out[mode] = voice
		}
	}
	return out
}

// parseModeRates decodes ["Polly:120", "gCloud:1.5"]
func parseModeRates(entries []string) map[ttsmode.Mode]float64 {
	if len(entries) == 0 {
		return nil
	}
	out := make(map[ttsmode.Mode]float64, len(entries))
	for _, entry := range entries {
		name, raw, ok := strings.Cut(entry, ":")
		if !ok {
			continue
		}
		mode, ok := ttsmode.Parse(name)
		if !ok {
			continue
		}
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[mode] = rate
	}
	return out
}

// encodeModeVoices is the inverse of parseModeVoices
func encodeModeVoices(voices map[ttsmode.Mode]string) []string {
	out := make([]string, 0, len(voices))
	for _, mode := range ttsmode.All() {
		if voice, ok := voices[mode]; ok && voice != "" {
			out = append(out, mode.String()+":"+voice)
		}
	}
	return out
}
