package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"ttsbot/backend/internal/state"
	"ttsbot/backend/internal/ttsmode"
)

// ============================================================================
// User Settings Operations
// ============================================================================

// FetchUserSettings loads a user's policy. Unknown users get the zero policy.
func (r *Repository) FetchUserSettings(ctx context.Context, userID string) (state.UserPolicy, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (u:User {id: $userID})
		RETURN u { .* } AS user
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
	})
	if err != nil {
		return state.UserPolicy{}, fmt.Errorf("failed to query user settings: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return state.UserPolicy{}, fmt.Errorf("failed to fetch user settings: %w", err)
		}
		return state.UserPolicy{UserID: userID}, nil
	}

	return userPolicyFromProps(userID, getMapFromRecord(result.Record(), "user")), nil
}

func userPolicyFromProps(userID string, props map[string]interface{}) state.UserPolicy {
	p := state.UserPolicy{UserID: userID}
	if props == nil {
		return p
	}

	p.BotBanned = getBoolFromMap(props, propBotBanned, false)
	if mode, ok := getModeFromMap(props, propVoiceMode); ok {
		p.VoiceMode = &mode
	}
	p.Voices = parseModeVoices(getStringSliceFromMap(props, propVoices))
	p.SpeakingRates = parseModeRates(getStringSliceFromMap(props, propSpeakingRates))
	p.UseNewFormatting = getBoolFromMap(props, propUseNewFormatting, false)
	return p
}

// SetUserVoice stores a user's preferred mode and voice for that mode
func (r *Repository) SetUserVoice(ctx context.Context, userID string, mode ttsmode.Mode, voice string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)

	// voices holds one "mode:voice" entry per mode
	query := `
		MERGE (u:User {id: $userID})
		ON CREATE SET u.first_seen = datetime($now)
		SET u.voice_mode = $mode,
		    u.voices = [v IN coalesce(u.voices, []) WHERE NOT v STARTS WITH $modePrefix] + [$entry]
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"userID":     userID,
		"mode":       mode.String(),
		"modePrefix": mode.String() + ":",
		"entry":      mode.String() + ":" + voice,
		"now":        now,
	})
	if err != nil {
		return fmt.Errorf("failed to set user voice: %w", err)
	}
	return nil
}

// FetchNickname returns the user's spoken-name override in a guild, or ""
func (r *Repository) FetchNickname(ctx context.Context, guildID, userID string) (string, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (:User {id: $userID})-[n:NICKNAMED]->(:Guild {id: $guildID})
		RETURN n.name AS name
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"guildID": guildID,
		"userID":  userID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to query nickname: %w", err)
	}

	if result.Next(ctx) {
		return getStringFromRecord(result.Record(), "name"), nil
	}
	if err := result.Err(); err != nil {
		return "", fmt.Errorf("failed to fetch nickname: %w", err)
	}
	return "", nil
}

// SetNickname stores a spoken-name override. An empty name removes it.
func (r *Repository) SetNickname(ctx context.Context, guildID, userID, name string) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (u:User {id: $userID})
		MERGE (g:Guild {id: $guildID})
		MERGE (u)-[n:NICKNAMED]->(g)
		SET n.name = $name
	`
	if name == "" {
		query = `
			MATCH (:User {id: $userID})-[n:NICKNAMED]->(:Guild {id: $guildID})
			DELETE n
		`
	}

	_, err := session.Run(ctx, query, map[string]interface{}{
		"guildID": guildID,
		"userID":  userID,
		"name":    name,
	})
	if err != nil {
		return fmt.Errorf("failed to set nickname: %w", err)
	}
	return nil
}
