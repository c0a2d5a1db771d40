package graph

// Node property names shared by the guild and user queries
const (
	propSetupChannel   = "setup_channel"
	propRequiredRole   = "required_role"
	propRequiredPrefix = "required_prefix"
	propPrefix         = "prefix"
	propBotIgnore      = "bot_ignore"
	propRequireVoice   = "require_voice"
	propAudienceIgnore = "audience_ignore"
	propAutoJoin       = "auto_join"
	propTextInVoice    = "text_in_voice"
	propSkipEmoji      = "skip_emoji"
	propXSaid          = "xsaid"
	propMsgLength      = "msg_length"
	propRepeatedChars  = "repeated_chars"
	propTargetLang     = "target_lang"
	propToTranslate    = "to_translate"
	propVoiceMode      = "voice_mode"
	propDefaultVoices  = "default_voices" // ["gTTS:en", "Polly:Brian"]
	propPremium        = "premium"

	propBotBanned        = "bot_banned"
	propVoices           = "voices"         // ["eSpeak:en1"]
	propSpeakingRates    = "speaking_rates" // ["Polly:120"]
	propUseNewFormatting = "use_new_formatting"
)
