package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"ttsbot/backend/internal/ttsmode"
	apperrors "ttsbot/backend/pkg/errors"
	"ttsbot/backend/pkg/logger"
)

// audioTooLongCode is the service's error code for messages over max_length
const audioTooLongCode = 2

// maxErrorBody bounds how much of an error response is read
const maxErrorBody = 4096

// TTSClient talks to the TTS HTTP service
type TTSClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewTTSClient creates a TTS service client
func NewTTSClient(baseURL, apiKey string, timeout time.Duration) *TTSClient {
	return &TTSClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("tts"),
	}
}

// SynthesisRequest is one message to synthesize
type SynthesisRequest struct {
	Text            string
	Voice           string
	Mode            ttsmode.Mode
	SpeakingRate    string // empty when the mode takes none
	MaxLength       int    // seconds
	TranslationLang string // empty disables translation
}

// Audio is a successful synthesis result. The caller owns Body.
type Audio struct {
	Body        io.ReadCloser
	ContentType string
}

// serviceError is the body the service sends instead of audio
type serviceError struct {
	Display string `json:"display"`
	Code    uint8  `json:"code"`
}

// Synthesize fetches audio for req. The returned error is ErrAudioTooLong for
// oversized messages, ErrSynthesisRejected for other service-reported errors and
// ErrSynthesisRequestFailed for transport or HTTP failures.
func (c *TTSClient) Synthesize(ctx context.Context, req SynthesisRequest) (*Audio, error) {
	query := url.Values{}
	query.Set("text", req.Text)
	query.Set("lang", req.Voice)
	query.Set("mode", req.Mode.String())
	query.Set("max_length", strconv.Itoa(req.MaxLength))
	query.Set("preferred_format", req.Mode.Info().AudioFormat)
	if req.SpeakingRate != "" {
		query.Set("speaking_rate", req.SpeakingRate)
	}
	if req.TranslationLang != "" {
		query.Set("translation_lang", req.TranslationLang)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tts?"+query.Encode(), nil)
	if err != nil {
		return nil, apperrors.NewSynthesisRequestFailed(0, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewSynthesisRequestFailed(0, err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && !isJSON(contentType) {
		c.logger.Debug("Synthesized audio",
			zap.String("mode", req.Mode.String()),
			zap.String("voice", req.Voice),
			zap.String("content_type", contentType),
			zap.Duration("latency", time.Since(start)),
		)
		return &Audio{Body: resp.Body, ContentType: contentType}, nil
	}

	defer resp.Body.Close()
	return nil, classifyFailure(resp)
}

func classifyFailure(resp *http.Response) error {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil {
		return apperrors.NewSynthesisRequestFailed(resp.StatusCode, readErr)
	}

	var svcErr serviceError
	if err := json.Unmarshal(body, &svcErr); err == nil && svcErr.Code != 0 {
		if svcErr.Code == audioTooLongCode {
			return apperrors.ErrAudioTooLong
		}
		return apperrors.NewSynthesisRejected(svcErr.Code, svcErr.Display)
	}

	return apperrors.NewSynthesisRequestFailed(resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

// voiceEntry is one element of the /voices listing
type voiceEntry struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Voices lists the voices of a mode as voice code -> language code
func (c *TTSClient) Voices(ctx context.Context, mode ttsmode.Mode) (map[string]string, error) {
	query := url.Values{}
	query.Set("mode", mode.String())
	query.Set("raw", "true")

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/voices?"+query.Encode(), nil)
	if err != nil {
		return nil, apperrors.NewSynthesisRequestFailed(0, err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewSynthesisRequestFailed(0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyFailure(resp)
	}

	var entries []voiceEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, apperrors.NewSynthesisRequestFailed(resp.StatusCode, fmt.Errorf("decode voices: %w", err))
	}

	voices := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.Name != "" {
			voices[e.Name] = e.Language
		}
	}
	return voices, nil
}

// LoadCatalog fills catalog with every mode's voices. Modes that fail to load are
// logged and skipped; the catalog falls back to treating voice codes as languages.
func (c *TTSClient) LoadCatalog(ctx context.Context, catalog *ttsmode.Catalog) {
	for _, mode := range ttsmode.All() {
		voices, err := c.Voices(ctx, mode)
		if err != nil {
			c.logger.Warn("Failed to load voice list", zap.String("mode", mode.String()), zap.Error(err))
			continue
		}
		catalog.Set(mode, voices)
		c.logger.Debug("Loaded voice list", zap.String("mode", mode.String()), zap.Int("voices", len(voices)))
	}
}
