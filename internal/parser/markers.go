package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apperrors "quantb/internal/errors"
	"quantb/internal/models"
)

const markerPrefix = "[COMPONENT:"

// extractMarkers removes every [COMPONENT:type:json] marker from text and
// returns the components the well-formed ones describe. Malformed markers
// are stripped and logged.
func (p *Parser) extractMarkers(text string) (string, []models.SmartComponent) {
	if !strings.Contains(text, markerPrefix) {
		return text, nil
	}

	var (
		out        strings.Builder
		components []models.SmartComponent
		rest       = text
	)
	for {
		start := strings.Index(rest, markerPrefix)
		if start < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		body := rest[start+len(markerPrefix):]

		c, consumed, err := p.decodeMarker(body)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Dropping malformed component marker")
			if end := strings.IndexByte(body, ']'); end >= 0 {
				consumed = end + 1
			} else {
				consumed = len(body)
			}
		} else {
			components = append(components, c)
		}
		rest = body[consumed:]
	}
	return out.String(), components
}

// decodeMarker parses "type:json]" from the start of body and reports how
// many bytes it consumed.
func (p *Parser) decodeMarker(body string) (models.SmartComponent, int, error) {
	colon := strings.IndexByte(body, ':')
	if colon <= 0 {
		return models.SmartComponent{}, 0, markerError(body, errors.New("missing component type"))
	}
	typ := models.ComponentType(strings.TrimSpace(body[:colon]))
	if !IsKnownType(typ) {
		return models.SmartComponent{}, 0, markerError(body, fmt.Errorf("unknown component type %q", typ))
	}

	dec := json.NewDecoder(strings.NewReader(body[colon+1:]))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return models.SmartComponent{}, 0, markerError(body, fmt.Errorf("invalid payload: %w", err))
	}

	pos := colon + 1 + int(dec.InputOffset())
	tail := strings.TrimLeft(body[pos:], " \t\r\n")
	if !strings.HasPrefix(tail, "]") {
		return models.SmartComponent{}, 0, markerError(body, errors.New("unterminated marker"))
	}
	pos = len(body) - len(tail) + 1

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		raw = compact.Bytes()
	}
	return p.newComponent(typ, raw, map[string]any{"source": "inline"}), pos, nil
}

func markerError(body string, err error) error {
	return apperrors.NewParseError("component marker", markerPrefix+body, err)
}
