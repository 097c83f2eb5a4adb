// Package uecs decodes UECS "CCM" telemetry messages.
//
// A CCM message is a small XML blob broadcast over UDP:
//
//	<?xml version="1.0"?>
//	<UECS ver="1.00-E10">
//	  <DATA type="InAirTemp.mIC" room="1" region="1" order="1" priority="15">22.5</DATA>
//	  <IP>192.168.1.7</IP>
//	</UECS>
//
// Decoding is a pure transform from the raw payload into a Reading with
// its canonical signal key.
package uecs

import (
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/y-ookuma/uecs2influxdbV2/internal/errors"
)

// KeySeparator joins the canonical signal key segments.
const KeySeparator = "_"

// Reading is the decoded form of one CCM message. It is created by the
// decoder, transformed by the pipeline, and terminates at the store writer
// or is discarded.
type Reading struct {
	// Signal is the canonical signal key derived from the DATA attributes.
	Signal string

	// Source protocol fields, kept for logging.
	Type   string
	Room   string
	Region string
	Order  string

	// Value is the numeric reading.
	Value float64

	// Priority is the CCM priority field.
	Priority int32

	// ReceivedAt is the arrival timestamp.
	ReceivedAt time.Time
}

// ccmEnvelope mirrors the UECS XML structure.
type ccmEnvelope struct {
	XMLName xml.Name `xml:"UECS"`
	Version string   `xml:"ver,attr"`
	Data    *ccmData `xml:"DATA"`
	IP      string   `xml:"IP"`
}

type ccmData struct {
	Type     string `xml:"type,attr"`
	Room     string `xml:"room,attr"`
	Region   string `xml:"region,attr"`
	Order    string `xml:"order,attr"`
	Priority string `xml:"priority,attr"`
	Text     string `xml:",chardata"`
}

// Decode parses one raw CCM payload into a Reading.
// It fails with a DecodeError when the markup is malformed, a required
// field is absent, or the value is not numeric.
func Decode(payload []byte, receivedAt time.Time) (Reading, error) {
	var env ccmEnvelope
	if err := xml.Unmarshal(payload, &env); err != nil {
		return Reading{}, errors.NewDecodeError("", errors.ErrMalformedMessage)
	}
	if env.Data == nil {
		return Reading{}, errors.NewDecodeError("DATA", errors.ErrMissingField)
	}

	d := env.Data
	for _, f := range []struct{ name, value string }{
		{"type", d.Type},
		{"room", d.Room},
		{"region", d.Region},
		{"order", d.Order},
		{"priority", d.Priority},
	} {
		if f.value == "" {
			return Reading{}, errors.NewDecodeError(f.name, errors.ErrMissingField)
		}
	}

	text := strings.TrimSpace(d.Text)
	if text == "" {
		return Reading{}, errors.NewDecodeError("text", errors.ErrMissingField)
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Reading{}, errors.NewDecodeError("text", errors.ErrNotNumeric)
	}

	priority, err := strconv.ParseInt(strings.TrimSpace(d.Priority), 10, 32)
	if err != nil {
		return Reading{}, errors.NewDecodeError("priority", errors.ErrNotNumeric)
	}

	return Reading{
		Signal:     SignalKey(d.Type, d.Room, d.Region, d.Order),
		Type:       d.Type,
		Room:       d.Room,
		Region:     d.Region,
		Order:      d.Order,
		Value:      value,
		Priority:   int32(priority),
		ReceivedAt: receivedAt,
	}, nil
}

// SignalKey derives the canonical signal key from the four protocol
// fields: the first dot-delimited segment of type, then room, region and
// order, joined and case-folded. Identical source fields always yield the
// identical key; the key is the sole join point between live policy,
// stored points and aggregates.
func SignalKey(typ, room, region, order string) string {
	prefix, _, _ := strings.Cut(typ, ".")
	key := prefix + KeySeparator + room + KeySeparator + region + KeySeparator + order
	return strings.ToLower(key)
}
