// Package protocol defines the messages exchanged with listeners and with
// the runtime control surface.
//
// Listener connections carry one JSON object per line. The orchestrator
// sends DbStateUpdate; listeners send ListenerMessage.
package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/five82/jpdict/internal/jpdict"
)

// Listener message types.
const (
	TypeDbStateUpdated = "dbstateupdated"
	TypeUpdateDB       = "updatedb"
	TypeCancelUpdateDB = "cancelupdatedb"
	TypeDeleteDB       = "deletedb"
	TypeReportError    = "reporterror"
)

// Runtime message types.
const (
	TypeEnableQuery      = "enable?"
	TypeSearch           = "xsearch"
	TypeTranslate        = "translate"
	TypeToggleDefinition = "toggleDefinition"
	TypeReportWarning    = "reportWarning"

	// TypeEnable is the reply to TypeEnableQuery while lookups are on.
	TypeEnable = "enable"
)

// Dictionary options of a search request.
const (
	DictDefault = "default"
	DictNext    = "next"
	DictKanji   = "kanji"
)

// DbStateUpdate is the snapshot pushed to every listener.
type DbStateUpdate struct {
	Type        string                   `json:"type"`
	State       jpdict.Availability      `json:"state"`
	UpdateState jpdict.UpdateState       `json:"updateState"`
	UpdateError *jpdict.UpdateErrorState `json:"updateError,omitempty"`
	Versions    jpdict.DataVersions      `json:"versions"`
}

// NewDbStateUpdate builds a snapshot message.
func NewDbStateUpdate(state jpdict.Availability, us jpdict.UpdateState, uerr *jpdict.UpdateErrorState, versions jpdict.DataVersions) DbStateUpdate {
	return DbStateUpdate{
		Type:        TypeDbStateUpdated,
		State:       state,
		UpdateState: us,
		UpdateError: uerr,
		Versions:    versions,
	}
}

// ListenerMessage is a request sent by a listener.
type ListenerMessage struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// DecodeListenerMessage parses one line from a listener.
func DecodeListenerMessage(line []byte) (ListenerMessage, error) {
	var msg ListenerMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return ListenerMessage{}, fmt.Errorf("decode listener message: %w", err)
	}
	switch msg.Type {
	case TypeUpdateDB, TypeCancelUpdateDB, TypeDeleteDB, TypeReportError:
		return msg, nil
	case "":
		return ListenerMessage{}, fmt.Errorf("listener message without type")
	default:
		return ListenerMessage{}, fmt.Errorf("unknown listener message type %q", msg.Type)
	}
}

// RuntimeRequest is a message from a content surface. Only the fields
// relevant to Type are set.
type RuntimeRequest struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	DictOption string `json:"dictOption,omitempty"`
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Validate checks that the fields Type needs are present.
func (r RuntimeRequest) Validate() error {
	switch r.Type {
	case TypeEnableQuery, TypeToggleDefinition:
		return nil
	case TypeSearch:
		if r.Text == "" {
			return fmt.Errorf("%s: text is required", r.Type)
		}
		switch r.DictOption {
		case "", DictDefault, DictNext, DictKanji:
			return nil
		}
		return fmt.Errorf("%s: unknown dictOption %q", r.Type, r.DictOption)
	case TypeTranslate:
		if r.Title == "" {
			return fmt.Errorf("%s: title is required", r.Type)
		}
		return nil
	case TypeReportWarning:
		if r.Message == "" {
			return fmt.Errorf("%s: message is required", r.Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown runtime message type %q", r.Type)
	}
}

// ContentConfig is the part of the configuration that content surfaces need.
type ContentConfig struct {
	PopupStyle  string `json:"popupStyle"`
	ShowRomaji  bool   `json:"showRomaji"`
	ReadingOnly bool   `json:"readingOnly"`
	ToggleKey   string `json:"toggleKey"`
}

// EnableMessage tells a content surface to start looking words up.
type EnableMessage struct {
	Type   string        `json:"type"`
	Config ContentConfig `json:"config"`
}

// NewEnableMessage builds an EnableMessage.
func NewEnableMessage(cfg ContentConfig) *EnableMessage {
	return &EnableMessage{Type: TypeEnable, Config: cfg}
}
