// Package action maps the assistant's tool vocabulary onto external
// view URLs and dispatches them.
//
// The vocabulary is a fixed three-entry table: a web search, a video
// search, and a music search, each taking a single query string.
package action

import (
	"net/url"

	"github.com/lyra-voice/lyra/pkg/provider/llm"
)

// Kind identifies what an action does. The zero value is KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	KindSearch
	KindVideo
	KindMusic
)

// Tool names as declared to the model.
const (
	NameSearch = "searchGoogle"
	NameVideo  = "openYoutube"
	NameMusic  = "playMusic"
)

// String returns the kind's tool name, or "unknown".
func (k Kind) String() string {
	switch k {
	case KindSearch:
		return NameSearch
	case KindVideo:
		return NameVideo
	case KindMusic:
		return NameMusic
	default:
		return "unknown"
	}
}

// KindFromName maps a tool name to its Kind. The mapping is total:
// names outside the table yield KindUnknown rather than an error, so
// a model inventing a tool degrades to an acknowledged no-op.
func KindFromName(name string) Kind {
	switch name {
	case NameSearch:
		return KindSearch
	case NameVideo:
		return KindVideo
	case NameMusic:
		return KindMusic
	default:
		return KindUnknown
	}
}

// Descriptor is one requested action.
type Descriptor struct {
	Kind  Kind
	Query string
}

// URL returns the external view URL for d with the query escaped.
// ok is false for KindUnknown.
func (d Descriptor) URL() (string, bool) {
	q := url.QueryEscape(d.Query)
	switch d.Kind {
	case KindSearch:
		return "https://www.google.com/search?q=" + q, true
	case KindVideo:
		return "https://www.youtube.com/results?search_query=" + q, true
	case KindMusic:
		return "https://music.youtube.com/search?q=" + q, true
	default:
		return "", false
	}
}

// queryParameters is the JSON Schema shared by all three declarations.
func queryParameters(description string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{"query"},
	}
}

// Declarations returns the tool definitions announced to the model in
// both conversation modes that support structured calls.
func Declarations() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        NameSearch,
			Description: "Search the web for the given query and show the results to the user.",
			Parameters:  queryParameters("The text to search the web for."),
		},
		{
			Name:        NameVideo,
			Description: "Search YouTube for videos matching the given query and show the results to the user.",
			Parameters:  queryParameters("The video topic to search for."),
		},
		{
			Name:        NameMusic,
			Description: "Search YouTube Music for the given song, album or artist and show the results to the user.",
			Parameters:  queryParameters("The song, album or artist to play."),
		},
	}
}
